package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid",
			cfg:     Config{InitialDelay: time.Second, MaxDelay: time.Minute, BackoffMultiplier: 2},
			wantErr: false,
		},
		{
			name:    "zero-initial",
			cfg:     Config{MaxDelay: time.Minute, BackoffMultiplier: 2},
			wantErr: true,
		},
		{
			name:    "max-below-initial",
			cfg:     Config{InitialDelay: time.Minute, MaxDelay: time.Second, BackoffMultiplier: 2},
			wantErr: true,
		},
		{
			name:    "multiplier-below-one",
			cfg:     Config{InitialDelay: time.Second, MaxDelay: time.Minute, BackoffMultiplier: 0.5},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackoff_NextAndReset(t *testing.T) {
	b, err := New(Config{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          350 * time.Millisecond,
		BackoffMultiplier: 2,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		350 * time.Millisecond,
		350 * time.Millisecond,
	}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}

	b.Reset()
	if got := b.Current(); got != 100*time.Millisecond {
		t.Errorf("Current() after Reset = %v, want 100ms", got)
	}
}

func TestBackoff_Jitter(t *testing.T) {
	b, err := New(Config{
		InitialDelay:      time.Second,
		MaxDelay:          time.Second,
		BackoffMultiplier: 1,
		JitterPercent:     0.2,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for i := 0; i < 50; i++ {
		d := b.Next()
		if d < time.Second || d > 1200*time.Millisecond {
			t.Fatalf("Next() = %v, want within [1s, 1.2s]", d)
		}
	}
}

func TestBackoff_Retry(t *testing.T) {
	newBackoff := func(t *testing.T) *Backoff {
		t.Helper()
		b, err := New(Config{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffMultiplier: 2})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		return b
	}

	t.Run("succeeds-after-failures", func(t *testing.T) {
		b := newBackoff(t)
		calls := 0
		err := b.Retry(context.Background(), 3, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Retry() error = %v", err)
		}
		if calls != 3 {
			t.Errorf("calls = %d, want 3", calls)
		}
	})

	t.Run("exhausts-attempts", func(t *testing.T) {
		b := newBackoff(t)
		sentinel := errors.New("down")
		calls := 0
		err := b.Retry(context.Background(), 2, func(context.Context) error {
			calls++
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Errorf("Retry() error = %v, want wrapped sentinel", err)
		}
		if calls != 2 {
			t.Errorf("calls = %d, want 2", calls)
		}
	})

	t.Run("context-cancelled", func(t *testing.T) {
		b, err := New(Config{InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffMultiplier: 1})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err = b.Retry(ctx, 3, func(context.Context) error { return errors.New("fail") })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Retry() error = %v, want context.Canceled", err)
		}
	})
}
