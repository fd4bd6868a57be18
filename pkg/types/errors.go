package types

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by RecordError so callers can branch with errors.Is.
var (
	ErrInvalidTrade      = errors.New("invalid trade")
	ErrInvalidMarket     = errors.New("invalid market")
	ErrInvalidSignal     = errors.New("invalid signal")
	ErrInvalidPricePoint = errors.New("invalid price point")
	ErrInvalidAlert      = errors.New("invalid alert")
	ErrInvalidAddress    = errors.New("invalid wallet address")
)

// RecordError describes a malformed or partial record. Sources log it and
// skip the single record; it never aborts a batch.
type RecordError struct {
	Record string // trade, market, signal, ...
	Field  string // field that failed validation
	Reason string // human-readable reason
	Err    error  // sentinel for errors.Is
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Record, e.Field, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func recordError(sentinel error, record string, field string, reason string) error {
	return &RecordError{
		Record: record,
		Field:  field,
		Reason: reason,
		Err:    sentinel,
	}
}
