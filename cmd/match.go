package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mselser95/polymarket-surveillance/internal/discovery"
	"github.com/mselser95/polymarket-surveillance/internal/matcher"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var matchCmd = &cobra.Command{
	Use:   "match [text]",
	Short: "Score a piece of text against active markets",
	Long: `Builds a signal from the given text and prints the markets it would be
matched to, with the sub-scores behind each match. Useful for tuning
keywords and confidence thresholds.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().String("kind", "news", "Signal kind: news or social")
	matchCmd.Flags().String("author", "", "Social author handle, weighted by INFLUENTIAL_ACCOUNTS")
	matchCmd.Flags().IntP("markets", "m", 500, "Active markets to score against")
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	kind, _ := cmd.Flags().GetString("kind")
	author, _ := cmd.Flags().GetString("author")
	limit, _ := cmd.Flags().GetInt("markets")

	signal := types.Signal{
		ID:          "cli",
		Kind:        types.SignalKind(kind),
		Source:      "cli",
		Text:        strings.Join(args, " "),
		PublishedAt: time.Now(),
	}
	if signal.Kind == types.SignalSocial && author != "" {
		signal.Author = author
		signal.AuthorWeight = cfg.InfluentialAccounts[author]
	}

	sig, err := types.NewSignal(signal)
	if err != nil {
		return err
	}

	m, err := matcher.New(&matcher.Config{
		NewsKeywords:        cfg.NewsKeywords,
		SocialKeywords:      cfg.SocialKeywords,
		NewsMinConfidence:   cfg.NewsMinMatchConfidence,
		SocialMinConfidence: cfg.SocialMinMatchConfidence,
		MaxPerSignal:        cfg.MatchMaxPerSignal,
		Logger:              logger,
	})
	if err != nil {
		return fmt.Errorf("create matcher: %w", err)
	}

	client := discovery.NewClient(cfg.PolymarketGammaURL, nil, logger)
	resp, err := client.FetchMarkets(ctx, discovery.MarketQuery{Limit: limit, Order: "volume24hr"})
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}

	titles := make(map[string]string, len(resp.Data))
	for i := range resp.Data {
		titles[resp.Data[i].ID] = resp.Data[i].Title
	}

	matches := m.Match(sig, resp.Data)
	if len(matches) == 0 {
		fmt.Printf("No market above the %.2f confidence threshold (%d markets scored).\n",
			m.MinConfidence(sig.Kind), len(resp.Data))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "SCORE\tKEYWORD\tENTITY\tLEXICAL\tAUTHOR\tMARKET\n")
	fmt.Fprintf(w, "-----\t-------\t------\t-------\t------\t------\n")

	for _, match := range matches {
		f := match.Factors
		fmt.Fprintf(w, "%.3f\t%.2f\t%.2f\t%.2f\t%.2f\t%s\n",
			match.Score, f.Keyword, f.Entity, f.Lexical, f.AuthorBoost, truncate(titles[match.MarketID], 70))
		if len(f.MatchedKeywords) > 0 {
			fmt.Fprintf(w, "\t\t\t\t\tkeywords: %s\n", strings.Join(f.MatchedKeywords, ", "))
		}
		if len(f.SharedEntities) > 0 {
			fmt.Fprintf(w, "\t\t\t\t\tentities: %s\n", strings.Join(f.SharedEntities, ", "))
		}
	}

	w.Flush()

	return nil
}
