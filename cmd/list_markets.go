package cmd

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mselser95/polymarket-surveillance/internal/discovery"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listMarketsCmd = &cobra.Command{
	Use:   "list-markets",
	Short: "List markets from Polymarket Gamma API",
	Long:  `Fetches and displays active or resolved markets from the Polymarket Gamma API for debugging purposes.`,
	RunE:  runListMarkets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listMarketsCmd)
	listMarketsCmd.Flags().IntP("limit", "l", 20, "Maximum number of markets to fetch")
	listMarketsCmd.Flags().BoolP("verbose", "v", false, "Show detailed market information")
	listMarketsCmd.Flags().StringP("sort", "s", "volume24hr", "Sort by: volume24hr, createdAt, endDate, closedTime")
	listMarketsCmd.Flags().Bool("closed", false, "List resolved markets instead of active ones")
}

func runListMarkets(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	limit, _ := cmd.Flags().GetInt("limit")
	verbose, _ := cmd.Flags().GetBool("verbose")
	sortBy, _ := cmd.Flags().GetString("sort")
	closed, _ := cmd.Flags().GetBool("closed")

	validSorts := []string{"volume24hr", "createdAt", "endDate", "closedTime"}
	if !slices.Contains(validSorts, sortBy) {
		return fmt.Errorf("invalid sort option: %s. Valid options: %s", sortBy, strings.Join(validSorts, ", "))
	}
	if limit <= 0 {
		return fmt.Errorf("limit must be positive")
	}

	client := discovery.NewClient(cfg.PolymarketGammaURL, nil, logger)

	state := "active"
	if closed {
		state = "resolved"
	}
	fmt.Printf("Fetching up to %d %s markets from Polymarket...\n\n", limit, state)

	resp, err := client.FetchMarkets(ctx, discovery.MarketQuery{
		Closed: closed,
		Limit:  limit,
		Order:  sortBy,
	})
	if err != nil {
		return fmt.Errorf("fetch markets: %w", err)
	}

	if len(resp.Data) == 0 {
		fmt.Printf("No %s markets found.\n", state)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tQUESTION\tOUTCOMES\n")
	fmt.Fprintf(w, "--\t--------\t--------\n")

	for i := range resp.Data {
		market := &resp.Data[i]

		prices := make([]string, 0, len(market.Outcomes))
		for _, o := range market.Outcomes {
			prices = append(prices, fmt.Sprintf("%s=%.3f", o.Name, o.Price))
		}

		fmt.Fprintf(w, "%s\t%s\t%s\n", market.ID, truncate(market.Title, 60), strings.Join(prices, " "))

		if verbose {
			fmt.Fprintf(w, "\tSlug: %s\n", market.Slug)
			fmt.Fprintf(w, "\tCategory: %s\n", market.Category)
			fmt.Fprintf(w, "\tClosed: %v, Active: %v\n", market.Closed, market.Active)
			if !market.EndDate.IsZero() {
				fmt.Fprintf(w, "\tEnds: %s\n", market.EndDate.Format(time.RFC3339))
			}
			if winner, ok := market.Resolution(); ok {
				fmt.Fprintf(w, "\tResolved: %s\n", winner)
			}
			fmt.Fprintf(w, "\n")
		}
	}

	w.Flush()

	fmt.Printf("\nTotal: %d markets (showing %d)\n", resp.Count, len(resp.Data))

	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
