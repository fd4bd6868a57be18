package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mselser95/polymarket-surveillance/internal/storage"
	"github.com/mselser95/polymarket-surveillance/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List stored alerts",
	Long: `Reads alerts from the postgres store, newest first. Use --stats for
counts by severity and kind plus the most alerted wallets and markets.`,
	RunE: runAlerts,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(alertsCmd)
	alertsCmd.Flags().Duration("since", 24*time.Hour, "Only alerts raised within this window")
	alertsCmd.Flags().String("severity", "", "Minimum severity: LOW, MEDIUM, HIGH, CRITICAL")
	alertsCmd.Flags().String("kind", "", "Alert kind, e.g. HUGE_BET")
	alertsCmd.Flags().String("market", "", "Market (condition) id")
	alertsCmd.Flags().String("wallet", "", "Wallet address")
	alertsCmd.Flags().IntP("limit", "l", 50, "Maximum number of alerts")
	alertsCmd.Flags().Bool("undelivered", false, "Only alerts not delivered to every sink")
	alertsCmd.Flags().Bool("stats", false, "Show aggregate statistics instead of alerts")
	alertsCmd.Flags().Int("top", 10, "Rows in each top-N table of --stats")
}

func runAlerts(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := openStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	since, _ := cmd.Flags().GetDuration("since")
	from := time.Now().Add(-since)

	if stats, _ := cmd.Flags().GetBool("stats"); stats {
		top, _ := cmd.Flags().GetInt("top")
		return printAlertStats(ctx, store, from, top)
	}

	q := storage.AlertQuery{Since: from}
	q.Limit, _ = cmd.Flags().GetInt("limit")
	q.MarketID, _ = cmd.Flags().GetString("market")
	q.Undelivered, _ = cmd.Flags().GetBool("undelivered")

	if severity, _ := cmd.Flags().GetString("severity"); severity != "" {
		q.MinSeverity, err = types.ParseSeverity(severity)
		if err != nil {
			return err
		}
	}
	if kind, _ := cmd.Flags().GetString("kind"); kind != "" {
		q.Kind = types.AlertKind(strings.ToUpper(kind))
	}
	if wallet, _ := cmd.Flags().GetString("wallet"); wallet != "" {
		q.Wallet, err = types.NormalizeAddress(wallet)
		if err != nil {
			return err
		}
	}

	alerts, err := store.Alerts(ctx, q)
	if err != nil {
		return fmt.Errorf("query alerts: %w", err)
	}

	if len(alerts) == 0 {
		fmt.Println("No alerts found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RAISED\tSEVERITY\tKIND\tMARKET\tWALLET\tSIZE\n")
	fmt.Fprintf(w, "------\t--------\t----\t------\t------\t----\n")

	for i := range alerts {
		a := &alerts[i]

		size := "-"
		if a.Evidence.TradeSizeUSD > 0 {
			size = "$" + humanize.Commaf(a.Evidence.TradeSizeUSD)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(a.CreatedAt), a.Severity, a.Kind,
			truncate(a.MarketTitle, 50), a.WalletAddress, size)
		for _, reason := range a.Reasons {
			fmt.Fprintf(w, "\t\t- %s\t\t\t\n", reason)
		}
	}

	w.Flush()

	fmt.Printf("\nTotal: %d alerts\n", len(alerts))

	return nil
}

func printAlertStats(ctx context.Context, store storage.Storage, since time.Time, top int) error {
	stats, err := store.AlertStats(ctx, since, top)
	if err != nil {
		return fmt.Errorf("query alert stats: %w", err)
	}

	fmt.Printf("Alerts since %s: %d\n\n", humanize.Time(since), stats.Total)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	printCounts(w, "SEVERITY", stats.BySeverity)
	printCounts(w, "KIND", stats.ByKind)

	fmt.Fprintf(w, "WALLET\tALERTS\n")
	for _, c := range stats.TopWallets {
		fmt.Fprintf(w, "%s\t%d\n", c.Key, c.Count)
	}
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "MARKET\tALERTS\n")
	for _, c := range stats.TopMarkets {
		label := c.Label
		if label == "" {
			label = c.Key
		}
		fmt.Fprintf(w, "%s\t%d\n", truncate(label, 60), c.Count)
	}

	return w.Flush()
}

func printCounts(w *tabwriter.Writer, header string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(w, "%s\tALERTS\n", header)
	for _, k := range keys {
		fmt.Fprintf(w, "%s\t%d\n", k, counts[k])
	}
	fmt.Fprintf(w, "\n")
}
