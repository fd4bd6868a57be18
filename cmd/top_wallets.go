package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mselser95/polymarket-surveillance/internal/jobs"
	"github.com/mselser95/polymarket-surveillance/pkg/wallet"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var topWalletsCmd = &cobra.Command{
	Use:   "top-wallets",
	Short: "Report wallets with a high historical win rate",
	Long: `Finds wallets that traded actively in the lookback window and looks up
their venue history. Wallets whose resolved-market win rate is above
--min-win-rate are listed, best first.`,
	RunE: runTopWallets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(topWalletsCmd)
	topWalletsCmd.Flags().Duration("lookback", 7*24*time.Hour, "Activity window")
	topWalletsCmd.Flags().Int("min-trades", 10, "Minimum trades in the window")
	topWalletsCmd.Flags().Float64("min-win-rate", 0.6, "Win rate a wallet must exceed")
	topWalletsCmd.Flags().IntP("limit", "l", 20, "Maximum number of wallets")
}

func runTopWallets(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
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

	history, err := wallet.NewClient(&wallet.Config{
		BaseURL: cfg.PolymarketDataURL,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create wallet client: %w", err)
	}

	var q jobs.ReportQuery
	q.Lookback, _ = cmd.Flags().GetDuration("lookback")
	q.MinTrades, _ = cmd.Flags().GetInt("min-trades")
	q.MinWinRate, _ = cmd.Flags().GetFloat64("min-win-rate")
	q.Limit, _ = cmd.Flags().GetInt("limit")
	q.Workers = cfg.WalletHistoryWorkers

	performers, err := jobs.TopPerformers(ctx, store, history, q, time.Now(), logger)
	if err != nil {
		return fmt.Errorf("top performers: %w", err)
	}

	if len(performers) == 0 {
		fmt.Println("No wallets above the win rate threshold.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "WALLET\tWIN RATE\tRESOLVED\tRECENT TRADES\tRECENT VOLUME\tTOTAL VOLUME\n")
	fmt.Fprintf(w, "------\t--------\t--------\t-------------\t-------------\t------------\n")

	for i := range performers {
		p := &performers[i]
		fmt.Fprintf(w, "%s\t%.1f%%\t%d/%d\t%d\t$%s\t$%s\n",
			p.Address, p.WinRate*100, p.WinningMarkets, p.ResolvedMarkets, p.RecentTrades,
			humanize.Comma(int64(p.RecentVolumeUSD)), humanize.Comma(int64(p.TotalVolumeUSD)))
	}

	w.Flush()

	return nil
}
