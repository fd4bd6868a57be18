package cmd

import (
	"fmt"

	"github.com/mselser95/polymarket-surveillance/internal/app"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the surveillance engine",
	Long: `Starts the surveillance engine, which will:
1. Refresh active and resolved markets from the Gamma API
2. Poll public trades and score them against wallet history
3. Fetch news and social posts and match them to markets
4. Deliver alerts and serve the query API

Use --once to run a single tick and exit.`,
	RunE: runEngine,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("once", false, "Run one surveillance tick, flush alerts and exit")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	once, _ := cmd.Flags().GetBool("once")

	application, err := app.New(cfg, logger, &app.Options{Once: once})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
