package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/racecal-crawler/internal/crawler"
	"github.com/JakeFAU/racecal-crawler/internal/server"
)

type crawlFlags struct {
	from    string
	to      string
	budget  time.Duration
	monthly bool
	pause   time.Duration
}

// newCrawlCmd creates the 'crawl' subcommand, which drives chunks in-process
// until every window reports done.
func newCrawlCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls a date window to completion",
		Long: `Runs chunks for [--from, --to] back to back, feeding each returned
cursor into the next chunk until the window is done. With --monthly the
window is split into calendar months first.`,
		Args: cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			_, err := crawler.ParseDateRange(f.from, f.to)
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			rng, err := crawler.ParseDateRange(f.from, f.to)
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer app.Close()

			sum, err := crawler.Drive(cmd.Context(), app.Engine(), rng, crawler.DriveOptions{
				Budget:  rt.cfg.ClampBudget(f.budget),
				Monthly: f.monthly,
				Pause:   f.pause,
				Sleep:   app.Sleep,
				Logger:  rt.logger.Named("driver"),
			})
			if err != nil {
				return fmt.Errorf("crawl: %w", err)
			}
			rt.logger.Info("crawl finished",
				zap.Int("windows", sum.Windows),
				zap.Int("chunks", sum.Chunks),
				zap.Int("seen", sum.Seen),
				zap.Int("inserted", sum.Inserted),
				zap.Int("updated", sum.Updated))
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return fmt.Errorf("write summary: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.from, "from", "", "first date of the window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "last date of the window (YYYY-MM-DD)")
	cmd.Flags().DurationVar(&f.budget, "budget", 0, "per-chunk time budget (default crawler.default_budget)")
	cmd.Flags().BoolVar(&f.monthly, "monthly", false, "split the window into calendar months")
	cmd.Flags().DurationVar(&f.pause, "pause", 0, "pause between chunks")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
