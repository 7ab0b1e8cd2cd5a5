package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/racecal-crawler/internal/server"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP chunk trigger",
		Long: `Starts the HTTP service. Each GET or POST to /v1/crawl runs one
time-bounded chunk and answers with the cursor to resume from.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.Build(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer app.Close()
			return app.Serve(cmd.Context())
		},
	}
}
