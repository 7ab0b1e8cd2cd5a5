package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/racecal-crawler/internal/config"
	pgstore "github.com/JakeFAU/racecal-crawler/internal/storage/postgres"
)

// newMigrateCmd creates the 'migrate' command group.
func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Applies or rolls back the Postgres schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Applies all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := migrationDSN(cmd)
			if err != nil {
				return err
			}
			if err := pgstore.MigrateUp(dsn); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Rolls back migrations",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			if steps <= 0 {
				return errors.New("--steps must be > 0")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := migrationDSN(cmd)
			if err != nil {
				return err
			}
			if err := pgstore.MigrateDown(dsn, steps); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	cmd.AddCommand(up, down)
	return cmd
}

func migrationDSN(cmd *cobra.Command) (string, error) {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return "", err
	}
	if rt.cfg.DB.Provider != config.ProviderPostgres {
		return "", fmt.Errorf("migrations need db.provider=postgres, got %q", rt.cfg.DB.Provider)
	}
	return rt.cfg.DB.DSN, nil
}
