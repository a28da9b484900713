package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/database"
)

// openDatabase opens the command history database named by the config.
func (o *rootOptions) openDatabase() (*database.DB, error) {
	cfg, err := o.readConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Database.Enabled {
		return nil, errDatabaseDisabled
	}

	db, err := database.Open(database.FromConfig(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func newDBCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the command history schema",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := opts.openDatabase()
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // Best effort on exit

				status, err := db.Status(cmd.Context())
				if err != nil {
					return err
				}
				return printMigrationStatus(cmd.OutOrStdout(), status)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := opts.openDatabase()
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // Best effort on exit

				if err := db.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("running migrations: %w", err)
				}
				status, err := db.Status(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema at %s\n", status.Current())
				return nil
			},
		},
		&cobra.Command{
			Use:   "rollback",
			Short: "Revert the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := opts.openDatabase()
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // Best effort on exit

				m, err := db.Rollback(cmd.Context())
				if err != nil {
					return err
				}
				if m == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to roll back")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rolled back %s_%s\n", m.Version, m.Name)
				return nil
			},
		},
	)
	return cmd
}

func printMigrationStatus(out io.Writer, status *database.MigrationStatus) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tSTATE\tAPPLIED")
	for _, r := range status.Applied {
		fmt.Fprintf(w, "%s\tapplied\t%s\n", r.Version, r.AppliedAt.Local().Format(time.DateTime))
	}
	for _, m := range status.Pending {
		fmt.Fprintf(w, "%s\tpending (%s)\t-\n", m.Version, m.Name)
	}
	return w.Flush()
}
