package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-litetouch/internal/audit"
)

// errDatabaseDisabled is returned when the config has no command history.
var errDatabaseDisabled = errors.New("command history is disabled (database.enabled is false)")

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the bridge command history",
	}

	var (
		filter audit.Filter
		since  time.Duration
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent bridge commands, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := opts.openDatabase()
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // Read-only use

			ctx := cmd.Context()
			if err := db.Migrate(ctx); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}

			filter.Action = audit.ActionCommand
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			result, err := audit.NewSQLiteRepository(db.DB).List(ctx, filter)
			if err != nil {
				return err
			}
			return printAuditLogs(cmd.OutOrStdout(), result)
		},
	}

	f := list.Flags()
	f.StringVar(&filter.EntityID, "device", "", "Only this device ID")
	f.StringVar(&filter.EntityType, "type", "", "Only this device type (load, button)")
	f.StringVar(&filter.Source, "source", "", "Only this command source (mqtt, cli)")
	f.DurationVar(&since, "since", 0, "Only commands newer than this (e.g. 2h)")
	f.IntVarP(&filter.Limit, "limit", "n", 50, "Maximum entries (max 200)")

	cmd.AddCommand(list)
	return cmd
}

func printAuditLogs(out io.Writer, result *audit.ListResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tDEVICE\tTYPE\tCOMMAND\tSOURCE\tRESULT")
	for _, entry := range result.Logs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
			entry.CreatedAt.Local().Format(time.DateTime),
			entry.EntityID,
			entry.EntityType,
			entry.Details["command"],
			entry.Source,
			auditResult(entry.Details),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "%d of %d entries\n", len(result.Logs), result.Total)
	return err
}

// auditResult renders the outcome column: ok, or the recorded error.
func auditResult(details map[string]any) string {
	if ok, _ := details["success"].(bool); ok {
		return "ok"
	}
	if msg, _ := details["error"].(string); msg != "" {
		return "failed: " + msg
	}
	return "failed"
}
