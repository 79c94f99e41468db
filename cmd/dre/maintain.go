package main

import (
	"fmt"
	"io"

	"github.com/Veraticus/dre-classifier/internal/cli"
	"github.com/Veraticus/dre-classifier/internal/maintenance"
	"github.com/spf13/cobra"
)

func maintainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run cluster and rule maintenance",
		Long: `For every tenant process pending clusters, deactivate low-performing rules
and consolidate duplicates.

The result cache lives in the memory of the process that categorizes, so it is
not touched here. Programs embedding the engine hand its cache to
maintenance.Runner, which evicts stale entries and drops the cached results of
tenants whose rules changed.

By default maintenance runs once. With --daemon it runs on the configured cron
schedule (maintenance.schedule) until interrupted.`,
		RunE: runMaintain,
	}

	cmd.Flags().Bool("daemon", false, "Keep running on the maintenance schedule")
	cmd.Flags().String("schedule", "", "Cron schedule overriding maintenance.schedule")
	return cmd
}

func runMaintain(cmd *cobra.Command, _ []string) error {
	daemon, _ := cmd.Flags().GetBool("daemon")
	schedule, _ := cmd.Flags().GetString("schedule")

	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if schedule == "" {
		schedule = a.settings.Maintenance.Schedule
	}
	tenants := a.settings.Maintenance.Tenants
	if t, err := tenant(); err == nil {
		tenants = []string{t}
	}

	runner := maintenance.NewRunner(maintenance.Deps{
		Rules:    a.lifecycle,
		Clusters: a.generator,
		Tenants:  a.store,
		Logger:   a.logger,
	}, maintenance.Config{
		Schedule:    schedule,
		Tenants:     tenants,
		CacheMaxAge: a.settings.Cache.MaxAge,
	})

	if daemon {
		fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatInfo(fmt.Sprintf("Running maintenance on schedule %q; press Ctrl+C to stop.", schedule)))
		return runner.Start(cmd.Context())
	}

	report, err := runner.RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	writeMaintenanceReport(cmd.OutOrStdout(), report)
	if err := report.Err(); err != nil {
		return fmt.Errorf("maintenance finished with errors: %w", err)
	}
	return nil
}

func writeMaintenanceReport(w io.Writer, r maintenance.Report) {
	for _, t := range r.Tenants {
		if t.Err != nil {
			fmt.Fprintln(w, cli.FormatError(fmt.Sprintf("%s: %v", t.TenantID, t.Err)))
			continue
		}
		fmt.Fprintln(w, cli.RenderBox("Tenant "+t.TenantID, fmt.Sprintf(
			"%s\nDeactivated: %d\nMerged:      %d",
			clusterReport(t.Clusters), len(t.Sweep.LowPrecision)+len(t.Sweep.Stale), len(t.Consolidations))))
	}
}
