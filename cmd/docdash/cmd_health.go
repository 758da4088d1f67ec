package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Show platform health",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		ov, err := app.data.Health.Overview(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(ov)
		}

		w := newTable()
		fmt.Fprintln(w, "COMPONENT\tSTATUS\tDETAIL")
		fmt.Fprintf(w, "service\t%s\tversion %s\n", ov.Service.Status, ov.Service.Version)
		fmt.Fprintf(w, "database\t%s\t%.1fms latency\n", ov.Database.Status, ov.Database.LatencyMS)
		fmt.Fprintf(w, "system\t-\tcpu %.0f%%, mem %.0f%%, disk %.0f%%\n",
			ov.Metrics.CPUPercent, ov.Metrics.MemoryPercent, ov.Metrics.DiskPercent)
		if err := w.Flush(); err != nil {
			return err
		}

		if !ov.Healthy() {
			return fmt.Errorf("platform is not healthy")
		}
		return nil
	},
}
