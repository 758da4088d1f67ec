package main

import (
	"fmt"
	"os"
	"time"

	"docdash/internal/dataaccess"

	"github.com/spf13/cobra"
)

var (
	metricsFrom   string
	metricsTo     string
	metricsFormat string
	metricsOut    string
	reportsPage   int
	reportsLimit  int
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Business metrics, KPIs, reports and exports",
}

func metricsRange() (dataaccess.MetricsRange, error) {
	var r dataaccess.MetricsRange
	if metricsFrom != "" {
		t, err := time.Parse("2006-01-02", metricsFrom)
		if err != nil {
			return r, fmt.Errorf("invalid --from date: %w", err)
		}
		r.From = t
	}
	if metricsTo != "" {
		t, err := time.Parse("2006-01-02", metricsTo)
		if err != nil {
			return r, fmt.Errorf("invalid --to date: %w", err)
		}
		r.To = t
	}
	return r, nil
}

var metricsBusinessCmd = &cobra.Command{
	Use:   "business",
	Short: "Show usage aggregates for a date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		r, err := metricsRange()
		if err != nil {
			return err
		}
		m, err := app.data.Metrics.Business(ctx, r)
		if err != nil {
			return err
		}
		return printJSON(m)
	},
}

var metricsKPIsCmd = &cobra.Command{
	Use:   "kpis",
	Short: "Show dashboard KPIs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		kpis, err := app.data.Metrics.KPIs(ctx)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(kpis)
		}
		w := newTable()
		fmt.Fprintln(w, "KPI\tVALUE\tCHANGE\tTREND")
		for _, k := range kpis {
			fmt.Fprintf(w, "%s\t%.2f %s\t%+.1f%%\t%s\n", k.Name, k.Value, k.Unit, k.ChangePct, k.Trend)
		}
		return w.Flush()
	},
}

var metricsReportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List generated reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		page, err := app.data.Metrics.Reports(ctx,
			dataaccess.PageParams{Page: reportsPage, Limit: reportsLimit})
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(page)
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tNAME\tKIND\tGENERATED")
		for _, r := range page.Data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Kind, r.GeneratedAt.Format("2006-01-02"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		printPageFooter(page.Pagination)
		return nil
	},
}

var metricsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Download a metrics export",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		r, err := metricsRange()
		if err != nil {
			return err
		}
		data, err := app.data.Metrics.Export(ctx, metricsFormat, r)
		if err != nil {
			return err
		}
		if metricsOut == "" || metricsOut == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(metricsOut, data, 0644); err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes to %s\n", len(data), metricsOut)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{metricsBusinessCmd, metricsExportCmd} {
		c.Flags().StringVar(&metricsFrom, "from", "", "Range start (YYYY-MM-DD)")
		c.Flags().StringVar(&metricsTo, "to", "", "Range end (YYYY-MM-DD)")
	}
	metricsReportsCmd.Flags().IntVar(&reportsPage, "page", 1, "Page number")
	metricsReportsCmd.Flags().IntVar(&reportsLimit, "limit", 20, "Page size")
	metricsExportCmd.Flags().StringVar(&metricsFormat, "format", "csv", "Export format (csv, json)")
	metricsExportCmd.Flags().StringVarP(&metricsOut, "output", "o", "-", "Output file (- for stdout)")

	metricsCmd.AddCommand(metricsBusinessCmd)
	metricsCmd.AddCommand(metricsKPIsCmd)
	metricsCmd.AddCommand(metricsReportsCmd)
	metricsCmd.AddCommand(metricsExportCmd)
}
