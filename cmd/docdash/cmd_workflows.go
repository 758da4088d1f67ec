package main

import (
	"fmt"
	"strings"

	"docdash/internal/dataaccess"

	"github.com/spf13/cobra"
)

var (
	wfPage  int
	wfLimit int
	wfInput []string
	wfWait  bool
)

var workflowsCmd = &cobra.Command{
	Use:     "workflows",
	Aliases: []string{"wf"},
	Short:   "Manage workflows and their executions",
}

var wfListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workflow definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		page, err := app.data.Workflows.List(ctx, dataaccess.PageParams{Page: wfPage, Limit: wfLimit})
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(page)
		}
		if len(page.Data) == 0 {
			fmt.Println("no workflows")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tNAME\tENABLED\tSTEPS")
		for _, wf := range page.Data {
			fmt.Fprintf(w, "%s\t%s\t%v\t%d\n", wf.ID, wf.Name, wf.Enabled, len(wf.Steps))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		printPageFooter(page.Pagination)
		return nil
	},
}

var wfGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		wf, err := app.data.Workflows.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(wf)
	},
}

var wfExecutionsCmd = &cobra.Command{
	Use:   "executions [id]",
	Short: "List a workflow's runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		page, err := app.data.Workflows.Executions(ctx, args[0],
			dataaccess.PageParams{Page: wfPage, Limit: wfLimit})
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(page)
		}
		if len(page.Data) == 0 {
			fmt.Println("no executions")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tERROR")
		for _, e := range page.Data {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.ID, e.Status, e.StartedAt.Format("2006-01-02 15:04:05"), e.Error)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		printPageFooter(page.Pagination)
		return nil
	},
}

var wfExecuteCmd = &cobra.Command{
	Use:   "execute [id]",
	Short: "Start a workflow run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		input := make(map[string]any, len(wfInput))
		for _, kv := range wfInput {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("input must be key=value, got %q", kv)
			}
			input[k] = v
		}

		exec, err := app.data.Workflows.Execute(ctx, args[0], input)
		if err != nil {
			return err
		}
		fmt.Printf("started execution %s (status=%s)\n", exec.ID, exec.Status)

		if !wfWait {
			return nil
		}
		exec, err = app.data.Workflows.WaitForExecution(ctx, args[0], exec.ID,
			func(e dataaccess.Execution) { fmt.Printf("%s: %s\n", e.ID, e.Status) })
		if err != nil {
			return err
		}
		if exec.Error != "" {
			return fmt.Errorf("execution %s failed: %s", exec.ID, exec.Error)
		}
		fmt.Printf("execution %s finished: %s\n", exec.ID, exec.Status)
		return nil
	},
}

var wfCancelCmd = &cobra.Command{
	Use:   "cancel [id] [execution-id]",
	Short: "Cancel a running execution",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		if err := app.data.Workflows.CancelExecution(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("cancel requested for %s\n", args[1])
		return nil
	},
}

var wfWaitCmd = &cobra.Command{
	Use:   "wait [id] [execution-id]",
	Short: "Wait for an execution to finish",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		exec, err := app.data.Workflows.WaitForExecution(ctx, args[0], args[1],
			func(e dataaccess.Execution) { fmt.Printf("%s: %s\n", e.ID, e.Status) })
		if err != nil {
			return err
		}
		return printJSON(exec)
	},
}

func init() {
	for _, c := range []*cobra.Command{wfListCmd, wfExecutionsCmd} {
		c.Flags().IntVar(&wfPage, "page", 1, "Page number")
		c.Flags().IntVar(&wfLimit, "limit", 20, "Page size")
	}
	wfExecuteCmd.Flags().StringArrayVar(&wfInput, "input", nil, "Execution input key=value (repeatable)")
	wfExecuteCmd.Flags().BoolVar(&wfWait, "wait", false, "Block until the execution finishes")

	workflowsCmd.AddCommand(wfListCmd)
	workflowsCmd.AddCommand(wfGetCmd)
	workflowsCmd.AddCommand(wfExecutionsCmd)
	workflowsCmd.AddCommand(wfExecuteCmd)
	workflowsCmd.AddCommand(wfCancelCmd)
	workflowsCmd.AddCommand(wfWaitCmd)
}
