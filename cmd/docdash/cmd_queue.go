package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and drain the offline write queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued writes",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := app.queue.Items()
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(items)
		}
		if len(items) == 0 {
			fmt.Println("queue is empty")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tOP\tENDPOINT\tQUEUED\tRETRIES")
		for _, it := range items {
			fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\t%d/%d\n",
				it.ID, it.Op, it.Method, it.Endpoint,
				it.EnqueuedAt.Format("2006-01-02 15:04:05"), it.RetryCount, it.MaxRetries)
		}
		return w.Flush()
	},
}

var queueProcessCmd = &cobra.Command{
	Use:     "process",
	Aliases: []string{"drain"},
	Short:   "Replay queued writes now",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		sum, err := app.queue.Process(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("attempted %d: %d completed, %d requeued, %d abandoned\n",
			sum.Attempted, sum.Completed, sum.Requeued, sum.Abandoned)
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every queued write without replaying it",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := app.queue.Size()
		if err != nil {
			return err
		}
		if err := app.queue.Clear(); err != nil {
			return err
		}
		fmt.Printf("dropped %d queued write(s)\n", n)
		return nil
	},
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue size and connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		n, err := app.queue.Size()
		if err != nil {
			return err
		}
		st := app.monitor.CheckNow(ctx)

		fmt.Printf("queued writes: %d\n", n)
		fmt.Printf("online: %v", st.IsOnline)
		if st.IsOnline {
			fmt.Printf(" (%s, rtt %s)", st.EffectiveType, st.RTT.Round(time.Millisecond))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueProcessCmd)
	queueCmd.AddCommand(queueClearCmd)
	queueCmd.AddCommand(queueStatusCmd)
}
