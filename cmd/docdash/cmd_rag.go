package main

import (
	"fmt"

	"docdash/internal/dataaccess"

	"github.com/spf13/cobra"
)

var (
	ragCollections []string
	ragTopK        int
	ragMaxTokens   int
)

var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Retrieval queries, grounded generation, and index status",
}

var ragQueryCmd = &cobra.Command{
	Use:   "query [question]",
	Short: "Retrieve the passages most relevant to a question",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		res, err := app.data.RAG.Query(ctx, dataaccess.RAGQuery{
			Query:       args[0],
			Collections: ragCollections,
			TopK:        ragTopK,
		})
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(res)
		}
		for i, c := range res.Chunks {
			fmt.Printf("%d. [%s] score=%.2f\n%s\n\n", i+1, c.DocumentID, c.Score, c.Text)
		}
		return nil
	},
}

var ragGenerateCmd = &cobra.Command{
	Use:   "generate [question]",
	Short: "Generate an answer grounded in retrieved documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		res, err := app.data.RAG.Generate(ctx, dataaccess.GenerateRequest{
			Query:       args[0],
			Collections: ragCollections,
			MaxTokens:   ragMaxTokens,
		})
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(res)
		}
		fmt.Println(res.Answer)
		if len(res.Sources) > 0 {
			fmt.Println("\nSources:")
			for _, s := range res.Sources {
				fmt.Printf("  - %s (score %.2f)\n", s.DocumentID, s.Score)
			}
		}
		return nil
	},
}

var ragIndexCmd = &cobra.Command{
	Use:     "index",
	Aliases: []string{"index-status"},
	Short:   "Show retrieval index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		st, err := app.data.RAG.Index(ctx)
		if err != nil {
			return err
		}
		return printJSON(st)
	},
}

var ragWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the index build to finish",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		st, err := app.data.RAG.WaitForIndex(ctx, func(s dataaccess.IndexStatus) {
			fmt.Printf("index: %s (%d pending)\n", s.Status, s.PendingCount)
		})
		if err != nil {
			return err
		}
		fmt.Printf("index %s with %d documents\n", st.Status, st.DocumentCount)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{ragQueryCmd, ragGenerateCmd} {
		c.Flags().StringSliceVar(&ragCollections, "collections", nil, "Restrict to collection ids")
	}
	ragQueryCmd.Flags().IntVar(&ragTopK, "top-k", 5, "Number of passages to retrieve")
	ragGenerateCmd.Flags().IntVar(&ragMaxTokens, "max-tokens", 0, "Answer length limit (0 = server default)")

	ragCmd.AddCommand(ragQueryCmd)
	ragCmd.AddCommand(ragGenerateCmd)
	ragCmd.AddCommand(ragIndexCmd)
	ragCmd.AddCommand(ragWaitCmd)
}
