package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"docdash/internal/dataaccess"
	"docdash/internal/offline"

	"github.com/spf13/cobra"
)

var (
	colPage        int
	colLimit       int
	colDescription string
)

var collectionsCmd = &cobra.Command{
	Use:     "collections",
	Aliases: []string{"col"},
	Short:   "Manage collections",
}

var colListCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		page, err := app.data.Collections.List(ctx, dataaccess.PageParams{Page: colPage, Limit: colLimit})
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(page)
		}
		if len(page.Data) == 0 {
			fmt.Println("no collections")
			return nil
		}
		w := newTable()
		fmt.Fprintln(w, "ID\tNAME\tDOCS\tUPDATED")
		for _, c := range page.Data {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
				c.ID, c.Name, c.DocumentCount, c.UpdatedAt.Format("2006-01-02 15:04"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		printPageFooter(page.Pagination)
		return nil
	},
}

var colGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		col, err := app.data.Collections.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(col)
	},
}

var colCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		in := dataaccess.CollectionInput{Name: args[0], Description: colDescription}
		col, err := app.data.Collections.Create(ctx, in)
		if err != nil {
			payload, _ := json.Marshal(in)
			if enqueueIfOffline(err, offline.OpCreate, http.MethodPost, "/collections", payload) {
				return nil
			}
			return err
		}
		fmt.Printf("created %s (id=%s)\n", col.Name, col.ID)
		return nil
	},
}

var colUpdateCmd = &cobra.Command{
	Use:   "update [id] [name]",
	Short: "Rename or re-describe a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		in := dataaccess.CollectionInput{Name: args[1], Description: colDescription}
		col, err := app.data.Collections.Update(ctx, args[0], in)
		if err != nil {
			payload, _ := json.Marshal(in)
			if enqueueIfOffline(err, offline.OpUpdate, http.MethodPut, "/collections/"+args[0], payload) {
				return nil
			}
			return err
		}
		fmt.Printf("updated %s\n", col.ID)
		return nil
	},
}

var colDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		err := app.data.Collections.Delete(ctx, args[0])
		if enqueueIfOffline(err, offline.OpDelete, http.MethodDelete, "/collections/"+args[0], nil) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

var colDocsCmd = &cobra.Command{
	Use:   "docs [id]",
	Short: "List the documents in a collection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		page, err := app.data.Collections.Documents(ctx, args[0],
			dataaccess.PageParams{Page: colPage, Limit: colLimit})
		if err != nil {
			return err
		}
		return printDocuments(page)
	},
}

var colStatsCmd = &cobra.Command{
	Use:   "stats [id]",
	Short: "Show collection statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		stats, err := app.data.Collections.Stats(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var colAddDocsCmd = &cobra.Command{
	Use:   "add-docs [id] [doc-id...]",
	Short: "Attach documents to a collection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		if err := app.data.Collections.AddDocuments(ctx, args[0], args[1:]); err != nil {
			return err
		}
		fmt.Printf("added %d document(s) to %s\n", len(args)-1, args[0])
		return nil
	},
}

var colRemoveDocsCmd = &cobra.Command{
	Use:   "remove-docs [id] [doc-id...]",
	Short: "Detach documents from a collection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		if err := app.data.Collections.RemoveDocuments(ctx, args[0], args[1:]); err != nil {
			return err
		}
		fmt.Printf("removed %d document(s) from %s\n", len(args)-1, args[0])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{colListCmd, colDocsCmd} {
		c.Flags().IntVar(&colPage, "page", 1, "Page number")
		c.Flags().IntVar(&colLimit, "limit", 20, "Page size")
	}
	for _, c := range []*cobra.Command{colCreateCmd, colUpdateCmd} {
		c.Flags().StringVar(&colDescription, "description", "", "Collection description")
	}

	collectionsCmd.AddCommand(colListCmd)
	collectionsCmd.AddCommand(colGetCmd)
	collectionsCmd.AddCommand(colCreateCmd)
	collectionsCmd.AddCommand(colUpdateCmd)
	collectionsCmd.AddCommand(colDeleteCmd)
	collectionsCmd.AddCommand(colDocsCmd)
	collectionsCmd.AddCommand(colStatsCmd)
	collectionsCmd.AddCommand(colAddDocsCmd)
	collectionsCmd.AddCommand(colRemoveDocsCmd)
}
