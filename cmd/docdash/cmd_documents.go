package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"docdash/internal/dataaccess"
	"docdash/internal/offline"
	"docdash/internal/transport"

	"github.com/spf13/cobra"
)

var (
	docsPage       int
	docsLimit      int
	docsCollection string
	docsStatus     string
	docsTag        string

	uploadCollections []string
	uploadTags        []string
	uploadMetadata    []string
)

var docsCmd = &cobra.Command{
	Use:     "docs",
	Aliases: []string{"documents"},
	Short:   "Manage documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		page, err := app.data.Documents.List(ctx, dataaccess.ListOptions{
			PageParams: dataaccess.PageParams{Page: docsPage, Limit: docsLimit},
			Collection: docsCollection,
			Status:     docsStatus,
			Tag:        docsTag,
		})
		if err != nil {
			return err
		}
		return printDocuments(page)
	},
}

var docsSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Full-text search over documents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		page, err := app.data.Documents.Search(ctx, args[0],
			dataaccess.PageParams{Page: docsPage, Limit: docsLimit})
		if err != nil {
			return err
		}
		return printDocuments(page)
	},
}

var docsGetCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Show one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		doc, err := app.data.Documents.Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

var docsExtractCmd = &cobra.Command{
	Use:   "extract [id]",
	Short: "Print a document's extracted text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		ex, err := app.data.Documents.Extract(ctx, args[0])
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(ex)
		}
		fmt.Println(ex.Text)
		return nil
	},
}

var docsUploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		metadata := make(map[string]any, len(uploadMetadata))
		for _, kv := range uploadMetadata {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("metadata must be key=value, got %q", kv)
			}
			metadata[k] = v
		}

		doc, err := app.data.Documents.Upload(ctx, filepath.Base(args[0]), f, transport.UploadFields{
			Collections: uploadCollections,
			Tags:        uploadTags,
			Metadata:    metadata,
		})
		if err != nil {
			return err
		}
		fmt.Printf("uploaded %s (id=%s, status=%s)\n", doc.Filename, doc.ID, doc.Status)
		return nil
	},
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		id := args[0]
		err := app.data.Documents.Delete(ctx, id)
		if enqueueIfOffline(err, offline.OpDelete, http.MethodDelete, "/documents/"+id, nil) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", id)
		return nil
	},
}

var docsBulkDeleteCmd = &cobra.Command{
	Use:   "bulk-delete [id...]",
	Short: "Delete several documents at once",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		res, err := app.data.Documents.BulkDelete(ctx, args)
		if err != nil {
			payload, _ := json.Marshal(map[string][]string{"ids": args})
			if enqueueIfOffline(err, offline.OpDelete, http.MethodPost, "/documents/bulk-delete", payload) {
				return nil
			}
			return err
		}
		fmt.Printf("deleted %d, failed %d\n", len(res.Deleted), len(res.Failed))
		return nil
	},
}

var docsWatchCmd = &cobra.Command{
	Use:   "watch [id]",
	Short: "Wait for a document to finish processing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := cmdContext()
		defer cancel()

		doc, err := app.data.Documents.WaitForProcessing(ctx, args[0], func(d dataaccess.Document) {
			fmt.Printf("%s: %s\n", d.ID, d.Status)
		})
		if err != nil {
			return err
		}
		fmt.Printf("done: %s is %s\n", doc.ID, doc.Status)
		return nil
	},
}

func printDocuments(page dataaccess.Page[dataaccess.Document]) error {
	if jsonOut {
		return printJSON(page)
	}
	if len(page.Data) == 0 {
		fmt.Println("no documents")
		return nil
	}
	w := newTable()
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tSIZE\tUPDATED")
	for _, d := range page.Data {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			d.ID, d.Title, d.Status, d.SizeBytes, d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	printPageFooter(page.Pagination)
	return nil
}

func init() {
	for _, c := range []*cobra.Command{docsListCmd, docsSearchCmd} {
		c.Flags().IntVar(&docsPage, "page", 1, "Page number")
		c.Flags().IntVar(&docsLimit, "limit", 20, "Page size")
	}
	docsListCmd.Flags().StringVar(&docsCollection, "collection", "", "Filter by collection id")
	docsListCmd.Flags().StringVar(&docsStatus, "status", "", "Filter by processing status")
	docsListCmd.Flags().StringVar(&docsTag, "tag", "", "Filter by tag")

	docsUploadCmd.Flags().StringSliceVar(&uploadCollections, "collections", nil, "Collection ids to attach")
	docsUploadCmd.Flags().StringSliceVar(&uploadTags, "tags", nil, "Tags to attach")
	docsUploadCmd.Flags().StringArrayVar(&uploadMetadata, "meta", nil, "Metadata key=value (repeatable)")

	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsSearchCmd)
	docsCmd.AddCommand(docsGetCmd)
	docsCmd.AddCommand(docsExtractCmd)
	docsCmd.AddCommand(docsUploadCmd)
	docsCmd.AddCommand(docsDeleteCmd)
	docsCmd.AddCommand(docsBulkDeleteCmd)
	docsCmd.AddCommand(docsWatchCmd)
}
