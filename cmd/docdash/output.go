package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"docdash/internal/dataaccess"
)

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTable returns a tabwriter for aligned column output. Call Flush when
// done.
func newTable() *tabwriter.Writer {
	return tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
}

// printPageFooter summarizes list pagination under a table.
func printPageFooter(p dataaccess.Pagination) {
	more := ""
	if p.HasNext {
		more = fmt.Sprintf(" (more: --page %d)", p.Page+1)
	}
	fmt.Printf("page %d/%d, %d total%s\n", p.Page, max(p.TotalPages, 1), p.Total, more)
}
