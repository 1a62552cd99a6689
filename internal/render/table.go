// Package render formats the logical rows the core produces into the
// terminal table a user sees for the `list` command. spec.md explicitly
// keeps table rendering external to the core; this package is that
// external collaborator, kept as a thin leaf with no protocol knowledge.
package render

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Row is one logical row of the `list` command's output: a file, its
// owner, and where to fetch it from.
type Row struct {
	Filename string
	Owner    string
	IP       string
	TCPPort  int
}

// EmptyMessage is printed instead of a table when there are no rows.
const EmptyMessage = ">>> [No files available for download at the moment.]"

// Table writes rows as an aligned table to w. Rows must already be sorted
// by the caller (ascending filename, then owner, per spec.md §4.8); this
// package only lays out columns.
func Table(w io.Writer, rows []Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, EmptyMessage)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILENAME\tOWNER\tIP\tTCP PORT")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", r.Filename, r.Owner, r.IP, r.TCPPort)
	}
	tw.Flush()
}
