package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
)

// stdout is where command output goes
var stdout io.Writer = os.Stdout

// printer writes tables to a terminal and JSON everywhere else
type printer struct {
	out   io.Writer
	table bool
}

func newPrinter() *printer {
	p := &printer{out: stdout}
	if f, ok := stdout.(*os.File); ok && !outputJSON {
		p.table = term.IsTerminal(int(f.Fd()))
	}
	return p
}

// print renders v as JSON, or calls table with a tabwriter on a terminal
func (p *printer) print(v any, table func(w *tabwriter.Writer)) error {
	if !p.table || table == nil {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	w := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	table(w)
	return w.Flush()
}

func (p *printer) message(format string, args ...any) {
	if p.table {
		fmt.Fprintf(p.out, format+"\n", args...)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
