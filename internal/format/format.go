// Package format renders CLI tables as box-drawn text or Markdown.
package format

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ParseMode accepts "table" (or "ascii") and "markdown" (or "md").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "table", "ascii", "text":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return 0, fmt.Errorf("unknown table format %q", s)
}

// Table builds a table once and renders it in the Mode set at creation.
type Table struct {
	writer table.Writer
	mode   Mode
}

// NewTable returns an empty Table that renders in the given Mode.
func NewTable(m Mode) *Table {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return &Table{writer: w, mode: m}
}

// Header sets the column headers.
func (t *Table) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	t.writer.AppendHeader(row)
}

// Row appends a data row. Values are printed with fmt.Sprint.
func (t *Table) Row(vals ...any) {
	t.writer.AppendRow(table.Row(append([]any(nil), vals...)))
}

// Footer appends a footer row.
func (t *Table) Footer(vals ...any) {
	t.writer.AppendFooter(table.Row(append([]any(nil), vals...)))
}

// AlignRight right-aligns the given 1-based columns.
func (t *Table) AlignRight(cols ...int) {
	cfgs := make([]table.ColumnConfig, len(cols))
	for i, c := range cols {
		cfgs[i] = table.ColumnConfig{Number: c, Align: text.AlignRight}
	}
	t.writer.SetColumnConfigs(cfgs)
}

func (t *Table) String() string {
	if t.mode == Markdown {
		return t.writer.RenderMarkdown()
	}
	return t.writer.Render()
}
