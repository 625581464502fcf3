package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// Printer writes colored status lines for the CLI
type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter writes to out. Color is used only when out is a terminal and
// NO_COLOR is unset, unless noColor forces it off.
func NewPrinter(out io.Writer, noColor bool) *Printer {
	color := !noColor && os.Getenv("NO_COLOR") == ""
	if f, ok := out.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		color = false
	}
	return &Printer{out: out, color: color}
}

const (
	cyan    = "\033[36m"
	yellow  = "\033[33m"
	red     = "\033[31m"
	green   = "\033[32m"
	magenta = "\033[35m"
	dim     = "\033[2m"
	reset   = "\033[0m"
)

func (p *Printer) paint(code, text string) string {
	if !p.color {
		return text
	}
	return code + text + reset
}

// Error prints a failure, with an optional detail
func (p *Printer) Error(msg string, detail ...interface{}) {
	fmt.Fprintln(p.out, p.paint(red, withDetail(msg, detail)))
}

// Warning prints a warning, with an optional detail
func (p *Printer) Warning(msg string, detail ...interface{}) {
	fmt.Fprintln(p.out, p.paint(yellow, withDetail(msg, detail)))
}

// Success prints a success line
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.out, p.paint(green, msg))
}

// Info prints a label and its value
func (p *Printer) Info(label, value string) {
	fmt.Fprintf(p.out, "%s: %s\n", p.paint(cyan, label), p.paint(yellow, value))
}

// Highlight prints a heading
func (p *Printer) Highlight(msg string) {
	fmt.Fprintln(p.out, p.paint(magenta, msg))
}

// Dim prints secondary text
func (p *Printer) Dim(msg string) {
	fmt.Fprintln(p.out, p.paint(dim, msg))
}

// Table prints rows in a rounded box under headers. The header row is
// colored only when the printer is.
func (p *Printer) Table(headers []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	t.AppendHeader(header)

	body := make([]table.Row, len(rows))
	for i, r := range rows {
		body[i] = make(table.Row, len(r))
		for j, cell := range r {
			body[i][j] = cell
		}
	}
	t.AppendRows(body)

	style := table.StyleRounded
	if p.color {
		style.Color.Header = text.Colors{text.Bold, text.FgCyan}
	}
	t.SetStyle(style)
	t.Render()
}

func withDetail(msg string, detail []interface{}) string {
	if len(detail) == 0 || detail[0] == nil || detail[0] == "" {
		return msg
	}
	return msg + ": " + fmt.Sprintf("%v", detail[0])
}
