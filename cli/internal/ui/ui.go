package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/pterm/pterm"
)

var (
	// Colors
	PrimaryColor   = lipgloss.Color("#00D9FF")
	SuccessColor   = lipgloss.Color("#00FF88")
	WarningColor   = lipgloss.Color("#FFB800")
	ErrorColor     = lipgloss.Color("#FF4444")
	SecondaryColor = lipgloss.Color("#6C757D")

	// Styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(SuccessColor).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)

	SecondaryStyle = lipgloss.NewStyle().
			Foreground(SecondaryColor)
)

// Printer writes styled output. Plain printers (NoColor) are used when the
// output is not a terminal and in tests.
type Printer struct {
	Out     io.Writer
	Err     io.Writer
	NoColor bool
}

// New returns a printer over out and errOut.
func New(out, errOut io.Writer, noColor bool) *Printer {
	return &Printer{Out: out, Err: errOut, NoColor: noColor || color.NoColor}
}

// Stdout returns a printer over the process streams.
func Stdout() *Printer {
	return New(os.Stdout, os.Stderr, false)
}

func (p *Printer) render(style lipgloss.Style, s string) string {
	if p.NoColor {
		return s
	}
	return style.Render(s)
}

// Success prints a success message
func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.Out, p.render(SuccessStyle, "✓ "+fmt.Sprintf(format, args...)))
}

// Error prints an error message
func (p *Printer) Error(format string, args ...any) {
	fmt.Fprintln(p.Err, p.render(ErrorStyle, "✗ "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func (p *Printer) Warning(format string, args ...any) {
	fmt.Fprintln(p.Out, p.render(WarningStyle, "⚠ "+fmt.Sprintf(format, args...)))
}

// Section prints a section title.
func (p *Printer) Section(title string) {
	fmt.Fprintln(p.Out, p.render(TitleStyle, title))
}

// Plain prints a line without styling.
func (p *Printer) Plain(format string, args ...any) {
	fmt.Fprintf(p.Out, format+"\n", args...)
}

// Code prints SQL or query text. Keywords are highlighted on terminals.
func (p *Printer) Code(code string) {
	if p.NoColor {
		fmt.Fprintln(p.Out, code)
		return
	}
	kw := color.New(color.FgCyan, color.Bold)
	words := strings.Fields(code)
	for i, w := range words {
		if sqlKeywords[strings.ToUpper(w)] {
			words[i] = kw.Sprint(w)
		}
	}
	fmt.Fprintln(p.Out, strings.Join(words, " "))
}

var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AND": true, "OR": true, "NOT": true,
	"JOIN": true, "LEFT": true, "INNER": true, "ON": true, "ORDER": true, "GROUP": true,
	"BY": true, "HAVING": true, "UNION": true, "ALL": true, "EXISTS": true, "IN": true,
	"CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true, "AS": true,
	"LIMIT": true, "OFFSET": true, "CREATE": true, "TABLE": true, "PRIMARY": true, "KEY": true,
}

// Table prints rows under headers. Terminals get a pterm table, plain
// printers a markdown table.
func (p *Printer) Table(headers []string, rows [][]string) error {
	if p.NoColor {
		_, err := io.WriteString(p.Out, MarkdownTable(headers, rows))
		return err
	}
	data := pterm.TableData{headers}
	data = append(data, rows...)
	return pterm.DefaultTable.WithHasHeader().WithWriter(p.Out).WithData(data).Render()
}

// Markdown renders markdown content for the terminal. Plain printers print
// the source unchanged.
func (p *Printer) Markdown(content string) error {
	if p.NoColor {
		_, err := io.WriteString(p.Out, content)
		return err
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(content)
	if err != nil {
		return err
	}
	_, err = io.WriteString(p.Out, out)
	return err
}

// Spinner starts a spinner on terminals; the returned stop function is
// always safe to call.
func (p *Printer) Spinner(message string) func() {
	if p.NoColor {
		return func() {}
	}
	spinner, err := pterm.DefaultSpinner.WithWriter(p.Err).WithRemoveWhenDone(true).Start(message)
	if err != nil {
		return func() {}
	}
	return func() { _ = spinner.Stop() }
}

// MarkdownTable formats rows as a markdown table.
func MarkdownTable(headers []string, rows [][]string) string {
	b := &strings.Builder{}

	alignment := make([]tw.Align, len(headers))
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}
	table := tablewriter.NewTable(b,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header(headers)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	return b.String()
}
