// Package display renders collection pages and search results for the CLI.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"github.com/wesm/mailsaver/internal/model"
)

const (
	idWidth      = 36 // fits a UUID
	addressWidth = 40
	engineWidth  = 10
	tagWidth     = 8
)

type styles struct {
	header  lipgloss.Style
	faint   lipgloss.Style
	added   lipgloss.Style
	deleted lipgloss.Style
	err     lipgloss.Style
}

// Printer writes tables to an output stream. Styling is enabled only when
// the stream is a terminal.
type Printer struct {
	w      io.Writer
	styles styles
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// New creates a Printer for w.
func New(w io.Writer) *Printer {
	profile := termenv.Ascii
	if IsTerminal(w) {
		profile = termenv.NewOutput(w).EnvColorProfile()
	}
	return NewWithProfile(w, profile)
}

// NewWithProfile creates a Printer with an explicit color profile.
func NewWithProfile(w io.Writer, profile termenv.Profile) *Printer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)
	return &Printer{
		w: w,
		styles: styles{
			header:  r.NewStyle().Bold(true),
			faint:   r.NewStyle().Faint(true),
			added:   r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#006600", Dark: "#66cc66"}),
			deleted: r.NewStyle().Strikethrough(true).Faint(true),
			err:     r.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#aa0000", Dark: "#ff6666"}),
		},
	}
}

// Page writes the header and rows of a collection view.
func (p *Printer) Page(v *model.CollectionView) {
	header := fmt.Sprintf("Page %d of %d · %s saved · %d per page",
		v.Page, max(v.TotalPages, 1), FormatCount(v.Total), v.PageSize)
	fmt.Fprintln(p.w, p.styles.header.Render(header))
	if len(v.Items) == 0 {
		fmt.Fprintln(p.w, p.styles.faint.Render("No saved emails."))
		return
	}
	p.table(v.Items, false)
}

// Results writes search results. Items that were already added are marked.
func (p *Printer) Results(items []*model.Item) {
	if len(items) == 0 {
		fmt.Fprintln(p.w, p.styles.faint.Render("No results."))
		return
	}
	fmt.Fprintln(p.w, p.styles.header.Render(fmt.Sprintf("%d results", len(items))))
	p.table(items, true)
}

// Error writes a user-facing error line.
func (p *Printer) Error(msg string) {
	fmt.Fprintln(p.w, p.styles.err.Render(msg))
}

// Info writes a plain line.
func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) table(items []*model.Item, results bool) {
	cols := []string{
		padRight("ID", idWidth),
		padRight("ADDRESS", addressWidth),
		padRight("ENGINE", engineWidth),
		"STATUS",
	}
	fmt.Fprintln(p.w, p.styles.faint.Render(strings.Join(cols, " ")))
	for _, it := range items {
		row := strings.TrimRight(strings.Join([]string{
			padRight(Truncate(it.ID, idWidth), idWidth),
			padRight(Truncate(it.Address, addressWidth), addressWidth),
			padRight(it.Engine.String(), engineWidth),
			padRight(status(it, results), tagWidth),
		}, " "), " ")
		switch it.Action {
		case model.ActionAdded:
			row = p.styles.added.Render(row)
		case model.ActionDeleted:
			row = p.styles.deleted.Render(row)
		}
		fmt.Fprintln(p.w, row)
	}
}

func status(it *model.Item, results bool) string {
	switch it.Action {
	case model.ActionAdded:
		return "added"
	case model.ActionDeleted:
		return "deleted"
	}
	if it.Kind == model.KindFake {
		return "sample"
	}
	if results {
		return "new"
	}
	return ""
}

// Truncate shortens s to maxWidth terminal cells, replacing control
// characters with spaces. Wide characters count as two cells.
func Truncate(s string, maxWidth int) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return ' '
		}
		return r
	}, s)
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// padRight pads s with spaces to fill width terminal cells.
func padRight(s string, width int) string {
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// FormatCount formats a count for headers (e.g., "1.5K").
func FormatCount(n int) string {
	switch {
	case n < 1000:
		return fmt.Sprintf("%d", n)
	case n < 1000000:
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	default:
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
}
