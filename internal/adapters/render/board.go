// Package render draws the planner's day list as terminal text.
package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"

	"coachcal/internal/application/planner"
	"coachcal/internal/domain/calendar"
)

// Width limits.
const (
	DefaultWidth = 60
	minWidth     = 24
)

// Styles controls how each part of the board is drawn.
type Styles struct {
	Header    lipgloss.Style
	Today     lipgloss.Style
	Empty     lipgloss.Style
	Title     lipgloss.Style
	Line      lipgloss.Style
	Completed lipgloss.Style
	Cancelled lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Header:    lipgloss.NewStyle().Bold(true),
		Today:     lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Underline(true),
		Empty:     lipgloss.NewStyle().Faint(true),
		Title:     lipgloss.NewStyle(),
		Line:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Completed: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Cancelled: lipgloss.NewStyle().Strikethrough(true).Faint(true),
	}
}

// Board renders days at a fixed column width. It also measures days in
// terminal rows, so it can stand in for the pixel measurer when the
// planner drives a terminal.
type Board struct {
	width  int
	styles Styles
}

// NewBoard creates a renderer. Widths below the minimum fall back to DefaultWidth.
func NewBoard(width int, styles Styles) *Board {
	if width < minWidth {
		width = DefaultWidth
	}
	return &Board{width: width, styles: styles}
}

// Width returns the column width in cells.
func (b *Board) Width() int { return b.width }

// Render draws every day, one block per day.
func (b *Board) Render(days []planner.Day) string {
	blocks := make([]string, 0, len(days))
	for _, d := range days {
		blocks = append(blocks, b.RenderDay(d))
	}
	return strings.Join(blocks, "\n")
}

// RenderDay draws one day: a header line followed by one card per item.
func (b *Board) RenderDay(d planner.Day) string {
	header := d.Weekday.String()[:3] + " " + d.Date
	style := b.styles.Header
	if d.Today {
		header += "  today"
		style = style.Inherit(b.styles.Today)
	}
	lines := []string{style.Render(header)}
	if len(d.Items) == 0 {
		lines = append(lines, b.styles.Empty.Render("  ·"))
	}
	for _, it := range d.Items {
		lines = append(lines, b.card(it))
	}
	return strings.Join(lines, "\n")
}

// DayHeight implements planner.Measurer in terminal rows.
func (b *Board) DayHeight(d planner.Day) float64 {
	return float64(lipgloss.Height(b.RenderDay(d)))
}

func (b *Board) card(it calendar.Item) string {
	sum := calendar.Summarize(it)
	ts := b.styles.Title
	switch it.Status {
	case calendar.StatusCompleted:
		ts = ts.Inherit(b.styles.Completed)
	case calendar.StatusCancelled:
		ts = ts.Inherit(b.styles.Cancelled)
	}

	title := wordwrap.String(glyph(it.Type)+" "+sum.Title, b.width-2)
	out := []string{indent.String(ts.Render(title), 2)}
	for _, l := range sum.Lines {
		l = truncate.StringWithTail(l, uint(b.width*2), "…")
		out = append(out, indent.String(b.styles.Line.Render(wordwrap.String(l, b.width-4)), 4))
	}
	return strings.Join(out, "\n")
}

func glyph(t calendar.ItemType) string {
	switch t {
	case calendar.TypeSession:
		return "●"
	case calendar.TypeNote:
		return "✎"
	case calendar.TypeRest:
		return "○"
	case calendar.TypeMetric:
		return "◆"
	}
	return "?"
}
