package calendar

import (
	"fmt"
	"strconv"
	"strings"
)

// summaryBlocks caps how many exercise blocks a session summary lists.
const summaryBlocks = 3

// Summary is the type-specific card text for one item.
type Summary struct {
	Title string
	Lines []string
}

// Summarize builds the card text for an item.
// PRE: it.Content is non-nil
// POST: Title is never empty
func Summarize(it Item) Summary {
	s := Summary{Title: it.Title}
	switch c := it.Content.(type) {
	case SessionContent:
		s.Lines = append(s.Lines, pluralize(len(c.Blocks), "exercise"))
		for i, b := range c.Blocks {
			if i == summaryBlocks {
				s.Lines = append(s.Lines, fmt.Sprintf("+%d more", len(c.Blocks)-summaryBlocks))
				break
			}
			s.Lines = append(s.Lines, blockLine(b))
		}
	case NoteContent:
		first, _, _ := strings.Cut(strings.TrimSpace(c.Text), "\n")
		if first != "" {
			s.Lines = append(s.Lines, first)
		}
	case RestContent:
		s.Title = RestTitle
		if c.Reason != "" {
			s.Lines = append(s.Lines, c.Reason)
		}
	case MetricContent:
		line := c.Name
		if c.Value != 0 {
			line += ": " + strconv.FormatFloat(c.Value, 'f', -1, 64)
			if c.Unit != "" {
				line += " " + c.Unit
			}
		} else if c.Unit != "" {
			line += " (" + c.Unit + ")"
		}
		s.Lines = append(s.Lines, line)
	default:
		panic(fmt.Sprintf("calendar: unhandled content %T", it.Content))
	}
	if s.Title == "" {
		s.Title = string(it.Type)
	}
	return s
}

// blockLine renders "Squat 3x5 @ 100" style text, collapsing identical sets.
func blockLine(b ExerciseBlock) string {
	if len(b.Sets) == 0 {
		return b.Name
	}
	first := b.Sets[0]
	uniform := true
	for _, s := range b.Sets[1:] {
		if s != first {
			uniform = false
			break
		}
	}
	if !uniform {
		return fmt.Sprintf("%s %s", b.Name, pluralize(len(b.Sets), "set"))
	}
	line := fmt.Sprintf("%s %dx%d", b.Name, len(b.Sets), first.Reps)
	if first.Weight > 0 {
		line += " @ " + strconv.FormatFloat(first.Weight, 'f', -1, 64)
	}
	if first.Tempo != "" {
		line += " (" + first.Tempo + ")"
	}
	return line
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
