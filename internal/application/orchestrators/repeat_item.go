package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teambition/rrule-go"

	"coachcal/internal/adapters/storage/calendaritem"
	"coachcal/internal/domain/calendar"
)

// Repetition limits.
const (
	MaxRepeatOccurrences = 100
	maxRepeatSpanDays    = 366
)

// ErrInvalidRule is returned for an unparseable or empty recurrence rule.
var ErrInvalidRule = errors.New("invalid recurrence rule")

// RepeatItemInput carries input for the repeat item orchestrator.
type RepeatItemInput struct {
	TemplateID string
	// Rule is an RFC 5545 RRULE value, e.g. "FREQ=WEEKLY;COUNT=4".
	// A leading "RRULE:" is accepted.
	Rule string
}

// ExecuteRepeatItem copies a template item onto every later date produced
// by Rule, starting from the template's own date. Copies are appended to
// the end of their day.
// PRE: TemplateID names an existing item; Rule parses
// POST: at most MaxRepeatOccurrences copies created within one year of the template
func ExecuteRepeatItem(ctx context.Context, input RepeatItemInput, deps ItemDeps) ([]calendar.Item, error) {
	if input.TemplateID == "" {
		return nil, invalid(errors.New("template ID is required"))
	}
	raw := strings.TrimPrefix(strings.TrimSpace(input.Rule), "RRULE:")
	if raw == "" {
		return nil, invalid(ErrInvalidRule)
	}
	rule, err := rrule.StrToRRule(raw)
	if err != nil {
		return nil, invalid(fmt.Errorf("%w: %w", ErrInvalidRule, err))
	}
	now := deps.Now()

	var created []calendar.Item
	err = deps.ItemStore.InTx(ctx, func(tx calendaritem.Store) error {
		tpl, err := tx.GetByID(ctx, input.TemplateID)
		if err != nil {
			return err
		}
		dates, err := occurrenceDates(rule, tpl.ScheduledDate)
		if err != nil {
			return invalid(err)
		}
		for _, date := range dates {
			day, err := tx.ListDay(ctx, tpl.ClientID, date)
			if err != nil {
				return err
			}
			c := tpl.Clone()
			c.ID = deps.GenerateID()
			c.ScheduledDate = date
			c.Position = len(day)
			c.Status = calendar.StatusScheduled
			c.CreatedAt, c.UpdatedAt = now, now
			if err := tx.Save(ctx, c); err != nil {
				return err
			}
			created = append(created, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("item_event", "event", "item_repeated", "item_id", input.TemplateID, "rule", raw, "copies", len(created))
	return created, nil
}

// occurrenceDates expands rule from start and returns the dates after it.
func occurrenceDates(rule *rrule.RRule, start string) ([]string, error) {
	t, err := calendar.ParseDate(start)
	if err != nil {
		return nil, err
	}
	rule.DTStart(t)
	var set rrule.Set
	set.RRule(rule)

	var dates []string
	seen := map[string]bool{start: true}
	for _, occ := range set.Between(t, t.AddDate(0, 0, maxRepeatSpanDays), true) {
		d := calendar.FormatDate(occ)
		if seen[d] {
			continue
		}
		seen[d] = true
		dates = append(dates, d)
		if len(dates) == MaxRepeatOccurrences {
			break
		}
	}
	return dates, nil
}
