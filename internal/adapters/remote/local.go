package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"coachcal/internal/adapters/storage/calendaritem"
	"coachcal/internal/application/orchestrators"
	"coachcal/internal/application/projections"
	"coachcal/internal/domain/calendar"
)

// Local serves the planner directly from a SQLite store in the same
// process, running the same orchestrators as the HTTP API.
type Local struct {
	deps orchestrators.ItemDeps
}

// NewLocal creates an in-process remote over store.
func NewLocal(store calendaritem.Store) *Local {
	return &Local{deps: orchestrators.ItemDeps{
		ItemStore:  store,
		GenerateID: uuid.NewString,
		Now:        time.Now,
	}}
}

// ListItems implements planner.Remote.
func (l *Local) ListItems(ctx context.Context, q calendar.Query) ([]calendar.Item, error) {
	return projections.QueryListItems(ctx, q, projections.ListItemsDeps{ItemStore: l.deps.ItemStore})
}

// InsertItem implements planner.Remote.
func (l *Local) InsertItem(ctx context.Context, it calendar.Item) (calendar.Item, error) {
	return orchestrators.ExecuteCreateItem(ctx, orchestrators.CreateItemInput{
		ClientID:      it.ClientID,
		Type:          it.Type,
		Title:         it.Title,
		Content:       it.Content,
		ScheduledDate: it.ScheduledDate,
		Position:      it.Position,
		Status:        it.Status,
	}, l.deps)
}

// UpdateItem implements planner.Remote.
func (l *Local) UpdateItem(ctx context.Context, id string, p calendar.Patch) (calendar.Item, error) {
	return orchestrators.ExecuteUpdateItem(ctx, orchestrators.UpdateItemInput{ItemID: id, Patch: p}, l.deps)
}

// DeleteItem implements planner.Remote.
func (l *Local) DeleteItem(ctx context.Context, id string) error {
	return orchestrators.ExecuteDeleteItem(ctx, orchestrators.DeleteItemInput{ItemID: id}, l.deps)
}

// RepeatItem copies a template item along a recurrence rule, like the
// server's repeat endpoint. clientID must own the template.
func (l *Local) RepeatItem(ctx context.Context, clientID, templateID, rule string) ([]calendar.Item, error) {
	tpl, err := l.deps.ItemStore.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl.ClientID != clientID {
		return nil, fmt.Errorf("item %s: %w", templateID, calendaritem.ErrNotFound)
	}
	return orchestrators.ExecuteRepeatItem(ctx, orchestrators.RepeatItemInput{TemplateID: templateID, Rule: rule}, l.deps)
}
