package projections

import (
	"context"
	"errors"
	"fmt"

	"coachcal/internal/domain/calendar"
)

// MaxListDays bounds the span of a single list request.
const MaxListDays = 400

// ErrInvalidQuery wraps every list query validation failure.
var ErrInvalidQuery = errors.New("invalid query")

// ItemLister defines the store interface needed by calendar item projections.
type ItemLister interface {
	List(ctx context.Context, q calendar.Query) ([]calendar.Item, error)
}

// ListItemsDeps holds dependencies for the list projections.
type ListItemsDeps struct {
	ItemStore ItemLister
}

// QueryListItems returns one client's items in a date range ordered by
// (scheduled_date, position, id).
// PRE: ClientID non-empty; Range valid and at most MaxListDays long
// POST: every returned item lies inside the range
func QueryListItems(ctx context.Context, query calendar.Query, deps ListItemsDeps) ([]calendar.Item, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	items, err := deps.ItemStore.List(ctx, query)
	if err != nil {
		return nil, err
	}
	calendar.SortItems(items)
	return items, nil
}

func validateQuery(q calendar.Query) error {
	if q.ClientID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, calendar.ErrMissingClient)
	}
	if err := q.Range.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if q.Range.Len() > MaxListDays {
		return fmt.Errorf("%w: range cannot exceed %d days", ErrInvalidQuery, MaxListDays)
	}
	return nil
}
