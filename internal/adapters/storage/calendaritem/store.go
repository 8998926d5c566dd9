package calendaritem

import (
	"context"
	"errors"

	domain "coachcal/internal/domain/calendar"
)

// ErrNotFound is returned when no item has the requested id.
var ErrNotFound = errors.New("calendar item not found")

// Store persists calendar items.
type Store interface {
	Save(ctx context.Context, it domain.Item) error
	GetByID(ctx context.Context, id string) (domain.Item, error)
	List(ctx context.Context, q domain.Query) ([]domain.Item, error)
	ListDay(ctx context.Context, clientID, date string) ([]domain.Item, error)
	Delete(ctx context.Context, id string) error
	// InTx runs fn against a store bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Store) error) error
}
