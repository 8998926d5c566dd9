package calendaritem

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"coachcal/internal/adapters/storage"
	domain "coachcal/internal/domain/calendar"
)

// querier is the statement surface shared by the connection and a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   storage.SQLDB
	q    querier
	inTx bool
}

// NewSQLiteStore creates a new SQLiteStore.
// PRE: db is a valid, open database connection with migrations applied
// POST: store is ready for use
func NewSQLiteStore(db storage.SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db, q: db}
}

const selectColumns = `SELECT id, client_id, item_type, title, content, position, scheduled_date, status, created_at, updated_at
	FROM calendar_item`

// Save inserts or updates an item.
// PRE: it has been validated
// POST: item is persisted
func (s *SQLiteStore) Save(ctx context.Context, it domain.Item) error {
	content, err := domain.EncodeContent(it.Content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	_, err = s.q.ExecContext(ctx,
		`INSERT INTO calendar_item (id, client_id, item_type, title, content, position, scheduled_date, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   item_type=excluded.item_type, title=excluded.title, content=excluded.content,
		   position=excluded.position, scheduled_date=excluded.scheduled_date,
		   status=excluded.status, updated_at=excluded.updated_at`,
		it.ID, it.ClientID, string(it.Type), it.Title, string(content), it.Position,
		it.ScheduledDate, string(it.Status),
		it.CreatedAt.UTC().Format(time.RFC3339Nano), it.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetByID retrieves an item by id.
// PRE: id is non-empty
// POST: returns the item or an error wrapping ErrNotFound
func (s *SQLiteStore) GetByID(ctx context.Context, id string) (domain.Item, error) {
	it, err := scanItem(s.q.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return it, err
}

// List returns one client's items within a range.
// PRE: q.Range is valid
// POST: items sorted by (scheduled_date, position, id)
func (s *SQLiteStore) List(ctx context.Context, q domain.Query) ([]domain.Item, error) {
	rows, err := s.q.QueryContext(ctx,
		selectColumns+` WHERE client_id = ? AND scheduled_date >= ? AND scheduled_date <= ?
		 ORDER BY scheduled_date, position, id`,
		q.ClientID, q.Range.Start, q.Range.End,
	)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// ListDay returns one client's items on a single day, in order.
func (s *SQLiteStore) ListDay(ctx context.Context, clientID, date string) ([]domain.Item, error) {
	return s.List(ctx, domain.Query{ClientID: clientID, Range: domain.Range{Start: date, End: date}})
}

// Delete removes an item by id.
// PRE: id is non-empty
// POST: item removed; ErrNotFound if nothing matched
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM calendar_item WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}

// InTx implements Store. Nested calls reuse the outer transaction.
func (s *SQLiteStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&SQLiteStore{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (domain.Item, error) {
	var it domain.Item
	var itemType, status, content, created, updated string
	if err := row.Scan(&it.ID, &it.ClientID, &itemType, &it.Title, &content, &it.Position,
		&it.ScheduledDate, &status, &created, &updated); err != nil {
		return domain.Item{}, err
	}
	it.Type = domain.ItemType(itemType)
	it.Status = domain.Status(status)
	c, err := domain.DecodeContent(it.Type, []byte(content))
	if err != nil {
		return domain.Item{}, fmt.Errorf("item %s: %w", it.ID, err)
	}
	it.Content = c
	if it.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return domain.Item{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if it.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return domain.Item{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return it, nil
}

func collect(rows *sql.Rows) ([]domain.Item, error) {
	defer rows.Close()
	var items []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
