package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status drives visual styling of an item.
type Status string

// Status constants.
const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusScheduled || s == StatusCompleted || s == StatusCancelled
}

// RestTitle is the fixed title shown for rest items.
const RestTitle = "Rest Day"

// MaxTitleLength bounds item titles.
const MaxTitleLength = 200

// TempIDPrefix marks ids generated locally before the server confirms an item.
// Server ids are bare UUIDs, so the prefix keeps the namespaces disjoint.
const TempIDPrefix = "tmp-"

// Validation errors.
var (
	ErrMissingClient  = errors.New("client_id is required")
	ErrEmptyTitle     = errors.New("item title cannot be empty")
	ErrTitleTooLong   = errors.New("item title cannot exceed 200 characters")
	ErrInvalidStatus  = errors.New("item status must be scheduled, completed or cancelled")
	ErrNegativeOffset = errors.New("item position cannot be negative")
)

// NewTempID returns a fresh temporary id.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTemporaryID reports whether id was generated locally.
func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Item is one entry scheduled onto a single day of a client's calendar.
// INVARIANT: Content.Kind() == Type once validated.
type Item struct {
	ID            string
	ClientID      string
	Type          ItemType
	Title         string
	Content       Content
	Position      int
	ScheduledDate string // YYYY-MM-DD
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks the item's invariants.
// PRE: none
// POST: returns nil if valid, error describing the first violation otherwise
func (it *Item) Validate() error {
	if it.ClientID == "" {
		return ErrMissingClient
	}
	if !it.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownType, it.Type)
	}
	if it.Content == nil {
		return ErrMissingContent
	}
	if it.Content.Kind() != it.Type {
		return fmt.Errorf("%w: %s content on %s item", ErrContentMismatch, it.Content.Kind(), it.Type)
	}
	if it.Type != TypeRest && strings.TrimSpace(it.Title) == "" {
		return ErrEmptyTitle
	}
	if len(it.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if _, err := ParseDate(it.ScheduledDate); err != nil {
		return err
	}
	if !it.Status.Valid() {
		return ErrInvalidStatus
	}
	if it.Position < 0 {
		return ErrNegativeOffset
	}
	return it.Content.validate()
}

// Normalize fills defaults: scheduled status, rest title and empty content.
// PRE: none
// POST: a rest item carries RestTitle; Status is set; Content is non-nil for known types
func (it *Item) Normalize() {
	if it.Status == "" {
		it.Status = StatusScheduled
	}
	if it.Type == TypeRest {
		it.Title = RestTitle
	}
	if it.Content == nil && it.Type.Valid() {
		it.Content, _ = EmptyContent(it.Type)
	}
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	it.Content = CloneContent(it.Content)
	return it
}

// Less orders items by (ScheduledDate, Position, ID).
func Less(a, b Item) bool {
	if a.ScheduledDate != b.ScheduledDate {
		return a.ScheduledDate < b.ScheduledDate
	}
	if a.Position != b.Position {
		return a.Position < b.Position
	}
	return a.ID < b.ID
}

// Query selects one client's items within a range.
type Query struct {
	ClientID string
	Range    Range
}

// itemJSON is the wire form of Item.
type itemJSON struct {
	ID            string          `json:"id,omitempty"`
	ClientID      string          `json:"client_id"`
	Type          ItemType        `json:"item_type"`
	Title         string          `json:"title"`
	Content       json.RawMessage `json:"content"`
	Position      int             `json:"position"`
	ScheduledDate string          `json:"scheduled_date"`
	Status        Status          `json:"status"`
	CreatedAt     *time.Time      `json:"created_at,omitempty"`
	UpdatedAt     *time.Time      `json:"updated_at,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (it Item) MarshalJSON() ([]byte, error) {
	raw, err := EncodeContent(it.Content)
	if err != nil {
		return nil, err
	}
	w := itemJSON{
		ID:            it.ID,
		ClientID:      it.ClientID,
		Type:          it.Type,
		Title:         it.Title,
		Content:       raw,
		Position:      it.Position,
		ScheduledDate: it.ScheduledDate,
		Status:        it.Status,
	}
	if !it.CreatedAt.IsZero() {
		w.CreatedAt = &it.CreatedAt
	}
	if !it.UpdatedAt.IsZero() {
		w.UpdatedAt = &it.UpdatedAt
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler; content is decoded by item_type.
func (it *Item) UnmarshalJSON(data []byte) error {
	var w itemJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	content, err := DecodeContent(w.Type, w.Content)
	if err != nil {
		return err
	}
	*it = Item{
		ID:            w.ID,
		ClientID:      w.ClientID,
		Type:          w.Type,
		Title:         w.Title,
		Content:       content,
		Position:      w.Position,
		ScheduledDate: w.ScheduledDate,
		Status:        w.Status,
	}
	if w.CreatedAt != nil {
		it.CreatedAt = *w.CreatedAt
	}
	if w.UpdatedAt != nil {
		it.UpdatedAt = *w.UpdatedAt
	}
	return nil
}
