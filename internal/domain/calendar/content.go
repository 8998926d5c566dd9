package calendar

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ItemType tags the shape of an item's content.
type ItemType string

// Item type constants.
const (
	TypeSession ItemType = "session" // workout with exercise blocks
	TypeNote    ItemType = "note"    // free text (markdown)
	TypeRest    ItemType = "rest"    // rest day marker
	TypeMetric  ItemType = "metric"  // single measurement to record
)

// ItemTypes lists every item type in display order.
var ItemTypes = []ItemType{TypeSession, TypeNote, TypeRest, TypeMetric}

// Content limits.
const (
	MaxNoteLength   = 10000
	MaxBlocks       = 50
	MaxSetsPerBlock = 50
)

// Content errors.
var (
	ErrUnknownType     = errors.New("unknown item type")
	ErrContentMismatch = errors.New("content does not match item type")
	ErrMissingContent  = errors.New("content is required")
)

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	switch t {
	case TypeSession, TypeNote, TypeRest, TypeMetric:
		return true
	}
	return false
}

// Content is the type-specific payload of an item. The set of
// implementations is closed: SessionContent, NoteContent, RestContent
// and MetricContent.
type Content interface {
	Kind() ItemType
	validate() error
	clone() Content
}

// SetSpec is one prescribed set within an exercise block.
type SetSpec struct {
	Reps   int     `json:"reps"`
	Weight float64 `json:"weight,omitempty"`
	Tempo  string  `json:"tempo,omitempty"`
}

// ExerciseBlock groups ordered sets for a single exercise.
type ExerciseBlock struct {
	Name  string    `json:"name"`
	Notes string    `json:"notes,omitempty"`
	Sets  []SetSpec `json:"sets"`
}

// SessionContent is a workout: ordered exercise blocks.
type SessionContent struct {
	Blocks []ExerciseBlock `json:"blocks"`
}

// NoteContent is a free-text note rendered as markdown.
type NoteContent struct {
	Text string `json:"text"`
}

// RestContent marks a rest day.
type RestContent struct {
	Reason string `json:"reason,omitempty"`
}

// MetricContent asks the client to record a single measurement.
type MetricContent struct {
	Name  string  `json:"name"`
	Value float64 `json:"value,omitempty"`
	Unit  string  `json:"unit,omitempty"`
}

// Kind implements Content.
func (SessionContent) Kind() ItemType { return TypeSession }

// Kind implements Content.
func (NoteContent) Kind() ItemType { return TypeNote }

// Kind implements Content.
func (RestContent) Kind() ItemType { return TypeRest }

// Kind implements Content.
func (MetricContent) Kind() ItemType { return TypeMetric }

func (c SessionContent) validate() error {
	if len(c.Blocks) > MaxBlocks {
		return fmt.Errorf("session cannot exceed %d blocks", MaxBlocks)
	}
	for i, b := range c.Blocks {
		if b.Name == "" {
			return fmt.Errorf("block %d: exercise name is required", i)
		}
		if len(b.Sets) > MaxSetsPerBlock {
			return fmt.Errorf("block %d: cannot exceed %d sets", i, MaxSetsPerBlock)
		}
		for j, s := range b.Sets {
			if s.Reps < 0 {
				return fmt.Errorf("block %d set %d: reps cannot be negative", i, j)
			}
			if s.Weight < 0 {
				return fmt.Errorf("block %d set %d: weight cannot be negative", i, j)
			}
		}
	}
	return nil
}

func (c NoteContent) validate() error {
	if len(c.Text) > MaxNoteLength {
		return fmt.Errorf("note cannot exceed %d characters", MaxNoteLength)
	}
	return nil
}

func (c RestContent) validate() error { return nil }

func (c MetricContent) validate() error {
	if c.Name == "" {
		return errors.New("metric name is required")
	}
	return nil
}

func (c SessionContent) clone() Content {
	if c.Blocks == nil {
		return c
	}
	blocks := make([]ExerciseBlock, len(c.Blocks))
	for i, b := range c.Blocks {
		blocks[i] = b
		blocks[i].Sets = append([]SetSpec(nil), b.Sets...)
	}
	return SessionContent{Blocks: blocks}
}

func (c NoteContent) clone() Content   { return c }
func (c RestContent) clone() Content   { return c }
func (c MetricContent) clone() Content { return c }

// CloneContent returns a deep copy of c. A nil content clones to nil.
func CloneContent(c Content) Content {
	if c == nil {
		return nil
	}
	return c.clone()
}

// EmptyContent returns the zero payload for t.
// PRE: t is valid
// POST: result.Kind() == t
func EmptyContent(t ItemType) (Content, error) {
	switch t {
	case TypeSession:
		return SessionContent{}, nil
	case TypeNote:
		return NoteContent{}, nil
	case TypeRest:
		return RestContent{}, nil
	case TypeMetric:
		return MetricContent{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// DecodeContent decodes a raw JSON payload according to t.
// An empty payload decodes to the type's zero content.
// PRE: t is a known item type
// POST: returns content whose Kind() == t
func DecodeContent(t ItemType, raw json.RawMessage) (Content, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return EmptyContent(t)
	}
	switch t {
	case TypeSession:
		var c SessionContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode session content: %w", err)
		}
		return c, nil
	case TypeNote:
		var c NoteContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode note content: %w", err)
		}
		return c, nil
	case TypeRest:
		var c RestContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode rest content: %w", err)
		}
		return c, nil
	default:
		var c MetricContent
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode metric content: %w", err)
		}
		return c, nil
	}
}

// EncodeContent marshals c to JSON. Nil content encodes as "{}".
func EncodeContent(c Content) (json.RawMessage, error) {
	if c == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(c)
}
