package calendar

import (
	"encoding/json"
	"errors"
)

// ErrEmptyPatch is returned when a patch changes nothing.
var ErrEmptyPatch = errors.New("patch has no fields")

// Patch is a partial update of an item. Nil fields are left unchanged.
type Patch struct {
	ScheduledDate *string
	Position      *int
	Title         *string
	Status        *Status
	Content       Content
}

// MovePatch builds the patch issued for a drag.
func MovePatch(date string, position int) Patch {
	return Patch{ScheduledDate: &date, Position: &position}
}

// IsEmpty reports whether the patch changes no field.
func (p Patch) IsEmpty() bool {
	return p.ScheduledDate == nil && p.Position == nil && p.Title == nil && p.Status == nil && p.Content == nil
}

// MovesItem reports whether the patch changes the day or order.
func (p Patch) MovesItem() bool {
	return p.ScheduledDate != nil || p.Position != nil
}

// Apply returns a copy of it with the patch's non-nil fields applied.
// PRE: none
// POST: it is not mutated
func (p Patch) Apply(it Item) Item {
	out := it.Clone()
	if p.ScheduledDate != nil {
		out.ScheduledDate = *p.ScheduledDate
	}
	if p.Position != nil {
		out.Position = *p.Position
	}
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Content != nil {
		out.Content = CloneContent(p.Content)
	}
	if out.Type == TypeRest {
		out.Title = RestTitle
	}
	return out
}

// patchJSON is the wire form of Patch. Content needs the item type to
// decode, so it is carried raw and resolved by DecodePatch.
type patchJSON struct {
	ScheduledDate *string         `json:"scheduled_date,omitempty"`
	Position      *int            `json:"position,omitempty"`
	Title         *string         `json:"title,omitempty"`
	Status        *Status         `json:"status,omitempty"`
	Content       json.RawMessage `json:"content,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p Patch) MarshalJSON() ([]byte, error) {
	w := patchJSON{
		ScheduledDate: p.ScheduledDate,
		Position:      p.Position,
		Title:         p.Title,
		Status:        p.Status,
	}
	if p.Content != nil {
		raw, err := EncodeContent(p.Content)
		if err != nil {
			return nil, err
		}
		w.Content = raw
	}
	return json.Marshal(w)
}

// RawPatch is a decoded patch whose content is still undecoded.
type RawPatch struct {
	Patch
	Content json.RawMessage
}

// DecodePatch parses a patch body. Content is decoded later with
// Resolve once the target item's type is known.
func DecodePatch(data []byte) (RawPatch, error) {
	var w patchJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return RawPatch{}, err
	}
	return RawPatch{
		Patch: Patch{
			ScheduledDate: w.ScheduledDate,
			Position:      w.Position,
			Title:         w.Title,
			Status:        w.Status,
		},
		Content: w.Content,
	}, nil
}

// Resolve decodes the raw content against t and returns the full patch.
func (rp RawPatch) Resolve(t ItemType) (Patch, error) {
	p := rp.Patch
	if len(rp.Content) > 0 {
		c, err := DecodeContent(t, rp.Content)
		if err != nil {
			return Patch{}, err
		}
		p.Content = c
	}
	return p, nil
}
