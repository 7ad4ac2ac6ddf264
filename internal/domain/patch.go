package domain

import (
	"encoding/json"
	"fmt"
)

// Patch describes one field of a partial update. A field is either left
// unchanged, set to a value, or cleared, so there is no "undefined vs null"
// sentinel to misread.
type Patch[T any] struct {
	set   bool
	clear bool
	value T
}

// Unchanged leaves the field as it is. The zero Patch is Unchanged.
func Unchanged[T any]() Patch[T] { return Patch[T]{} }

// SetTo sets the field to v.
func SetTo[T any](v T) Patch[T] { return Patch[T]{set: true, value: v} }

// Clear removes the field's value (NULL for nullable columns).
func Clear[T any]() Patch[T] { return Patch[T]{clear: true} }

// Touched reports whether the patch changes the field at all.
func (p Patch[T]) Touched() bool { return p.set || p.clear }

// IsClear reports whether the patch clears the field.
func (p Patch[T]) IsClear() bool { return p.clear }

// Value returns the new value and whether one was set.
func (p Patch[T]) Value() (T, bool) { return p.value, p.set }

// LinkPatch is a partial update of the user-editable fields of a Link.
//
// Wire format: an absent key means Unchanged, an explicit null means Clear,
// any other value means SetTo.
type LinkPatch struct {
	Title        Patch[string]
	Description  Patch[string]
	ThumbnailURL Patch[string]
	SpaceID      Patch[string]
}

// IsEmpty reports whether the patch changes nothing.
func (p LinkPatch) IsEmpty() bool {
	return !p.Title.Touched() && !p.Description.Touched() &&
		!p.ThumbnailURL.Touched() && !p.SpaceID.Touched()
}

func (p LinkPatch) MarshalJSON() ([]byte, error) {
	out := make(map[string]*string, 4)
	put := func(key string, field Patch[string]) {
		switch {
		case field.IsClear():
			out[key] = nil
		case field.Touched():
			v, _ := field.Value()
			out[key] = &v
		}
	}
	put("title", p.Title)
	put("description", p.Description)
	put("thumbnailUrl", p.ThumbnailURL)
	put("spaceId", p.SpaceID)
	return json.Marshal(out)
}

func (p *LinkPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid patch payload: %w", err)
	}

	field := func(key string) (Patch[string], error) {
		msg, ok := raw[key]
		if !ok {
			return Unchanged[string](), nil
		}
		if string(msg) == "null" {
			return Clear[string](), nil
		}
		var v string
		if err := json.Unmarshal(msg, &v); err != nil {
			return Patch[string]{}, fmt.Errorf("invalid value for %q: %w", key, err)
		}
		return SetTo(v), nil
	}

	var err error
	if p.Title, err = field("title"); err != nil {
		return err
	}
	if p.Description, err = field("description"); err != nil {
		return err
	}
	if p.ThumbnailURL, err = field("thumbnailUrl"); err != nil {
		return err
	}
	if p.SpaceID, err = field("spaceId"); err != nil {
		return err
	}
	return nil
}

// Apply mutates l in place according to the patch. Title cannot be cleared
// (it is non-nullable); a clear on title is ignored.
func (p LinkPatch) Apply(l *Link) {
	if v, ok := p.Title.Value(); ok {
		l.Title = v
	}
	applyNullable(p.Description, &l.Description)
	applyNullable(p.ThumbnailURL, &l.ThumbnailURL)
	applyNullable(p.SpaceID, &l.SpaceID)

	// metadataComplete == true implies description or thumbnail present.
	if l.Description == nil && l.ThumbnailURL == nil {
		l.MetadataComplete = false
	}
}

func applyNullable(p Patch[string], dst **string) {
	switch {
	case p.IsClear():
		*dst = nil
	case p.Touched():
		v, _ := p.Value()
		*dst = &v
	}
}
