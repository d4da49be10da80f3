// Package change defines Change, the immutable wire primitive that
// carries either a tagged upsert or a tombstoning delete between
// replicas.
package change

import (
	"errors"
	"fmt"

	"github.com/go-mizu/rippledb/hlc"
)

// Kind distinguishes an upsert from a delete.
type Kind string

const (
	Upsert Kind = "upsert"
	Delete Kind = "delete"
)

// Change is an immutable record bound to a (stream, entity, entity_id)
// triple. For Upsert, Patch holds the new field values and Tags holds
// the HLC that justifies each one (same key set in both). For Delete,
// Patch and Tags are both empty and HLC is the tombstone's own tag.
type Change struct {
	Stream   string
	Entity   string
	EntityID string
	Kind     Kind
	Patch    map[string]any
	Tags     map[string]hlc.Timestamp
	HLC      hlc.Timestamp
}

// ErrInvalidChange wraps every reason Validate can reject a Change.
// Callers match with errors.Is; the wrapped message carries the
// specific field mismatch for logs.
var ErrInvalidChange = errors.New("change: invalid")

// UpsertParams are the inputs to MakeUpsert.
type UpsertParams struct {
	Stream   string
	Entity   string
	EntityID string
	Patch    map[string]any
	HLC      hlc.Timestamp
}

// MakeUpsert builds an upsert Change where every field in patch is
// tagged with the same HLC, so one user intent carries one timestamp
// across all its fields.
func MakeUpsert(p UpsertParams) Change {
	tags := make(map[string]hlc.Timestamp, len(p.Patch))
	for field := range p.Patch {
		tags[field] = p.HLC
	}
	return Change{
		Stream:   p.Stream,
		Entity:   p.Entity,
		EntityID: p.EntityID,
		Kind:     Upsert,
		Patch:    p.Patch,
		Tags:     tags,
		HLC:      p.HLC,
	}
}

// DeleteParams are the inputs to MakeDelete.
type DeleteParams struct {
	Stream   string
	Entity   string
	EntityID string
	HLC      hlc.Timestamp
}

// MakeDelete builds a tombstoning delete Change.
func MakeDelete(p DeleteParams) Change {
	return Change{
		Stream:   p.Stream,
		Entity:   p.Entity,
		EntityID: p.EntityID,
		Kind:     Delete,
		HLC:      p.HLC,
	}
}

// Validate enforces the Change invariants: for Upsert, the keys of
// Patch equal the keys of Tags; for Delete, Patch and Tags are both
// empty. It also rejects changes missing routing identity.
func (c Change) Validate() error {
	if c.Stream == "" {
		return fmt.Errorf("%w: empty stream", ErrInvalidChange)
	}
	if c.Entity == "" {
		return fmt.Errorf("%w: empty entity", ErrInvalidChange)
	}
	if c.EntityID == "" {
		return fmt.Errorf("%w: empty entity_id", ErrInvalidChange)
	}

	switch c.Kind {
	case Upsert:
		if len(c.Patch) == 0 {
			return fmt.Errorf("%w: upsert with empty patch", ErrInvalidChange)
		}
		if len(c.Patch) != len(c.Tags) {
			return fmt.Errorf("%w: patch has %d fields but tags has %d", ErrInvalidChange, len(c.Patch), len(c.Tags))
		}
		for field := range c.Patch {
			if _, ok := c.Tags[field]; !ok {
				return fmt.Errorf("%w: field %q missing a tag", ErrInvalidChange, field)
			}
		}
		for field := range c.Tags {
			if _, ok := c.Patch[field]; !ok {
				return fmt.Errorf("%w: tag %q has no matching patch field", ErrInvalidChange, field)
			}
		}
	case Delete:
		if len(c.Patch) != 0 || len(c.Tags) != 0 {
			return fmt.Errorf("%w: delete must have empty patch and tags", ErrInvalidChange)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidChange, c.Kind)
	}
	return nil
}

// Key identifies the record a Change targets, independent of Kind.
type Key struct {
	Entity   string
	EntityID string
}

// RecordKey returns the (entity, entity_id) key this Change targets.
func (c Change) RecordKey() Key {
	return Key{Entity: c.Entity, EntityID: c.EntityID}
}
