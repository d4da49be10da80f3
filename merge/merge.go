// Package merge implements the per-field last-writer-wins merge
// algebra: deterministic reconciliation of a Record against an
// incoming Change, with tombstone dominance.
package merge

import (
	"github.com/go-mizu/rippledb/change"
	"github.com/go-mizu/rippledb/hlc"
)

// Record is the per-(entity, entity_id) state held exclusively inside
// a Store. The zero value is not ready for use; construct with
// NewRecord.
type Record struct {
	Values     map[string]any
	Tags       map[string]hlc.Timestamp
	Deleted    bool
	DeletedTag *hlc.Timestamp
}

// NewRecord returns an empty, non-deleted Record.
func NewRecord() *Record {
	return &Record{
		Values: make(map[string]any),
		Tags:   make(map[string]hlc.Timestamp),
	}
}

// Clone returns a deep-enough copy safe to hand out as a read
// snapshot: later Applies on the original never mutate it.
func (r *Record) Clone() *Record {
	c := &Record{
		Values:  make(map[string]any, len(r.Values)),
		Tags:    make(map[string]hlc.Timestamp, len(r.Tags)),
		Deleted: r.Deleted,
	}
	for k, v := range r.Values {
		c.Values[k] = v
	}
	for k, v := range r.Tags {
		c.Tags[k] = v
	}
	if r.DeletedTag != nil {
		tag := *r.DeletedTag
		c.DeletedTag = &tag
	}
	return c
}

// Visible reports whether the record should be visible to readers:
// it exists (has at least one value) and is not deleted; readers
// treat a deleted record as absent.
func (r *Record) Visible() bool {
	return len(r.Values) > 0 && !r.Deleted
}

// ApplyUpsert reconciles c's patched fields into r using per-field
// LWW: a field write wins iff its tag strictly dominates the field's
// current tag. It returns the subset of c.Patch's keys that actually
// won, for event-kind bookkeeping in the Store.
//
// Resurrection policy: this implementation takes the simpler rule.
// A winning field write whose tag strictly dominates the record's
// deleted_tag clears the tombstone. Tag-wise per-field resurrection
// (requiring every field to independently beat the tombstone) is not
// implemented.
func ApplyUpsert(r *Record, c change.Change) []string {
	var written []string
	for field, val := range c.Patch {
		tag := c.Tags[field]
		if existing, ok := r.Tags[field]; ok && !hlc.Less(existing, tag) {
			continue
		}
		r.Values[field] = val
		r.Tags[field] = tag
		written = append(written, field)

		if r.Deleted && (r.DeletedTag == nil || hlc.Less(*r.DeletedTag, tag)) {
			r.Deleted = false
		}
	}
	return written
}

// ApplyDelete reconciles a tombstone into r: it wins iff c.HLC
// strictly dominates the record's current deleted_tag. It returns
// whether the delete actually advanced the tombstone. An advanced
// tombstone marks the record deleted only if no field's tag already
// dominates it, matching ApplyUpsert's resurrection rule, so the
// outcome does not depend on whether the delete or a newer field
// write arrives first.
func ApplyDelete(r *Record, c change.Change) bool {
	if r.DeletedTag != nil && !hlc.Less(*r.DeletedTag, c.HLC) {
		return false
	}
	tag := c.HLC
	r.DeletedTag = &tag
	r.Deleted = true
	for _, fieldTag := range r.Tags {
		if hlc.Less(tag, fieldTag) {
			r.Deleted = false
			break
		}
	}
	return true
}

// Apply dispatches c to ApplyUpsert or ApplyDelete by its Kind. It
// returns the fields written (always empty for deletes) and whether
// the delete tombstone advanced (always false for upserts).
func Apply(r *Record, c change.Change) (written []string, deleted bool) {
	switch c.Kind {
	case change.Upsert:
		return ApplyUpsert(r, c), false
	case change.Delete:
		return nil, ApplyDelete(r, c)
	default:
		return nil, false
	}
}
