// Package schema provides runtime entity/field metadata used by
// adapters and validators. Entities are modeled as a string-keyed map
// with per-entity validators rather than as an inheritance hierarchy.
package schema

import (
	"errors"
	"fmt"

	"github.com/go-mizu/rippledb/change"
)

// FieldKind is the set of field value kinds a descriptor can declare.
// It is advisory: the core's merge algebra is untyped, so FieldKind
// only gates what schema.Validate accepts, never what merge.Apply
// accepts.
type FieldKind string

const (
	KindString FieldKind = "string"
	KindNumber FieldKind = "number"
	KindBool   FieldKind = "bool"
	KindAny    FieldKind = "any"
)

// FieldDescriptor is one field's runtime metadata.
type FieldDescriptor struct {
	Name     string
	Kind     FieldKind
	Required bool
}

// EntityDescriptor is one entity type's runtime metadata: its name and
// the fields it declares.
type EntityDescriptor struct {
	Name   string
	Fields []FieldDescriptor
}

// ErrUnknownEntity is returned when validating a Change against an
// entity the Registry has no descriptor for.
var ErrUnknownEntity = errors.New("schema: unknown entity")

// ErrUnknownField is returned when a Change's patch touches a field
// the entity's descriptor does not declare.
var ErrUnknownField = errors.New("schema: unknown field")

// ErrFieldKind is returned when a patch value's Go type does not
// match its field's declared Kind.
var ErrFieldKind = errors.New("schema: field kind mismatch")

// ErrMissingRequired is returned when an upsert's patch omits a field
// the entity's descriptor marks Required. The check is on the patch in
// isolation: Validate performs no cross-record lookups, so a Required
// field must be present in every upsert for its entity. Mark a field
// Required only when every writer sends the whole record.
var ErrMissingRequired = errors.New("schema: missing required field")

// Registry is a string-keyed map of entity descriptors. Registering a
// name that is already present replaces its descriptor.
type Registry struct {
	entities map[string]EntityDescriptor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]EntityDescriptor)}
}

// Register adds or replaces an entity's descriptor and returns the
// Registry for chaining.
func (r *Registry) Register(d EntityDescriptor) *Registry {
	r.entities[d.Name] = d
	return r
}

// Lookup returns the descriptor for entity, if registered.
func (r *Registry) Lookup(entity string) (EntityDescriptor, bool) {
	d, ok := r.entities[entity]
	return d, ok
}

// Validate checks c.Patch against entity's registered descriptor: every
// patched field must be declared, its value's Go type must match the
// field's declared Kind (KindAny accepts anything), and every field
// the descriptor marks Required must be present in the patch. Deletes
// carry no patch and always pass. Validate is independent of
// change.Validate (the tags/patch key-equality invariant); callers
// typically run both.
func (r *Registry) Validate(c change.Change) error {
	if c.Kind == change.Delete {
		return nil
	}

	d, ok := r.entities[c.Entity]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEntity, c.Entity)
	}

	fieldsByName := make(map[string]FieldDescriptor, len(d.Fields))
	for _, f := range d.Fields {
		fieldsByName[f.Name] = f
	}

	for name, value := range c.Patch {
		fd, known := fieldsByName[name]
		if !known {
			return fmt.Errorf("%w: %q.%q", ErrUnknownField, c.Entity, name)
		}
		if !kindMatches(fd.Kind, value) {
			return fmt.Errorf("%w: %q.%q expected %s, got %T", ErrFieldKind, c.Entity, name, fd.Kind, value)
		}
	}

	for _, f := range d.Fields {
		if !f.Required {
			continue
		}
		if _, present := c.Patch[f.Name]; !present {
			return fmt.Errorf("%w: %q.%q", ErrMissingRequired, c.Entity, f.Name)
		}
	}
	return nil
}

func kindMatches(kind FieldKind, value any) bool {
	if value == nil {
		return true
	}
	switch kind {
	case KindString:
		_, ok := value.(string)
		return ok
	case KindNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case KindBool:
		_, ok := value.(bool)
		return ok
	case KindAny:
		return true
	default:
		return true
	}
}
