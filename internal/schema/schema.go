// Package schema declares the fields an extraction may produce for each
// entity type, their types, and whether they live on the shared listing or
// on the entity-specific record.
package schema

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"venuefinds/internal/domain"
)

var (
	ErrUnknownEntityType = errors.New("unknown entity type")
	ErrUnknownField      = errors.New("unknown field")
)

type Kind string

const (
	KindString     Kind = "string"
	KindNumber     Kind = "number"
	KindInteger    Kind = "integer"
	KindBool       Kind = "boolean"
	KindStringList Kind = "string_list"
	KindObject     Kind = "object"
)

type Table string

const (
	TableListing Table = "listing"
	TableEntity  Table = "entity"
)

type Field struct {
	Name        string
	Kind        Kind
	Table       Table
	Description string
	// Internal fields are derived by the pipeline and never requested from the model.
	Internal bool
}

// Check reports whether v (already in canonical JSON form) fits the kind.
// A nil value fits every kind.
func (k Kind) Check(v any) error {
	if v == nil {
		return nil
	}
	switch k {
	case KindString:
		if _, ok := v.(string); ok {
			return nil
		}
	case KindNumber:
		if _, ok := v.(float64); ok {
			return nil
		}
	case KindInteger:
		if f, ok := v.(float64); ok {
			if f == math.Trunc(f) && !math.IsInf(f, 0) {
				return nil
			}
			return fmt.Errorf("expected integer, got %v", f)
		}
	case KindBool:
		if _, ok := v.(bool); ok {
			return nil
		}
	case KindStringList:
		if list, ok := v.([]any); ok {
			for i, e := range list {
				if _, ok := e.(string); !ok {
					return fmt.Errorf("expected string at index %d, got %T", i, e)
				}
			}
			return nil
		}
	case KindObject:
		if _, ok := v.(map[string]any); ok {
			return nil
		}
	default:
		return fmt.Errorf("unsupported kind %q", k)
	}
	return fmt.Errorf("expected %s, got %s", k, describe(v))
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}

type Registry struct {
	entityType string
	fields     []Field
	byName     map[string]Field
}

// For returns the registry of an entity type.
func For(entityType string) (*Registry, error) {
	entityType = strings.ToLower(strings.TrimSpace(entityType))
	entityFields, ok := entityFieldSets[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %q (valid: %s)", ErrUnknownEntityType, entityType, strings.Join(EntityTypes(), ", "))
	}
	fields := append(append([]Field{}, listingFields...), entityFields...)
	r := &Registry{entityType: entityType, fields: fields, byName: make(map[string]Field, len(fields))}
	for _, f := range fields {
		r.byName[f.Name] = f
	}
	return r, nil
}

// EntityTypes lists the supported entity types in sorted order.
func EntityTypes() []string {
	out := make([]string, 0, len(entityFieldSets))
	for t := range entityFieldSets {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) EntityType() string { return r.entityType }

func (r *Registry) Fields() []Field { return r.fields }

// ExtractableFields are the fields requested from the model.
func (r *Registry) ExtractableFields() []Field {
	var out []Field
	for _, f := range r.fields {
		if !f.Internal {
			out = append(out, f)
		}
	}
	return out
}

func (r *Registry) Lookup(name string) (Field, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// CheckField validates a canonical value against the declared field kind.
func (r *Registry) CheckField(name string, v any) error {
	f, ok := r.byName[name]
	if !ok {
		return fmt.Errorf("%w: %q for %s", ErrUnknownField, name, r.entityType)
	}
	return f.Kind.Check(v)
}

// Split partitions a record into its listing and entity parts. Unknown
// fields are dropped and returned so the caller can report them.
func (r *Registry) Split(rec domain.Record) (listing, entity domain.Record, unknown []string) {
	listing, entity = domain.NewRecord(), domain.NewRecord()
	for name, v := range rec.Values {
		f, ok := r.byName[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		target := listing
		if f.Table == TableEntity {
			target = entity
		}
		target.Values[name] = v
		if c, ok := rec.Confidence[name]; ok {
			target.Confidence[name] = c
		}
	}
	sort.Strings(unknown)
	return listing, entity, unknown
}
