package engine

import (
	"fmt"
	"reflect"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// FieldKind classifies a struct field as seen by the schema introspector.
type FieldKind int

const (
	// FieldScalar is a primitive or value-like property tracked by the
	// scalar tracker (C2).
	FieldScalar FieldKind = iota
	// FieldComplex is a nested record-typed property tracked by the
	// complex-property tracker (C3).
	FieldComplex
	// FieldCollection is a slice-of-record property tracked by the
	// collection tracker (C4).
	FieldCollection
	// FieldIneligible is a field the introspector could not classify
	// confidently (an untagged struct/slice field, or one whose element
	// type sits on a cyclic type graph). It is not tracked.
	FieldIneligible
)

// FieldDescriptor describes one struct field as classified by the schema
// introspector.
type FieldDescriptor struct {
	Name     string
	Index    int
	Kind     FieldKind
	ElemType reflect.Type // populated for FieldCollection
}

// Diagnostic records why a field was marked FieldIneligible.
type Diagnostic struct {
	Property string
	Err      error
}

// Descriptor is the precomputed, per-type schema used by the tracker to
// dispatch gets/sets without re-walking reflect.Type on every access. One
// Descriptor is built per reflect.Type and cached (see Introspector).
type Descriptor struct {
	Type        reflect.Type
	Fields      []FieldDescriptor
	ByName      map[string]FieldDescriptor
	Diagnostics []Diagnostic
}

// Scalars returns the names of fields classified FieldScalar, in struct
// declaration order.
func (d *Descriptor) Scalars() []string { return d.namesOf(FieldScalar) }

// Complex returns the names of fields classified FieldComplex.
func (d *Descriptor) Complex() []string { return d.namesOf(FieldComplex) }

// Collections returns the names of fields classified FieldCollection.
func (d *Descriptor) Collections() []string { return d.namesOf(FieldCollection) }

func (d *Descriptor) namesOf(kind FieldKind) []string {
	var names []string
	for _, f := range d.Fields {
		if f.Kind == kind {
			names = append(names, f.Name)
		}
	}
	return names
}

const defaultSchemaCacheSize = 256

// Introspector enumerates a record type's scalar, complex, and collection
// properties and caches the result per reflect.Type. The cache is bounded
// (default 256 types) rather than an unbounded process-wide map, so a host
// application that introspects many ad hoc or plugin-contributed record
// types over a long process lifetime does not grow this table without
// limit.
type Introspector struct {
	mu    sync.Mutex
	cache *lru.Cache[reflect.Type, *Descriptor]
}

// IntrospectorOption configures an Introspector.
type IntrospectorOption func(*introspectorConfig)

type introspectorConfig struct {
	cacheSize int
}

// WithCacheSize overrides the default bounded descriptor cache size.
func WithCacheSize(n int) IntrospectorOption {
	return func(c *introspectorConfig) { c.cacheSize = n }
}

// NewIntrospector constructs an Introspector with the given options.
func NewIntrospector(opts ...IntrospectorOption) *Introspector {
	cfg := introspectorConfig{cacheSize: defaultSchemaCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	cache, err := lru.New[reflect.Type, *Descriptor](cfg.cacheSize)
	if err != nil {
		// Only returns an error for a non-positive size; fall back to the
		// documented default rather than propagating a constructor error
		// for a caller-supplied option mistake.
		cache, _ = lru.New[reflect.Type, *Descriptor](defaultSchemaCacheSize)
	}
	return &Introspector{cache: cache}
}

var defaultIntrospector = NewIntrospector()

// NewDescriptor builds a Descriptor from a precomputed field list, for use
// by generated code (see cmd/trackgen) that wants to seed the introspector
// cache without paying for a reflect.Type walk at program startup.
func NewDescriptor(t reflect.Type, fields []FieldDescriptor) *Descriptor {
	d := &Descriptor{Type: t, Fields: fields, ByName: make(map[string]FieldDescriptor, len(fields))}
	for _, fd := range fields {
		d.ByName[fd.Name] = fd
	}
	return d
}

// RegisterDescriptor seeds the default Introspector's cache with a
// precomputed Descriptor, so the first Describe(t) call for a generated
// type returns it directly instead of walking t's fields via reflection.
// Intended to be called from a generated package's init function.
func RegisterDescriptor(t reflect.Type, d *Descriptor) {
	defaultIntrospector.cache.Add(t, d)
}

// Describe returns the cached Descriptor for t, building and caching one if
// necessary. t must be a struct type or a pointer to one.
func Describe(t reflect.Type) (*Descriptor, error) {
	return defaultIntrospector.Describe(t)
}

// Describe returns the Descriptor for t from this Introspector's cache,
// building one if necessary.
func (ins *Introspector) Describe(t reflect.Type) (*Descriptor, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	ins.mu.Lock()
	if cached, ok := ins.cache.Get(t); ok {
		ins.mu.Unlock()
		return cached, nil
	}
	ins.mu.Unlock()

	d, err := describeType(t, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}

	ins.mu.Lock()
	ins.cache.Add(t, d)
	ins.mu.Unlock()
	return d, nil
}

// describeType walks the fields of t, classifying each by its "track"
// struct tag (or, for an untagged field, by a conservative default: a
// non-struct/non-pointer/non-slice field is scalar, anything else is FieldIneligible
// pending an explicit tag). visiting tracks the type graph on the current
// call stack so a cycle is detected and reported as a diagnostic rather than
// causing unbounded recursion (spec's cyclic-type-graph error condition).
func describeType(t reflect.Type, visiting map[reflect.Type]bool) (*Descriptor, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s is not a struct", ErrSchemaIneligible, t)
	}
	if visiting[t] {
		return nil, fmt.Errorf("%w: cyclic type graph at %s", ErrSchemaIneligible, t)
	}
	visiting[t] = true
	defer delete(visiting, t)

	d := &Descriptor{Type: t, ByName: make(map[string]FieldDescriptor)}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}
		fd := FieldDescriptor{Name: field.Name, Index: i}

		switch field.Tag.Get("track") {
		case "scalar":
			fd.Kind = FieldScalar
		case "complex":
			fd.Kind = FieldComplex
			elem := field.Type
			if elem.Kind() == reflect.Ptr {
				elem = elem.Elem()
			}
			if _, err := describeType(elem, visiting); err != nil {
				fd.Kind = FieldIneligible
				d.Diagnostics = append(d.Diagnostics, Diagnostic{Property: field.Name, Err: err})
			}
		case "collection":
			if field.Type.Kind() != reflect.Slice {
				return nil, fmt.Errorf("%w: field %s tagged collection is not a slice", ErrSchemaIneligible, field.Name)
			}
			fd.Kind = FieldCollection
			fd.ElemType = field.Type.Elem()
			elem := fd.ElemType
			if elem.Kind() == reflect.Ptr {
				elem = elem.Elem()
			}
			if _, err := describeType(elem, visiting); err != nil {
				fd.Kind = FieldIneligible
				d.Diagnostics = append(d.Diagnostics, Diagnostic{Property: field.Name, Err: err})
			}
		case "":
			switch field.Type.Kind() {
			case reflect.Struct, reflect.Ptr:
				fd.Kind = FieldIneligible
				d.Diagnostics = append(d.Diagnostics, Diagnostic{
					Property: field.Name,
					Err:      fmt.Errorf("%w: field %s has record-like type but no track tag", ErrSchemaIneligible, field.Name),
				})
			case reflect.Slice:
				fd.Kind = FieldIneligible
				d.Diagnostics = append(d.Diagnostics, Diagnostic{
					Property: field.Name,
					Err:      fmt.Errorf("%w: field %s has slice type but no track tag", ErrSchemaIneligible, field.Name),
				})
			default:
				fd.Kind = FieldScalar
			}
		default:
			return nil, fmt.Errorf("%w: field %s has unknown track tag %q", ErrSchemaIneligible, field.Name, field.Tag.Get("track"))
		}

		d.Fields = append(d.Fields, fd)
		d.ByName[field.Name] = fd
	}

	return d, nil
}
