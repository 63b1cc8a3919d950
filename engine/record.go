package engine

import (
	"fmt"
	"reflect"
	"time"
)

// Trackable is the type-parameter constraint of AsTracked and
// AsTrackedSlice. It is any, so it is not enforced at compile time: a type
// that is not a struct (a pointer included — Record[R] owns the
// addressable storage itself) is rejected with ErrSchemaIneligible when it
// is wrapped, and a struct's fields are classified by their "track" tags.
type Trackable any

// Record is the generic, typed facade over a *node. It carries no tracking
// logic of its own; every method delegates to the underlying node, which is
// type-erased so it can recursively hold children of arbitrary, mutually
// distinct record types.
type Record[R Trackable] struct {
	n *node
}

// underlyingNode implements nodeHolder, letting the type-erased node layer
// recognize a Record[R] handed back in as a complex-property or collection
// value without needing to know R.
func (r *Record[R]) underlyingNode() *node { return r.n }

// AsTracked wraps value in a Record, copying it into freshly allocated,
// independently addressable storage so later mutations through the Record
// never alias the caller's original value. Passing a value that is already
// tracked (a tracked handle boxed into R, which cannot happen for a bare
// struct R, only when R is an interface or handle type) returns
// ErrAlreadyTracking.
func AsTracked[R Trackable](value R) (*Record[R], error) {
	if _, ok := any(value).(nodeHolder); ok {
		return nil, ErrAlreadyTracking
	}
	ptr := new(R)
	*ptr = value
	n, err := newNode(reflect.ValueOf(ptr))
	if err != nil {
		return nil, err
	}
	return recordFromNode[R](n), nil
}

// recordFromNode returns the Record[R] view over an existing node, used when
// a complex-property or collection lazy-wrap already produced the node and
// the caller now wants a typed handle on it. The handle is built once per
// node and reused, so the same item always yields the same *Record[R].
func recordFromNode[R Trackable](n *node) *Record[R] {
	if n == nil {
		return nil
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if r, ok := n.facade.(*Record[R]); ok {
		return r
	}
	r := &Record[R]{n: n}
	n.facade = r
	return r
}

// Value returns the current (possibly mutated) value of the tracked record.
func (r *Record[R]) Value() R {
	return r.n.value.Interface().(R)
}

// Original reconstructs the record as it was at the last accept boundary,
// by starting from the current value and overlaying every captured original
// scalar. Complex and collection children are NOT recursively restored by
// this snapshot — it answers "what were MY scalars", not a deep historical
// clone.
func (r *Record[R]) Original() R {
	out := r.Value()
	rv := reflect.ValueOf(&out).Elem()
	for name, prior := range r.n.original {
		fd := r.n.descriptor.ByName[name]
		rv.Field(fd.Index).Set(reflect.ValueOf(prior))
	}
	return out
}

// Status reports the record's Unchanged/Added/Changed/Deleted state.
func (r *Record[R]) Status() Status { return r.n.status() }

// Get returns the current value of a scalar property by name.
func (r *Record[R]) Get(prop string) (any, error) { return r.n.getScalar(prop) }

// Set assigns a scalar property by name, capturing its pre-mutation value
// the first time it is touched.
func (r *Record[R]) Set(prop string, v any) error { return r.n.setScalar(prop, v) }

// OriginalValue returns the pre-mutation value of a scalar property and
// whether it has actually been captured (false means the property has not
// been touched since the last accept, and the current value is returned).
func (r *Record[R]) OriginalValue(prop string) (any, bool) {
	v, ok := r.n.original[prop]
	if ok {
		return v, true
	}
	current, err := r.n.getScalar(prop)
	if err != nil {
		return nil, false
	}
	return current, false
}

// AcceptChanges commits every scalar, complex, and collection mutation in
// this record's subtree, running its Validator first. A non-nil error is
// always a RejectionError (a value, not a pointer).
func (r *Record[R]) AcceptChanges() error {
	start := time.Now()
	if violations := r.n.validate(); len(violations) > 0 {
		if r.n.metrics != nil {
			took := time.Since(start)
			size := 0
			walkNode(r.n, func(any, Status) { size++ })
			r.n.metrics.RecordAccept(size, false, took)
		}
		return RejectionError{Violations: violations}
	}
	r.n.acceptSelf()
	if r.n.metrics != nil {
		took := time.Since(start)
		size := 0
		walkNode(r.n, func(any, Status) { size++ })
		r.n.metrics.RecordAccept(size, true, took)
	}
	return nil
}

// RejectChanges discards every scalar, complex, and collection mutation in
// this record's subtree, restoring it to its last accepted state.
func (r *Record[R]) RejectChanges() {
	start := time.Now()
	r.n.rejectSelf()
	if r.n.metrics != nil {
		took := time.Since(start)
		size := 0
		walkNode(r.n, func(any, Status) { size++ })
		r.n.metrics.RecordReject(size, took)
	}
}

// ComplexPropertyTrackables returns every complex child, wrapping any that
// have not yet been accessed and latching the wrapper in place, as opaque
// tracked handles. Use ComplexChild for a typed handle on a specific
// property instead.
func (r *Record[R]) ComplexPropertyTrackables() ([]*UntypedRecord, error) {
	children, err := r.n.complexPropertyTrackables()
	if err != nil {
		return nil, err
	}
	out := make([]*UntypedRecord, 0, len(children))
	for _, child := range children {
		if child == nil {
			out = append(out, nil)
			continue
		}
		out = append(out, &UntypedRecord{n: child})
	}
	return out, nil
}

// UntypedRecord is the type-erased tracked wrapper returned by
// ComplexPropertyTrackables, for callers that want to inspect a child's
// status without knowing its concrete record type. Use ComplexChild instead
// when the concrete type is known, for a fully typed *Record[C].
type UntypedRecord struct {
	n *node
}

func (u *UntypedRecord) underlyingNode() *node { return u.n }

// Status reports the child's Unchanged/Added/Changed/Deleted state.
func (u *UntypedRecord) Status() Status { return u.n.status() }

// Value returns the child's current underlying value as an any.
func (u *UntypedRecord) Value() any { return u.n.value.Interface() }

// ComplexChild returns a typed Record handle on a complex property, lazily
// wrapping it on first access. It returns nil, nil for an unset (nil
// pointer) complex property.
func ComplexChild[C Trackable, R Trackable](r *Record[R], prop string) (*Record[C], error) {
	child, err := r.n.complex(prop)
	if err != nil {
		return nil, err
	}
	return recordFromNode[C](child), nil
}

// SetComplex assigns a complex property from either a plain value, a
// pointer, or an already-tracked *Record[C] (in which case the existing
// wrapper is reused verbatim rather than re-wrapped).
func (r *Record[R]) SetComplex(prop string, v any) error {
	return r.n.setComplex(prop, v)
}

// CollectionChild returns a typed Collection handle on a collection
// property, lazily wrapping it on first access.
func CollectionChild[E Trackable, R Trackable](r *Record[R], prop string) (*Collection[E], error) {
	child, err := r.n.collectionChild(prop)
	if err != nil {
		return nil, err
	}
	return &Collection[E]{c: child}, nil
}

// Cast returns v as T when v is a tracked handle (a *Record or an
// *UntypedRecord) whose dynamic type is already T. It does not convert
// between handle types: an *UntypedRecord from ComplexPropertyTrackables
// casts only to *UntypedRecord, not to a *Record[C] (ComplexChild returns
// that), and a *Collection is not a tracked handle, so casting one fails.
// It fails with ErrInvalidCast if v does not carry tracking state, or is a
// handle of a different type than T.
func Cast[T any](v any) (T, error) {
	var zero T
	holder, ok := v.(nodeHolder)
	if !ok {
		return zero, fmt.Errorf("%w: value does not implement the tracked-handle interface", ErrInvalidCast)
	}
	typed, ok := any(holder).(T)
	if !ok {
		return zero, fmt.Errorf("%w: tracked handle is not of the requested type", ErrInvalidCast)
	}
	return typed, nil
}
