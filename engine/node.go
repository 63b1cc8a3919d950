package engine

import (
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/sync/singleflight"
)

// membership records a tracked item's explicit Added/Deleted tag within its
// owning collection. memberNone means "no tag": Status() derives from the
// record's own scalar/complex/collection state instead. Added/Deleted are
// leaf states — once set they are returned by Status() verbatim, overriding
// the derived value, until the owning collection clears the tag again
// (cancellation, accept, or reject).
type membership int

const (
	memberNone membership = iota
	memberAdded
	memberDeleted
)

// node is the type-erased tracking state for a single record instance. It
// holds an addressable reflect.Value over the underlying record so the
// generic Record[R] facade can recursively wrap children of arbitrary,
// mutually distinct concrete types without needing a type parameter per
// nesting level. Record[R] is a thin typed view over *node; all of C2/C3's
// real logic lives here.
type node struct {
	mu sync.Mutex
	sf singleflight.Group

	value      reflect.Value // addressable struct value (Elem of a *R)
	descriptor *Descriptor

	original   map[string]any
	membership membership
	// forcedChanged marks an item that an owning collection re-inserted
	// without cancelling back to Unchanged: a deleted item re-inserted at a
	// different index (or with its own changes), or an item from the
	// original snapshot re-inserted at a different index without ever
	// being removed. It has no membership tag of its own, so this flag
	// lets internalStatus report Changed for a pure reorder even when no
	// scalar or child actually differs.
	forcedChanged bool

	complexChildren    map[string]*node
	collectionChildren map[string]*collectionNode

	validator func(reflect.Value) []Violation
	metrics   MetricsRecorder

	// facade is the typed *Record[R] handle handed out for this node by
	// recordFromNode, kept so every lookup of the same item returns the
	// same handle.
	facade any
}

func newNode(ptr reflect.Value) (*node, error) {
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return nil, fmt.Errorf("%w: expected an addressable record pointer", ErrSchemaIneligible)
	}
	desc, err := Describe(ptr.Type())
	if err != nil {
		return nil, err
	}
	return &node{
		value:              ptr.Elem(),
		descriptor:         desc,
		original:           make(map[string]any),
		complexChildren:    make(map[string]*node),
		collectionChildren: make(map[string]*collectionNode),
	}, nil
}

// field looks up a field descriptor by property name, failing for unknown
// properties so typos surface immediately rather than silently no-op'ing.
func (n *node) field(name string) (FieldDescriptor, error) {
	fd, ok := n.descriptor.ByName[name]
	if !ok {
		return FieldDescriptor{}, fmt.Errorf("%w: unknown property %q", ErrInvalidCast, name)
	}
	return fd, nil
}

// --- C2: scalar tracker ------------------------------------------------

// getScalar returns the current value of a scalar property.
func (n *node) getScalar(name string) (any, error) {
	fd, err := n.field(name)
	if err != nil {
		return nil, err
	}
	if fd.Kind != FieldScalar {
		return nil, fmt.Errorf("%w: property %q is not scalar", ErrInvalidCast, name)
	}
	return n.value.Field(fd.Index).Interface(), nil
}

// setScalar applies a new value to a scalar property, capturing the
// pre-mutation value in original on first write (first-write-wins), and
// clearing it again if the new value equals the captured original — how a
// Changed record decays back to Unchanged without an explicit RejectChanges.
func (n *node) setScalar(name string, v any) error {
	fd, err := n.field(name)
	if err != nil {
		return err
	}
	if fd.Kind != FieldScalar {
		return fmt.Errorf("%w: property %q is not scalar", ErrInvalidCast, name)
	}

	field := n.value.Field(fd.Index)
	current := field.Interface()

	newVal := reflect.ValueOf(v)
	switch {
	case !newVal.IsValid():
		newVal = reflect.Zero(field.Type())
	case !newVal.Type().AssignableTo(field.Type()):
		if !newVal.Type().ConvertibleTo(field.Type()) {
			return fmt.Errorf("%w: value of type %s is not assignable to property %q (%s)", ErrInvalidCast, newVal.Type(), name, field.Type())
		}
		newVal = newVal.Convert(field.Type())
	}

	if _, captured := n.original[name]; !captured {
		n.original[name] = current
	}
	field.Set(newVal)

	if reflect.DeepEqual(n.original[name], field.Interface()) {
		delete(n.original, name)
	}
	n.recordMutation(FieldScalar)
	return nil
}

// originalScalar returns the pre-mutation value of a scalar property, or
// its current value if it has not been touched since the last accept.
func (n *node) originalScalar(name string) (any, error) {
	fd, err := n.field(name)
	if err != nil {
		return nil, err
	}
	if fd.Kind != FieldScalar {
		return nil, fmt.Errorf("%w: property %q is not scalar", ErrInvalidCast, name)
	}
	if v, ok := n.original[name]; ok {
		return v, nil
	}
	return n.value.Field(fd.Index).Interface(), nil
}

// --- status --------------------------------------------------------------

// internalStatus derives Changed/Unchanged from the record's own scalar
// deltas and its children's state, ignoring any Added/Deleted membership
// tag. A collection consults this when deciding whether a re-insertion
// cancels back to Unchanged.
func (n *node) internalStatus() Status {
	if n.forcedChanged {
		return Changed
	}
	if len(n.original) > 0 {
		return Changed
	}
	for _, child := range n.complexChildren {
		if child != nil && child.status() != Unchanged {
			return Changed
		}
	}
	for _, child := range n.collectionChildren {
		if child != nil && child.isChanged() {
			return Changed
		}
	}
	return Unchanged
}

// status returns the record's externally visible status: its Added/Deleted
// membership tag if set, else its internally derived status.
func (n *node) status() Status {
	switch n.membership {
	case memberAdded:
		return Added
	case memberDeleted:
		return Deleted
	default:
		return n.internalStatus()
	}
}

// --- C3: complex-property tracker ---------------------------------------

// complex returns the tracked child for a complex property, lazily wrapping
// the underlying value on first access. A nil underlying value yields a nil
// child without creating a wrapper; a later non-nil Set still wraps
// normally since setComplex always re-wraps.
func (n *node) complex(name string) (*node, error) {
	fd, err := n.field(name)
	if err != nil {
		return nil, err
	}
	if fd.Kind != FieldComplex {
		return nil, fmt.Errorf("%w: property %q is not complex", ErrInvalidCast, name)
	}

	n.mu.Lock()
	if child, known := n.complexChildren[name]; known {
		n.mu.Unlock()
		return child, nil
	}
	n.mu.Unlock()

	// singleflight collapses concurrent first-reads of the same
	// uninitialized slot into a single wrap, guaranteeing a property never
	// gets two distinct wrapper instances, without holding a lock for the
	// whole recursive wrap.
	result, err, _ := n.sf.Do("complex:"+name, func() (any, error) {
		n.mu.Lock()
		if child, known := n.complexChildren[name]; known {
			n.mu.Unlock()
			return child, nil
		}
		n.mu.Unlock()

		fv := n.value.Field(fd.Index)
		if isNilComplex(fv) {
			n.mu.Lock()
			n.complexChildren[name] = nil
			n.mu.Unlock()
			return (*node)(nil), nil
		}
		child, err := wrapComplexField(fv)
		if err != nil {
			return nil, err
		}
		child.metrics = n.metrics
		n.mu.Lock()
		n.complexChildren[name] = child
		n.mu.Unlock()
		return child, nil
	})
	if err != nil {
		return nil, err
	}
	child, _ := result.(*node)
	return child, nil
}

// setComplex applies the underlying assignment first, so external observers
// see the new value synchronously, then rebinds the child wrapper: reusing
// an already-tracked child verbatim if one was supplied, else wrapping the
// new value, else nil.
func (n *node) setComplex(name string, v any) error {
	fd, err := n.field(name)
	if err != nil {
		return err
	}
	if fd.Kind != FieldComplex {
		return fmt.Errorf("%w: property %q is not complex", ErrInvalidCast, name)
	}

	field := n.value.Field(fd.Index)

	if holder, ok := v.(nodeHolder); ok {
		child := holder.underlyingNode()
		assignComplexValue(field, child.value)
		n.mu.Lock()
		n.complexChildren[name] = child
		n.mu.Unlock()
		n.recordMutation(FieldComplex)
		return nil
	}

	if v == nil {
		if field.Kind() != reflect.Ptr {
			return fmt.Errorf("%w: property %q is not nilable", ErrInvalidCast, name)
		}
		field.Set(reflect.Zero(field.Type()))
		n.mu.Lock()
		n.complexChildren[name] = nil
		n.mu.Unlock()
		n.recordMutation(FieldComplex)
		return nil
	}

	assignComplexValue(field, reflect.ValueOf(v))

	n.mu.Lock()
	child, err := wrapComplexField(n.value.Field(fd.Index))
	if err != nil {
		n.mu.Unlock()
		return err
	}
	child.metrics = n.metrics
	n.complexChildren[name] = child
	n.mu.Unlock()
	n.recordMutation(FieldComplex)
	return nil
}

// recordMutation reports a property mutation to the node's metrics recorder,
// a no-op when the record was constructed without one (AsTracked without
// WithMetrics leaves it nil rather than defaulting to noopMetrics, since a
// bare Record never touches the metrics seam at all).
func (n *node) recordMutation(kind FieldKind) {
	if n.metrics != nil {
		n.metrics.RecordMutation(kind)
	}
}

// complexPropertyTrackables materializes every complex child exactly once,
// latching the wrapper in place on first enumeration, and returns the
// resulting wrappers, including nil-valued slots for properties that remain
// unset.
func (n *node) complexPropertyTrackables() ([]*node, error) {
	out := make([]*node, 0, len(n.descriptor.Complex()))
	for _, name := range n.descriptor.Complex() {
		child, err := n.complex(name)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

// collectionChild returns the tracked collection for a collection property,
// lazily wrapping the underlying slice on first access, mirroring complex's
// lazy-wrap and singleflight collapsing.
func (n *node) collectionChild(name string) (*collectionNode, error) {
	fd, err := n.field(name)
	if err != nil {
		return nil, err
	}
	if fd.Kind != FieldCollection {
		return nil, fmt.Errorf("%w: property %q is not a collection", ErrInvalidCast, name)
	}

	n.mu.Lock()
	if child, known := n.collectionChildren[name]; known {
		n.mu.Unlock()
		return child, nil
	}
	n.mu.Unlock()

	result, err, _ := n.sf.Do("collection:"+name, func() (any, error) {
		n.mu.Lock()
		if child, known := n.collectionChildren[name]; known {
			n.mu.Unlock()
			return child, nil
		}
		n.mu.Unlock()

		fv := n.value.Field(fd.Index)
		child, err := newCollectionNode(fv, fd.ElemType)
		if err != nil {
			return nil, err
		}
		child.metrics = n.metrics
		for _, item := range child.items {
			item.metrics = n.metrics
		}
		n.mu.Lock()
		n.collectionChildren[name] = child
		n.mu.Unlock()
		return child, nil
	})
	if err != nil {
		return nil, err
	}
	child, _ := result.(*collectionNode)
	return child, nil
}

func isNilComplex(fv reflect.Value) bool {
	return fv.Kind() == reflect.Ptr && fv.IsNil()
}

func wrapComplexField(fv reflect.Value) (*node, error) {
	var ptr reflect.Value
	if fv.Kind() == reflect.Ptr {
		ptr = fv
	} else {
		ptr = fv.Addr()
	}
	return newNode(ptr)
}

// assignComplexValue copies src into a (possibly pointer) field, matching
// the field's own pointer-ness rather than the source's, so callers may set
// a complex pointer field from either a value or a pointer.
func assignComplexValue(field, src reflect.Value) {
	for src.Kind() == reflect.Ptr {
		src = src.Elem()
	}
	if field.Kind() == reflect.Ptr {
		ptr := reflect.New(field.Type().Elem())
		ptr.Elem().Set(src)
		field.Set(ptr)
		return
	}
	field.Set(src)
}

// nodeHolder is implemented by Record[R] so the type-erased node layer can
// recognize "this any is already a tracked wrapper" without needing to
// know R.
type nodeHolder interface {
	underlyingNode() *node
}

// --- C5: transaction coordinator, record half ----------------------------

// acceptSelf recurses into children, then clears scalar snapshots, the
// Added/Deleted membership tag, and forcedChanged, so the record reads
// Unchanged once its subtree has accepted.
func (n *node) acceptSelf() {
	for _, child := range n.complexChildren {
		if child != nil {
			child.acceptSelf()
		}
	}
	for _, child := range n.collectionChildren {
		if child != nil {
			child.accept()
		}
	}
	n.original = make(map[string]any)
	n.membership = memberNone
	n.forcedChanged = false
}

// rejectSelf restores scalars from original, then recurses into children:
// self is fixed up before children, top-down.
func (n *node) rejectSelf() {
	for name, prior := range n.original {
		fd := n.descriptor.ByName[name]
		n.value.Field(fd.Index).Set(reflect.ValueOf(prior))
	}
	n.original = make(map[string]any)
	n.membership = memberNone
	n.forcedChanged = false

	for _, child := range n.complexChildren {
		if child != nil {
			child.rejectSelf()
		}
	}
	for _, child := range n.collectionChildren {
		if child != nil {
			child.reject()
		}
	}
}

// validate runs the node's validator (if any), returning the violations it
// reports. Used by AcceptChanges to veto a commit.
func (n *node) validate() []Violation {
	if n.validator == nil {
		return nil
	}
	return n.validator(n.value)
}
