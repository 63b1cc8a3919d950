package engine

import (
	"fmt"
	"reflect"
)

// deletedEntry remembers where a removed item sat in the collection's
// original snapshot, so RejectChanges can restore it to the same index,
// ascending by original index across every restored item.
type deletedEntry struct {
	item          *node
	originalIndex int
}

// collectionNode is the type-erased tracking state for a slice-typed
// collection property. Its items are deliberately NOT backed by the
// exposed slice's own backing array: each item gets its own independent
// heap allocation (via reflect.New), and the exposed field is a derived
// view rebuilt by writeBack after every structural mutation. Aliasing
// directly into the slice's backing array — the way a complex child aliases
// its parent struct field — would break the moment an insert or append
// reallocates that array out from under an already-handed-out *node.
type collectionNode struct {
	field    reflect.Value // addressable slice field on the parent struct
	elemType reflect.Type  // element type, pointer-stripped

	items   []*node
	deleted []deletedEntry

	// originalSnapshot pairs each item present when the collection was last
	// accepted (or first wrapped) with its index at that time, used to
	// decide whether a remove+reinsert cancels back to Unchanged and where
	// a deleted item's slot is restored on reject.
	originalSnapshot []*node

	metrics MetricsRecorder
}

// newCollectionNode wraps an addressable slice field. A field that is not a
// slice is ErrUnsupportedContainer; an element that is not a struct (or a
// pointer to one) fails with ErrSchemaIneligible when it is wrapped.
func newCollectionNode(field reflect.Value, elemType reflect.Type) (*collectionNode, error) {
	if field.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: collection property is not a slice", ErrUnsupportedContainer)
	}

	c := &collectionNode{
		field:    field,
		elemType: elemType,
	}

	for i := 0; i < field.Len(); i++ {
		item, err := c.wrapElement(field.Index(i))
		if err != nil {
			return nil, err
		}
		c.items = append(c.items, item)
		c.originalSnapshot = append(c.originalSnapshot, item)
	}
	return c, nil
}

// wrapElement copies src (a slice element, possibly itself a pointer) into a
// freshly allocated, independently addressable backing value and wraps it in
// a *node. If src already carries tracking state (a tracked handle passed
// as the element value), that existing node is reused verbatim instead of
// re-wrapping a copy of it.
func (c *collectionNode) wrapElement(src reflect.Value) (*node, error) {
	if holder, ok := src.Interface().(nodeHolder); ok {
		return holder.underlyingNode(), nil
	}

	ptr := reflect.New(derefType(c.elemType))

	v := src
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, fmt.Errorf("%w: nil element in tracked collection", ErrUnsupportedContainer)
		}
		v = v.Elem()
	}
	ptr.Elem().Set(v)

	item, err := newNode(ptr)
	if err != nil {
		return nil, err
	}
	item.metrics = c.metrics
	return item, nil
}

func derefType(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Ptr {
		return t.Elem()
	}
	return t
}

// writeBack rebuilds the exposed slice field from items, so external
// readers of the underlying struct's own slice field see the current
// membership and order without needing to go through the Collection facade.
func (c *collectionNode) writeBack() {
	out := reflect.MakeSlice(c.field.Type(), len(c.items), len(c.items))
	isPtr := c.elemType.Kind() == reflect.Ptr
	for i, item := range c.items {
		if isPtr {
			out.Index(i).Set(item.value.Addr())
		} else {
			out.Index(i).Set(item.value)
		}
	}
	c.field.Set(out)
}

// --- C4: collection tracker ----------------------------------------------

// indexOf returns the current index of item in items, or -1.
func (c *collectionNode) indexOf(item *node) int {
	for i, it := range c.items {
		if it == item {
			return i
		}
	}
	return -1
}

// originalIndexOf returns item's index in the original snapshot, or -1 if
// it was not present there (i.e. it is an Added item).
func (c *collectionNode) originalIndexOf(item *node) int {
	for i, it := range c.originalSnapshot {
		if it == item {
			return i
		}
	}
	return -1
}

func (c *collectionNode) inOriginalSnapshot(item *node) bool {
	return c.originalIndexOf(item) >= 0
}

// deletedIndex returns item's position in c.deleted, or -1.
func (c *collectionNode) deletedIndex(item *node) int {
	for i, d := range c.deleted {
		if d.item == item {
			return i
		}
	}
	return -1
}

func (c *collectionNode) removeFromDeleted(i int) {
	c.deleted = append(c.deleted[:i], c.deleted[i+1:]...)
}

// recordMutation reports a structural mutation to the collection's metrics
// recorder, a no-op when the collection was constructed without one.
func (c *collectionNode) recordMutation() {
	if c.metrics != nil {
		c.metrics.RecordMutation(FieldCollection)
	}
}

// insertFresh allocates a new element at index i from v and marks it Added:
// an item with no prior tracking history entering the collection.
func (c *collectionNode) insertFresh(i int, v reflect.Value) (*node, error) {
	item, err := c.wrapElement(v)
	if err != nil {
		return nil, err
	}
	item.membership = memberAdded
	c.spliceInsert(i, item)
	c.recordMutation()
	return item, nil
}

// insertTracked inserts an already-tracked item (from InsertTracked) at
// index i, dispatching on the item's history with THIS collection.
func (c *collectionNode) insertTracked(i int, item *node) error {
	if idx := c.indexOf(item); idx >= 0 {
		return fmt.Errorf("%w: item is already present in this collection", ErrAlreadyTracking)
	}

	switch {
	case c.deletedIndex(item) >= 0:
		// Re-inserting a previously deleted item. Clear the deleted tag;
		// if the item lands back at its original index and its own
		// internal state still reads Unchanged, the whole remove+reinsert
		// cancels out.
		di := c.deletedIndex(item)
		originalIdx := c.deleted[di].originalIndex
		c.removeFromDeleted(di)
		item.membership = memberNone
		if originalIdx == i && item.internalStatus() == Unchanged {
			item.forcedChanged = false
		} else {
			item.forcedChanged = true
		}
		c.spliceInsert(i, item)
		c.recordMutation()
		return nil

	case c.inOriginalSnapshot(item):
		// Re-inserting an item that was never removed (already-present is
		// excluded above, so this path is only reachable via a caller
		// re-wrapping a stale *Record pulled from the original snapshot).
		// Rare and discouraged; treat it like a reorder of an original item.
		originalIdx := c.originalIndexOf(item)
		item.membership = memberNone
		item.forcedChanged = originalIdx != i
		c.spliceInsert(i, item)
		c.recordMutation()
		return nil

	default:
		// An already-tracked item with no history in this collection
		// (moved in from another collection). It keeps its own
		// accumulated scalar/child Changed state but is new to this
		// collection, so it is tagged Added here.
		item.membership = memberAdded
		c.spliceInsert(i, item)
		c.recordMutation()
		return nil
	}
}

func (c *collectionNode) spliceInsert(i int, item *node) {
	if i < 0 || i > len(c.items) {
		i = len(c.items)
	}
	c.items = append(c.items, nil)
	copy(c.items[i+1:], c.items[i:])
	c.items[i] = item
	c.writeBack()
}

// remove deletes item from the collection. An Added item is dropped
// entirely — it never appears in DeletedItems — while an item present in
// the original snapshot is moved to the deleted set, tagged Deleted, and
// remembered at its original-snapshot index (its current index if it has
// none) for reject-time restoration.
func (c *collectionNode) remove(item *node) error {
	idx := c.indexOf(item)
	if idx < 0 {
		return fmt.Errorf("%w: item is not present in this collection", ErrInvalidCast)
	}

	wasAdded := item.membership == memberAdded
	c.items = append(c.items[:idx], c.items[idx+1:]...)
	c.writeBack()

	if wasAdded {
		item.membership = memberNone
		c.recordMutation()
		return nil
	}

	originalIdx := c.originalIndexOf(item)
	if originalIdx < 0 {
		originalIdx = idx
	}
	item.membership = memberDeleted
	c.deleted = append(c.deleted, deletedEntry{item: item, originalIndex: originalIdx})
	c.recordMutation()
	return nil
}

// setIndex replaces the item at index i with a freshly tracked wrapper over
// v, removing the old occupant first (so its own Deleted bookkeeping applies
// if it had tracking history) and inserting the new one in its place.
func (c *collectionNode) setIndex(i int, v reflect.Value) (*node, error) {
	if i < 0 || i >= len(c.items) {
		return nil, fmt.Errorf("%w: index %d out of range", ErrInvalidCast, i)
	}
	old := c.items[i]
	if err := c.remove(old); err != nil {
		return nil, err
	}
	return c.insertFresh(i, v)
}

// undelete clears a Deleted item's membership tag and re-inserts it at its
// remembered original index without going through the insert cancellation
// logic used by a plain re-Insert.
func (c *collectionNode) undelete(item *node) error {
	di := c.deletedIndex(item)
	if di < 0 {
		return ErrNotDeleted
	}
	originalIdx := c.deleted[di].originalIndex
	c.removeFromDeleted(di)
	item.membership = memberNone
	c.spliceInsert(clampIndex(originalIdx, len(c.items)), item)
	return nil
}

func clampIndex(i, length int) int {
	if i < 0 {
		return 0
	}
	if i > length {
		return length
	}
	return i
}

// isChanged reports whether any item is Added, Deleted, or internally
// Changed — the condition a parent node's internalStatus rolls up through a
// collection child.
func (c *collectionNode) isChanged() bool {
	if len(c.deleted) > 0 {
		return true
	}
	for _, item := range c.items {
		if item.status() != Unchanged {
			return true
		}
	}
	return false
}

func (c *collectionNode) addedItems() []*node {
	var out []*node
	for _, item := range c.items {
		if item.membership == memberAdded {
			out = append(out, item)
		}
	}
	return out
}

func (c *collectionNode) changedItems() []*node {
	var out []*node
	for _, item := range c.items {
		if item.membership == memberNone && item.internalStatus() == Changed {
			out = append(out, item)
		}
	}
	return out
}

func (c *collectionNode) unchangedItems() []*node {
	var out []*node
	for _, item := range c.items {
		if item.membership == memberNone && item.internalStatus() == Unchanged {
			out = append(out, item)
		}
	}
	return out
}

func (c *collectionNode) deletedItems() []*node {
	out := make([]*node, 0, len(c.deleted))
	for _, d := range c.deleted {
		out = append(out, d.item)
	}
	return out
}

// --- C5: transaction coordinator, collection half -------------------------

// accept finalizes every remaining item to Unchanged and drops the deleted
// set permanently, then takes a fresh original snapshot at the current
// order. Items accept their own subtrees first via acceptSelf before the
// collection-level bookkeeping resets.
func (c *collectionNode) accept() {
	for _, item := range c.items {
		item.acceptSelf()
	}
	c.deleted = nil
	c.originalSnapshot = append([]*node(nil), c.items...)
}

// reject restores collection structure first — dropping Added items,
// re-inserting Deleted items at their original index in ascending order —
// then recurses into every surviving item's own rejectSelf, so structural
// restore happens before scalar restore within each item.
func (c *collectionNode) reject() {
	kept := make([]*node, 0, len(c.items))
	for _, item := range c.items {
		if item.membership == memberAdded {
			continue
		}
		kept = append(kept, item)
	}
	c.items = kept

	restored := append([]deletedEntry(nil), c.deleted...)
	for i := 0; i < len(restored); i++ {
		for j := i + 1; j < len(restored); j++ {
			if restored[j].originalIndex < restored[i].originalIndex {
				restored[i], restored[j] = restored[j], restored[i]
			}
		}
	}
	for _, d := range restored {
		idx := clampIndex(d.originalIndex, len(c.items))
		c.items = append(c.items, nil)
		copy(c.items[idx+1:], c.items[idx:])
		c.items[idx] = d.item
		d.item.membership = memberNone
	}
	c.deleted = nil

	for _, item := range c.items {
		item.forcedChanged = false
		item.rejectSelf()
	}
	c.writeBack()
}
