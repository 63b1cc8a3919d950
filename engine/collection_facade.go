package engine

import "reflect"

// Collection is the generic, typed facade over a *collectionNode, mirroring
// Record's relationship to *node: all real C4 logic lives on collectionNode,
// this just gives callers a typed view keyed to E.
type Collection[E Trackable] struct {
	c *collectionNode
}

// Items returns every item currently in the collection (Unchanged, Added,
// and Changed — never Deleted), in order.
func (c *Collection[E]) Items() []*Record[E] {
	out := make([]*Record[E], 0, len(c.c.items))
	for _, item := range c.c.items {
		out = append(out, recordFromNode[E](item))
	}
	return out
}

// Len returns the number of items currently in the collection.
func (c *Collection[E]) Len() int { return len(c.c.items) }

// Insert adds a fresh item at index i, tagging it Added.
func (c *Collection[E]) Insert(i int, v E) (*Record[E], error) {
	n, err := c.c.insertFresh(i, reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return recordFromNode[E](n), nil
}

// InsertTracked inserts an already-tracked item at index i, applying
// cancellation and cross-collection rules based on the item's history:
// re-inserting a just-deleted item cancels the delete, and an item with no
// history in this collection is tagged Added here. Membership is per
// collection: any other collection holding the item is not changed, and
// mutating the item through more than one parent is left to the caller to
// serialize.
func (c *Collection[E]) InsertTracked(i int, item *Record[E]) error {
	return c.c.insertTracked(i, item.n)
}

// Remove removes item from the collection: dropped entirely if it was
// Added, moved to the deleted set (tagged Deleted) otherwise.
func (c *Collection[E]) Remove(item *Record[E]) error {
	return c.c.remove(item.n)
}

// Set replaces the item at index i with a fresh one wrapping v.
func (c *Collection[E]) Set(i int, v E) (*Record[E], error) {
	n, err := c.c.setIndex(i, reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return recordFromNode[E](n), nil
}

// Undelete clears a Deleted item's tag and re-inserts it at its remembered
// original index.
func (c *Collection[E]) Undelete(item *Record[E]) error {
	return c.c.undelete(item.n)
}

// AddedItems returns every item tagged Added.
func (c *Collection[E]) AddedItems() []*Record[E] { return wrapAll[E](c.c.addedItems()) }

// ChangedItems returns every item whose internal state is Changed and that
// carries no Added/Deleted tag.
func (c *Collection[E]) ChangedItems() []*Record[E] { return wrapAll[E](c.c.changedItems()) }

// UnchangedItems returns every item whose internal state is Unchanged and
// that carries no Added/Deleted tag.
func (c *Collection[E]) UnchangedItems() []*Record[E] { return wrapAll[E](c.c.unchangedItems()) }

// DeletedItems returns every item currently in the deleted set.
func (c *Collection[E]) DeletedItems() []*Record[E] { return wrapAll[E](c.c.deletedItems()) }

// IsChanged reports whether any item is Added, Deleted, or internally
// Changed.
func (c *Collection[E]) IsChanged() bool { return c.c.isChanged() }

// AcceptChanges finalizes every item to Unchanged and clears the deleted
// set permanently.
func (c *Collection[E]) AcceptChanges() { c.c.accept() }

// RejectChanges restores collection membership and order to the last
// accepted state, then rejects every surviving item's own scalar and child
// mutations.
func (c *Collection[E]) RejectChanges() { c.c.reject() }

func wrapAll[E Trackable](nodes []*node) []*Record[E] {
	out := make([]*Record[E], 0, len(nodes))
	for _, n := range nodes {
		out = append(out, recordFromNode[E](n))
	}
	return out
}
