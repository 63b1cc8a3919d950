package engine

// ChangeSet is a point-in-time snapshot of everything that differs from a
// record's last accepted state, across its whole subtree. It exists for
// callers that want to render or log a diff without walking the Record API
// themselves.
type ChangeSet struct {
	Status      Status
	Scalars     []FieldChange
	Complex     map[string]*ChangeSet
	Collections map[string]*CollectionChangeSet
}

// FieldChange describes one scalar property's pre- and post-mutation value.
type FieldChange struct {
	Property string
	Before   any
	After    any
}

// CollectionChangeSet summarizes one collection property's membership
// changes and the ChangeSet of every item that is itself Changed.
type CollectionChangeSet struct {
	Added   int
	Deleted int
	Changed map[int]*ChangeSet
}

// Snapshot builds a ChangeSet for this record's subtree.
func (r *Record[R]) Snapshot() *ChangeSet {
	return snapshotNode(r.n)
}

func snapshotNode(n *node) *ChangeSet {
	cs := &ChangeSet{Status: n.status()}

	for name, prior := range n.original {
		fd := n.descriptor.ByName[name]
		cs.Scalars = append(cs.Scalars, FieldChange{
			Property: name,
			Before:   prior,
			After:    n.value.Field(fd.Index).Interface(),
		})
	}

	for name, child := range n.complexChildren {
		if child == nil {
			continue
		}
		if childCS := snapshotNode(child); childCS.Status != Unchanged {
			if cs.Complex == nil {
				cs.Complex = make(map[string]*ChangeSet)
			}
			cs.Complex[name] = childCS
		}
	}

	for name, child := range n.collectionChildren {
		if child == nil || !child.isChanged() {
			continue
		}
		if cs.Collections == nil {
			cs.Collections = make(map[string]*CollectionChangeSet)
		}
		cs.Collections[name] = snapshotCollection(child)
	}

	return cs
}

// snapshotCollection builds a CollectionChangeSet for a collectionNode,
// shared by a complex record's own collection-property snapshot (above) and
// Collection.Snapshot for a top-level tracked slice with no parent record to
// snapshot through.
func snapshotCollection(c *collectionNode) *CollectionChangeSet {
	ccs := &CollectionChangeSet{
		Added:   len(c.addedItems()),
		Deleted: len(c.deletedItems()),
	}
	for i, item := range c.items {
		if item.status() == Changed {
			if ccs.Changed == nil {
				ccs.Changed = make(map[int]*ChangeSet)
			}
			ccs.Changed[i] = snapshotNode(item)
		}
	}
	return ccs
}

// Snapshot builds a CollectionChangeSet for this collection: its Added and
// Deleted membership counts and the ChangeSet of every item that is itself
// Changed. Unlike Record.Snapshot, there is no parent record to snapshot
// through for a top-level tracked slice from AsTrackedSlice, so this is the
// only way to get a diff of one.
func (c *Collection[E]) Snapshot() *CollectionChangeSet {
	return snapshotCollection(c.c)
}

// Walk visits every node in a record's subtree, depth-first, calling visit
// with each node's current value and status.
func (r *Record[R]) Walk(visit func(value any, status Status)) {
	walkNode(r.n, visit)
}

// Walk visits every item in this collection, depth-first through each
// item's own complex/collection children, including items in the deleted
// set (mirroring walkNode's own descent into a collection child).
func (c *Collection[E]) Walk(visit func(value any, status Status)) {
	for _, item := range c.c.items {
		walkNode(item, visit)
	}
	for _, d := range c.c.deleted {
		walkNode(d.item, visit)
	}
}

func walkNode(n *node, visit func(value any, status Status)) {
	visit(n.value.Interface(), n.status())
	for _, child := range n.complexChildren {
		if child != nil {
			walkNode(child, visit)
		}
	}
	for _, child := range n.collectionChildren {
		if child == nil {
			continue
		}
		for _, item := range child.items {
			walkNode(item, visit)
		}
		for _, d := range child.deleted {
			walkNode(d.item, visit)
		}
	}
}
