// Package engine implements the change-tracking core: scalar and
// complex-property tracking, collection membership bookkeeping, and the
// accept/reject transaction coordinator described in the design notes this
// package follows.
package engine

// Status classifies the membership or mutation state of a tracked record.
// It forms the lattice used for rollup: Unchanged sits below Changed, while
// Added and Deleted are leaf states that describe membership in a tracked
// collection rather than participating in rollup.
type Status int

const (
	// Unchanged indicates the record matches its original snapshot and, for
	// complex/collection children, that none of them report Changed.
	Unchanged Status = iota
	// Added indicates the record entered a tracked collection after the
	// collection's last accept boundary and has no entry in that
	// collection's original snapshot.
	Added
	// Changed indicates a scalar, complex child, or collection child differs
	// from its original snapshot.
	Changed
	// Deleted indicates the record was removed from a tracked collection
	// since the collection's last accept boundary.
	Deleted
)

// String renders the status as one of its four canonical names.
func (s Status) String() string {
	switch s {
	case Unchanged:
		return "Unchanged"
	case Added:
		return "Added"
	case Changed:
		return "Changed"
	case Deleted:
		return "Deleted"
	default:
		return "Unknown"
	}
}
