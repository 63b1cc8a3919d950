package engine

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize/english"
)

// Sentinel error kinds surfaced by the tracking engine. Callers should use
// errors.Is against these rather than comparing error strings.
var (
	// ErrAlreadyTracking is returned when a value that already carries
	// tracking state is handed to AsTracked or AsTrackedSlice again.
	ErrAlreadyTracking = errors.New("engine: value is already tracked")
	// ErrUnsupportedContainer is returned when a collection property is not
	// a slice (an array, or anything without insert/remove semantics), or
	// when a tracked collection meets a nil element.
	ErrUnsupportedContainer = errors.New("engine: container type cannot express insert/remove")
	// ErrInvalidCast is returned when a tracked interface is requested from
	// a value that does not carry tracking state.
	ErrInvalidCast = errors.New("engine: value does not carry tracking state")
	// ErrNotDeleted is returned when Undelete is called for an item that is
	// not present in a collection's deleted set.
	ErrNotDeleted = errors.New("engine: item is not in the deleted set")
	// ErrSchemaIneligible is returned when a record type cannot be described
	// by the schema introspector (a cyclic type graph, or an ambiguous
	// untagged struct/slice field).
	ErrSchemaIneligible = errors.New("engine: record type is not eligible for tracking")
)

// RejectionError is returned by AcceptChanges when a Validator vetoes the
// commit. It carries the violations that caused the rejection so the caller
// can render a diagnostic without re-running validation: a typed error
// holding a structured payload rather than just a formatted message.
type RejectionError struct {
	Violations []Violation
}

// Error implements the error interface using a pluralized summary of the
// violation count.
func (e RejectionError) Error() string {
	return fmt.Sprintf("accept blocked by %s", english.Plural(len(e.Violations), "validation violation", "validation violations"))
}

// Violation describes a single structural rule failure reported by a
// Validator hook.
type Violation struct {
	Property string
	Message  string
}
