// Package core demonstrates the tracking engine against a small Orders /
// OrderDetails domain, the example model used throughout the engine's own
// test scenarios.
package core

import "trackcore/engine"

// Order is a tracked aggregate root with a nested collection of details.
type Order struct {
	ID      int           `track:"scalar"`
	Code    string        `track:"scalar"`
	Details []OrderDetail `track:"collection"`
}

// OrderDetail is a tracked line item belonging to an Order's Details
// collection.
type OrderDetail struct {
	ID       int    `track:"scalar"`
	SKU      string `track:"scalar"`
	Quantity int    `track:"scalar"`
}

// TrackedOrder bundles a Record[Order] with a typed handle on its Details
// collection, so callers don't have to call CollectionChild themselves on
// every access.
type TrackedOrder struct {
	Record  *engine.Record[Order]
	Details *engine.Collection[OrderDetail]
}

// Track wraps a plain Order, materializing its Details collection eagerly
// since almost every caller needs it immediately.
func Track(o Order, opts ...engine.TrackOption) (*TrackedOrder, error) {
	r, err := engine.AsTrackedWithOptions(o, opts...)
	if err != nil {
		return nil, err
	}
	details, err := engine.CollectionChild[OrderDetail](r, "Details")
	if err != nil {
		return nil, err
	}
	return &TrackedOrder{Record: r, Details: details}, nil
}

// MoveDetail removes a detail from one order's Details collection and
// inserts it at the tail of another's, the tracked-engine realization of
// the "move across sibling collections" scenario: the item is tagged Added
// in the destination while the source is untouched until its own Remove
// completes.
func MoveDetail(from, to *TrackedOrder, detail *engine.Record[OrderDetail]) error {
	if err := from.Details.Remove(detail); err != nil {
		return err
	}
	return to.Details.InsertTracked(to.Details.Len(), detail)
}
