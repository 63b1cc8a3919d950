package engine

import (
	"reflect"
)

// TrackOption configures a Record or Collection at construction time using
// the functional-options idiom rather than a config struct, since the
// engine has no files or environment to read at startup.
type TrackOption func(*trackConfig)

type trackConfig struct {
	metrics   MetricsRecorder
	validator func(reflect.Value) []Violation
}

// WithMetrics attaches a MetricsRecorder to the resulting Record or
// Collection. Defaults to a no-op recorder.
func WithMetrics(m MetricsRecorder) TrackOption {
	return func(c *trackConfig) { c.metrics = m }
}

// WithValidator attaches a veto hook run by Record.AcceptChanges before it
// commits. validator receives the record's current (mutated) value and
// returns the violations, if any, that should block the commit. On a
// Collection from AsTrackedSlice the hook is attached to each initial item
// and runs only when AcceptChanges is called on that item's Record;
// Collection.AcceptChanges does not run it.
func WithValidator[R Trackable](validator Validator[R]) TrackOption {
	return func(c *trackConfig) {
		c.validator = func(v reflect.Value) []Violation {
			return validator(v.Interface().(R))
		}
	}
}

func resolveOptions(opts []TrackOption) trackConfig {
	cfg := trackConfig{metrics: defaultMetrics}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// AsTrackedSlice wraps values in a Collection, copying each element into
// independently addressable storage the same way AsTracked does for a
// single record. The Go type system already guarantees a slice. A slice
// holding any value that already carries tracking state is rejected with
// ErrAlreadyTracking.
func AsTrackedSlice[E Trackable](values []E, opts ...TrackOption) (*Collection[E], error) {
	for _, v := range values {
		if _, ok := any(v).(nodeHolder); ok {
			return nil, ErrAlreadyTracking
		}
	}
	cfg := resolveOptions(opts)
	elemType := reflect.TypeOf((*E)(nil)).Elem()
	// A top-level tracked slice has no parent struct to own its backing
	// field, unlike a collection reached via CollectionChild. It gets its
	// own addressable storage instead, seeded with values, so writeBack
	// still has somewhere to record structural mutations.
	backing := append([]E(nil), values...)
	field := reflect.ValueOf(&backing).Elem()

	c, err := newCollectionNode(field, elemType)
	if err != nil {
		return nil, err
	}
	c.metrics = cfg.metrics
	for _, item := range c.items {
		item.metrics = cfg.metrics
		item.validator = cfg.validator
	}
	return &Collection[E]{c: c}, nil
}

// AsTrackedWithOptions is AsTracked with functional options applied to the
// resulting Record (a metrics recorder, a validator). AsTracked itself stays
// option-free so the common case reads as a single type-parameterized call.
func AsTrackedWithOptions[R Trackable](value R, opts ...TrackOption) (*Record[R], error) {
	r, err := AsTracked(value)
	if err != nil {
		return nil, err
	}
	cfg := resolveOptions(opts)
	r.n.metrics = cfg.metrics
	r.n.validator = cfg.validator
	return r, nil
}

