package engine

// Validator is the named type WithValidator accepts: a function from a
// record's current value to the violations that should block its next
// AcceptChanges.
type Validator[R Trackable] func(R) []Violation

// Combine merges several Validators into one that runs all of them and
// concatenates their violations, so a caller can compose cross-cutting
// rules (required fields, range checks) without writing one monolithic
// function.
func Combine[R Trackable](validators ...Validator[R]) Validator[R] {
	return func(v R) []Violation {
		var out []Violation
		for _, validate := range validators {
			out = append(out, validate(v)...)
		}
		return out
	}
}
