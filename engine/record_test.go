package engine_test

import (
	"testing"

	"trackcore/engine"
)

type widget struct {
	ID    int    `track:"scalar"`
	Name  string `track:"scalar"`
	Notes string `track:"scalar"`
}

type gadget struct {
	ID    int     `track:"scalar"`
	Label string  `track:"scalar"`
	Inner *widget `track:"complex"`
}

func TestRecord_ScalarRevertToUnchanged(t *testing.T) {
	r, err := engine.AsTracked(widget{ID: 1, Name: "A"})
	if err != nil {
		t.Fatalf("AsTracked: %v", err)
	}

	if err := r.Set("Name", "X"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := r.Status(); got != engine.Changed {
		t.Fatalf("status after first set = %v, want Changed", got)
	}

	orig, ok := r.OriginalValue("Name")
	if !ok || orig != "A" {
		t.Fatalf("OriginalValue = %v, %v, want \"A\", true", orig, ok)
	}

	if err := r.Set("Name", orig); err != nil {
		t.Fatalf("Set back: %v", err)
	}
	if got := r.Status(); got != engine.Unchanged {
		t.Fatalf("status after revert = %v, want Unchanged", got)
	}
}

func TestRecord_AcceptChangesClearsOriginal(t *testing.T) {
	r, _ := engine.AsTracked(widget{ID: 1, Name: "A"})
	r.Set("Name", "B")

	if err := r.AcceptChanges(); err != nil {
		t.Fatalf("AcceptChanges: %v", err)
	}
	if got := r.Status(); got != engine.Unchanged {
		t.Fatalf("status after accept = %v, want Unchanged", got)
	}
	if _, ok := r.OriginalValue("Name"); ok {
		t.Fatalf("OriginalValue still captured after accept")
	}

	// A second call with no intervening mutation is a no-op.
	if err := r.AcceptChanges(); err != nil {
		t.Fatalf("second AcceptChanges: %v", err)
	}
	if got := r.Status(); got != engine.Unchanged {
		t.Fatalf("status after second accept = %v, want Unchanged", got)
	}
}

func TestRecord_RejectChangesRestoresScalars(t *testing.T) {
	r, _ := engine.AsTracked(widget{ID: 1, Name: "A", Notes: "n"})
	r.Set("Name", "B")
	r.Set("Notes", "m")

	r.RejectChanges()

	if got := r.Status(); got != engine.Unchanged {
		t.Fatalf("status after reject = %v, want Unchanged", got)
	}
	v := r.Value()
	if v.Name != "A" || v.Notes != "n" {
		t.Fatalf("value after reject = %+v, want Name=A Notes=n", v)
	}

	// A second call with no intervening mutation is a no-op.
	r.RejectChanges()
	if got := r.Status(); got != engine.Unchanged {
		t.Fatalf("status after second reject = %v, want Unchanged", got)
	}
}

func TestRecord_ComplexChildRollup(t *testing.T) {
	r, err := engine.AsTracked(gadget{ID: 1, Label: "g", Inner: &widget{ID: 2, Name: "inner"}})
	if err != nil {
		t.Fatalf("AsTracked: %v", err)
	}

	inner, err := engine.ComplexChild[widget](r, "Inner")
	if err != nil {
		t.Fatalf("ComplexChild: %v", err)
	}
	if inner == nil {
		t.Fatalf("ComplexChild returned nil for a non-nil pointer field")
	}

	if err := inner.Set("Name", "changed"); err != nil {
		t.Fatalf("Set on child: %v", err)
	}

	if got := r.Status(); got != engine.Changed {
		t.Fatalf("parent status = %v, want Changed (rollup from complex child)", got)
	}

	r.RejectChanges()
	if got := r.Status(); got != engine.Unchanged {
		t.Fatalf("parent status after reject = %v, want Unchanged", got)
	}
	if got := inner.Status(); got != engine.Unchanged {
		t.Fatalf("child status after parent reject = %v, want Unchanged", got)
	}
	if r.Value().Inner.Name != "inner" {
		t.Fatalf("child scalar not restored: got %q", r.Value().Inner.Name)
	}
}

func TestRecord_NilComplexChildStaysNilUntilSet(t *testing.T) {
	r, _ := engine.AsTracked(gadget{ID: 1, Label: "g"})

	inner, err := engine.ComplexChild[widget](r, "Inner")
	if err != nil {
		t.Fatalf("ComplexChild: %v", err)
	}
	if inner != nil {
		t.Fatalf("ComplexChild on nil pointer field returned non-nil")
	}

	if err := r.SetComplex("Inner", widget{ID: 3, Name: "fresh"}); err != nil {
		t.Fatalf("SetComplex: %v", err)
	}
	inner, err = engine.ComplexChild[widget](r, "Inner")
	if err != nil {
		t.Fatalf("ComplexChild after set: %v", err)
	}
	if inner == nil || inner.Value().Name != "fresh" {
		t.Fatalf("ComplexChild after set = %+v", inner)
	}
}

func TestCast_RecoversTypedRecordFromComplexPropertyTrackables(t *testing.T) {
	r, _ := engine.AsTracked(gadget{ID: 1, Label: "g", Inner: &widget{ID: 2, Name: "inner"}})

	children, err := r.ComplexPropertyTrackables()
	if err != nil {
		t.Fatalf("ComplexPropertyTrackables: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("got %d complex children, want 1", len(children))
	}
	if children[0].Status() != engine.Unchanged {
		t.Fatalf("child status = %v, want Unchanged", children[0].Status())
	}
	if _, err := engine.Cast[*engine.UntypedRecord](children[0]); err != nil {
		t.Fatalf("Cast: %v", err)
	}
}
