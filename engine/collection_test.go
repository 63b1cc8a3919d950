package engine_test

import (
	"errors"
	"testing"

	"trackcore/engine"
)

type order struct {
	ID int    `track:"scalar"`
	C  string `track:"scalar"`
}

func tenOrders() []order {
	out := make([]order, 10)
	for i := range out {
		out[i] = order{ID: i, C: string(rune('A' + i))}
	}
	return out
}

func TestCollection_RemoveReinsertSameIndexCancels(t *testing.T) {
	col, err := engine.AsTrackedSlice(tenOrders())
	if err != nil {
		t.Fatalf("AsTrackedSlice: %v", err)
	}

	item := col.Items()[4]
	if err := col.Remove(item); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := col.InsertTracked(4, item); err != nil {
		t.Fatalf("InsertTracked: %v", err)
	}

	if got := item.Status(); got != engine.Unchanged {
		t.Fatalf("status = %v, want Unchanged", got)
	}
	if n := len(col.DeletedItems()); n != 0 {
		t.Fatalf("deleted_items.count = %d, want 0", n)
	}
	if col.IsChanged() {
		t.Fatalf("IsChanged = true, want false")
	}
}

func TestCollection_RemoveReinsertDifferentIndexMutatedItemStaysChanged(t *testing.T) {
	col, err := engine.AsTrackedSlice(tenOrders())
	if err != nil {
		t.Fatalf("AsTrackedSlice: %v", err)
	}

	first := col.Items()[0]
	if err := first.Set("C", "12345"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := col.Remove(first); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := col.InsertTracked(col.Len(), first); err != nil {
		t.Fatalf("InsertTracked at tail: %v", err)
	}

	if got := first.Status(); got != engine.Changed {
		t.Fatalf("status = %v, want Changed", got)
	}
	if n := len(col.DeletedItems()); n != 0 {
		t.Fatalf("deleted_items.count = %d, want 0", n)
	}
}

func TestCollection_RejectRestoresDeletedToOriginalIndex(t *testing.T) {
	col, err := engine.AsTrackedSlice(tenOrders())
	if err != nil {
		t.Fatalf("AsTrackedSlice: %v", err)
	}
	removed := col.Items()[4]

	if err := col.Remove(removed); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	col.RejectChanges()

	if got := col.Len(); got != 10 {
		t.Fatalf("Len after reject = %d, want 10", got)
	}
	if col.Items()[4] != removed {
		t.Fatalf("item at index 4 after reject is not the removed item")
	}
	if col.IsChanged() {
		t.Fatalf("IsChanged after reject = true, want false")
	}
}

func TestCollection_AddedItemRemovedNeverAppearsInDeleted(t *testing.T) {
	col, err := engine.AsTrackedSlice([]order{{ID: 1, C: "A"}})
	if err != nil {
		t.Fatalf("AsTrackedSlice: %v", err)
	}

	added, err := col.Insert(1, order{ID: 2, C: "B"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if got := added.Status(); got != engine.Added {
		t.Fatalf("status = %v, want Added", got)
	}

	if err := col.Remove(added); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for _, d := range col.DeletedItems() {
		if d == added {
			t.Fatalf("removed Added item appeared in DeletedItems")
		}
	}
	if n := len(col.DeletedItems()); n != 0 {
		t.Fatalf("deleted_items.count = %d, want 0", n)
	}
}

func TestCollection_ItemPartitionsAreDisjoint(t *testing.T) {
	col, err := engine.AsTrackedSlice(tenOrders())
	if err != nil {
		t.Fatalf("AsTrackedSlice: %v", err)
	}
	col.Items()[0].Set("C", "mutated")
	col.Insert(col.Len(), order{ID: 99, C: "new"})

	added := map[*engine.Record[order]]bool{}
	for _, it := range col.AddedItems() {
		added[it] = true
	}
	changed := map[*engine.Record[order]]bool{}
	for _, it := range col.ChangedItems() {
		changed[it] = true
	}
	unchanged := map[*engine.Record[order]]bool{}
	for _, it := range col.UnchangedItems() {
		unchanged[it] = true
	}

	for it := range added {
		if changed[it] {
			t.Fatalf("item is in both added and changed")
		}
	}
	for it := range changed {
		if unchanged[it] {
			t.Fatalf("item is in both changed and unchanged")
		}
	}

	total := len(added) + len(changed) + len(unchanged)
	if total != col.Len() {
		t.Fatalf("partition covers %d items, want %d", total, col.Len())
	}
}

func TestCollection_UndeleteRestoresDerivedStatus(t *testing.T) {
	col, _ := engine.AsTrackedSlice(tenOrders())
	item := col.Items()[2]
	col.Remove(item)

	if err := col.Undelete(item); err != nil {
		t.Fatalf("Undelete: %v", err)
	}
	if got := item.Status(); got != engine.Unchanged {
		t.Fatalf("status after undelete = %v, want Unchanged", got)
	}

	if err := col.Undelete(item); !errors.Is(err, engine.ErrNotDeleted) {
		t.Fatalf("second Undelete error = %v, want ErrNotDeleted", err)
	}
}

func TestAsTrackedSlice_RejectsDoubleInsertOfSameItem(t *testing.T) {
	col, _ := engine.AsTrackedSlice([]order{{ID: 1}})
	item := col.Items()[0]
	col.Remove(item)

	if err := col.InsertTracked(0, item); err != nil {
		t.Fatalf("InsertTracked: %v", err)
	}
	if err := col.InsertTracked(0, item); !errors.Is(err, engine.ErrAlreadyTracking) {
		t.Fatalf("second InsertTracked error = %v, want ErrAlreadyTracking", err)
	}
}
