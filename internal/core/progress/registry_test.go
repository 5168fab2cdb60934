package progress

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegistry_UpsertTotalFirstWriterWins(t *testing.T) {
	r := NewRegistry()

	if !r.UpsertTotal("a.mp4", 90) {
		t.Fatal("expected first upsert to insert")
	}
	if r.UpsertTotal("a.mp4", 300) {
		t.Fatal("expected second upsert to be ignored")
	}

	e, ok := r.Get("a.mp4")
	if !ok {
		t.Fatal("entry not found")
	}
	if e.TotalSeconds != 90 || e.CurrentSeconds != 0 {
		t.Errorf("got total=%d current=%d, want 90/0", e.TotalSeconds, e.CurrentSeconds)
	}
}

func TestRegistry_AdvanceWithoutEntryIsNoop(t *testing.T) {
	r := NewRegistry()

	if r.Advance("missing.mp4", 10) {
		t.Error("Advance on missing label reported success")
	}
	if r.Len() != 0 {
		t.Errorf("Advance created an entry: len=%d", r.Len())
	}
}

func TestRegistry_AdvanceIsNonDecreasing(t *testing.T) {
	r := NewRegistry()
	r.UpsertTotal("a.mp4", 100)

	r.Advance("a.mp4", 40)
	if r.Advance("a.mp4", 20) {
		t.Error("backwards Advance reported success")
	}
	e, _ := r.Get("a.mp4")
	if e.CurrentSeconds != 40 {
		t.Errorf("current = %d, want 40", e.CurrentSeconds)
	}
}

func TestRegistry_EntriesAreIndependent(t *testing.T) {
	r := NewRegistry()
	r.UpsertTotal("a.mp4", 90)
	r.UpsertTotal("b.mp4", 60)

	r.Advance("a.mp4", 45)

	b, _ := r.Get("b.mp4")
	if b.TotalSeconds != 60 || b.CurrentSeconds != 0 {
		t.Errorf("b mutated: %+v", b)
	}
	a, _ := r.Get("a.mp4")
	if a.Percent() != 50 {
		t.Errorf("a percent = %d, want 50", a.Percent())
	}
}

func TestRegistry_SnapshotIsCopyInInsertionOrder(t *testing.T) {
	r := NewRegistry()
	r.UpsertTotal("z.mp4", 10)
	r.UpsertTotal("a.mp4", 20)

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].Label != "z.mp4" || snap[1].Label != "a.mp4" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	snap[0].CurrentSeconds = 99
	e, _ := r.Get("z.mp4")
	if e.CurrentSeconds != 0 {
		t.Error("mutating the snapshot changed the registry")
	}
}

func TestRegistry_ConcurrentWriters(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			label := fmt.Sprintf("job-%d.mp4", i)
			r.UpsertTotal(label, 1000)
			for s := 0; s <= 1000; s += 10 {
				r.Advance(label, s)
				_ = r.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	for _, e := range r.Snapshot() {
		if e.CurrentSeconds != 1000 {
			t.Errorf("%s current = %d, want 1000", e.Label, e.CurrentSeconds)
		}
	}
}
