package snapshot

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestStoreConcurrentDisjointInserts(t *testing.T) {
	const writers = 16
	const perWriter = 500

	s := newStore()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.insert(&Entry{
					Path: fmt.Sprintf("dir%d/file%d.txt", w, i),
					Kind: KindFile,
					Size: int64(i),
				})
			}
		}(w)
	}
	wg.Wait()

	snap := s.snapshot("/root")
	if snap.Len() != writers*perWriter {
		t.Fatalf("Len() = %d, want %d", snap.Len(), writers*perWriter)
	}

	for w := 0; w < writers; w++ {
		for i := 0; i < perWriter; i++ {
			path := fmt.Sprintf("dir%d/file%d.txt", w, i)
			e, ok := snap.Lookup(path)
			if !ok {
				t.Fatalf("Lookup(%q) missing", path)
			}
			if e.Size != int64(i) {
				t.Fatalf("Lookup(%q).Size = %d, want %d", path, e.Size, i)
			}
		}
	}

	if !sort.StringsAreSorted(snap.Paths()) {
		t.Error("Paths() not sorted")
	}
}

func TestBuildCollectsWarnings(t *testing.T) {
	snap := Build("/root", []*Entry{
		{Path: "ok.txt", Kind: KindFile},
		{Path: "bad.txt", Kind: KindFile, Err: ErrEntryUnreadable},
	})

	if len(snap.Warnings) != 1 {
		t.Fatalf("Warnings = %d, want 1", len(snap.Warnings))
	}
	if snap.Warnings[0].Path != "bad.txt" {
		t.Errorf("warning path = %q, want %q", snap.Warnings[0].Path, "bad.txt")
	}
}
