package snapshot

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const storeShards = 32

// store is a sharded map from relative path to Entry. Walk workers insert
// disjoint keys concurrently, so each shard only needs its own mutex.
type store struct {
	shards [storeShards]shard
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func newStore() *store {
	s := &store{}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*Entry)
	}
	return s
}

func (s *store) shardFor(path string) *shard {
	return &s.shards[xxhash.Sum64String(path)%storeShards]
}

func (s *store) insert(e *Entry) {
	sh := s.shardFor(e.Path)
	sh.mu.Lock()
	sh.entries[e.Path] = e
	sh.mu.Unlock()
}

// snapshot drains the shards into an immutable Snapshot with paths in
// byte-wise order. Call only after every walk worker has returned.
func (s *store) snapshot(root string) *Snapshot {
	total := 0
	for i := range s.shards {
		total += len(s.shards[i].entries)
	}

	entries := make([]*Entry, 0, total)
	for i := range s.shards {
		for _, e := range s.shards[i].entries {
			entries = append(entries, e)
		}
	}
	return Build(root, entries)
}

// Build assembles a Snapshot from already-collected entries, keyed and
// sorted by relative path. Entries carrying an error become warnings.
func Build(root string, entries []*Entry) *Snapshot {
	snap := &Snapshot{
		Root:    root,
		entries: make(map[string]*Entry, len(entries)),
		paths:   make([]string, 0, len(entries)),
	}
	for _, e := range entries {
		snap.entries[e.Path] = e
		snap.paths = append(snap.paths, e.Path)
	}
	sort.Strings(snap.paths)

	for _, path := range snap.paths {
		if err := snap.entries[path].Err; err != nil {
			snap.Warnings = append(snap.Warnings, Warning{Path: path, Err: err})
		}
	}
	return snap
}

// Snapshot is an immutable point-in-time map of one root's entries.
type Snapshot struct {
	Root     string
	Warnings []Warning

	entries map[string]*Entry
	paths   []string
}

// Lookup returns the entry at the given relative path.
func (s *Snapshot) Lookup(path string) (*Entry, bool) {
	e, ok := s.entries[path]
	return e, ok
}

// Paths returns all relative paths in byte-wise order.
func (s *Snapshot) Paths() []string {
	return s.paths
}

// Len returns the number of entries.
func (s *Snapshot) Len() int {
	return len(s.paths)
}
