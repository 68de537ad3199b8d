package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/fsmirror/fsmirror/pkg/fingerprint"
)

var (
	// ErrRootNotFound means the root path does not exist. Fatal.
	ErrRootNotFound = errors.New("root not found")
	// ErrRootNotReadable means the root exists but cannot be listed,
	// or is not a directory. Fatal.
	ErrRootNotReadable = errors.New("root not readable")
	// ErrEntryUnreadable marks a single entry that could not be read.
	// Recorded on the entry and in the snapshot warnings; never fatal.
	ErrEntryUnreadable = errors.New("entry unreadable")
)

// Options configures one walk. Built once at the boundary and passed in.
type Options struct {
	// Verify computes the secure hash alongside the fast hash.
	Verify bool
	// Excludes are doublestar patterns matched against relative paths.
	Excludes []string
	// Workers caps walk parallelism. Defaults to GOMAXPROCS, at most 32.
	Workers int
}

func (o Options) workerCount() int {
	count := o.Workers
	if count <= 0 {
		count = runtime.GOMAXPROCS(0)
	}
	if count > 32 {
		count = 32
	}
	return count
}

type taskKind int

const (
	taskDir taskKind = iota
	taskFile
)

// task is one independent unit of walk work: either listing a directory
// or fingerprinting a file. Both kinds share the queue so that hashing
// overlaps with unrelated subtree scans.
type task struct {
	kind taskKind
	abs  string
	rel  string // "" for the root directory task
	e    *Entry // nil for the root directory task
}

type walker struct {
	root  string
	opts  Options
	store *store

	queue   chan task
	pending sync.WaitGroup

	mu      sync.Mutex
	rootErr error
}

// Take walks root in parallel and returns its Snapshot. It fails only
// for an unusable root; individual entry failures are recorded as
// warnings on the snapshot.
func Take(root string, opts Options) (*Snapshot, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootNotFound, root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrRootNotReadable, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRootNotReadable, root)
	}
	if _, err := os.ReadDir(absRoot); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootNotReadable, root, err)
	}

	w := &walker{
		root:  absRoot,
		opts:  opts,
		store: newStore(),
		queue: make(chan task, 1024),
	}

	workerCount := opts.workerCount()
	var workers sync.WaitGroup
	workers.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer workers.Done()
			for t := range w.queue {
				switch t.kind {
				case taskDir:
					w.scanDir(t)
				case taskFile:
					w.hashFile(t)
				}
				w.pending.Done()
			}
		}()
	}

	w.pending.Add(1)
	w.queue <- task{kind: taskDir, abs: absRoot}

	// The queue closes once every queued task, including tasks queued
	// by other tasks, has been processed.
	go func() {
		w.pending.Wait()
		close(w.queue)
	}()
	workers.Wait()

	if w.rootErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrRootNotReadable, root, w.rootErr)
	}
	return w.store.snapshot(w.root), nil
}

// enqueue never blocks a worker: if the queue is full the send is
// handed off to a fresh goroutine, so a worker deep in a large tree
// cannot deadlock against its own queue.
func (w *walker) enqueue(t task) {
	w.pending.Add(1)
	select {
	case w.queue <- t:
	default:
		go func() {
			w.queue <- t
		}()
	}
}

func (w *walker) scanDir(t task) {
	dirents, err := os.ReadDir(t.abs)
	if err != nil {
		if t.e == nil {
			// The root vanished or became unreadable mid-walk.
			w.mu.Lock()
			w.rootErr = err
			w.mu.Unlock()
			return
		}
		t.e.Err = fmt.Errorf("%w: read dir: %v", ErrEntryUnreadable, err)
		return
	}

	for _, dirent := range dirents {
		rel := dirent.Name()
		if t.rel != "" {
			rel = path.Join(t.rel, dirent.Name())
		}
		abs := filepath.Join(t.abs, dirent.Name())

		if w.isExcluded(rel) {
			continue
		}

		switch {
		case dirent.IsDir():
			e := &Entry{Path: rel, Kind: KindDir}
			w.store.insert(e)
			w.enqueue(task{kind: taskDir, abs: abs, rel: rel, e: e})

		case dirent.Type()&fs.ModeSymlink != 0:
			e := &Entry{Path: rel, Kind: KindSymlink}
			if target, err := os.Readlink(abs); err != nil {
				e.Err = fmt.Errorf("%w: read link: %v", ErrEntryUnreadable, err)
			} else {
				e.LinkTarget = target
			}
			w.store.insert(e)

		case dirent.Type().IsRegular():
			e := &Entry{Path: rel, Kind: KindFile}
			info, err := dirent.Info()
			if err != nil {
				e.Err = fmt.Errorf("%w: stat: %v", ErrEntryUnreadable, err)
				w.store.insert(e)
				continue
			}
			e.Size = info.Size()
			w.store.insert(e)
			w.enqueue(task{kind: taskFile, abs: abs, rel: rel, e: e})

		default:
			// Devices, sockets and pipes are not mirrored.
		}
	}
}

func (w *walker) hashFile(t task) {
	fp, err := fingerprint.File(t.abs, w.opts.Verify)
	if err != nil {
		t.e.Err = fmt.Errorf("%w: fingerprint: %v", ErrEntryUnreadable, err)
		return
	}
	t.e.Fingerprint = &fp
}

func (w *walker) isExcluded(rel string) bool {
	for _, pattern := range w.opts.Excludes {
		if matched, err := doublestar.Match(pattern, rel); err == nil && matched {
			return true
		}
	}
	return false
}
