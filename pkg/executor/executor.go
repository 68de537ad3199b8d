package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/fsmirror/fsmirror/pkg/planner"
)

const copyBufferSize = 64 * 1024

// EventSink receives one event per finished action. Implementations
// must tolerate concurrent calls from multiple workers; the scheduler
// never blocks or retries based on the sink's behavior.
type EventSink interface {
	ActionDone(action planner.Action, err error)
}

// Options configures one execution run.
type Options struct {
	// Workers caps concurrency within a dependency level.
	// Defaults to GOMAXPROCS.
	Workers int
	// DryRun attempts nothing: every action is reported and counted
	// as it would be, with no filesystem writes.
	DryRun bool
	// Sink, when set, is invoked once per finished action.
	Sink EventSink
}

// Result pairs an action with its outcome.
type Result struct {
	Action planner.Action
	Err    error
}

// Counts tallies actions per kind.
type Counts struct {
	DirsCreated  int
	FilesCopied  int
	LinksCreated int
	FilesRemoved int
	DirsRemoved  int
}

func (c *Counts) add(kind planner.ActionKind) {
	switch kind {
	case planner.ActionDirCreate:
		c.DirsCreated++
	case planner.ActionFileCopy:
		c.FilesCopied++
	case planner.ActionLinkCreate:
		c.LinksCreated++
	case planner.ActionFileRemove:
		c.FilesRemoved++
	case planner.ActionDirRemove:
		c.DirsRemoved++
	}
}

// Total returns the sum over all kinds.
func (c Counts) Total() int {
	return c.DirsCreated + c.FilesCopied + c.LinksCreated + c.FilesRemoved + c.DirsRemoved
}

// Summary is the aggregated outcome of executing a plan. Immutable
// once Run returns.
type Summary struct {
	Done        Counts
	Failed      Counts
	BytesCopied int64
	Failures    []Result
	Duration    time.Duration
}

// Ok reports whether every action succeeded.
func (s *Summary) Ok() bool {
	return len(s.Failures) == 0
}

// Run executes every plan action exactly once and returns the Summary.
// Dependency levels run strictly in order; actions within a level run
// in any interleaving across a bounded worker pool. A single action's
// failure never aborts the run.
func Run(ctx context.Context, plan *planner.Plan, opts Options) *Summary {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	start := time.Now()
	summary := &Summary{}
	var mu sync.Mutex
	sem := make(chan struct{}, workers)

	for _, level := range plan.Levels {
		var wg sync.WaitGroup
		for _, action := range level {
			wg.Add(1)
			go func(a planner.Action) {
				defer wg.Done()

				sem <- struct{}{}
				defer func() { <-sem }()

				err := runAction(ctx, plan, a, opts.DryRun)

				if opts.Sink != nil {
					opts.Sink.ActionDone(a, err)
				}

				mu.Lock()
				if err != nil {
					summary.Failed.add(a.Kind)
					summary.Failures = append(summary.Failures, Result{Action: a, Err: err})
				} else {
					summary.Done.add(a.Kind)
					if a.Kind == planner.ActionFileCopy {
						summary.BytesCopied += a.Size
					}
				}
				mu.Unlock()
			}(action)
		}
		wg.Wait()
	}

	summary.Duration = time.Since(start)
	return summary
}

func runAction(ctx context.Context, plan *planner.Plan, a planner.Action, dryRun bool) error {
	if err := ctx.Err(); err != nil {
		return &ActionError{Class: ClassCanceled, Path: a.Path, Err: err}
	}
	if dryRun {
		return nil
	}

	dst := filepath.Join(plan.DestRoot, filepath.FromSlash(a.Path))

	switch a.Kind {
	case planner.ActionDirCreate:
		return createDir(dst, a.Path)
	case planner.ActionFileCopy:
		src := filepath.Join(plan.SourceRoot, filepath.FromSlash(a.Path))
		return copyFile(src, dst, a.Path)
	case planner.ActionLinkCreate:
		if err := os.Symlink(a.LinkTarget, dst); err != nil {
			return &ActionError{Class: ClassCopy, Path: a.Path, Err: err}
		}
		return nil
	case planner.ActionFileRemove:
		if err := os.Remove(dst); err != nil {
			return &ActionError{Class: ClassRemove, Path: a.Path, Err: err}
		}
		return nil
	case planner.ActionDirRemove:
		return removeDir(dst, a.Path)
	default:
		return &ActionError{Class: ClassCopy, Path: a.Path, Err: fmt.Errorf("unknown action kind %d", a.Kind)}
	}
}

// createDir is idempotent for an existing directory and fails when the
// path is occupied by anything else.
func createDir(dst, rel string) error {
	if info, err := os.Lstat(dst); err == nil {
		if info.IsDir() {
			return nil
		}
		return &ActionError{Class: ClassDirCreate, Path: rel, Err: fmt.Errorf("exists and is not a directory")}
	}
	if err := os.Mkdir(dst, 0o755); err != nil {
		return &ActionError{Class: ClassDirCreate, Path: rel, Err: err}
	}
	return nil
}

// copyFile streams source bytes into the destination. The destination
// holds the new content only once the copy completes; on failure a
// partially written destination is left behind and the action is
// recorded as failed.
func copyFile(src, dst, rel string) error {
	in, err := os.Open(src)
	if err != nil {
		return &ActionError{Class: ClassCopy, Path: rel, Err: fmt.Errorf("open source: %w", err)}
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return &ActionError{Class: ClassCopy, Path: rel, Err: fmt.Errorf("stat source: %w", err)}
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return &ActionError{Class: ClassCopy, Path: rel, Err: fmt.Errorf("open destination: %w", err)}
	}

	buffer := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(out, in, buffer); err != nil {
		out.Close()
		return &ActionError{Class: ClassCopy, Path: rel, Err: fmt.Errorf("copy: %w", err)}
	}
	if err := out.Close(); err != nil {
		return &ActionError{Class: ClassCopy, Path: rel, Err: fmt.Errorf("close destination: %w", err)}
	}
	return nil
}

// removeDir distinguishes a still-populated directory, which means
// child removals at a deeper level did not all succeed, from other
// removal failures. Ordering violations therefore self-detect.
func removeDir(dst, rel string) error {
	err := os.Remove(dst)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EEXIST) {
		return &ActionError{Class: ClassDirNotEmpty, Path: rel, Err: err}
	}
	return &ActionError{Class: ClassRemove, Path: rel, Err: err}
}
