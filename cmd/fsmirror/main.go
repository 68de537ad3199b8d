package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fsmirror/fsmirror/pkg/executor"
	"github.com/fsmirror/fsmirror/pkg/logger"
	"github.com/fsmirror/fsmirror/pkg/planner"
	"github.com/fsmirror/fsmirror/pkg/snapshot"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	verify         bool
	dryRun         bool
	noDelete       bool
	quiet          bool
	verbose        bool
	sequential     bool
	workers        int
	excludes       []string
	planJSONFile   string
	resultJSONFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fsmirror",
		Short: "Parallel directory mirroring tool",
		Long: `fsmirror makes a destination directory tree exactly match a source
tree, hashing and copying files in parallel and performing only the
operations that are actually needed.`,
		Version:       fmt.Sprintf("%s (commit: %s, built at: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&verify, "verify", false, "Compare files with a cryptographic hash in addition to the fast hash")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dryrun", false, "Show operations without executing them")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Print one line per operation")
	rootCmd.PersistentFlags().BoolVar(&sequential, "sequential", false, "Run with a single worker")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "Number of concurrent workers (default: number of CPUs)")
	rootCmd.PersistentFlags().StringSliceVar(&excludes, "exclude", nil, "Exclude patterns (multiple allowed)")
	rootCmd.PersistentFlags().StringVar(&planJSONFile, "plan-json-file", "", "Path to output the plan as a JSON file")
	rootCmd.PersistentFlags().StringVar(&resultJSONFile, "result-json-file", "", "Path to output the result as a JSON file")

	syncCmd := &cobra.Command{
		Use:   "sync <SOURCE> <DESTINATION>",
		Short: "Make destination match source, removing extra entries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(args[0], args[1], !noDelete)
		},
	}
	syncCmd.Flags().BoolVar(&noDelete, "nodelete", false, "Do not remove destination entries missing from source")

	cpCmd := &cobra.Command{
		Use:   "cp <SOURCE> <DESTINATION>",
		Short: "Copy source into destination, keeping extra destination entries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMirror(args[0], args[1], false)
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm <TARGET>...",
		Short: "Remove target directories recursively, in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemove(args)
		},
	}

	rootCmd.AddCommand(syncCmd, cpCmd, rmCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() logger.Logger {
	if quiet {
		return &logger.QuietLogger{}
	}
	// Dry runs always list the operations; that is their whole point.
	return &logger.SyncLogger{IsDryRun: dryRun, Verbose: verbose || dryRun}
}

func workerCount() int {
	if sequential {
		return 1
	}
	return workers
}

func runMirror(source, dest string, deleteEnabled bool) error {
	lg := newLogger()

	// The destination is created up front so an empty or missing
	// destination is an ordinary empty snapshot, not a fatal error.
	if !dryRun {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("create destination: %w", err)
		}
	}

	walkOpts := snapshot.Options{
		Verify:   verify,
		Excludes: excludes,
		Workers:  workerCount(),
	}

	var srcSnap, dstSnap *snapshot.Snapshot
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		var err error
		srcSnap, err = snapshot.Take(source, walkOpts)
		if err != nil {
			return fmt.Errorf("scan source: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		dstSnap, err = snapshot.Take(dest, walkOpts)
		if err != nil {
			if dryRun && errors.Is(err, snapshot.ErrRootNotFound) {
				dstSnap = snapshot.Build(dest, nil)
				return nil
			}
			return fmt.Errorf("scan destination: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for _, w := range dstSnap.Warnings {
		lg.Warn("destination entry skipped: %s: %v", w.Path, w.Err)
	}

	plan := planner.Diff(srcSnap, dstSnap, planner.Options{DeleteEnabled: deleteEnabled})
	for _, w := range plan.Warnings {
		lg.Warn("source entry skipped: %s: %v", w.Path, w.Err)
	}

	if planJSONFile != "" {
		if err := writeJSON(planJSONFile, planDocument(plan)); err != nil {
			return fmt.Errorf("write plan JSON: %w", err)
		}
	}

	summary := executor.Run(context.Background(), plan, executor.Options{
		Workers: workerCount(),
		DryRun:  dryRun,
		Sink:    &logSink{lg: lg, plan: plan},
	})

	if resultJSONFile != "" {
		if err := writeJSON(resultJSONFile, resultDocument(summary)); err != nil {
			return fmt.Errorf("write result JSON: %w", err)
		}
	}

	printSummary(lg, summary)

	if !summary.Ok() {
		return fmt.Errorf("%d of %d actions failed", summary.Failed.Total(), plan.Len())
	}
	return nil
}

func runRemove(targets []string) error {
	lg := newLogger()
	failed := 0

	for _, target := range targets {
		snap, err := snapshot.Take(target, snapshot.Options{
			Excludes: excludes,
			Workers:  workerCount(),
		})
		if err != nil {
			lg.Error("scan", target, err)
			failed++
			continue
		}

		plan := planner.Removal(snap)
		summary := executor.Run(context.Background(), plan, executor.Options{
			Workers: workerCount(),
			DryRun:  dryRun,
			Sink:    &logSink{lg: lg, plan: plan},
		})
		printSummary(lg, summary)

		if !summary.Ok() {
			failed += summary.Failed.Total()
			continue
		}
		// The target directory itself goes last, unless excludes kept
		// some of its contents alive.
		if !dryRun && len(excludes) == 0 {
			if err := os.Remove(target); err != nil {
				lg.Error("remove", target, err)
				failed++
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d removals failed", failed)
	}
	return nil
}

func printSummary(lg logger.Logger, s *executor.Summary) {
	lg.Info("created %d dirs, copied %d files (%s), linked %d, removed %d entries, %d failed in %s",
		s.Done.DirsCreated,
		s.Done.FilesCopied,
		formatBytes(s.BytesCopied),
		s.Done.LinksCreated,
		s.Done.FilesRemoved+s.Done.DirsRemoved,
		s.Failed.Total(),
		s.Duration.Round(time.Millisecond))
}

// logSink forwards completed-action events to the logger.
type logSink struct {
	lg   logger.Logger
	plan *planner.Plan
}

func (s *logSink) ActionDone(a planner.Action, err error) {
	if err != nil {
		s.lg.Error(a.Kind.String(), a.Path, err)
		return
	}
	switch a.Kind {
	case planner.ActionDirCreate:
		s.lg.CreateDir(a.Path)
	case planner.ActionFileCopy:
		s.lg.CopyFile(
			filepath.Join(s.plan.SourceRoot, filepath.FromSlash(a.Path)),
			filepath.Join(s.plan.DestRoot, filepath.FromSlash(a.Path)))
	case planner.ActionLinkCreate:
		s.lg.Symlink(a.Path, a.LinkTarget)
	case planner.ActionFileRemove, planner.ActionDirRemove:
		s.lg.Remove(a.Path)
	}
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
