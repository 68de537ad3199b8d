package planner

import (
	"sort"
	"strings"

	"github.com/fsmirror/fsmirror/pkg/snapshot"
)

// Options configures a diff.
type Options struct {
	// DeleteEnabled removes destination entries that have no source
	// counterpart. Off for copy-style runs; kind conflicts are still
	// cleared so the source version can be written.
	DeleteEnabled bool
}

// Diff compares a source snapshot against a destination snapshot and
// returns the plan that makes the destination match the source. Pure:
// it touches no filesystem state.
func Diff(source, dest *snapshot.Snapshot, opts Options) *Plan {
	plan := &Plan{
		SourceRoot: source.Root,
		DestRoot:   dest.Root,
	}

	var adds, removes []Action

	// Paths where the destination holds a different kind. Their
	// destination subtrees must be cleared even when deletes are off.
	conflicts := make(map[string]bool)

	for _, path := range source.Paths() {
		src, _ := source.Lookup(path)
		if src.Err != nil {
			// Cannot safely decide this entry's status.
			plan.Warnings = append(plan.Warnings, snapshot.Warning{Path: path, Err: src.Err})
			continue
		}

		dst, exists := dest.Lookup(path)
		if !exists {
			adds = append(adds, addAction(src, reasonNew(src.Kind)))
			continue
		}

		if src.Kind != dst.Kind {
			conflicts[path] = true
			removes = append(removes, removeAction(dst, "kind changed"))
			adds = append(adds, addAction(src, "kind changed"))
			continue
		}

		switch src.Kind {
		case snapshot.KindFile:
			if reason, same := filesMatch(src, dst); !same {
				adds = append(adds, addAction(src, reason))
			}
		case snapshot.KindSymlink:
			if src.LinkTarget != dst.LinkTarget {
				removes = append(removes, removeAction(dst, "link target changed"))
				adds = append(adds, addAction(src, "link target changed"))
			}
		case snapshot.KindDir:
			// Nothing to do; both sides already have the directory.
		}
	}

	for _, path := range dest.Paths() {
		if _, exists := source.Lookup(path); exists {
			continue
		}
		dst, _ := dest.Lookup(path)
		if opts.DeleteEnabled {
			removes = append(removes, removeAction(dst, "extra entry"))
		} else if underConflict(path, conflicts) {
			removes = append(removes, removeAction(dst, "kind changed"))
		}
	}

	plan.Levels = buildLevels(removes, adds)
	return plan
}

// Removal plans the deletion of every entry in the snapshot,
// children before parents. Used by recursive remove runs.
func Removal(dest *snapshot.Snapshot) *Plan {
	plan := &Plan{DestRoot: dest.Root}

	var removes []Action
	for _, path := range dest.Paths() {
		dst, _ := dest.Lookup(path)
		removes = append(removes, removeAction(dst, "remove target"))
	}

	plan.Levels = buildLevels(removes, nil)
	return plan
}

// filesMatch implements the file equality rule: sizes must match and
// fingerprints must match. A side with no fingerprint (hashing failed)
// never matches, so the copy is re-attempted.
func filesMatch(src, dst *snapshot.Entry) (reason string, same bool) {
	if src.Size != dst.Size {
		return "size differs", false
	}
	if src.Fingerprint == nil || dst.Fingerprint == nil {
		return "content unverified", false
	}
	if !src.Fingerprint.Matches(*dst.Fingerprint) {
		return "content differs", false
	}
	return "", true
}

func addAction(e *snapshot.Entry, reason string) Action {
	a := Action{Path: e.Path, Reason: reason}
	switch e.Kind {
	case snapshot.KindDir:
		a.Kind = ActionDirCreate
	case snapshot.KindSymlink:
		a.Kind = ActionLinkCreate
		a.LinkTarget = e.LinkTarget
	default:
		a.Kind = ActionFileCopy
		a.Size = e.Size
	}
	return a
}

func removeAction(e *snapshot.Entry, reason string) Action {
	a := Action{Path: e.Path, Reason: reason}
	if e.Kind == snapshot.KindDir {
		a.Kind = ActionDirRemove
	} else {
		a.Kind = ActionFileRemove
	}
	return a
}

func reasonNew(kind snapshot.Kind) string {
	switch kind {
	case snapshot.KindDir:
		return "new directory"
	case snapshot.KindSymlink:
		return "new link"
	default:
		return "new file"
	}
}

// underConflict reports whether any ancestor of path is a kind-conflict
// point whose destination subtree must be cleared.
func underConflict(path string, conflicts map[string]bool) bool {
	if len(conflicts) == 0 {
		return false
	}
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '/' && conflicts[path[:i]] {
			return true
		}
	}
	return false
}

// buildLevels partitions actions into dependency levels: removals
// grouped by depth, deepest first, then additions grouped by depth,
// shallowest first. Within a level, actions are sorted by path for
// deterministic output; they carry no ordering requirement at runtime.
func buildLevels(removes, adds []Action) [][]Action {
	var levels [][]Action
	levels = append(levels, groupByDepth(removes, false)...)
	levels = append(levels, groupByDepth(adds, true)...)
	return levels
}

func groupByDepth(actions []Action, shallowFirst bool) [][]Action {
	if len(actions) == 0 {
		return nil
	}

	maxDepth := 0
	for _, a := range actions {
		if d := a.depth(); d > maxDepth {
			maxDepth = d
		}
	}

	byDepth := make([][]Action, maxDepth+1)
	for _, a := range actions {
		d := a.depth()
		byDepth[d] = append(byDepth[d], a)
	}

	var levels [][]Action
	appendLevel := func(level []Action) {
		if len(level) == 0 {
			return
		}
		sort.Slice(level, func(i, j int) bool {
			return strings.Compare(level[i].Path, level[j].Path) < 0
		})
		levels = append(levels, level)
	}

	if shallowFirst {
		for d := 1; d <= maxDepth; d++ {
			appendLevel(byDepth[d])
		}
	} else {
		for d := maxDepth; d >= 1; d-- {
			appendLevel(byDepth[d])
		}
	}
	return levels
}
