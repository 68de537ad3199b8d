package planner

import (
	"errors"
	"reflect"
	"testing"

	"github.com/fsmirror/fsmirror/pkg/fingerprint"
	"github.com/fsmirror/fsmirror/pkg/snapshot"
)

func file(path string, size int64, fast uint64) *snapshot.Entry {
	return &snapshot.Entry{
		Path:        path,
		Kind:        snapshot.KindFile,
		Size:        size,
		Fingerprint: &fingerprint.Fingerprint{Fast: fast},
	}
}

func verifiedFile(path string, size int64, fast uint64, secure byte) *snapshot.Entry {
	e := file(path, size, fast)
	e.Fingerprint.Secure = []byte{secure}
	return e
}

func dir(path string) *snapshot.Entry {
	return &snapshot.Entry{Path: path, Kind: snapshot.KindDir}
}

func link(path, target string) *snapshot.Entry {
	return &snapshot.Entry{Path: path, Kind: snapshot.KindSymlink, LinkTarget: target}
}

func unreadable(path string) *snapshot.Entry {
	return &snapshot.Entry{Path: path, Kind: snapshot.KindFile, Err: errors.New("permission denied")}
}

func snap(entries ...*snapshot.Entry) *snapshot.Snapshot {
	return snapshot.Build("/root", entries)
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name   string
		source *snapshot.Snapshot
		dest   *snapshot.Snapshot
		opts   Options
		want   []Action
	}{
		{
			name: "empty destination",
			source: snap(
				dir("a"),
				dir("a/b"),
				file("a/x.txt", 2, 100),
				file("a/b/y.txt", 2, 200),
			),
			dest: snap(),
			opts: Options{DeleteEnabled: true},
			want: []Action{
				{Kind: ActionDirCreate, Path: "a", Reason: "new directory"},
				{Kind: ActionDirCreate, Path: "a/b", Reason: "new directory"},
				{Kind: ActionFileCopy, Path: "a/x.txt", Size: 2, Reason: "new file"},
				{Kind: ActionFileCopy, Path: "a/b/y.txt", Size: 2, Reason: "new file"},
			},
		},
		{
			name:   "identical files need no action with fast hash only",
			source: snap(file("same.txt", 4, 100)),
			dest:   snap(file("same.txt", 4, 100)),
			opts:   Options{DeleteEnabled: true},
			want:   nil,
		},
		{
			name:   "size differs",
			source: snap(file("f.txt", 5, 100)),
			dest:   snap(file("f.txt", 9, 100)),
			opts:   Options{DeleteEnabled: true},
			want: []Action{
				{Kind: ActionFileCopy, Path: "f.txt", Size: 5, Reason: "size differs"},
			},
		},
		{
			name:   "fast hash differs",
			source: snap(file("f.txt", 5, 100)),
			dest:   snap(file("f.txt", 5, 999)),
			opts:   Options{DeleteEnabled: true},
			want: []Action{
				{Kind: ActionFileCopy, Path: "f.txt", Size: 5, Reason: "content differs"},
			},
		},
		{
			name:   "secure hash catches fast collision",
			source: snap(verifiedFile("f.txt", 5, 100, 1)),
			dest:   snap(verifiedFile("f.txt", 5, 100, 2)),
			opts:   Options{DeleteEnabled: true},
			want: []Action{
				{Kind: ActionFileCopy, Path: "f.txt", Size: 5, Reason: "content differs"},
			},
		},
		{
			name:   "destination without fingerprint is re-copied",
			source: snap(file("f.txt", 5, 100)),
			dest:   snap(&snapshot.Entry{Path: "f.txt", Kind: snapshot.KindFile, Size: 5}),
			opts:   Options{DeleteEnabled: true},
			want: []Action{
				{Kind: ActionFileCopy, Path: "f.txt", Size: 5, Reason: "content unverified"},
			},
		},
		{
			name:   "extra entries removed deepest first",
			source: snap(),
			dest: snap(
				dir("old"),
				file("old/data.txt", 3, 7),
			),
			opts: Options{DeleteEnabled: true},
			want: []Action{
				{Kind: ActionFileRemove, Path: "old/data.txt", Reason: "extra entry"},
				{Kind: ActionDirRemove, Path: "old", Reason: "extra entry"},
			},
		},
		{
			name:   "extra entries kept when delete disabled",
			source: snap(file("new.txt", 1, 1)),
			dest:   snap(file("keep.txt", 1, 2)),
			opts:   Options{DeleteEnabled: false},
			want: []Action{
				{Kind: ActionFileCopy, Path: "new.txt", Size: 1, Reason: "new file"},
			},
		},
		{
			name:   "kind change clears subtree even without delete",
			source: snap(file("p", 2, 5)),
			dest: snap(
				dir("p"),
				file("p/child.txt", 1, 9),
			),
			opts: Options{DeleteEnabled: false},
			want: []Action{
				{Kind: ActionFileRemove, Path: "p/child.txt", Reason: "kind changed"},
				{Kind: ActionDirRemove, Path: "p", Reason: "kind changed"},
				{Kind: ActionFileCopy, Path: "p", Size: 2, Reason: "kind changed"},
			},
		},
		{
			name:   "symlink target changed",
			source: snap(link("ln", "new/target")),
			dest:   snap(link("ln", "old/target")),
			opts:   Options{DeleteEnabled: true},
			want: []Action{
				{Kind: ActionFileRemove, Path: "ln", Reason: "link target changed"},
				{Kind: ActionLinkCreate, Path: "ln", LinkTarget: "new/target", Reason: "link target changed"},
			},
		},
		{
			name:   "symlink same target",
			source: snap(link("ln", "target")),
			dest:   snap(link("ln", "target")),
			opts:   Options{DeleteEnabled: true},
			want:   nil,
		},
		{
			name:   "matching directories need no action",
			source: snap(dir("d")),
			dest:   snap(dir("d")),
			opts:   Options{DeleteEnabled: true},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := Diff(tt.source, tt.dest, tt.opts)
			got := plan.Actions()
			if len(got) == 0 {
				got = nil
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Diff() actions = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDiffUnreadableSourceExcluded(t *testing.T) {
	plan := Diff(
		snap(file("good.txt", 1, 1), unreadable("bad.txt")),
		snap(),
		Options{DeleteEnabled: true},
	)

	if len(plan.Warnings) != 1 || plan.Warnings[0].Path != "bad.txt" {
		t.Fatalf("Warnings = %+v, want one for bad.txt", plan.Warnings)
	}
	for _, a := range plan.Actions() {
		if a.Path == "bad.txt" {
			t.Errorf("unreadable entry planned: %+v", a)
		}
	}
}

func TestDiffLevelOrdering(t *testing.T) {
	source := snap(
		dir("a"),
		dir("a/b"),
		dir("a/b/c"),
		file("a/b/c/deep.txt", 1, 1),
		file("top.txt", 1, 2),
	)
	dest := snap(
		dir("gone"),
		dir("gone/sub"),
		file("gone/sub/f.txt", 1, 3),
	)

	plan := Diff(source, dest, Options{DeleteEnabled: true})

	levelOf := make(map[string]int)
	for level, actions := range plan.Levels {
		for _, a := range actions {
			levelOf[a.Kind.String()+" "+a.Path] = level
		}
	}

	// Removals strictly before any creation, children before parents.
	if !(levelOf["remove gone/sub/f.txt"] < levelOf["rmdir gone/sub"]) {
		t.Errorf("file removed after its directory: %v", levelOf)
	}
	if !(levelOf["rmdir gone/sub"] < levelOf["rmdir gone"]) {
		t.Errorf("child dir removed after parent: %v", levelOf)
	}
	if !(levelOf["rmdir gone"] < levelOf["mkdir a"]) {
		t.Errorf("creation before removals finished: %v", levelOf)
	}

	// Creations parent-first.
	if !(levelOf["mkdir a"] < levelOf["mkdir a/b"]) ||
		!(levelOf["mkdir a/b"] < levelOf["mkdir a/b/c"]) ||
		!(levelOf["mkdir a/b/c"] < levelOf["copy a/b/c/deep.txt"]) {
		t.Errorf("creation levels out of order: %v", levelOf)
	}

	// 3 removals plus 5 creations.
	if plan.Len() != 8 {
		t.Errorf("Len() = %d, want 8", plan.Len())
	}
}

func TestRemoval(t *testing.T) {
	plan := Removal(snap(
		dir("a"),
		dir("a/b"),
		file("a/b/f.txt", 1, 1),
		file("a/g.txt", 1, 2),
	))

	// Depth 3 first, then the depth-2 level in path order, then the root
	// of the tree. "a/b" sorts before "a/g.txt"; by then "a/b" is empty.
	want := []Action{
		{Kind: ActionFileRemove, Path: "a/b/f.txt", Reason: "remove target"},
		{Kind: ActionDirRemove, Path: "a/b", Reason: "remove target"},
		{Kind: ActionFileRemove, Path: "a/g.txt", Reason: "remove target"},
		{Kind: ActionDirRemove, Path: "a", Reason: "remove target"},
	}
	if got := plan.Actions(); !reflect.DeepEqual(got, want) {
		t.Errorf("Removal() actions = %+v, want %+v", got, want)
	}
}

func TestPlanEmpty(t *testing.T) {
	plan := Diff(snap(), snap(), Options{DeleteEnabled: true})
	if !plan.Empty() {
		t.Errorf("Empty() = false for no-op diff")
	}
	if plan.Len() != 0 {
		t.Errorf("Len() = %d, want 0", plan.Len())
	}
}
