package snapshot

import (
	"github.com/fsmirror/fsmirror/pkg/fingerprint"
)

// Kind classifies a filesystem entry.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// Entry is one filesystem object under a root, keyed by its
// slash-separated root-relative path.
type Entry struct {
	Path        string
	Kind        Kind
	Size        int64                    // files only
	Fingerprint *fingerprint.Fingerprint // files only; nil when hashing failed
	LinkTarget  string                   // symlinks only, the literal target string
	Err         error                    // non-nil when the entry could not be read
}

// Warning records a per-entry read failure that did not abort the walk.
type Warning struct {
	Path string
	Err  error
}
