package planner

import (
	"strings"

	"github.com/fsmirror/fsmirror/pkg/snapshot"
)

type ActionKind int

const (
	ActionDirCreate ActionKind = iota
	ActionFileCopy
	ActionLinkCreate
	ActionFileRemove
	ActionDirRemove
)

func (k ActionKind) String() string {
	switch k {
	case ActionDirCreate:
		return "mkdir"
	case ActionFileCopy:
		return "copy"
	case ActionLinkCreate:
		return "link"
	case ActionFileRemove:
		return "remove"
	case ActionDirRemove:
		return "rmdir"
	default:
		return "unknown"
	}
}

// IsRemove reports whether the action deletes something from the
// destination rather than creating or overwriting it.
func (k ActionKind) IsRemove() bool {
	return k == ActionFileRemove || k == ActionDirRemove
}

// Action is one filesystem operation of a plan, addressed by the
// slash-separated path relative to both roots.
type Action struct {
	Kind       ActionKind
	Path       string
	Size       int64  // ActionFileCopy only
	LinkTarget string // ActionLinkCreate only
	Reason     string
}

func (a Action) depth() int {
	return strings.Count(a.Path, "/") + 1
}

// Plan is the ordered set of actions that makes the destination tree
// match the source tree. Levels are dependency groups: every action in
// level N must be attempted before level N+1 starts. Removals come
// first, deepest paths first; creations follow, shallowest first.
type Plan struct {
	SourceRoot string
	DestRoot   string
	Levels     [][]Action
	Warnings   []snapshot.Warning
}

// Len returns the total number of actions across all levels.
func (p *Plan) Len() int {
	n := 0
	for _, level := range p.Levels {
		n += len(level)
	}
	return n
}

// Empty reports whether the plan contains no actions.
func (p *Plan) Empty() bool {
	return p.Len() == 0
}

// Actions returns all actions flattened in level order.
func (p *Plan) Actions() []Action {
	out := make([]Action, 0, p.Len())
	for _, level := range p.Levels {
		out = append(out, level...)
	}
	return out
}
