package main

import (
	"github.com/fsmirror/fsmirror/pkg/executor"
	"github.com/fsmirror/fsmirror/pkg/planner"
)

// PlanDocument is the JSON shape written by --plan-json-file.
type PlanDocument struct {
	Actions []PlanAction `json:"actions"`
	Summary PlanSummary  `json:"summary"`
}

type PlanAction struct {
	Action string `json:"action"`
	Path   string `json:"path"`
	Target string `json:"target,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Reason string `json:"reason"`
	Level  int    `json:"level"`
}

type PlanSummary struct {
	DirCreates  int `json:"dir_creates"`
	FileCopies  int `json:"file_copies"`
	LinkCreates int `json:"link_creates"`
	FileRemoves int `json:"file_removes"`
	DirRemoves  int `json:"dir_removes"`
}

// ResultDocument is the JSON shape written by --result-json-file.
type ResultDocument struct {
	Summary ResultSummary `json:"summary"`
	Errors  []ResultError `json:"errors"`
}

type ResultSummary struct {
	DirsCreated  int   `json:"dirs_created"`
	FilesCopied  int   `json:"files_copied"`
	LinksCreated int   `json:"links_created"`
	FilesRemoved int   `json:"files_removed"`
	DirsRemoved  int   `json:"dirs_removed"`
	Failed       int   `json:"failed"`
	BytesCopied  int64 `json:"bytes_copied"`
	DurationMs   int64 `json:"duration_ms"`
}

type ResultError struct {
	Action string `json:"action"`
	Path   string `json:"path"`
	Error  string `json:"error"`
}

func planDocument(plan *planner.Plan) PlanDocument {
	doc := PlanDocument{Actions: []PlanAction{}}

	for level, actions := range plan.Levels {
		for _, a := range actions {
			doc.Actions = append(doc.Actions, PlanAction{
				Action: a.Kind.String(),
				Path:   a.Path,
				Target: a.LinkTarget,
				Size:   a.Size,
				Reason: a.Reason,
				Level:  level,
			})

			switch a.Kind {
			case planner.ActionDirCreate:
				doc.Summary.DirCreates++
			case planner.ActionFileCopy:
				doc.Summary.FileCopies++
			case planner.ActionLinkCreate:
				doc.Summary.LinkCreates++
			case planner.ActionFileRemove:
				doc.Summary.FileRemoves++
			case planner.ActionDirRemove:
				doc.Summary.DirRemoves++
			}
		}
	}
	return doc
}

func resultDocument(s *executor.Summary) ResultDocument {
	doc := ResultDocument{
		Summary: ResultSummary{
			DirsCreated:  s.Done.DirsCreated,
			FilesCopied:  s.Done.FilesCopied,
			LinksCreated: s.Done.LinksCreated,
			FilesRemoved: s.Done.FilesRemoved,
			DirsRemoved:  s.Done.DirsRemoved,
			Failed:       s.Failed.Total(),
			BytesCopied:  s.BytesCopied,
			DurationMs:   s.Duration.Milliseconds(),
		},
		Errors: []ResultError{},
	}

	for _, f := range s.Failures {
		doc.Errors = append(doc.Errors, ResultError{
			Action: f.Action.Kind.String(),
			Path:   f.Action.Path,
			Error:  f.Err.Error(),
		})
	}
	return doc
}
