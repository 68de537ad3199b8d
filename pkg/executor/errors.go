package executor

import "fmt"

// Class names the failure taxonomy of a single action.
type Class string

const (
	ClassDirCreate   Class = "DirCreateError"
	ClassCopy        Class = "CopyError"
	ClassRemove      Class = "RemoveError"
	ClassDirNotEmpty Class = "DirNotEmptyError"
	ClassCanceled    Class = "Canceled"
)

// ActionError is the failure of one plan action. It never aborts the
// run; it is recorded in the summary and independent work continues.
type ActionError struct {
	Class Class
	Path  string
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Class, e.Path, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
