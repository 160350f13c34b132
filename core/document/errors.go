package document

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycle is returned when attaching a document would make it its own ancestor.
	ErrCycle = errors.New("tapestry: document graph cycle")

	// ErrAlreadyAttached is returned when assimilating a child that already has a parent.
	ErrAlreadyAttached = errors.New("tapestry: document already attached to a parent")

	// ErrNotEmbedded is returned when the association name does not refer to an
	// embedded association of the parent type.
	ErrNotEmbedded = errors.New("tapestry: not an embedded association")

	// ErrTypeMismatch is returned when assimilating a document whose type is
	// not the target type of the association, or one of its subtypes.
	ErrTypeMismatch = errors.New("tapestry: document type does not match association target")

	// ErrNotAttached is returned when removing a child from a document that is not its parent.
	ErrNotAttached = errors.New("tapestry: document not attached to this parent")

	// ErrIdentityImmutable is returned when writing the id of a persisted document.
	ErrIdentityImmutable = errors.New("tapestry: identity of a persisted document is immutable")
)

// Issue codes recorded by validation rules.
const (
	IssueTaken        = "taken"
	IssueBlank        = "blank"
	IssueTypeMismatch = "type_mismatch"
)

// Issue is a single field-level validation problem.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path,omitempty"`
}

// Errors collects the validation issues recorded on a document. Recording an
// issue never fails; callers decide whether issues block persistence.
type Errors struct {
	issues []Issue
}

// Add records an issue on the attribute at path.
func (e *Errors) Add(path, code, message string) {
	e.issues = append(e.issues, Issue{Code: code, Message: message, Path: path})
}

// On returns the issues recorded for path.
func (e *Errors) On(path string) []Issue {
	var out []Issue
	for _, issue := range e.issues {
		if issue.Path == path {
			out = append(out, issue)
		}
	}
	return out
}

// Has reports whether an issue with code was recorded for path.
func (e *Errors) Has(path, code string) bool {
	for _, issue := range e.issues {
		if issue.Path == path && issue.Code == code {
			return true
		}
	}
	return false
}

// All returns a copy of every recorded issue in recording order.
func (e *Errors) All() []Issue {
	return append([]Issue(nil), e.issues...)
}

// Empty reports whether no issue has been recorded.
func (e *Errors) Empty() bool { return len(e.issues) == 0 }

// Len returns the number of recorded issues.
func (e *Errors) Len() int { return len(e.issues) }

// Clear drops every recorded issue.
func (e *Errors) Clear() { e.issues = nil }

// Error renders the issues as a single message, so a non-empty set can be
// returned where an error is expected.
func (e *Errors) Error() string {
	parts := make([]string, 0, len(e.issues))
	for _, issue := range e.issues {
		parts = append(parts, fmt.Sprintf("%s %s", issue.Path, issue.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
