// Package errors provides the error types returned by lakescan. Every error
// carries the operation that failed plus file or column context, wraps its
// cause, and matches the package sentinels through errors.Is by kind.
package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an Error.
type Kind uint8

const (
	KindInternal Kind = iota
	KindSchemaConflict
	KindSchemaMismatch
	KindRead
	KindInvalidQuery
	KindPartialFailure
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindSchemaConflict:
		return "schema conflict"
	case KindSchemaMismatch:
		return "schema mismatch"
	case KindRead:
		return "read error"
	case KindInvalidQuery:
		return "invalid query"
	case KindPartialFailure:
		return "partial failure"
	case KindClosed:
		return "closed"
	default:
		return "internal"
	}
}

// Error is the standard error across lakescan operations.
type Error struct {
	Kind    Kind
	Op      string // Operation name (e.g., "Merge", "Scan", "Compile")
	Path    string // File path if applicable
	Column  string // Column name if applicable
	Message string
	Hint    string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" operation failed")
	if e.Path != "" {
		fmt.Fprintf(&b, " on file '%s'", e.Path)
	}
	if e.Column != "" {
		fmt.Fprintf(&b, " on column '%s'", e.Column)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	if e.Hint != "" {
		b.WriteString(". Hint: ")
		b.WriteString(e.Hint)
	}
	return b.String()
}

// Unwrap returns the underlying cause for error wrapping support
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches sentinels by kind. Any other *Error matches on kind, operation,
// column and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.sentinel() {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Op == t.Op && e.Column == t.Column && e.Message == t.Message
}

func (e *Error) sentinel() bool {
	return e.Op == "" && e.Path == "" && e.Column == "" && e.Message == "" && e.Cause == nil
}

// WithHint returns a copy of e carrying a remediation hint.
func (e *Error) WithHint(hint string) *Error {
	c := *e
	c.Hint = hint
	return &c
}

// Sentinels for errors.Is matching by kind.
var (
	ErrSchemaConflict = &Error{Kind: KindSchemaConflict}
	ErrSchemaMismatch = &Error{Kind: KindSchemaMismatch}
	ErrRead           = &Error{Kind: KindRead}
	ErrInvalidQuery   = &Error{Kind: KindInvalidQuery}
	ErrPartialFailure = &Error{Kind: KindPartialFailure}
	ErrInternal       = &Error{Kind: KindInternal}

	// ErrHandleClosed is returned by every call on a closed query handle.
	ErrHandleClosed = &Error{
		Kind:    KindClosed,
		Op:      "Handle",
		Message: "query handle is closed",
	}
)

// NewSchemaConflictError reports a field seen with incompatible types. The
// type names are sorted so the message does not depend on input order.
func NewSchemaConflictError(column string, types []string) *Error {
	sorted := append([]string(nil), types...)
	sort.Strings(sorted)
	return &Error{
		Kind:    KindSchemaConflict,
		Op:      "Merge",
		Column:  column,
		Message: fmt.Sprintf("incompatible types [%s]", strings.Join(sorted, ", ")),
	}
}

// NewSchemaMismatchError reports a file column that cannot be read as the
// target type.
func NewSchemaMismatchError(path, column, fileType, targetType string) *Error {
	return &Error{
		Kind:    KindSchemaMismatch,
		Op:      "Coerce",
		Path:    path,
		Column:  column,
		Message: fmt.Sprintf("file type %s cannot be read as %s", fileType, targetType),
	}
}

// NewMissingColumnError reports a non-nullable target field that a file lacks.
func NewMissingColumnError(path, column string) *Error {
	return &Error{
		Kind:    KindSchemaMismatch,
		Op:      "Coerce",
		Path:    path,
		Column:  column,
		Message: "required column is missing from file",
	}
}

// NewReadError wraps a failure to open, decode or convert a file.
func NewReadError(path string, cause error) *Error {
	return &Error{
		Kind:  KindRead,
		Op:    "Read",
		Path:  path,
		Cause: cause,
	}
}

// NewInvalidQueryError creates an error for invalid query inputs
func NewInvalidQueryError(op, message string) *Error {
	return &Error{
		Kind:    KindInvalidQuery,
		Op:      op,
		Message: message,
	}
}

// NewColumnNotFoundError creates an error for references to columns the
// schema does not have. Close matches are offered as a hint.
func NewColumnNotFoundError(op, column string, available []string) *Error {
	err := &Error{
		Kind:    KindInvalidQuery,
		Op:      op,
		Column:  column,
		Message: "column does not exist",
	}
	if s := closest(column, available); s != "" {
		return err.WithHint(fmt.Sprintf("did you mean '%s'?", s))
	}
	return err
}

// NewInvalidColumnError creates an error for a column used in a way its type
// does not allow.
func NewInvalidColumnError(op, column, message string) *Error {
	return &Error{
		Kind:    KindInvalidQuery,
		Op:      op,
		Column:  column,
		Message: message,
	}
}

// NewInternalError creates an error for internal operation failures
func NewInternalError(op string, cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Op:      op,
		Message: "internal error occurred",
		Cause:   cause,
	}
}

func closest(name string, candidates []string) string {
	best, bestDist := "", len(name)/2+1
	for _, c := range candidates {
		if d := levenshtein(strings.ToLower(name), strings.ToLower(c)); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
