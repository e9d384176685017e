package errors

import (
	"fmt"
	"strings"
)

// FileFailure records a file that could not be scanned.
type FileFailure struct {
	Path string
	Err  error
}

// PartialFailure is returned alongside a result when files were skipped.
type PartialFailure struct {
	Failures []FileFailure
}

func (p *PartialFailure) Error() string {
	if len(p.Failures) == 0 {
		return "partial failure: no files failed"
	}
	paths := make([]string, 0, len(p.Failures))
	for _, f := range p.Failures {
		paths = append(paths, f.Path)
	}
	return fmt.Sprintf("partial failure: %d file(s) skipped [%s]: %v",
		len(p.Failures), strings.Join(paths, ", "), p.Failures[0].Err)
}

// Unwrap exposes each file's error so errors.Is can reach ErrRead and
// friends.
func (p *PartialFailure) Unwrap() []error {
	errs := make([]error, 0, len(p.Failures))
	for _, f := range p.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

func (p *PartialFailure) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindPartialFailure
}
