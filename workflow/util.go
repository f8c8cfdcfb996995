package workflow

import (
	"errors"
	"fmt"
)

// wrapf wraps a sentinel error with formatted detail, preserving errors.Is(err, sentinel).
func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)
}

// asStepError is a small errors.As wrapper kept non-generic so call sites don't need
// to import "errors" themselves throughout the package.
func asStepError(err error, target **StepError) bool {
	return errors.As(err, target)
}
