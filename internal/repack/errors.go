package repack

import (
	"errors"
	"fmt"
)

// ErrorType classifies repackaging failures. Every type is fatal to the run.
type ErrorType string

const (
	// ValidationError reports bad input: missing folders, a missing source file,
	// an unusable command template.
	ValidationError ErrorType = "VALIDATION"
	// IntegrityError reports a broken pre- or post-condition around a
	// filesystem change: a workspace that did not grow, an archive that already
	// exists or never appeared, a file that survived its removal.
	IntegrityError ErrorType = "INTEGRITY"
	// ExternalToolError reports a compressor or decompressor that exited
	// abnormally.
	ExternalToolError ErrorType = "EXTERNAL_TOOL"
)

// Error is returned by every Repackager operation.
type Error struct {
	Type    ErrorType
	Op      string // "open", "prepare", "compress" or "close"
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(" (%v)", e.Err)
	}
	return string(e.Type) + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// TypeOf returns the ErrorType of the first *Error in err's chain, or "".
func TypeOf(err error) ErrorType {
	var repackErr *Error
	if errors.As(err, &repackErr) {
		return repackErr.Type
	}
	return ""
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool { return TypeOf(err) == ValidationError }

// IsIntegrity reports whether err is an IntegrityError.
func IsIntegrity(err error) bool { return TypeOf(err) == IntegrityError }

// IsExternalTool reports whether err is an ExternalToolError.
func IsExternalTool(err error) bool { return TypeOf(err) == ExternalToolError }
