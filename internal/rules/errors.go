package rules

import "fmt"

// ParseError reports a rule database that is not well-formed markup or that
// carries a pattern which does not compile.
type ParseError struct {
	Source string // file path, or "<inline>" for literal text
	Line   int    // 1-based line, 0 when unknown
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse rule database %s: line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("parse rule database %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
