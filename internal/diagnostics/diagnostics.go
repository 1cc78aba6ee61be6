// Package diagnostics carries position-bearing errors from the
// lexer/parser front end back to a driver (CLI, tests, an embedding
// caller) that wants line/column information rather than a bare
// string.
package diagnostics

import "fmt"

// Error is a single positioned diagnostic. Code is a short family tag
// ("P000", "P011", ...) rather than a free-form message, matching the
// small-concrete-error-type convention used throughout this codebase
// (see internal/vmerrors).
type Error struct {
	Code    string
	File    string
	Line    int
	Column  int
	Message string
}

func (e *Error) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.File, e.Line, e.Column, e.Code, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s: %s", e.Line, e.Column, e.Code, e.Message)
}

// Positioned is satisfied by anything carrying a source line/column,
// such as token.Token.
type Positioned interface {
	Pos() (line, column int)
}

// NewError builds an Error at the position of tok.
func NewError(code string, tok Positioned, message string) *Error {
	line, column := tok.Pos()
	return &Error{Code: code, Line: line, Column: column, Message: message}
}
