package query

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax is wrapped by every *ParseError.
	ErrSyntax = errors.New("query: syntax error")

	// ErrQuoteInText is returned when a key or value contains a double quote,
	// which the grammar cannot carry.
	ErrQuoteInText = errors.New("query: text contains a double quote")

	// ErrLineBreakInText is returned when a key or value would split the
	// request across lines.
	ErrLineBreakInText = errors.New("query: text contains a line break")

	// ErrUnknownQuery is returned for Query implementations other than Get and Add.
	ErrUnknownQuery = errors.New("query: unknown query type")
)

const maxQuotedRest = 32

// ParseError is returned when a line matches no grammar alternative.
type ParseError struct {
	Input string // the full line handed to Parse
	Rest  string // the unmatched slice where matching stopped
}

func (e *ParseError) Error() string {
	rest := e.Rest
	if len(rest) > maxQuotedRest {
		rest = rest[:maxQuotedRest] + "..."
	}
	return fmt.Sprintf("query: syntax error at offset %d near %q", e.Offset(), rest)
}

// Offset is the byte position in Input where matching stopped.
func (e *ParseError) Offset() int {
	return len(e.Input) - len(e.Rest)
}

func (e *ParseError) Unwrap() error { return ErrSyntax }

// EncodeError names the field that cannot be serialized.
type EncodeError struct {
	Field string
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("%v in %s", e.Err, e.Field)
}

func (e *EncodeError) Unwrap() error { return e.Err }
