package query

import (
	"strings"
)

// Kind identifies the command a Query carries.
type Kind uint8

const (
	KindGet Kind = iota // <GET: ("key")>
	KindAdd             // <ADD: ("key", "value")>
)

// String returns the command keyword in upper case, or "UNKNOWN".
func (k Kind) String() string {
	switch k {
	case KindGet:
		return "GET"
	case KindAdd:
		return "ADD"
	default:
		return "UNKNOWN"
	}
}

// Query is a parsed request. The only implementations are Get and Add, both
// plain values that can be compared with ==.
type Query interface {
	// Kind reports which command this is.
	Kind() Kind
	// Target returns the key the command addresses.
	Target() string
	// String returns the canonical wire text without a line terminator.
	String() string

	sealed()
}

// Get looks up a key.
type Get struct {
	Key string
}

// Add stores Value under Key, replacing any previous value.
type Add struct {
	Key   string
	Value string
}

// Kind returns KindGet.
func (Get) Kind() Kind { return KindGet }

// Kind returns KindAdd.
func (Add) Kind() Kind { return KindAdd }

// Target returns the key to look up.
func (g Get) Target() string { return g.Key }

// Target returns the key to store under.
func (a Add) Target() string { return a.Key }

// String returns the request in its canonical form, <GET: ("key")>.
func (g Get) String() string {
	return `<GET: ("` + g.Key + `")>`
}

// String returns the request in its canonical form, <ADD: ("key", "value")>.
func (a Add) String() string {
	return `<ADD: ("` + a.Key + `", "` + a.Value + `")>`
}

func (Get) sealed() {}
func (Add) sealed() {}

// Serialize returns the canonical, line-terminated wire form of q.
// Parse(Serialize(q)) yields q again whenever the key and value contain no
// double quote.
func Serialize(q Query) string {
	return q.String() + "\n"
}

// Encode is Serialize for callers that need the round trip guaranteed. It
// rejects text that cannot travel inside a quoted string on a single line.
func Encode(q Query) (string, error) {
	if err := Validate(q); err != nil {
		return "", err
	}
	return Serialize(q), nil
}

// Validate reports whether q can be serialized and parsed back unchanged.
func Validate(q Query) error {
	switch v := q.(type) {
	case Get:
		return validateText("key", v.Key)
	case Add:
		if err := validateText("key", v.Key); err != nil {
			return err
		}
		return validateText("value", v.Value)
	default:
		return ErrUnknownQuery
	}
}

func validateText(field, s string) error {
	if strings.ContainsRune(s, '"') {
		return &EncodeError{Field: field, Err: ErrQuoteInText}
	}
	if strings.ContainsAny(s, "\r\n") {
		return &EncodeError{Field: field, Err: ErrLineBreakInText}
	}
	return nil
}
