package query_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memento-kv/memento/pkg/query"
)

func TestParseAccepts(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  query.Query
	}{
		{name: "compact get", input: `<GET: ("k")>`, want: query.Get{Key: "k"}},
		{name: "compact add", input: `<ADD: ("k", "v")>`, want: query.Add{Key: "k", Value: "v"}},
		{name: "spaced add", input: `<  add :  ( "k" , "v" ) >`, want: query.Add{Key: "k", Value: "v"}},
		{name: "no spaces", input: `<get:("k")>`, want: query.Get{Key: "k"}},
		{name: "tabs and newlines", input: "<\tGeT\n:\t(\n\"k\"\n)\t>", want: query.Get{Key: "k"}},
		{name: "empty strings", input: `<ADD: ("", "")>`, want: query.Add{Key: "", Value: ""}},
		{name: "spaces inside quotes kept", input: `<ADD: (" a b ", " c ")>`, want: query.Add{Key: " a b ", Value: " c "}},
		{name: "punctuation inside quotes", input: `<ADD: ("<GET: (x)>", "a,b)")>`, want: query.Add{Key: "<GET: (x)>", Value: "a,b)"}},
		{name: "unicode", input: `<ADD: ("ключ", "値")>`, want: query.Add{Key: "ключ", Value: "値"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, rest, err := query.Parse(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
			assert.Empty(t, rest)
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "add with one argument", input: `<ADD: ("k")>`},
		{name: "get with two arguments", input: `<GET: ("k", "v")>`},
		{name: "unknown command", input: `<FOO: ("k")>`},
		{name: "command prefix", input: `<GETS: ("k")>`},
		{name: "unquoted key", input: `<GET: (k)>`},
		{name: "missing colon", input: `<GET ("k")>`},
		{name: "missing close", input: `<GET: ("k")`},
		{name: "unterminated quote", input: `<GET: ("k)>`},
		{name: "leading space", input: ` <GET: ("k")>`},
		{name: "empty", input: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _, err := query.Parse(tt.input)
			require.Error(t, err)
			assert.Nil(t, q)

			var perr *query.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.input, perr.Input)
			assert.True(t, errors.Is(err, query.ErrSyntax))
			assert.GreaterOrEqual(t, perr.Offset(), 0)
		})
	}
}

func TestParseReportsRemainder(t *testing.T) {
	q, rest, err := query.Parse(`<GET: ("k")> trailing`)
	require.NoError(t, err)
	assert.Equal(t, query.Get{Key: "k"}, q)
	assert.Equal(t, " trailing", rest)

	// one query per call: a second query on the line is left unconsumed
	q, rest, err = query.Parse(`<GET: ("a")><GET: ("b")>`)
	require.NoError(t, err)
	assert.Equal(t, query.Get{Key: "a"}, q)
	assert.Equal(t, `<GET: ("b")>`, rest)
}

func TestParseErrorPointsAtFailure(t *testing.T) {
	_, _, err := query.Parse(`<FOO: ("k")>`)
	var perr *query.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Offset())
	assert.Contains(t, perr.Error(), "offset 1")
}

func TestParseErrorPointsInsideMalformedGet(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		offset int
	}{
		{"unquoted key", `<GET: (k)>`, len(`<GET: (`)},
		{"extra argument", `<GET: ("k", "v")>`, len(`<GET: ("k"`)},
		{"missing close", `<GET: ("k"`, len(`<GET: ("k"`)},
		{"unquoted value", `<ADD: ("k", v)>`, len(`<ADD: ("k", `)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := query.Parse(tt.input)
			var perr *query.ParseError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.offset, perr.Offset())
			assert.Equal(t, tt.input[tt.offset:], perr.Rest)
		})
	}
}

func TestSerialize(t *testing.T) {
	assert.Equal(t, "<GET: (\"k\")>\n", query.Serialize(query.Get{Key: "k"}))
	assert.Equal(t, "<ADD: (\"k\", \"v\")>\n", query.Serialize(query.Add{Key: "k", Value: "v"}))
	assert.Equal(t, `<ADD: ("k", "v")>`, query.Add{Key: "k", Value: "v"}.String())
}

func TestRoundTrip(t *testing.T) {
	queries := []query.Query{
		query.Get{Key: "k"},
		query.Get{Key: ""},
		query.Get{Key: "user:42"},
		query.Add{Key: "k", Value: "v"},
		query.Add{Key: "", Value: ""},
		query.Add{Key: "  padded  ", Value: "\ttabbed\t"},
		query.Add{Key: "<ADD: (", Value: ")>"},
		query.Add{Key: "emoji 🙂", Value: "ümlaut"},
		query.Add{Key: "bad\xffutf8", Value: "\xc3"},
	}

	for _, q := range queries {
		t.Run(q.String(), func(t *testing.T) {
			got, rest, err := query.Parse(query.Serialize(q))
			require.NoError(t, err)
			assert.Equal(t, q, got)
			assert.Equal(t, "\n", rest)
		})
	}
}

func TestEncodeRejectsUnrepresentableText(t *testing.T) {
	_, err := query.Encode(query.Add{Key: `say "hi"`, Value: "v"})
	require.ErrorIs(t, err, query.ErrQuoteInText)

	var encErr *query.EncodeError
	require.ErrorAs(t, err, &encErr)
	assert.Equal(t, "key", encErr.Field)

	_, err = query.Encode(query.Add{Key: "k", Value: "two\nlines"})
	require.ErrorIs(t, err, query.ErrLineBreakInText)

	line, err := query.Encode(query.Get{Key: "k"})
	require.NoError(t, err)
	assert.Equal(t, "<GET: (\"k\")>\n", line)
}

func TestQueryAccessors(t *testing.T) {
	var q query.Query = query.Add{Key: "k", Value: "v"}
	assert.Equal(t, query.KindAdd, q.Kind())
	assert.Equal(t, "k", q.Target())
	assert.Equal(t, "ADD", q.Kind().String())

	q = query.Get{Key: "g"}
	assert.Equal(t, query.KindGet, q.Kind())
	assert.Equal(t, "g", q.Target())
	assert.Equal(t, "GET", q.Kind().String())
	assert.Equal(t, `<GET: ("g")>`, q.String())

	assert.Equal(t, "UNKNOWN", query.Kind(7).String())
}
