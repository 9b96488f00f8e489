// Package protocol implements memento's line-oriented wire format.
//
// Every message is one line terminated by '\n'. Requests are the query
// grammar of package query:
//
//	<ADD: ("user:1", "alice")>
//	<GET: ("user:1")>
//
// Responses are one of:
//
//	"OK            acknowledgement of an ADD
//	<value>        the stored value, for a GET hit
//	"NIL           the miss sentinel, for a GET on an absent key
//	"ERR <reason>  the request could not be served
//
// Keys and values can never contain a double quote, so every line starting
// with '"' is a status line and every other line is a value. The miss
// sentinel is therefore distinguishable from every legal value, including the
// empty one.
//
// Example:
//
//	if err := protocol.WriteQuery(conn, query.Get{Key: "user:1"}); err != nil {
//		return err
//	}
//	resp, err := protocol.ReadResponse(protocol.NewLineReader(conn, protocol.DefaultMaxLineBytes))
//	if err != nil {
//		return err
//	}
//	if resp.Type == protocol.RespValue {
//		fmt.Println(resp.Value)
//	}
package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/memento-kv/memento/pkg/query"
)

const (
	// DefaultMaxLineBytes bounds a single request or response line.
	DefaultMaxLineBytes = 64 * 1024

	// MinLineBytes is the smallest line limit a LineReader enforces. Smaller
	// limits are raised to it.
	MinLineBytes = 16

	// StatusMarker starts every non-value response line.
	StatusMarker = '"'

	okLine      = `"OK`
	missLine    = `"NIL`
	errorPrefix = `"ERR `
)

var (
	// ErrLineTooLong is returned when a line exceeds the reader's limit.
	ErrLineTooLong = errors.New("protocol: line too long")

	// ErrMalformedResponse is returned for a status line that is not OK, NIL or ERR.
	ErrMalformedResponse = errors.New("protocol: malformed response")
)

// ResponseType identifies the kind of response line.
type ResponseType uint8

const (
	RespOK    ResponseType = iota // ADD acknowledged
	RespValue                     // GET hit, Value holds the stored value
	RespMiss                      // GET miss
	RespError                     // request failed, Error holds the reason
)

func (t ResponseType) String() string {
	switch t {
	case RespOK:
		return "OK"
	case RespValue:
		return "VALUE"
	case RespMiss:
		return "MISS"
	case RespError:
		return "ERROR"
	default:
		return fmt.Sprintf("ResponseType(%d)", uint8(t))
	}
}

// Response is one server reply.
type Response struct {
	Value string       // stored value when Type is RespValue
	Error string       // reason when Type is RespError
	Type  ResponseType // kind of reply
}

// OK returns the ADD acknowledgement.
func OK() Response { return Response{Type: RespOK} }

// Value returns a GET hit carrying v.
func Value(v string) Response { return Response{Type: RespValue, Value: v} }

// Miss returns the GET miss sentinel.
func Miss() Response { return Response{Type: RespMiss} }

// Errorf returns an error response. Line breaks in the reason are replaced by
// spaces so the response stays on one line.
func Errorf(format string, args ...any) Response {
	msg := fmt.Sprintf(format, args...)
	msg = strings.NewReplacer("\r", " ", "\n", " ").Replace(msg)
	return Response{Type: RespError, Error: msg}
}

// Serialize returns the line-terminated wire form of r.
//
// Example:
//
//	protocol.Value("alice").Serialize() // "alice\n"
//	protocol.Miss().Serialize()         // "\"NIL\n"
func (r Response) Serialize() string {
	switch r.Type {
	case RespOK:
		return okLine + "\n"
	case RespValue:
		return r.Value + "\n"
	case RespMiss:
		return missLine + "\n"
	default:
		return errorPrefix + r.Error + "\n"
	}
}

// ParseResponse decodes one response line with its terminator removed.
//
// Parameters:
//   - line: the response line without the trailing '\n'
//
// Returns:
//   - the decoded Response
//   - ErrMalformedResponse for an unknown status line
func ParseResponse(line string) (Response, error) {
	if len(line) == 0 || line[0] != StatusMarker {
		return Value(line), nil
	}

	switch {
	case line == okLine:
		return OK(), nil
	case line == missLine:
		return Miss(), nil
	case strings.HasPrefix(line, errorPrefix):
		return Response{Type: RespError, Error: line[len(errorPrefix):]}, nil
	default:
		return Response{}, fmt.Errorf("%w: %q", ErrMalformedResponse, line)
	}
}

// LineReader reads '\n'-terminated lines up to a fixed length.
type LineReader struct {
	br *bufio.Reader
}

// NewLineReader wraps r. Lines longer than maxLineBytes (terminator
// included) fail with ErrLineTooLong. A non-positive maxLineBytes selects
// DefaultMaxLineBytes, and a limit below MinLineBytes is raised to
// MinLineBytes.
func NewLineReader(r io.Reader, maxLineBytes int) *LineReader {
	switch {
	case maxLineBytes <= 0:
		maxLineBytes = DefaultMaxLineBytes
	case maxLineBytes < MinLineBytes:
		// bufio never buffers less than this
		maxLineBytes = MinLineBytes
	}
	return &LineReader{br: bufio.NewReaderSize(r, maxLineBytes)}
}

// Reset discards buffered input and switches the reader to r.
func (lr *LineReader) Reset(r io.Reader) {
	lr.br.Reset(r)
}

// ReadLine returns the next line without its '\n'. A final line that ends at
// EOF without a terminator is returned normally; the following call returns
// io.EOF.
func (lr *LineReader) ReadLine() (string, error) {
	line, err := lr.br.ReadSlice('\n')
	switch {
	case err == nil:
		return string(line[:len(line)-1]), nil
	case errors.Is(err, bufio.ErrBufferFull):
		return "", ErrLineTooLong
	case errors.Is(err, io.EOF) && len(line) > 0:
		return string(line), nil
	default:
		return "", err
	}
}

// ReadRequest reads one request line and strips a trailing '\r' so that
// CRLF-terminated clients are accepted.
func (lr *LineReader) ReadRequest() (string, error) {
	line, err := lr.ReadLine()
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(line, "\r"), nil
}

// ReadResponse reads and decodes one response line.
func ReadResponse(lr *LineReader) (Response, error) {
	line, err := lr.ReadLine()
	if err != nil {
		return Response{}, err
	}
	return ParseResponse(line)
}

// WriteResponse writes the serialized response to w.
func WriteResponse(w io.Writer, resp Response) error {
	_, err := io.WriteString(w, resp.Serialize())
	return err
}

// WriteQuery encodes q and writes it as one request line. Queries whose text
// cannot be carried by the grammar are rejected before anything is written.
func WriteQuery(w io.Writer, q query.Query) error {
	line, err := query.Encode(q)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, line)
	return err
}
