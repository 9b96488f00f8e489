package client

import (
	"errors"
)

var (
	// ErrClosed is returned by calls on a closed Client.
	ErrClosed = errors.New("client: closed")

	// ErrConnect wraps failures to obtain a connection from a node's pool.
	ErrConnect = errors.New("client: connect")

	// ErrLastNode is returned when removing the only remaining node.
	ErrLastNode = errors.New("client: cannot remove the last node")

	// ErrUnexpectedResponse is returned when the server replies with a
	// response type that does not fit the request.
	ErrUnexpectedResponse = errors.New("client: unexpected response")
)

// ServerError carries an error response sent by the server.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}
