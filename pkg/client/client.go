// Package client provides a client for memento cache servers.
//
// The client picks the server for each key with a consistent hash ring, keeps
// a connection pool per server and retries a request on a fresh connection
// when the transport fails. Every call is one request line and one response
// line on a pooled connection.
//
// Key Features:
//   - Consistent hashing for node selection across several servers
//   - Connection pooling per server node
//   - Retries with configurable attempts on transport failures
//   - Safe for concurrent use
//
// Basic Usage:
//
//	c, err := client.New([]string{"127.0.0.1:7366"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
//
//	if err := c.Add("user:1", "alice"); err != nil {
//		log.Fatal(err)
//	}
//
//	value, found, err := c.Get("user:1")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if found {
//		fmt.Println(value)
//	}
//
// Advanced Configuration:
//
//	cfg, _ := config.LoadClientConfig()
//	cfg.Nodes = []string{"cache1:7366", "cache2:7366"}
//	cfg.MaxConnsPerNode = 20
//	cfg.RetryAttempts = 5
//	c, err := client.NewWithConfig(cfg, client.WithLogger(logger))
//
// Keys and values must not contain double quotes or line breaks; such calls
// fail with a *query.EncodeError before anything is sent.
package client

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/dropbox/godropbox/net2"
	"github.com/sirupsen/logrus"

	"github.com/memento-kv/memento/pkg/config"
	"github.com/memento-kv/memento/pkg/hash"
	"github.com/memento-kv/memento/pkg/protocol"
	"github.com/memento-kv/memento/pkg/query"
)

// Client talks to one or more memento servers.
//
// Example:
//
//	c, err := client.New([]string{"cache1:7366", "cache2:7366"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer c.Close()
type Client struct {
	config  *config.ClientConfig
	log     *logrus.Logger
	readers sync.Pool
	closed  atomic.Bool

	mu    sync.RWMutex
	ring  *hash.Ring
	pools map[string]net2.ConnectionPool
}

// Option configures optional Client collaborators.
type Option func(*Client)

// WithLogger sends client diagnostics to l.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client for nodes, taking every other setting from the
// environment and defaults.
//
// Parameters:
//   - nodes: server addresses in "host:port" format
//
// Returns:
//   - a Client ready for use, or the configuration error
func New(nodes []string, opts ...Option) (*Client, error) {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		return nil, err
	}
	cfg.Nodes = nodes

	return NewWithConfig(cfg, opts...)
}

// NewWithConfig creates a Client from cfg. No connection is opened until the
// first request.
func NewWithConfig(cfg *config.ClientConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}

	ring, err := hash.NewRing(cfg.Nodes, cfg.VirtualNodes)
	if err != nil {
		return nil, err
	}

	c := &Client{
		config: cfg,
		ring:   ring,
		pools:  make(map[string]net2.ConnectionPool),
	}
	c.readers.New = func() any {
		return protocol.NewLineReader(nil, cfg.MaxLineBytes)
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logrus.New()
		c.log.SetOutput(io.Discard)
	}

	for _, node := range ring.Nodes() {
		pool, err := c.newPool(node)
		if err != nil {
			c.closePools()
			return nil, err
		}
		c.pools[node] = pool
	}

	return c, nil
}

func (c *Client) newPool(node string) (net2.ConnectionPool, error) {
	idle := c.config.IdleTimeout
	pool := net2.NewSimpleConnectionPool(net2.ConnectionOptions{
		MaxActiveConnections: int32(c.config.MaxConnsPerNode),
		MaxIdleConnections:   uint32(c.config.MaxIdlePerNode),
		MaxIdleTime:          &idle,
		ReadTimeout:          c.config.ReadTimeout,
		WriteTimeout:         c.config.WriteTimeout,
		Dial: func(network, address string) (net.Conn, error) {
			return net.DialTimeout(network, address, c.config.ConnTimeout)
		},
	})
	if err := pool.Register("tcp", node); err != nil {
		return nil, fmt.Errorf("register node %s: %w", node, err)
	}
	return pool, nil
}

// Nodes returns the server addresses currently in use.
func (c *Client) Nodes() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ring.Nodes()
}

// AddNode adds a server. Keys are redistributed according to the new ring.
func (c *Client) AddNode(address string) error {
	if _, _, err := net.SplitHostPort(address); err != nil {
		return fmt.Errorf("invalid node address %q: %w", address, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.pools[address]; exists {
		return nil
	}

	ring, err := hash.NewRing(append(c.ring.Nodes(), address), c.config.VirtualNodes)
	if err != nil {
		return err
	}
	pool, err := c.newPool(address)
	if err != nil {
		return err
	}

	c.ring = ring
	c.pools[address] = pool
	return nil
}

// RemoveNode removes a server and drops its pooled connections. The last
// node cannot be removed.
func (c *Client) RemoveNode(address string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	pool, exists := c.pools[address]
	if !exists {
		return nil
	}

	remaining := make([]string, 0, len(c.pools)-1)
	for _, node := range c.ring.Nodes() {
		if node != address {
			remaining = append(remaining, node)
		}
	}
	if len(remaining) == 0 {
		return ErrLastNode
	}

	ring, err := hash.NewRing(remaining, c.config.VirtualNodes)
	if err != nil {
		return err
	}

	c.ring = ring
	delete(c.pools, address)
	pool.EnterLameDuckMode()
	return nil
}

// Add stores value under key, replacing any existing value.
//
// Example:
//
//	if err := c.Add("session:42", "active"); err != nil {
//		log.Printf("add failed: %v", err)
//	}
func (c *Client) Add(key, value string) error {
	resp, err := c.execute(query.Add{Key: key, Value: value})
	if err != nil {
		return err
	}

	switch resp.Type {
	case protocol.RespOK:
		return nil
	case protocol.RespError:
		return &ServerError{Message: resp.Error}
	default:
		return fmt.Errorf("%w: %s to ADD", ErrUnexpectedResponse, resp.Type)
	}
}

// Get returns the value stored under key. found is false when the server has
// no entry for key, which is not an error.
//
// Example:
//
//	value, found, err := c.Get("session:42")
//	switch {
//	case err != nil:
//		log.Printf("get failed: %v", err)
//	case !found:
//		log.Printf("session expired")
//	default:
//		fmt.Println(value)
//	}
func (c *Client) Get(key string) (value string, found bool, err error) {
	resp, err := c.execute(query.Get{Key: key})
	if err != nil {
		return "", false, err
	}

	switch resp.Type {
	case protocol.RespValue:
		return resp.Value, true, nil
	case protocol.RespMiss:
		return "", false, nil
	case protocol.RespError:
		return "", false, &ServerError{Message: resp.Error}
	default:
		return "", false, fmt.Errorf("%w: %s to GET", ErrUnexpectedResponse, resp.Type)
	}
}

// Close releases every pooled connection. Calls after Close fail with
// ErrClosed.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closePools()
	return nil
}

func (c *Client) closePools() {
	for node, pool := range c.pools {
		pool.EnterLameDuckMode()
		delete(c.pools, node)
	}
}

// getConnection returns a pooled connection to the node that owns key.
func (c *Client) getConnection(key string) (net2.ManagedConn, string, error) {
	c.mu.RLock()
	node := c.ring.Node(key)
	pool, exists := c.pools[node]
	c.mu.RUnlock()

	if !exists {
		return nil, node, fmt.Errorf("no connection pool for node: %s", node)
	}

	conn, err := pool.Get("tcp", node)
	if err != nil {
		return nil, node, fmt.Errorf("%w: %s: %w", ErrConnect, node, err)
	}
	return conn, node, nil
}

// execute sends q to the node that owns its key. Transport failures discard
// the connection and retry on a new one, up to RetryAttempts extra times.
// Server error responses are returned to the caller without retrying.
func (c *Client) execute(q query.Query) (protocol.Response, error) {
	if c.closed.Load() {
		return protocol.Response{}, ErrClosed
	}

	line, err := query.Encode(q)
	if err != nil {
		return protocol.Response{}, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.RetryAttempts; attempt++ {
		if c.closed.Load() {
			return protocol.Response{}, ErrClosed
		}

		conn, node, err := c.getConnection(q.Target())
		if err != nil {
			lastErr = err
			continue
		}

		resp, err := c.roundTrip(conn, line)
		if err != nil {
			if discardErr := conn.DiscardConnection(); discardErr != nil {
				c.log.WithError(discardErr).Debug("error discarding connection")
			}
			c.log.WithError(err).WithFields(logrus.Fields{
				"node":    node,
				"attempt": attempt + 1,
			}).Debug("request failed")
			lastErr = err
			continue
		}

		if releaseErr := conn.ReleaseConnection(); releaseErr != nil {
			c.log.WithError(releaseErr).Debug("error releasing connection")
		}
		return resp, nil
	}

	return protocol.Response{}, fmt.Errorf("%s failed after %d attempts: %w", q.Kind(), c.config.RetryAttempts+1, lastErr)
}

// roundTrip writes one request line and reads one response line. Deadlines
// are applied by the pool.
func (c *Client) roundTrip(conn net.Conn, line string) (protocol.Response, error) {
	if _, err := io.WriteString(conn, line); err != nil {
		return protocol.Response{}, fmt.Errorf("write request: %w", err)
	}

	lr := c.readers.Get().(*protocol.LineReader)
	lr.Reset(conn)
	defer func() {
		lr.Reset(nil)
		c.readers.Put(lr)
	}()

	resp, err := protocol.ReadResponse(lr)
	if err != nil {
		return protocol.Response{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}
