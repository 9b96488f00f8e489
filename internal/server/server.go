// Package server implements the memento TCP server.
//
// The server accepts TCP connections and serves one request line at a time on
// each of them:
//
//	<ADD: ("user:1", "alice")>   ->  "OK
//	<GET: ("user:1")>            ->  alice
//	<GET: ("user:2")>            ->  "NIL
//	<PUT: ("user:1")>            ->  "ERR parse error: ...
//
// Each line is parsed with package query, dispatched to the cache router and
// answered with a package protocol response. A malformed line is answered
// with an error and the connection stays open. A line longer than the
// configured limit is answered with an error and the connection is closed.
//
// Architecture:
//   - one goroutine per connection, capped by a weighted semaphore
//   - per-request read and write deadlines
//   - graceful stop: the listener closes, live connections are closed and
//     their goroutines drained
//
// Example usage:
//
//	router, _ := cache.NewRouter(cfg.Shards)
//	srv := server.New(cfg, router, logger)
//	if err := srv.Start(); err != nil {
//		log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/memento-kv/memento/pkg/cache"
	"github.com/memento-kv/memento/pkg/config"
	"github.com/memento-kv/memento/pkg/protocol"
	"github.com/memento-kv/memento/pkg/query"
)

const lingerTimeout = 500 * time.Millisecond

// ErrServerClosed is returned by Start and Serve after Stop has been called.
var ErrServerClosed = errors.New("server: closed")

// Server serves memento requests from TCP clients against a cache.Router.
//
// Example:
//
//	srv := server.New(cfg, router, logger)
//	go func() {
//		if err := srv.Start(); err != nil && !errors.Is(err, server.ErrServerClosed) {
//			logger.WithError(err).Error("server failed")
//		}
//	}()
//
//	// Later, to stop the server
//	srv.Stop()
type Server struct {
	cfg     *config.ServerConfig
	router  *cache.Router
	log     *logrus.Logger
	metrics *Metrics
	slots   *semaphore.Weighted

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
	closing  atomic.Bool
	ready    chan struct{}
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithMetrics records connection and request metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server for cfg that dispatches to router. The server is not
// listening until Start or Serve is called. A nil logger discards output.
func New(cfg *config.ServerConfig, router *cache.Router, logger *logrus.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	maxLine := cfg.MaxLineBytes
	if maxLine <= 0 {
		maxLine = protocol.DefaultMaxLineBytes
	}
	cfgCopy := *cfg
	cfgCopy.MaxLineBytes = maxLine

	s := &Server{
		cfg:    &cfgCopy,
		router: router,
		log:    logger,
		slots:  semaphore.NewWeighted(int64(max(cfg.MaxConns, 1))),
		conns:  make(map[net.Conn]struct{}),
		ready:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start listens on the configured address and serves connections until Stop
// is called, at which point it returns ErrServerClosed.
func (s *Server) Start() error {
	addr := s.cfg.Address()
	lc := net.ListenConfig{}
	listener, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener. Serve takes ownership of listener and
// closes it when the server stops.
func (s *Server) Serve(listener net.Listener) error {
	s.mu.Lock()
	if s.closing.Load() {
		s.mu.Unlock()
		_ = listener.Close()
		return ErrServerClosed
	}
	if s.listener != nil {
		s.mu.Unlock()
		return errors.New("server: already serving")
	}
	s.listener = listener
	close(s.ready)
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"addr":   listener.Addr().String(),
		"shards": s.router.ShardCount(),
	}).Info("memento server listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closing.Load() {
				return ErrServerClosed
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				s.log.WithError(err).Warn("temporary accept failure")
				time.Sleep(10 * time.Millisecond)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}

		if !s.track(conn) {
			_ = conn.Close()
			return ErrServerClosed
		}

		// rejection writes to the client, which must not hold up Accept
		if !s.slots.TryAcquire(1) {
			go s.reject(conn)
			continue
		}
		go s.handleConnection(conn)
	}
}

// Addr returns the listening address, blocking until Serve has been entered.
func (s *Server) Addr() net.Addr {
	<-s.ready
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr()
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines to finish. It is safe to call more than once.
func (s *Server) Stop() error {
	if s.closing.Swap(true) {
		s.wg.Wait()
		return nil
	}

	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("memento server stopped")
	return err
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing.Load() {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	s.wg.Done()
}

// reject answers a connection over the limit and closes it. Stop closes the
// connection if the write is still blocked.
func (s *Server) reject(conn net.Conn) {
	defer s.untrack(conn)

	s.metrics.connRejected()
	s.log.WithField("remote", conn.RemoteAddr().String()).Warn("connection limit reached, rejecting")

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_ = protocol.WriteResponse(conn, protocol.Errorf("too many connections"))
	_ = conn.Close()
}

// handleConnection serves requests from a single client until it disconnects,
// goes idle past the read timeout, sends an oversized line or the server stops.
func (s *Server) handleConnection(conn net.Conn) {
	log := s.log.WithFields(logrus.Fields{
		"conn_id": uuid.NewString(),
		"remote":  conn.RemoteAddr().String(),
	})

	defer func() {
		if err := conn.Close(); err != nil && !s.closing.Load() && !errors.Is(err, net.ErrClosed) {
			log.WithError(err).Debug("error closing connection")
		}
		s.metrics.connClosed()
		s.slots.Release(1)
		s.untrack(conn)
	}()

	s.metrics.connOpened()
	log.Debug("connection opened")
	lr := protocol.NewLineReader(conn, s.cfg.MaxLineBytes)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			log.WithError(err).Debug("error setting read deadline")
			return
		}

		line, err := lr.ReadRequest()
		if err != nil {
			s.readFailed(conn, log, err)
			return
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		resp := s.execute(line, log)

		if err := conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
			log.WithError(err).Debug("error setting write deadline")
			return
		}
		if err := protocol.WriteResponse(conn, resp); err != nil {
			log.WithError(err).Warn("failed to write response")
			return
		}
	}
}

func (s *Server) readFailed(conn net.Conn, log *logrus.Entry, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, protocol.ErrLineTooLong):
		s.metrics.request("", resultLineTooLong)
		log.WithField("limit", s.cfg.MaxLineBytes).Warn("request line too long, closing connection")
		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
		_ = protocol.WriteResponse(conn, protocol.Errorf("line too long"))
		lingerClose(conn)
	case errors.Is(err, io.EOF):
		log.Debug("connection closed by client")
	case s.closing.Load() || errors.Is(err, net.ErrClosed):
		log.Debug("connection closed by server")
	case errors.As(err, &ne) && ne.Timeout():
		log.Debug("connection idle, closing")
	default:
		log.WithError(err).Warn("failed to read request")
	}
}

// lingerClose half-closes conn and discards unread input for a short while,
// so the client reads the final response before the socket is torn down
// instead of a reset.
func lingerClose(conn net.Conn) {
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}
	_ = conn.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, conn)
}

// execute parses one request line and runs it against the cache. Input after
// a complete query is ignored.
func (s *Server) execute(line string, log *logrus.Entry) protocol.Response {
	q, rest, err := query.Parse(line)
	if err != nil {
		s.metrics.request("", resultParseError)
		log.WithError(err).Debug("rejected request")
		return protocol.Errorf("parse error: %v", err)
	}

	if strings.TrimSpace(rest) != "" {
		log.WithField("rest", rest).Debug("ignoring input after query")
	}

	if handler := s.getQueryHandler(q.Kind()); handler != nil {
		return handler(q, log)
	}

	s.metrics.request(q.Kind().String(), resultError)
	return protocol.Errorf("unknown query: %s", q.Kind())
}

type queryHandler func(query.Query, *logrus.Entry) protocol.Response

func (s *Server) getQueryHandler(kind query.Kind) queryHandler {
	handlers := map[query.Kind]queryHandler{
		query.KindGet: s.handleGet,
		query.KindAdd: s.handleAdd,
	}

	return handlers[kind]
}

func (s *Server) handleAdd(q query.Query, log *logrus.Entry) protocol.Response {
	add, ok := q.(query.Add)
	if !ok {
		return protocol.Errorf("unexpected query %s", q)
	}

	if err := s.router.Add(add.Key, add.Value); err != nil {
		return s.cacheError(q, err, log)
	}

	s.metrics.request(query.KindAdd.String(), resultOK)
	return protocol.OK()
}

func (s *Server) handleGet(q query.Query, log *logrus.Entry) protocol.Response {
	get, ok := q.(query.Get)
	if !ok {
		return protocol.Errorf("unexpected query %s", q)
	}

	value, found, err := s.router.Get(get.Key)
	if err != nil {
		return s.cacheError(q, err, log)
	}

	s.metrics.request(query.KindGet.String(), resultOK)
	if !found {
		return protocol.Miss()
	}
	return protocol.Value(value)
}

func (s *Server) cacheError(q query.Query, err error, log *logrus.Entry) protocol.Response {
	s.metrics.request(q.Kind().String(), resultError)

	var invalid *cache.InvalidKeyError
	var unavailable *cache.ShardUnavailableError
	switch {
	case errors.As(err, &invalid):
		log.WithError(err).Debug("invalid key")
	case errors.As(err, &unavailable):
		log.WithError(err).WithField("shard", unavailable.Shard).Error("shard unavailable")
	default:
		log.WithError(err).Warn("cache operation failed")
	}
	return protocol.Errorf("%v", err)
}
