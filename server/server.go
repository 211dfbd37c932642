// Package server implements the serving side of the protocol: one serve loop
// per accepted connection, parallel dispatch of requests, and graceful shutdown.
//
// Request processing pipeline:
//
//	Accept conn → conn.serve (single goroutine reads frames)
//	  → lookup (serviceID, methodID) → Handler.ReadArgument
//	  → for each request: go dispatch (parallel processing)
//	    → Middleware Chain → Recover → Handler.Invoke → Handler.WriteResult → write response
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"idrpc/catalog"
	"idrpc/message"
	"idrpc/middleware"
	"idrpc/registry"
)

var (
	// ErrServerClosed is returned by Serve and ServeConn after Shutdown.
	ErrServerClosed = errors.New("rpc server: server closed")
	// ErrShutdownTimeout is reported by Shutdown when in-flight calls outlive its timeout.
	ErrShutdownTimeout = errors.New("rpc server: timeout waiting for ongoing requests to finish")
)

// Server serves one finalized dispatch table on any number of listeners.
type Server struct {
	table  *registry.Table
	opts   *options
	logger *zap.Logger

	middlewares []middleware.Middleware // Registered middlewares (applied in order)
	handler     middleware.HandlerFunc  // middleware(...(recover(invoke))), built on first serve
	buildOnce   sync.Once

	ctx    context.Context // Server scope; every connection scope derives from it
	cancel context.CancelFunc

	mu          sync.Mutex
	listeners   map[net.Listener]struct{}
	conns       map[*conn]struct{}
	publication catalog.Publication
	inShutdown  bool
	connWG      sync.WaitGroup // Serving connections, including their in-flight calls

	shutdown atomic.Bool // Set during shutdown to suppress Accept errors
}

// NewServer creates a server dispatching through table.
func NewServer(table *registry.Table, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		table:     table,
		opts:      o,
		logger:    o.logger.Named("server"),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[*conn]struct{}),
	}
}

// Use registers middlewares. They are applied in the order they are added and
// must all be registered before the server starts serving.
func (s *Server) Use(mws ...middleware.Middleware) {
	s.middlewares = append(s.middlewares, mws...)
}

// buildHandler builds the chain once: Chain(A, B)(h) → A(B(h)).
// Recover always sits innermost so a panic surfaces as an ordinary failure
// that the outer middlewares can observe.
func (s *Server) buildHandler() {
	s.buildOnce.Do(func() {
		s.handler = middleware.Chain(s.middlewares...)(middleware.RecoverMiddleware(s.logger)(s.invoke))
	})
}

// invoke is the business handler at the core of the chain.
func (s *Server) invoke(ctx context.Context, req *message.Request) *message.Response {
	result, err := req.Handler.Invoke(ctx, req.Arg)
	return &message.Response{Result: result, Error: err}
}

// ListenAndServe listens on the TCP address addr and serves it.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(lis)
}

// Serve accepts connections on lis until Shutdown, serving each on its own
// goroutine. Serve closes lis on return. After Shutdown it returns nil.
func (s *Server) Serve(lis net.Listener) error {
	if !s.trackListener(lis, true) {
		lis.Close()
		return ErrServerClosed
	}
	defer s.trackListener(lis, false)
	defer lis.Close()

	s.buildHandler()
	if err := s.publish(); err != nil {
		return err
	}

	for {
		rwc, err := lis.Accept()
		if err != nil {
			// listener.Close() during shutdown makes Accept fail; that is not an error.
			if s.shutdown.Load() {
				return nil
			}
			s.logger.Error("accept failed", zap.Error(err))
			return err
		}
		c, ok := s.newConn(rwc)
		if !ok {
			rwc.Close()
			continue
		}
		go c.serve()
	}
}

// ServeConn serves a single established connection and blocks until it closes.
func (s *Server) ServeConn(rwc net.Conn) error {
	s.buildHandler()
	c, ok := s.newConn(rwc)
	if !ok {
		rwc.Close()
		return ErrServerClosed
	}
	c.serve()
	return nil
}

// publish makes the table's schema visible in the catalog, once.
func (s *Server) publish() error {
	if s.opts.catalog == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publication != nil || s.inShutdown {
		return nil
	}
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	pub, err := s.opts.catalog.Publish(ctx, catalog.Describe(s.table), s.opts.ttlSeconds())
	if err != nil {
		return fmt.Errorf("rpc server: publish catalog: %w", err)
	}
	s.publication = pub
	return nil
}

func (s *Server) trackListener(lis net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.inShutdown {
			return false
		}
		s.listeners[lis] = struct{}{}
	} else {
		delete(s.listeners, lis)
	}
	return true
}

// newConn registers rwc. Registration and the shutdown flag share s.mu, so
// connWG.Add can never race with the Wait in Shutdown.
func (s *Server) newConn(rwc net.Conn) (*conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inShutdown {
		return nil, false
	}
	c := newConn(s, rwc)
	s.conns[c] = struct{}{}
	s.connWG.Add(1)
	return c, true
}

func (s *Server) removeConn(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) shuttingDown() bool {
	return s.shutdown.Load()
}

// Shutdown performs graceful shutdown:
//  1. Withdraw the schema from the catalog
//  2. Set shutdown flag (so Accept error is recognized as intentional)
//  3. Close the listeners (stop accepting new connections)
//  4. Stop reading new requests, let in-flight calls finish and answer
//  5. On timeout, cancel every connection scope and close the connections
func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.mu.Lock()
	if s.inShutdown {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.inShutdown = true
	pub := s.publication
	s.publication = nil
	listeners := make([]net.Listener, 0, len(s.listeners))
	for lis := range s.listeners {
		listeners = append(listeners, lis)
	}
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var errs error

	// Withdraw first so nothing advertises a table that is going away.
	if pub != nil {
		errs = multierr.Append(errs, pub.Withdraw(ctx))
	}

	// The flag must be set before closing, or Serve would see a real Accept error.
	s.shutdown.Store(true)
	for _, lis := range listeners {
		if err := lis.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierr.Append(errs, err)
		}
	}

	// Unblock every read loop; they drain their in-flight calls and close.
	for _, c := range conns {
		c.stopReading()
	}

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		for _, c := range conns {
			errs = multierr.Append(errs, c.close())
		}
		errs = multierr.Append(errs, ErrShutdownTimeout)
	}
	s.cancel()
	return errs
}
