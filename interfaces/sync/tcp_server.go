package sync

import (
	"context"
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"mindlink/application/store"
)

// TCPServer accepts raw TCP clients speaking the newline-delimited JSON
// protocol, one session goroutine per accepted connection.
type TCPServer struct {
	addr      string
	registry  *Registry
	store     *store.DocumentStore
	allocator *store.IdentityAllocator
	logger    *zap.Logger

	listener net.Listener
}

// NewTCPServer creates a TCP sync server listening on addr once started.
func NewTCPServer(addr string, registry *Registry, docStore *store.DocumentStore, allocator *store.IdentityAllocator, logger *zap.Logger) *TCPServer {
	return &TCPServer{
		addr:      addr,
		registry:  registry,
		store:     docStore,
		allocator: allocator,
		logger:    logger,
	}
}

// Listen binds the listener. Split from Serve so callers can learn the
// bound address before accepting (the tests bind port 0).
func (s *TCPServer) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.logger.Info("sync server listening", zap.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address; valid after Listen.
func (s *TCPServer) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve runs the accept loop until ctx is canceled. Each connection gets
// its own session goroutine; an accept error never takes down running
// sessions.
func (s *TCPServer) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.logger.Info("sync server stopped")
				return nil
			}
			s.logger.Error("accept failed", zap.Error(err))
			continue
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			tcp.SetKeepAlive(true)
			tcp.SetKeepAlivePeriod(3 * time.Minute)
		}

		s.logger.Info("client connected", zap.String("remoteAddr", conn.RemoteAddr().String()))
		session := NewSession(newLineConn(conn), s.registry, s.store, s.allocator, s.logger)
		go session.Run(ctx)
	}
}

// Start is Listen followed by Serve.
func (s *TCPServer) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}
