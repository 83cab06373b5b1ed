package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/rickgao/stockwatch/internal/dispatch"
	"github.com/rickgao/stockwatch/internal/model"
	"github.com/rickgao/stockwatch/internal/prices"
	"github.com/rickgao/stockwatch/internal/store"
)

// QuoteFetcher fetches a price synchronously when the cache has no entry
// for a symbol a client asked about.
type QuoteFetcher interface {
	Fetch(ctx context.Context, symbol string) (model.Quote, error)
}

// Config holds server configuration.
type Config struct {
	Listen         string // host:port
	WriteQueueSize int    // per-session outbound line queue
	AdjustRetries  int    // bounded retries for conflicting position updates
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Listen:         "127.0.0.1:1234",
		WriteQueueSize: 64,
		AdjustRetries:  3,
	}
}

// Server accepts TCP connections and runs one session per connection.
type Server struct {
	cfg        Config
	store      store.Store
	cache      *prices.Cache
	quotes     QuoteFetcher
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	ln net.Listener

	sessionMu sync.Mutex
	sessions  map[*session]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Server.
func New(cfg Config, st store.Store, cache *prices.Cache, quotes QuoteFetcher, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteQueueSize < 1 {
		cfg.WriteQueueSize = DefaultConfig().WriteQueueSize
	}
	if cfg.AdjustRetries < 1 {
		cfg.AdjustRetries = DefaultConfig().AdjustRetries
	}
	return &Server{
		cfg:        cfg,
		store:      st,
		cache:      cache,
		quotes:     quotes,
		dispatcher: dispatcher,
		logger:     logger,
		sessions:   make(map[*session]struct{}),
	}
}

// Start binds the listener and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("server listening", "addr", ln.Addr())
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop closes the listener and every live session, then waits for the
// session goroutines to finish.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.ln != nil {
		s.ln.Close()
	}

	// Snapshot first: close() calls back into removeSession, which takes
	// sessionMu.
	s.sessionMu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.sessionMu.Unlock()

	for _, sess := range open {
		sess.close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("server stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}

		sess := newSession(s, conn)

		s.sessionMu.Lock()
		s.sessions[sess] = struct{}{}
		s.sessionMu.Unlock()

		s.wg.Add(2)
		go sess.readLoop()
		go sess.writeLoop()

		s.logger.Debug("client connected",
			"session_id", sess.id,
			"remote", conn.RemoteAddr(),
		)
	}
}

func (s *Server) removeSession(sess *session) {
	s.sessionMu.Lock()
	delete(s.sessions, sess)
	s.sessionMu.Unlock()
}
