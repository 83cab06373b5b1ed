package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/stockwatch/internal/auth"
	"github.com/rickgao/stockwatch/internal/model"
	"github.com/rickgao/stockwatch/internal/protocol"
	"github.com/rickgao/stockwatch/internal/store"
)

// Client-visible failure reasons. Authentication failures are deliberately
// uniform so a probe cannot distinguish a wrong password from an unknown
// username.
const (
	reasonInvalidCredentials = "invalid credentials"
	reasonUsernameTaken      = "username already taken"
	reasonNotAuthenticated   = "not authenticated"
	reasonAlreadyAuth        = "already authenticated"
	reasonNoSuchAlert        = "no such alert"
	reasonPriceUnavailable   = "price unavailable"
	reasonNoPosition         = "no position"
	reasonInsufficientQty    = "insufficient quantity"
	reasonBusy               = "busy, try again"
	reasonInternal           = "internal error"
	reasonLineTooLong        = "line too long"
)

// maxLineLen bounds one client line. No valid command comes close; longer
// input answers ERR and is discarded to the next newline.
const maxLineLen = 64 * 1024

// commandTimeout bounds every store and quote call made on behalf of a
// single client line.
const commandTimeout = 10 * time.Second

// session is one client connection. The read loop parses and executes
// commands strictly in arrival order; the write loop drains a single
// outbound queue, so responses keep command order while dispatcher-injected
// trigger lines interleave between them.
type session struct {
	id   uuid.UUID
	srv  *Server
	conn net.Conn

	out  chan string
	done chan struct{}

	closeOnce sync.Once

	// Authenticated identity. Written only by the read loop. authMu also
	// orders dispatcher registration against close, which may run on the
	// write loop or the server's Stop goroutine: once closed is set, no
	// registration can happen, so none can outlive the session.
	authMu        sync.Mutex
	closed        bool
	userID        int64
	authenticated bool
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{
		id:   uuid.New(),
		srv:  srv,
		conn: conn,
		out:  make(chan string, srv.cfg.WriteQueueSize),
		done: make(chan struct{}),
	}
}

// Deliver enqueues a trigger line without blocking. Implements
// dispatch.Subscriber.
func (s *session) Deliver(ev model.TriggerEvent) bool {
	line := protocol.Trigger{
		Symbol:    ev.Symbol,
		Direction: ev.Direction,
		Threshold: ev.Threshold,
		Price:     ev.Price,
	}.Line()

	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.out <- line:
		return true
	default:
		return false
	}
}

// close tears the session down exactly once: the dispatcher registration
// goes first so no trigger is enqueued after the write loop exits.
func (s *session) close() {
	s.closeOnce.Do(func() {
		s.authMu.Lock()
		s.closed = true
		userID, authenticated := s.userID, s.authenticated
		s.authMu.Unlock()

		if authenticated {
			s.srv.dispatcher.Deregister(userID, s)
		}
		close(s.done)
		s.conn.Close()
		s.srv.removeSession(s)
	})
}

func (s *session) readLoop() {
	defer s.srv.wg.Done()
	defer s.close()

	r := bufio.NewReaderSize(s.conn, maxLineLen)
	for {
		raw, err := r.ReadSlice('\n')

		// An overlong line is a protocol error, not a connection error:
		// drop input through the next newline, answer ERR, keep going.
		if errors.Is(err, bufio.ErrBufferFull) {
			if !s.discardLine(r) {
				return
			}
			if !s.respond(protocol.Err{Reason: reasonLineTooLong}) {
				return
			}
			continue
		}

		line := strings.TrimSpace(string(raw))
		if line != "" {
			if !s.respond(s.handleLine(line)) {
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.srv.logger.Debug("session read failed",
					"session_id", s.id,
					"err", err,
				)
			}
			return
		}
	}
}

// respond queues one response line in command order; false means the
// session is closing.
func (s *session) respond(resp protocol.Response) bool {
	select {
	case s.out <- resp.Line():
		return true
	case <-s.done:
		return false
	}
}

// discardLine consumes input up to and including the next newline; false
// means the connection died while resynchronizing.
func (s *session) discardLine(r *bufio.Reader) bool {
	for {
		_, err := r.ReadSlice('\n')
		if err == nil {
			return true
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return false
		}
	}
}

func (s *session) writeLoop() {
	defer s.srv.wg.Done()
	defer s.close()

	for {
		select {
		case line := <-s.out:
			if !s.writeLine(line) {
				return
			}
		case <-s.done:
			// Flush responses already queued, then exit.
			for {
				select {
				case line := <-s.out:
					if !s.writeLine(line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *session) writeLine(line string) bool {
	if _, err := s.conn.Write([]byte(line + "\n")); err != nil {
		s.srv.logger.Debug("session write failed",
			"session_id", s.id,
			"err", err,
		)
		return false
	}
	return true
}

// handleLine executes one client line and returns the response to queue.
func (s *session) handleLine(line string) protocol.Response {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		return protocol.Err{Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(s.srv.ctx, commandTimeout)
	defer cancel()

	switch c := cmd.(type) {
	case protocol.Login:
		return s.handleLogin(ctx, c)
	case protocol.Register:
		return s.handleRegister(ctx, c)
	}

	if !s.authenticated {
		return protocol.Err{Reason: reasonNotAuthenticated}
	}

	switch c := cmd.(type) {
	case protocol.AddAlert:
		return s.handleAdd(ctx, c)
	case protocol.DelAlert:
		return s.handleDel(ctx, c)
	case protocol.CheckPrice:
		return s.handlePrice(ctx, c)
	case protocol.Buy:
		return s.handleTrade(ctx, c.Symbol, c.Quantity)
	case protocol.Sell:
		return s.handleTrade(ctx, c.Symbol, -c.Quantity)
	case protocol.GetData:
		return s.handleData(ctx)
	default:
		return protocol.Err{Reason: reasonInternal}
	}
}

func (s *session) handleLogin(ctx context.Context, c protocol.Login) protocol.Response {
	if s.authenticated {
		return protocol.Err{Reason: reasonAlreadyAuth}
	}

	user, err := s.srv.store.UserByUsername(ctx, c.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return protocol.Err{Reason: reasonInvalidCredentials}
		}
		s.srv.logger.Error("login lookup failed", "err", err)
		return protocol.Err{Reason: reasonInternal}
	}
	if !auth.VerifyPassword(c.Password, user.PasswordDigest) {
		return protocol.Err{Reason: reasonInvalidCredentials}
	}

	s.becomeAuthenticated(user.ID)
	return protocol.LoginOK{}
}

func (s *session) handleRegister(ctx context.Context, c protocol.Register) protocol.Response {
	if s.authenticated {
		return protocol.Err{Reason: reasonAlreadyAuth}
	}

	digest, err := auth.HashPassword(c.Password)
	if err != nil {
		s.srv.logger.Error("password hash failed", "err", err)
		return protocol.Err{Reason: reasonInternal}
	}

	user, err := s.srv.store.CreateUser(ctx, c.Username, digest)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateUsername) {
			return protocol.Err{Reason: reasonUsernameTaken}
		}
		s.srv.logger.Error("user create failed", "err", err)
		return protocol.Err{Reason: reasonInternal}
	}

	s.becomeAuthenticated(user.ID)
	s.srv.logger.Info("user registered", "user_id", user.ID, "username", c.Username)
	return protocol.RegisterOK{}
}

func (s *session) becomeAuthenticated(userID int64) {
	s.authMu.Lock()
	defer s.authMu.Unlock()

	s.userID = userID
	s.authenticated = true
	if !s.closed {
		s.srv.dispatcher.Register(userID, s)
	}
}

func (s *session) handleAdd(ctx context.Context, c protocol.AddAlert) protocol.Response {
	symbol := canonicalSymbol(c.Symbol)

	alert, err := s.srv.store.UpsertAlert(ctx, model.Alert{
		UserID:    s.userID,
		Symbol:    symbol,
		Direction: c.Direction,
		Threshold: c.Threshold,
	})
	if err != nil {
		s.srv.logger.Error("alert upsert failed", "err", err)
		return protocol.Err{Reason: reasonInternal}
	}

	return protocol.AlertAdded{
		Symbol:    alert.Symbol,
		Direction: alert.Direction,
		Threshold: alert.Threshold,
	}
}

func (s *session) handleDel(ctx context.Context, c protocol.DelAlert) protocol.Response {
	symbol := canonicalSymbol(c.Symbol)

	var err error
	if c.HasDirection {
		err = s.srv.store.DeleteAlert(ctx, s.userID, symbol, c.Direction)
	} else {
		err = s.srv.store.DeleteAlertsForSymbol(ctx, s.userID, symbol)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return protocol.Err{Reason: reasonNoSuchAlert}
		}
		s.srv.logger.Error("alert delete failed", "err", err)
		return protocol.Err{Reason: reasonInternal}
	}

	return protocol.AlertDeleted{Symbol: symbol}
}

func (s *session) handlePrice(ctx context.Context, c protocol.CheckPrice) protocol.Response {
	symbol := canonicalSymbol(c.Symbol)

	price, ok := s.currentPrice(ctx, symbol)
	if !ok {
		return protocol.Err{Reason: reasonPriceUnavailable}
	}
	return protocol.PriceQuote{Symbol: symbol, Price: price}
}

// handleTrade executes a buy (qtyDelta > 0) or sell (qtyDelta < 0) at the
// current price. Conflicting concurrent updates are retried a bounded
// number of times.
func (s *session) handleTrade(ctx context.Context, symbol string, qtyDelta int64) protocol.Response {
	symbol = canonicalSymbol(symbol)

	price, ok := s.currentPrice(ctx, symbol)
	if !ok {
		return protocol.Err{Reason: reasonPriceUnavailable}
	}

	var (
		pos model.Position
		err error
	)
	for attempt := 0; attempt < s.srv.cfg.AdjustRetries; attempt++ {
		pos, err = s.srv.store.AdjustPosition(ctx, s.userID, symbol, qtyDelta, price)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
	}
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return protocol.Err{Reason: reasonNoPosition}
		case errors.Is(err, store.ErrInsufficientQuantity):
			return protocol.Err{Reason: reasonInsufficientQty}
		case errors.Is(err, store.ErrConflict):
			return protocol.Err{Reason: reasonBusy}
		default:
			s.srv.logger.Error("position update failed", "err", err)
			return protocol.Err{Reason: reasonInternal}
		}
	}

	if qtyDelta > 0 {
		return protocol.Bought{Symbol: pos.Symbol, Quantity: qtyDelta, Price: price}
	}
	return protocol.Sold{Symbol: pos.Symbol, Quantity: -qtyDelta, Price: price}
}

func (s *session) handleData(ctx context.Context) protocol.Response {
	alerts, err := s.srv.store.AlertsByUser(ctx, s.userID)
	if err != nil {
		s.srv.logger.Error("alerts lookup failed", "err", err)
		return protocol.Err{Reason: reasonInternal}
	}
	positions, err := s.srv.store.PositionsByUser(ctx, s.userID)
	if err != nil {
		s.srv.logger.Error("positions lookup failed", "err", err)
		return protocol.Err{Reason: reasonInternal}
	}
	return protocol.Data{Alerts: alerts, Positions: positions}
}

// currentPrice serves from the shared cache; on a miss it fetches
// synchronously. The fetched quote is not written back to the cache, so
// the poller stays the cache's only writer and edge detection never sees
// an out-of-band observation.
func (s *session) currentPrice(ctx context.Context, symbol string) (float64, bool) {
	if q, ok := s.srv.cache.Get(symbol); ok {
		return q.Price, true
	}

	q, err := s.srv.quotes.Fetch(ctx, symbol)
	if err != nil {
		s.srv.logger.Warn("on-demand quote failed", "symbol", symbol, "err", err)
		return 0, false
	}
	return q.Price, true
}

func canonicalSymbol(symbol string) string {
	return strings.ToUpper(symbol)
}
