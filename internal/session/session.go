// Package session owns the per-peripheral connect/disconnect lifecycle.
package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/observe"
	"github.com/blescope/blescope/internal/stack"
)

// DefaultMTU is the negotiation target when none is configured: the maximal
// ATT MTU a GATT server can grant (512-byte value + 3-byte header + 2 spare).
const DefaultMTU = 517

// ConnectOptions configures one connection attempt.
type ConnectOptions struct {
	// Timeout bounds the dial; zero falls back to 30s. Connect has no
	// stack-enforced timeout, so the session always wraps one.
	Timeout time.Duration
	// MTU is the negotiation target; zero means DefaultMTU.
	MTU int
}

// Session is the connection state machine for a single peripheral. The
// status transitions disconnected → connecting → connected → disconnecting →
// disconnected, with connecting → disconnected on failure. Transitions are
// driven by stack outcomes and callbacks, never inferred optimistically, and
// every observer of this session sees the identical sequence.
type Session struct {
	id     string
	stack  stack.Stack
	logger *logrus.Logger

	mu     sync.Mutex
	status core.ConnectionStatus
	client stack.Client
	mtu    int

	// connCtx is cancelled the moment the session leaves connected; spans
	// in-flight reads and discoveries so they abort with the session.
	connCtx    context.Context
	connCancel context.CancelFunc

	// epoch increments on every disconnect. Notification deliveries carry
	// the epoch they were registered under and are dropped on mismatch.
	epoch uint64

	// teardowns run with the live client while disconnecting, before the
	// transport closes. The subscription layer registers its cleanup here.
	teardowns []func(client stack.Client)

	statusObs *observe.Value[core.ConnectionStatus]
}

func newSession(id string, st stack.Stack, logger *logrus.Logger) *Session {
	return &Session{
		id:        id,
		stack:     st,
		logger:    logger,
		status:    core.StatusDisconnected,
		statusObs: observe.NewValueOf(core.StatusDisconnected),
	}
}

// ID returns the peripheral identity this session is bound to.
func (s *Session) ID() string {
	return s.id
}

// Status returns the current connection status.
func (s *Session) Status() core.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Observe attaches a status observer. The current status is delivered
// immediately as the first observed value.
func (s *Session) Observe(buffer int) *observe.Subscription[core.ConnectionStatus] {
	return s.statusObs.Subscribe(buffer)
}

// Epoch returns the current connection epoch.
func (s *Session) Epoch() uint64 {
	return atomic.LoadUint64(&s.epoch)
}

// MTU returns the granted MTU of the current connection, zero when
// negotiation failed or never ran.
func (s *Session) MTU() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mtu
}

// Client returns the live stack client, or NotConnected.
func (s *Session) Client() (stack.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != core.StatusConnected || s.client == nil {
		return nil, core.ErrNotConnected
	}
	return s.client, nil
}

// Context returns a context that is cancelled when the session leaves the
// connected state. Before the first connect it returns an already-cancelled
// context.
func (s *Session) Context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connCtx == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return s.connCtx
}

// RegisterTeardown adds a hook that runs with the live client during
// disconnect, before the transport closes.
func (s *Session) RegisterTeardown(fn func(client stack.Client)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardowns = append(s.teardowns, fn)
}

// setStatusLocked publishes a transition. Callers hold s.mu, which keeps the
// published sequence identical for all observers.
func (s *Session) setStatusLocked(next core.ConnectionStatus) {
	if s.status == next {
		return
	}
	s.logger.WithFields(logrus.Fields{
		"address": s.id,
		"from":    s.status.String(),
		"to":      next.String(),
	}).Debug("Connection status transition")
	s.status = next
	s.statusObs.Set(next)
}

// Connect transitions the session out of disconnected. Misuse fails fast:
// AlreadyConnecting while a transition is in flight, AlreadyConnected when a
// connection exists. On success the session negotiates the MTU; negotiation
// failure is logged and non-fatal — a working connection at the default MTU
// beats a torn-down session.
func (s *Session) Connect(ctx context.Context, opts ConnectOptions) error {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MTU <= 0 {
		opts.MTU = DefaultMTU
	}

	s.mu.Lock()
	switch s.status {
	case core.StatusConnecting, core.StatusDisconnecting:
		s.mu.Unlock()
		return core.ErrAlreadyConnecting
	case core.StatusConnected:
		s.mu.Unlock()
		return core.ErrAlreadyConnected
	}
	s.setStatusLocked(core.StatusConnecting)
	s.mu.Unlock()

	s.logger.WithField("address", s.id).Info("Connecting to BLE device")

	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	client, err := s.stack.Dial(dialCtx, s.id)

	s.mu.Lock()
	if err != nil {
		s.setStatusLocked(core.StatusDisconnected)
		s.mu.Unlock()
		return core.WrapStack("connect", err)
	}

	if s.status != core.StatusConnecting {
		// Disconnect raced the dial; honor it.
		s.mu.Unlock()
		_ = client.Close()
		return core.ErrNotConnected
	}

	s.client = client
	s.mtu = 0
	s.connCtx, s.connCancel = context.WithCancel(context.Background())
	s.setStatusLocked(core.StatusConnected)
	epoch := s.epoch
	s.mu.Unlock()

	// MTU negotiation happens on entry to connected. The session stays
	// connected at whatever the stack granted.
	granted, err := client.ExchangeMTU(opts.MTU)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"address": s.id,
			"target":  opts.MTU,
		}).WithError(err).Warn("MTU negotiation failed; continuing at stack default")
	} else {
		s.mu.Lock()
		// A disconnect can race the negotiation; the granted value belongs
		// to the connection it was negotiated on, not to the session.
		if s.status == core.StatusConnected && atomic.LoadUint64(&s.epoch) == epoch {
			s.mtu = granted
		}
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{
			"address": s.id,
			"granted": granted,
		}).Debug("MTU negotiated")
	}

	go s.watchDisconnect(client, epoch)

	return nil
}

// watchDisconnect turns a stack-reported connection loss into the same
// transition path as an explicit disconnect.
func (s *Session) watchDisconnect(client stack.Client, epoch uint64) {
	<-client.Disconnected()

	if atomic.LoadUint64(&s.epoch) != epoch {
		// An explicit disconnect already ran for this connection.
		return
	}

	s.logger.WithField("address", s.id).Info("Connection lost")
	if err := s.Disconnect(); err != nil {
		s.logger.WithError(err).Debug("Teardown after connection loss reported error")
	}
}

// Disconnect requests teardown. It is always attempted, even from
// connecting, and is a safe no-op when already disconnected. All in-flight
// operations for this peripheral are cancelled, notification registrations
// released, and late deliveries invalidated via the epoch bump.
func (s *Session) Disconnect() error {
	s.mu.Lock()

	switch s.status {
	case core.StatusDisconnected:
		s.mu.Unlock()
		s.logger.WithField("address", s.id).Debug("Already disconnected")
		return nil
	case core.StatusDisconnecting:
		s.mu.Unlock()
		return nil
	case core.StatusConnecting:
		// No client yet; the dial-completion path sees the status change
		// and abandons the connection.
		s.setStatusLocked(core.StatusDisconnecting)
		atomic.AddUint64(&s.epoch, 1)
		s.setStatusLocked(core.StatusDisconnected)
		s.mu.Unlock()
		return nil
	}

	s.setStatusLocked(core.StatusDisconnecting)

	client := s.client
	cancel := s.connCancel
	teardowns := s.teardowns
	s.client = nil
	s.connCancel = nil
	s.teardowns = nil
	s.mtu = 0
	atomic.AddUint64(&s.epoch, 1)
	s.mu.Unlock()

	s.logger.WithField("address", s.id).Info("Disconnecting BLE device")

	// Abort in-flight reads/discoveries before touching the transport.
	if cancel != nil {
		cancel()
	}

	for _, fn := range teardowns {
		fn(client)
	}

	var closeErr error
	if client != nil {
		closeErr = client.Close()
	}

	s.mu.Lock()
	s.setStatusLocked(core.StatusDisconnected)
	s.mu.Unlock()

	if closeErr != nil {
		s.logger.WithField("address", s.id).WithError(closeErr).Warn("BLE device disconnected with errors")
		return core.WrapStack("disconnect", closeErr)
	}

	s.logger.WithField("address", s.id).Info("BLE device disconnected")
	return nil
}
