// Package subscription multiplexes characteristic notifications. One
// physical registration with the radio serves any number of logical
// observers; the registration is released only when the last observer
// detaches or the peripheral disconnects.
package subscription

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/observe"
	"github.com/blescope/blescope/internal/session"
	"github.com/blescope/blescope/internal/stack"
)

// observerBuffer is the per-observer sample buffer. Overwrite-oldest: a slow
// observer loses intermediate samples, never stalls delivery.
const observerBuffer = 64

type regKey struct {
	sessionID string
	service   string
	char      string
}

// registration is one physical notification registration, shared by all
// observers of the same (peripheral, characteristic) pair.
type registration struct {
	key    regKey
	sess   *session.Session
	epoch  uint64
	latest *observe.Value[core.CharacteristicSample]

	mu        sync.Mutex
	observers map[int]*Observer
	nextID    int
}

func (r *registration) deliver(sample core.CharacteristicSample) {
	r.latest.Set(sample)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, obs := range r.observers {
		obs.samples.Send(sample)
	}
}

// Observer is one logical subscriber to a characteristic.
type Observer struct {
	mgr     *Manager
	key     regKey
	id      int
	samples *observe.RingChannel[core.CharacteristicSample]
	latest  *observe.Value[core.CharacteristicSample]
	once    sync.Once
}

// Samples returns the delivery channel. It is closed when the observer
// cancels or the peripheral disconnects.
func (o *Observer) Samples() <-chan core.CharacteristicSample {
	return o.samples.C()
}

// Latest returns the most recent sample, ok=false before the first delivery.
func (o *Observer) Latest() (core.CharacteristicSample, bool) {
	return o.latest.Get()
}

// Cancel detaches this observer. The physical registration is released when
// the last observer for the characteristic cancels; other observers keep
// receiving. Safe to call more than once.
func (o *Observer) Cancel() {
	o.once.Do(func() {
		o.mgr.release(o.key, o.id)
	})
}

// Manager owns all registrations across sessions.
type Manager struct {
	logger *logrus.Logger

	mu   sync.Mutex
	regs map[regKey]*registration
	// hooked tracks sessions whose disconnect teardown is already wired.
	hooked map[string]bool
}

// NewManager creates an empty subscription manager.
func NewManager(logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		logger: logger,
		regs:   make(map[regKey]*registration),
		hooked: make(map[string]bool),
	}
}

// Subscribe attaches a logical observer to a characteristic. It fails with
// NotNotifiable on capability mismatch and NotConnected when the owning
// peripheral is not connected. The first observer triggers the single
// physical registration; later observers share it.
func (m *Manager) Subscribe(s *session.Session, char *core.CharacteristicDescriptor) (*Observer, error) {
	if !char.Capabilities.Notifiable {
		return nil, core.ErrNotNotifiable
	}
	if char.Service == nil {
		return nil, &core.Error{Kind: core.NotNotifiable, Msg: "characteristic has no owning service"}
	}

	client, err := s.Client()
	if err != nil {
		return nil, err
	}

	key := regKey{sessionID: s.ID(), service: char.Service.UUID, char: char.UUID}

	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.regs[key]
	if ok && reg.epoch != s.Epoch() {
		// The registration outlived its connection: it was inserted while a
		// disconnect was racing the subscribe, after the teardown sweep had
		// already run. It can never deliver again, so retire it and start
		// fresh on the live connection.
		delete(m.regs, key)
		reg.mu.Lock()
		for id, obs := range reg.observers {
			delete(reg.observers, id)
			obs.samples.Close()
		}
		reg.mu.Unlock()
		ok = false
	}
	if !ok {
		reg = &registration{
			key:       key,
			sess:      s,
			epoch:     s.Epoch(),
			latest:    observe.NewValue[core.CharacteristicSample](),
			observers: make(map[int]*Observer),
		}

		epoch := reg.epoch
		err := client.Subscribe(key.service, key.char, func(data []byte) {
			// A delivery racing a disconnect must never be attributed to a
			// stale connection; the epoch pins the registration to one.
			if s.Epoch() != epoch {
				return
			}
			reg.deliver(core.NewSample(key.service, key.char, data))
		})
		if err != nil {
			return nil, core.WrapStack("subscribe", err)
		}

		m.regs[key] = reg
		m.hookSessionLocked(s)

		m.logger.WithFields(logrus.Fields{
			"address":  key.sessionID,
			"charUUID": key.char,
		}).Info("Subscribed to characteristic notifications")
	}

	reg.mu.Lock()
	id := reg.nextID
	reg.nextID++
	obs := &Observer{
		mgr:     m,
		key:     key,
		id:      id,
		samples: observe.NewRingChannel[core.CharacteristicSample](observerBuffer),
		latest:  reg.latest,
	}
	reg.observers[id] = obs
	reg.mu.Unlock()

	return obs, nil
}

// hookSessionLocked wires the disconnect teardown for a session exactly
// once. Caller holds m.mu.
func (m *Manager) hookSessionLocked(s *session.Session) {
	if m.hooked[s.ID()] {
		return
	}
	m.hooked[s.ID()] = true

	s.RegisterTeardown(func(client stack.Client) {
		m.teardownSession(s.ID(), client)
	})
}

// release detaches one observer and drops the physical registration when it
// was the last. Stack refusal to acknowledge the unsubscribe is logged, not
// escalated; the connection remains usable either way.
func (m *Manager) release(key regKey, observerID int) {
	m.mu.Lock()
	reg, ok := m.regs[key]
	if !ok {
		m.mu.Unlock()
		return
	}

	reg.mu.Lock()
	obs, attached := reg.observers[observerID]
	if attached {
		delete(reg.observers, observerID)
		obs.samples.Close()
	}
	remaining := len(reg.observers)
	reg.mu.Unlock()

	if remaining > 0 {
		m.mu.Unlock()
		return
	}

	delete(m.regs, key)
	sess := reg.sess
	m.mu.Unlock()

	client, err := sess.Client()
	if err != nil {
		// Disconnected in the meantime; the registration died with the
		// connection.
		return
	}
	if err := client.Unsubscribe(key.service, key.char); err != nil {
		m.logger.WithFields(logrus.Fields{
			"address":  key.sessionID,
			"charUUID": key.char,
		}).WithError(err).Warn("Failed to unsubscribe from characteristic notifications")
	}
}

// teardownSession runs during a session disconnect with the still-live
// client: it unsubscribes every registration of that peripheral and closes
// all observer channels. Samples still in flight are dropped by the epoch
// check in the notification handler.
func (m *Manager) teardownSession(sessionID string, client stack.Client) {
	m.mu.Lock()
	var doomed []*registration
	for key, reg := range m.regs {
		if key.sessionID == sessionID {
			doomed = append(doomed, reg)
			delete(m.regs, key)
		}
	}
	delete(m.hooked, sessionID)
	m.mu.Unlock()

	for _, reg := range doomed {
		if client != nil {
			if err := client.Unsubscribe(reg.key.service, reg.key.char); err != nil {
				m.logger.WithFields(logrus.Fields{
					"address":  sessionID,
					"charUUID": reg.key.char,
				}).WithError(err).Debug("Unsubscribe during disconnect failed")
			}
		}

		reg.mu.Lock()
		for id, obs := range reg.observers {
			delete(reg.observers, id)
			obs.samples.Close()
		}
		reg.mu.Unlock()
	}

	if len(doomed) > 0 {
		m.logger.WithFields(logrus.Fields{
			"address":       sessionID,
			"registrations": len(doomed),
		}).Debug("Tore down notification registrations")
	}
}

// ReadOnce performs a single read of a readable characteristic without
// touching subscription state. The caller's ctx bounds the operation; a
// disconnect mid-read aborts it with NotConnected.
func (m *Manager) ReadOnce(ctx context.Context, s *session.Session, char *core.CharacteristicDescriptor) (core.CharacteristicSample, error) {
	var zero core.CharacteristicSample

	if !char.Capabilities.Readable {
		return zero, core.ErrNotReadable
	}
	if char.Service == nil {
		return zero, &core.Error{Kind: core.NotReadable, Msg: "characteristic has no owning service"}
	}

	client, err := s.Client()
	if err != nil {
		return zero, err
	}

	type result struct {
		data []byte
		err  error
	}
	resCh := make(chan result, 1)

	go func() {
		data, err := client.Read(char.Service.UUID, char.UUID)
		resCh <- result{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		return zero, core.WrapStack("read", ctx.Err())
	case <-s.Context().Done():
		return zero, core.ErrNotConnected
	case res := <-resCh:
		if res.err != nil {
			return zero, core.WrapStack("read", res.err)
		}
		return core.NewSample(char.Service.UUID, char.UUID, res.data), nil
	}
}

// Write sends data to a writable characteristic. withResponse selects an
// acknowledged write.
func (m *Manager) Write(ctx context.Context, s *session.Session, char *core.CharacteristicDescriptor, data []byte, withResponse bool) error {
	if !char.Capabilities.Writable {
		return core.ErrNotWritable
	}
	if char.Service == nil {
		return &core.Error{Kind: core.NotWritable, Msg: "characteristic has no owning service"}
	}

	client, err := s.Client()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Write(char.Service.UUID, char.UUID, data, withResponse)
	}()

	select {
	case <-ctx.Done():
		return core.WrapStack("write", ctx.Err())
	case <-s.Context().Done():
		return core.ErrNotConnected
	case err := <-errCh:
		return core.WrapStack("write", err)
	}
}
