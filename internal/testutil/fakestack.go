// Package testutil provides fake stack implementations and fixture builders
// for exercising the core against scripted peripherals.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/stack"
)

// Adv is a scripted advertisement.
type Adv struct {
	Address    string
	Name       string
	Rssi       int
	Conn       bool
	SvcUUIDs   []string
	ManufData  []byte
	SvcData    map[string][]byte
	TxPowerLvl *int
}

// NewAdv creates a connectable advertisement with the given identity.
func NewAdv(address, name string, rssi int) *Adv {
	return &Adv{Address: address, Name: name, Rssi: rssi, Conn: true}
}

// WithServices adds advertised service UUIDs.
func (a *Adv) WithServices(uuids ...string) *Adv {
	a.SvcUUIDs = append(a.SvcUUIDs, uuids...)
	return a
}

func (a *Adv) Addr() string                   { return a.Address }
func (a *Adv) LocalName() string              { return a.Name }
func (a *Adv) RSSI() int                      { return a.Rssi }
func (a *Adv) Connectable() bool              { return a.Conn }
func (a *Adv) Services() []string             { return a.SvcUUIDs }
func (a *Adv) ManufacturerData() []byte       { return a.ManufData }
func (a *Adv) ServiceData() map[string][]byte { return a.SvcData }
func (a *Adv) TxPower() *int                  { return a.TxPowerLvl }

var _ stack.Advertisement = (*Adv)(nil)

// FakeStack is a scripted stack.Stack. Advertisements queued before Scan are
// replayed in order; more can be injected live with Advertise. Dial hands
// out the configured FakeClient and counts attempts.
type FakeStack struct {
	ProbeErr error
	DialErr  error
	ScanErr  error

	// DialHold, when set, blocks Dial until it is closed or the dial
	// context ends. Used to script in-flight connection attempts.
	DialHold chan struct{}

	Client *FakeClient

	mu       sync.Mutex
	queued   []*Adv
	advCh    chan *Adv
	dials    int64
	scanning atomic.Bool
}

// NewFakeStack creates a stack with a default empty client.
func NewFakeStack() *FakeStack {
	return &FakeStack{
		Client: NewFakeClient(),
		advCh:  make(chan *Adv, 64),
	}
}

// Queue schedules advertisements for replay at scan start.
func (f *FakeStack) Queue(advs ...*Adv) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued = append(f.queued, advs...)
}

// Advertise injects an advertisement into a running scan.
func (f *FakeStack) Advertise(adv *Adv) {
	f.advCh <- adv
}

// Scanning reports whether a scan is currently blocked in Scan.
func (f *FakeStack) Scanning() bool {
	return f.scanning.Load()
}

// DialCount returns the number of Dial attempts seen.
func (f *FakeStack) DialCount() int {
	return int(atomic.LoadInt64(&f.dials))
}

func (f *FakeStack) Probe(context.Context) error {
	if f.ProbeErr != nil {
		return f.ProbeErr
	}
	return nil
}

func (f *FakeStack) Scan(ctx context.Context, _ bool, handler func(stack.Advertisement)) error {
	if f.ScanErr != nil {
		return f.ScanErr
	}

	f.scanning.Store(true)
	defer f.scanning.Store(false)

	f.mu.Lock()
	queued := f.queued
	f.queued = nil
	f.mu.Unlock()

	for _, adv := range queued {
		handler(adv)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case adv := <-f.advCh:
			handler(adv)
		}
	}
}

func (f *FakeStack) Dial(ctx context.Context, _ string) (stack.Client, error) {
	atomic.AddInt64(&f.dials, 1)
	if f.DialErr != nil {
		return nil, f.DialErr
	}
	if f.DialHold != nil {
		select {
		case <-f.DialHold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f.Client.reopen()
	return f.Client, nil
}

var _ stack.Stack = (*FakeStack)(nil)

type charKey struct {
	service string
	char    string
}

// FakeClient is a scripted stack.Client backed by a peripheral definition
// assembled with the builder methods.
type FakeClient struct {
	MTUGranted int
	MTUErr     error

	// DiscoverHold, when set, blocks DiscoverServices until it is closed.
	// Used to script in-flight discovery.
	DiscoverHold chan struct{}

	// SubscribeHold, when set, blocks Subscribe until it is closed. The
	// subscribe count is taken before the hold, so callers can wait for the
	// call to arrive. Used to script a disconnect racing an in-flight
	// subscribe.
	SubscribeHold chan struct{}

	// MTUHold, when set, blocks ExchangeMTU until it is closed. Used to
	// script a disconnect racing the negotiation.
	MTUHold chan struct{}

	mu            sync.Mutex
	services      []stack.GattService
	values        map[charKey][]byte
	readErr       map[charKey]error
	writes        map[charKey][][]byte
	handlers      map[charKey]func([]byte)
	subscribes    map[charKey]int
	unsubscribes  map[charKey]int
	discoverCalls int
	disconnected  chan struct{}
	closed        bool
}

// NewFakeClient creates an empty peripheral.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		MTUGranted:   185,
		values:       make(map[charKey][]byte),
		readErr:      make(map[charKey]error),
		writes:       make(map[charKey][][]byte),
		handlers:     make(map[charKey]func([]byte)),
		subscribes:   make(map[charKey]int),
		unsubscribes: make(map[charKey]int),
		disconnected: make(chan struct{}),
	}
}

// WithService starts a new service on the peripheral.
func (c *FakeClient) WithService(uuid string) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services = append(c.services, stack.GattService{UUID: core.NormalizeUUID(uuid)})
	return c
}

// WithCharacteristic adds a characteristic to the most recent service.
// props is a comma-separated subset of "read,write,notify"; value seeds the
// read response.
func (c *FakeClient) WithCharacteristic(uuid, props string, value []byte) *FakeClient {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.services) == 0 {
		panic("testutil: WithCharacteristic before WithService")
	}

	ch := stack.GattCharacteristic{UUID: core.NormalizeUUID(uuid)}
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(p) {
		case "read":
			ch.Readable = true
		case "write":
			ch.Writable = true
		case "notify":
			ch.Notifiable = true
		case "indicate":
			ch.Notifiable = true
			ch.Indicate = true
		case "":
		default:
			panic(fmt.Sprintf("testutil: unknown property %q", p))
		}
	}

	svc := &c.services[len(c.services)-1]
	svc.Characteristics = append(svc.Characteristics, ch)
	c.values[charKey{svc.UUID, ch.UUID}] = value
	return c
}

// Notify simulates the peripheral pushing a notification.
func (c *FakeClient) Notify(serviceUUID, charUUID string, data []byte) {
	key := charKey{core.NormalizeUUID(serviceUUID), core.NormalizeUUID(charUUID)}
	c.mu.Lock()
	handler := c.handlers[key]
	c.mu.Unlock()
	if handler != nil {
		handler(data)
	}
}

// FireDisconnect simulates a stack-initiated connection loss.
func (c *FakeClient) FireDisconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.disconnected)
	}
}

// reopen arms a fresh disconnect channel so the client can serve another
// connection after a Close.
func (c *FakeClient) reopen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.closed = false
		c.disconnected = make(chan struct{})
	}
}

// SetReadError scripts a read failure for one characteristic.
func (c *FakeClient) SetReadError(serviceUUID, charUUID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr[charKey{core.NormalizeUUID(serviceUUID), core.NormalizeUUID(charUUID)}] = err
}

// SubscribeCount returns how many physical registrations were made for the
// characteristic.
func (c *FakeClient) SubscribeCount(serviceUUID, charUUID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribes[charKey{core.NormalizeUUID(serviceUUID), core.NormalizeUUID(charUUID)}]
}

// UnsubscribeCount returns how many physical releases were made.
func (c *FakeClient) UnsubscribeCount(serviceUUID, charUUID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unsubscribes[charKey{core.NormalizeUUID(serviceUUID), core.NormalizeUUID(charUUID)}]
}

// DiscoverCalls returns how many times DiscoverServices ran.
func (c *FakeClient) DiscoverCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discoverCalls
}

// Writes returns the values written to one characteristic.
func (c *FakeClient) Writes(serviceUUID, charUUID string) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes[charKey{core.NormalizeUUID(serviceUUID), core.NormalizeUUID(charUUID)}]
}

func (c *FakeClient) ExchangeMTU(int) (int, error) {
	if c.MTUHold != nil {
		<-c.MTUHold
	}
	if c.MTUErr != nil {
		return 0, c.MTUErr
	}
	return c.MTUGranted, nil
}

func (c *FakeClient) DiscoverServices() ([]stack.GattService, error) {
	if c.DiscoverHold != nil {
		<-c.DiscoverHold
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discoverCalls++
	out := make([]stack.GattService, len(c.services))
	copy(out, c.services)
	return out, nil
}

func (c *FakeClient) Read(serviceUUID, charUUID string) ([]byte, error) {
	key := charKey{core.NormalizeUUID(serviceUUID), core.NormalizeUUID(charUUID)}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.readErr[key]; err != nil {
		return nil, err
	}
	val, ok := c.values[key]
	if !ok {
		return nil, fmt.Errorf("characteristic %q not found", charUUID)
	}
	return val, nil
}

func (c *FakeClient) Write(serviceUUID, charUUID string, data []byte, _ bool) error {
	key := charKey{core.NormalizeUUID(serviceUUID), core.NormalizeUUID(charUUID)}
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	c.writes[key] = append(c.writes[key], buf)
	return nil
}

func (c *FakeClient) Subscribe(serviceUUID, charUUID string, handler func([]byte)) error {
	key := charKey{core.NormalizeUUID(serviceUUID), core.NormalizeUUID(charUUID)}
	c.mu.Lock()
	c.subscribes[key]++
	c.mu.Unlock()
	if c.SubscribeHold != nil {
		<-c.SubscribeHold
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[key] = handler
	return nil
}

func (c *FakeClient) Unsubscribe(serviceUUID, charUUID string) error {
	key := charKey{core.NormalizeUUID(serviceUUID), core.NormalizeUUID(charUUID)}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unsubscribes[key]++
	delete(c.handlers, key)
	return nil
}

func (c *FakeClient) Disconnected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *FakeClient) Close() error {
	c.FireDisconnect()
	return nil
}

var _ stack.Client = (*FakeClient)(nil)
