// Package scan implements timeout-bounded BLE discovery with conjunctive
// filtering and an identity-deduplicated result collection.
package scan

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/blescope/blescope/internal/adapter"
	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/observe"
	"github.com/blescope/blescope/internal/stack"
)

// EventType marks what happened to the discovered-peripheral collection.
type EventType int

const (
	// EventNew is the first sighting of a device identity this scan.
	EventNew EventType = iota
	// EventUpdated is a repeat sighting; the entry was updated in place.
	EventUpdated
	// EventStopped is the terminal transition. It is emitted exactly once
	// per scan, identically for timeout expiry and an explicit Stop call.
	EventStopped
)

// Event is one scan observation.
type Event struct {
	Type       EventType
	Peripheral core.PeripheralInfo
}

// Options configures one scan. All non-empty filters must match for a
// candidate to be included (conjunctive).
type Options struct {
	// Timeout bounds the scan; zero means scan until Stop.
	Timeout time.Duration
	// NameContains keeps only devices whose advertised name contains the
	// substring (case-insensitive).
	NameContains string
	// AllowedIDs keeps only devices whose identity is in the list.
	AllowedIDs []string
	// ServiceUUIDs keeps only devices advertising at least one listed
	// service.
	ServiceUUIDs []string
	// AllowDuplicates passes repeat advertisements through the stack's
	// duplicate filter; repeat sightings update RSSI and name either way.
	AllowDuplicates bool
}

// DefaultOptions returns the scan defaults.
func DefaultOptions() Options {
	return Options{Timeout: 10 * time.Second, AllowDuplicates: true}
}

// Controller owns one discovery operation at a time. Restart while active is
// rejected with ScanAlreadyActive; this controller never coalesces.
type Controller struct {
	stack   stack.Stack
	monitor *adapter.Monitor
	logger  *logrus.Logger

	mu      sync.Mutex
	active  bool
	cancel  context.CancelFunc
	done    chan struct{}
	scanErr error

	resMu   sync.Mutex
	results *orderedmap.OrderedMap[string, *core.PeripheralInfo]

	events *observe.RingChannel[Event]
}

// NewController creates an idle controller.
func NewController(st stack.Stack, monitor *adapter.Monitor, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		stack:   st,
		monitor: monitor,
		logger:  logger,
		results: orderedmap.New[string, *core.PeripheralInfo](),
		events:  observe.NewRingChannel[Event](256),
	}
}

// Events returns the event channel. Producers never block on it; a slow
// consumer loses the oldest events but the Snapshot collection stays
// complete.
func (c *Controller) Events() <-chan Event {
	return c.events.C()
}

// Start begins discovery. It returns synchronously with AdapterUnavailable
// when the radio is off and ScanAlreadyActive when a scan is running; the
// scan itself proceeds in the background until timeout or Stop.
func (c *Controller) Start(ctx context.Context, opts Options) error {
	if c.monitor != nil && !c.monitor.Usable() {
		return core.ErrAdapterUnavailable
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return core.ErrScanAlreadyActive
	}

	var scanCtx context.Context
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		scanCtx, cancel = context.WithCancel(ctx)
	}

	c.active = true
	c.cancel = cancel
	c.scanErr = nil
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	// Stale entries from the previous scan are discarded on restart.
	c.resMu.Lock()
	c.results = orderedmap.New[string, *core.PeripheralInfo]()
	c.resMu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"timeout": opts.Timeout,
		"name":    opts.NameContains,
	}).Info("Starting BLE scan")

	go func() {
		defer close(done)
		defer cancel()

		err := c.stack.Scan(scanCtx, opts.AllowDuplicates, func(adv stack.Advertisement) {
			c.handleAdvertisement(adv, &opts)
		})

		c.mu.Lock()
		c.active = false
		c.scanErr = err
		c.mu.Unlock()

		if err != nil {
			c.logger.WithError(err).Error("BLE scan failed")
		} else {
			c.logger.WithField("device_count", c.Len()).Info("BLE scan completed")
		}

		c.events.Send(Event{Type: EventStopped})
	}()

	return nil
}

// Stop ends discovery early. It is a no-op when no scan is running. Entries
// already delivered remain available via Snapshot.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the current scan reaches its terminal state and returns
// the scan error, if any. Returns immediately when no scan was started.
func (c *Controller) Wait() error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanErr
}

// Active reports whether a scan is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Len returns the number of discovered peripherals.
func (c *Controller) Len() int {
	c.resMu.Lock()
	defer c.resMu.Unlock()
	return c.results.Len()
}

// Snapshot returns the discovered peripherals in insertion order of first
// sighting. The returned copies are detached from the live collection.
func (c *Controller) Snapshot() []core.PeripheralInfo {
	c.resMu.Lock()
	defer c.resMu.Unlock()

	out := make([]core.PeripheralInfo, 0, c.results.Len())
	for pair := c.results.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}
	return out
}

// handleAdvertisement applies filters, then creates or updates the entry for
// the advertising identity. The collection is updated atomically per event.
func (c *Controller) handleAdvertisement(adv stack.Advertisement, opts *Options) {
	id := adv.Addr()

	c.resMu.Lock()

	entry, known := c.results.Get(id)
	if !known {
		if !matches(adv, opts) {
			c.resMu.Unlock()
			return
		}

		now := time.Now()
		entry = &core.PeripheralInfo{
			ID:                 id,
			Name:               adv.LocalName(),
			RSSI:               adv.RSSI(),
			TxPower:            adv.TxPower(),
			Connectable:        adv.Connectable(),
			AdvertisedServices: adv.Services(),
			ManufacturerData:   adv.ManufacturerData(),
			ServiceData:        adv.ServiceData(),
			FirstSeen:          now,
			LastSeen:           now,
		}
		c.results.Set(id, entry)
		snapshot := *entry
		c.resMu.Unlock()

		c.logger.WithFields(logrus.Fields{
			"device":  snapshot.Name,
			"address": snapshot.ID,
			"rssi":    snapshot.RSSI,
		}).Info("Discovered new device")

		c.events.Send(Event{Type: EventNew, Peripheral: snapshot})
		return
	}

	// Repeat sighting: update in place, keyed by identity. The most recent
	// advertised name and signal win.
	if name := adv.LocalName(); name != "" {
		entry.Name = name
	}
	entry.RSSI = adv.RSSI()
	entry.LastSeen = time.Now()
	if tx := adv.TxPower(); tx != nil {
		entry.TxPower = tx
	}
	if svcs := adv.Services(); len(svcs) > 0 {
		entry.AdvertisedServices = svcs
	}
	snapshot := *entry
	c.resMu.Unlock()

	c.events.Send(Event{Type: EventUpdated, Peripheral: snapshot})
}

// matches applies the conjunctive filter set.
func matches(adv stack.Advertisement, opts *Options) bool {
	if opts.NameContains != "" &&
		!strings.Contains(strings.ToLower(adv.LocalName()), strings.ToLower(opts.NameContains)) {
		return false
	}

	if len(opts.AllowedIDs) > 0 {
		allowed := false
		for _, id := range opts.AllowedIDs {
			if strings.EqualFold(id, adv.Addr()) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(opts.ServiceUUIDs) > 0 {
		required := core.NormalizeUUIDs(opts.ServiceUUIDs)
		found := false
		for _, want := range required {
			for _, have := range adv.Services() {
				if want == core.NormalizeUUID(have) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
