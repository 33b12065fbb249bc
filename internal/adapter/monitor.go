// Package adapter observes the host Bluetooth radio's power state.
package adapter

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/observe"
	"github.com/blescope/blescope/internal/stack"
)

// Monitor tracks the adapter state by probing the stack. The state is
// exposed as an observable; new observers immediately see the last known
// state. The transitional states (turning on/off) are only reported by hosts
// whose stacks surface them; probing alone distinguishes on, off, and
// unknown.
type Monitor struct {
	stack  stack.Stack
	logger *logrus.Logger
	state  *observe.Value[core.AdapterState]
}

// NewMonitor creates a monitor in the unknown state. Call Refresh to probe.
func NewMonitor(st stack.Stack, logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{
		stack:  st,
		logger: logger,
		state:  observe.NewValueOf(core.AdapterUnknown),
	}
}

// Refresh probes the radio and publishes the classified state.
func (m *Monitor) Refresh(ctx context.Context) core.AdapterState {
	var next core.AdapterState

	err := m.stack.Probe(ctx)
	switch {
	case err == nil:
		next = core.AdapterOn
	case core.IsKind(err, core.AdapterUnavailable):
		next = core.AdapterOff
	default:
		m.logger.WithError(err).Warn("Adapter probe failed with unclassified error")
		next = core.AdapterUnknown
	}

	m.state.Set(next)
	m.logger.WithField("state", next.String()).Debug("Adapter state refreshed")
	return next
}

// State returns the last known adapter state.
func (m *Monitor) State() core.AdapterState {
	s, _ := m.state.Get()
	return s
}

// Usable reports whether scanning can usefully run. Unknown is treated as
// usable; the scan itself will surface AdapterUnavailable if the probe was
// wrong.
func (m *Monitor) Usable() bool {
	return m.State() != core.AdapterOff && m.State() != core.AdapterTurningOff
}

// Observe attaches an observer to the adapter state with immediate replay of
// the current value.
func (m *Monitor) Observe(buffer int) *observe.Subscription[core.AdapterState] {
	return m.state.Subscribe(buffer)
}
