package session

import (
	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/blescope/blescope/internal/stack"
)

// Manager hands out per-peripheral sessions, keyed by device identity.
// Connection questions are answered by each session's explicit state
// machine, never by scanning a connected-device collection; that closes the
// race window between a scan result and the authoritative stack callback.
type Manager struct {
	stack    stack.Stack
	logger   *logrus.Logger
	sessions *hashmap.Map[string, *Session]
}

// NewManager creates an empty session registry.
func NewManager(st stack.Stack, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		stack:    st,
		logger:   logger,
		sessions: hashmap.New[string, *Session](),
	}
}

// Session returns the session for the given peripheral identity, creating it
// on first use. There is exactly one session per identity for the lifetime
// of the manager, so all observers share one transition history.
func (m *Manager) Session(id string) *Session {
	if s, ok := m.sessions.Get(id); ok {
		return s
	}
	s, _ := m.sessions.GetOrInsert(id, newSession(id, m.stack, m.logger))
	return s
}

// DisconnectAll tears down every session that is not already disconnected.
func (m *Manager) DisconnectAll() {
	m.sessions.Range(func(_ string, s *Session) bool {
		if err := s.Disconnect(); err != nil {
			m.logger.WithField("address", s.ID()).WithError(err).Warn("Failed to disconnect session")
		}
		return true
	})
}
