// Package discovery enumerates the GATT tree of a connected peripheral.
package discovery

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/gattnames"
	"github.com/blescope/blescope/internal/session"
	"github.com/blescope/blescope/internal/stack"
)

// Engine performs service discovery. It holds no cache: every Discover call
// re-queries the stack, because GATT handles are connection-scoped and a
// reconnect invalidates any earlier tree.
type Engine struct {
	logger *logrus.Logger
}

// NewEngine creates a discovery engine.
func NewEngine(logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	return &Engine{logger: logger}
}

// Discover returns the full service/characteristic tree of the session's
// peripheral. It fails with NotConnected unless the session is connected.
// The stack enforces no timeout of its own, so the caller's ctx bounds the
// operation; a disconnect mid-flight aborts it as well.
func (e *Engine) Discover(ctx context.Context, s *session.Session) ([]*core.ServiceDescriptor, error) {
	client, err := s.Client()
	if err != nil {
		return nil, err
	}

	type result struct {
		services []stack.GattService
		err      error
	}
	resCh := make(chan result, 1)

	go func() {
		services, err := client.DiscoverServices()
		resCh <- result{services: services, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, core.WrapStack("discover", ctx.Err())
	case <-s.Context().Done():
		// Peripheral disconnected while discovery was in flight.
		return nil, core.ErrNotConnected
	case res := <-resCh:
		if res.err != nil {
			return nil, core.WrapStack("discover", res.err)
		}
		return buildTree(res.services, e.logger), nil
	}
}

// buildTree converts the stack's flat report into the descriptor model.
// Characteristics without any usable operation stay in the model; filtering
// them from actionable views is the consumer's concern.
func buildTree(services []stack.GattService, logger *logrus.Logger) []*core.ServiceDescriptor {
	tree := make([]*core.ServiceDescriptor, 0, len(services))

	for _, svc := range services {
		desc := &core.ServiceDescriptor{
			UUID: svc.UUID,
			Name: gattnames.Service(svc.UUID),
		}

		for _, ch := range svc.Characteristics {
			desc.Characteristics = append(desc.Characteristics, &core.CharacteristicDescriptor{
				UUID:    ch.UUID,
				Name:    gattnames.Characteristic(ch.UUID),
				Service: desc,
				Capabilities: core.Capabilities{
					Readable:   ch.Readable,
					Writable:   ch.Writable,
					Notifiable: ch.Notifiable,
				},
			})
		}

		logger.WithFields(logrus.Fields{
			"service_uuid":    svc.UUID,
			"characteristics": len(svc.Characteristics),
		}).Debug("Discovered service")

		tree = append(tree, desc)
	}

	return tree
}

// FindCharacteristic locates a characteristic by UUID across the tree. An
// empty serviceUUID matches any service; ambiguous matches are an error so
// the caller can disambiguate explicitly.
func FindCharacteristic(tree []*core.ServiceDescriptor, serviceUUID, charUUID string) (*core.CharacteristicDescriptor, error) {
	wantSvc := core.NormalizeUUID(serviceUUID)
	wantChar := core.NormalizeUUID(charUUID)

	var found *core.CharacteristicDescriptor
	for _, svc := range tree {
		if wantSvc != "" && svc.UUID != wantSvc {
			continue
		}
		for _, ch := range svc.Characteristics {
			if ch.UUID != wantChar {
				continue
			}
			if found != nil {
				return nil, fmt.Errorf("characteristic %q is ambiguous across services; specify a service UUID", charUUID)
			}
			found = ch
		}
	}

	if found == nil {
		return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
	}
	return found, nil
}
