package goble

import (
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/stack"
)

type charKey struct {
	service string
	char    string
}

// client implements stack.Client on a live ble.Client. GATT handles are
// connection-scoped, so the handle map is rebuilt on every discovery and
// discarded with the client.
type client struct {
	cli    ble.Client
	logger *logrus.Logger

	mu      sync.RWMutex
	handles map[charKey]*ble.Characteristic
}

func newClient(cli ble.Client, logger *logrus.Logger) *client {
	return &client{
		cli:     cli,
		logger:  logger,
		handles: make(map[charKey]*ble.Characteristic),
	}
}

func (c *client) ExchangeMTU(target int) (int, error) {
	granted, err := c.cli.ExchangeMTU(target)
	if err != nil {
		return 0, NormalizeError(err)
	}
	return granted, nil
}

func (c *client) DiscoverServices() ([]stack.GattService, error) {
	profile, err := c.cli.DiscoverProfile(true)
	if err != nil {
		return nil, NormalizeError(fmt.Errorf("failed to discover profile: %w", err))
	}

	handles := make(map[charKey]*ble.Characteristic)
	services := make([]stack.GattService, 0, len(profile.Services))

	for _, svc := range profile.Services {
		svcUUID := core.NormalizeUUID(svc.UUID.String())
		gattSvc := stack.GattService{UUID: svcUUID}

		for _, ch := range svc.Characteristics {
			gattChar := propsToCharacteristic(ch)
			gattSvc.Characteristics = append(gattSvc.Characteristics, gattChar)
			handles[charKey{service: svcUUID, char: gattChar.UUID}] = ch
		}

		services = append(services, gattSvc)
	}

	c.mu.Lock()
	c.handles = handles
	c.mu.Unlock()

	return services, nil
}

// handle resolves a (service, characteristic) pair to the live GATT handle.
// Callers must have run DiscoverServices on this connection first.
func (c *client) handle(serviceUUID, charUUID string) (*ble.Characteristic, error) {
	key := charKey{
		service: core.NormalizeUUID(serviceUUID),
		char:    core.NormalizeUUID(charUUID),
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	h, ok := c.handles[key]
	if !ok {
		return nil, fmt.Errorf("characteristic %q not found in service %q", charUUID, serviceUUID)
	}
	return h, nil
}

func (c *client) Read(serviceUUID, charUUID string) ([]byte, error) {
	h, err := c.handle(serviceUUID, charUUID)
	if err != nil {
		return nil, err
	}

	data, err := c.cli.ReadCharacteristic(h)
	if err != nil {
		return nil, NormalizeError(fmt.Errorf("failed to read characteristic: %w", err))
	}
	return data, nil
}

func (c *client) Write(serviceUUID, charUUID string, data []byte, withResponse bool) error {
	h, err := c.handle(serviceUUID, charUUID)
	if err != nil {
		return err
	}

	if err := c.cli.WriteCharacteristic(h, data, !withResponse); err != nil {
		return NormalizeError(fmt.Errorf("failed to write characteristic: %w", err))
	}
	return nil
}

func (c *client) Subscribe(serviceUUID, charUUID string, handler func(data []byte)) error {
	h, err := c.handle(serviceUUID, charUUID)
	if err != nil {
		return err
	}

	// Prefer notifications; fall back to the indication channel for
	// indicate-only characteristics.
	indicate := h.Property&ble.CharNotify == 0 && h.Property&ble.CharIndicate != 0

	if err := c.cli.Subscribe(h, indicate, handler); err != nil {
		return NormalizeError(fmt.Errorf("failed to subscribe to %s: %w", charUUID, err))
	}
	return nil
}

// Unsubscribe releases both the notify and indicate registrations. It fails
// only when both attempts fail; peripherals commonly support one of the two.
func (c *client) Unsubscribe(serviceUUID, charUUID string) error {
	h, err := c.handle(serviceUUID, charUUID)
	if err != nil {
		return err
	}

	err1 := c.cli.Unsubscribe(h, false)
	err2 := c.cli.Unsubscribe(h, true)
	if err1 != nil && err2 != nil {
		c.logger.WithFields(logrus.Fields{
			"charUUID":    charUUID,
			"notifyErr":   err1,
			"indicateErr": err2,
		}).Error("Failed to unsubscribe from characteristic notifications")
		return fmt.Errorf("%s: notify=%v, indicate=%v", charUUID, err1, err2)
	}
	return nil
}

func (c *client) Disconnected() <-chan struct{} {
	return c.cli.Disconnected()
}

func (c *client) Close() error {
	if err := c.cli.CancelConnection(); err != nil {
		return NormalizeError(err)
	}
	return nil
}

var _ stack.Client = (*client)(nil)
