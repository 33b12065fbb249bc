// Package goble implements the stack boundary on top of the go-ble library.
package goble

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/blescope/blescope/internal/core"
	"github.com/blescope/blescope/internal/stack"
)

// DeviceFactory creates ble.Device instances. It is a variable so tests can
// substitute a mock device.
var DeviceFactory = func() (ble.Device, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return dev, nil
}

// Stack implements stack.Stack using go-ble.
type Stack struct {
	logger *logrus.Logger
}

// New creates a go-ble backed stack.
func New(logger *logrus.Logger) *Stack {
	if logger == nil {
		logger = logrus.New()
	}
	return &Stack{logger: logger}
}

// Probe creates a host device to verify the radio is usable. The factory
// surfaces radio-off conditions as AdapterUnavailable.
func (s *Stack) Probe(_ context.Context) error {
	_, err := DeviceFactory()
	return err
}

// Scan runs discovery until ctx is done. Context cancellation and deadline
// expiry are normal termination, not errors.
func (s *Stack) Scan(ctx context.Context, allowDuplicates bool, handler func(stack.Advertisement)) error {
	dev, err := DeviceFactory()
	if err != nil {
		return err
	}

	err = dev.Scan(ctx, allowDuplicates, func(adv ble.Advertisement) {
		handler(newAdvertisement(adv))
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return NormalizeError(err)
	}
	return nil
}

// Dial connects to the peripheral with the given address.
func (s *Stack) Dial(ctx context.Context, id string) (stack.Client, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	ble.SetDefaultDevice(dev)

	cli, err := ble.Dial(ctx, ble.NewAddr(id))
	if err != nil {
		return nil, NormalizeError(fmt.Errorf("failed to connect to %q: %w", id, err))
	}

	s.logger.WithField("address", id).Info("BLE device connected")
	return newClient(cli, s.logger), nil
}

var _ stack.Stack = (*Stack)(nil)

// propsToCharacteristic classifies a characteristic's property bits into the
// boundary capability set.
func propsToCharacteristic(c *ble.Characteristic) stack.GattCharacteristic {
	p := c.Property
	return stack.GattCharacteristic{
		UUID:       core.NormalizeUUID(c.UUID.String()),
		Readable:   p&ble.CharRead != 0,
		Writable:   p&(ble.CharWrite|ble.CharWriteNR) != 0,
		Notifiable: p&(ble.CharNotify|ble.CharIndicate) != 0,
		Indicate:   p&ble.CharNotify == 0 && p&ble.CharIndicate != 0,
	}
}
