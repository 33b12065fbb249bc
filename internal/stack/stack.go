// Package stack defines the boundary to the host BLE stack. The core
// packages consume these interfaces only; the goble subpackage implements
// them on top of the go-ble library, and tests substitute fakes.
package stack

import "context"

// Advertisement is one received advertisement, already converted to
// library-neutral types. UUIDs are normalized (lowercase, short form).
type Advertisement interface {
	Addr() string
	LocalName() string
	RSSI() int
	Connectable() bool
	Services() []string
	ManufacturerData() []byte
	ServiceData() map[string][]byte
	TxPower() *int
}

// GattCharacteristic describes one characteristic as reported by the stack
// during discovery.
type GattCharacteristic struct {
	UUID       string
	Readable   bool
	Writable   bool
	Notifiable bool
	// Indicate is set when the characteristic supports indications but not
	// notifications; subscription must then use the indication channel.
	Indicate bool
}

// GattService describes one service and its characteristics.
type GattService struct {
	UUID            string
	Characteristics []GattCharacteristic
}

// Client is one live connection to a peripheral. Characteristics are
// addressed by normalized (service, characteristic) UUID pair; the handle
// bookkeeping stays inside the implementation.
type Client interface {
	// ExchangeMTU negotiates the ATT MTU and returns the granted value.
	ExchangeMTU(target int) (int, error)

	// DiscoverServices queries the full service/characteristic tree. Every
	// call re-queries the stack; results are never cached here.
	DiscoverServices() ([]GattService, error)

	Read(serviceUUID, charUUID string) ([]byte, error)
	Write(serviceUUID, charUUID string, data []byte, withResponse bool) error

	// Subscribe registers for notifications. The data slice passed to the
	// handler is only valid for the duration of the call.
	Subscribe(serviceUUID, charUUID string, handler func(data []byte)) error
	Unsubscribe(serviceUUID, charUUID string) error

	// Disconnected is closed when the stack reports connection loss.
	Disconnected() <-chan struct{}

	// Close tears down the connection. Idempotent.
	Close() error
}

// Stack is the host BLE stack as consumed by the core: adapter probing,
// scanning, and dialing. All operations are asynchronous at the radio level
// and honor ctx cancellation.
type Stack interface {
	// Probe checks whether the radio is usable. A nil return means the
	// adapter is powered and ready.
	Probe(ctx context.Context) error

	// Scan runs discovery until ctx is done, invoking handler for each
	// advertisement. Scan blocks for the duration of the scan.
	Scan(ctx context.Context, allowDuplicates bool, handler func(Advertisement)) error

	// Dial connects to the peripheral with the given identity.
	Dial(ctx context.Context, id string) (Client, error)
}
