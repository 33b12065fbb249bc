package core

import (
	"time"
)

// AdapterState describes the host Bluetooth radio's power state. It is
// process-wide, sourced from the host stack, and read-only to this system.
type AdapterState int

const (
	AdapterUnknown AdapterState = iota
	AdapterOff
	AdapterOn
	AdapterTurningOn
	AdapterTurningOff
)

func (s AdapterState) String() string {
	switch s {
	case AdapterOff:
		return "off"
	case AdapterOn:
		return "on"
	case AdapterTurningOn:
		return "turning_on"
	case AdapterTurningOff:
		return "turning_off"
	default:
		return "unknown"
	}
}

// ConnectionStatus is the per-peripheral connection lifecycle state. It is
// driven exclusively by the underlying stack's callbacks, never inferred
// optimistically.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusDisconnecting
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

// PeripheralInfo identifies a discovered device. Instances are created on the
// first advertisement sighting during a scan and updated in place on repeat
// sightings, keyed by ID.
type PeripheralInfo struct {
	ID                 string            `json:"id"`
	Name               string            `json:"name,omitempty"`
	RSSI               int               `json:"rssi"`
	TxPower            *int              `json:"tx_power,omitempty"`
	Connectable        bool              `json:"connectable"`
	AdvertisedServices []string          `json:"advertised_services,omitempty"`
	ManufacturerData   []byte            `json:"manufacturer_data,omitempty"`
	ServiceData        map[string][]byte `json:"service_data,omitempty"`
	FirstSeen          time.Time         `json:"first_seen"`
	LastSeen           time.Time         `json:"last_seen"`
}

// Capabilities is the operation set a characteristic supports.
type Capabilities struct {
	Readable   bool `json:"readable"`
	Writable   bool `json:"writable"`
	Notifiable bool `json:"notifiable"`
}

// Actionable reports whether at least one operation is supported. Consumers
// filter non-actionable characteristics from interactive views; the data
// model retains them.
func (c Capabilities) Actionable() bool {
	return c.Readable || c.Writable || c.Notifiable
}

// ServiceDescriptor is a GATT service and its characteristics. Descriptors
// are valid only for the lifetime of one connection; handles are
// connection-scoped and must be rediscovered after a disconnect.
type ServiceDescriptor struct {
	UUID            string                      `json:"uuid"`
	Name            string                      `json:"name,omitempty"`
	Characteristics []*CharacteristicDescriptor `json:"characteristics"`
}

// CharacteristicDescriptor is a GATT characteristic within a service.
// Service is a non-owning back-reference with no independent lifecycle.
type CharacteristicDescriptor struct {
	UUID         string             `json:"uuid"`
	Name         string             `json:"name,omitempty"`
	Service      *ServiceDescriptor `json:"-"`
	Capabilities Capabilities       `json:"capabilities"`
}

// CharacteristicSample is an immutable byte sequence captured from one
// characteristic. Each new notification supersedes the previous sample; the
// system retains only the latest per characteristic.
type CharacteristicSample struct {
	ServiceUUID        string    `json:"service_uuid"`
	CharacteristicUUID string    `json:"characteristic_uuid"`
	Data               []byte    `json:"data"`
	CapturedAt         time.Time `json:"captured_at"`
}

// NewSample copies data into a fresh sample stamped with the current time.
// The copy keeps the sample immutable even when the stack reuses its buffers.
func NewSample(serviceUUID, charUUID string, data []byte) CharacteristicSample {
	buf := make([]byte, len(data))
	copy(buf, data)
	return CharacteristicSample{
		ServiceUUID:        serviceUUID,
		CharacteristicUUID: charUUID,
		Data:               buf,
		CapturedAt:         time.Now(),
	}
}
