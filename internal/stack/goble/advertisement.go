package goble

import (
	"github.com/go-ble/ble"

	"github.com/blescope/blescope/internal/core"
)

// txPowerUnset is the sentinel go-ble reports when the advertisement carries
// no TX power field.
const txPowerUnset = 127

// advertisement adapts ble.Advertisement to the stack boundary, converting
// library types and normalizing UUIDs eagerly so later lookups are cheap.
type advertisement struct {
	addr        string
	name        string
	rssi        int
	connectable bool
	services    []string
	manufData   []byte
	serviceData map[string][]byte
	txPower     *int
}

func newAdvertisement(adv ble.Advertisement) *advertisement {
	a := &advertisement{
		addr:        adv.Addr().String(),
		name:        adv.LocalName(),
		rssi:        adv.RSSI(),
		connectable: adv.Connectable(),
		serviceData: make(map[string][]byte),
	}

	for _, uuid := range adv.Services() {
		a.services = append(a.services, core.NormalizeUUID(uuid.String()))
	}

	for _, sd := range adv.ServiceData() {
		data := make([]byte, len(sd.Data))
		copy(data, sd.Data)
		a.serviceData[core.NormalizeUUID(sd.UUID.String())] = data
	}

	if md := adv.ManufacturerData(); len(md) > 0 {
		a.manufData = make([]byte, len(md))
		copy(a.manufData, md)
	}

	if tx := adv.TxPowerLevel(); tx != txPowerUnset {
		a.txPower = &tx
	}

	return a
}

func (a *advertisement) Addr() string                  { return a.addr }
func (a *advertisement) LocalName() string             { return a.name }
func (a *advertisement) RSSI() int                     { return a.rssi }
func (a *advertisement) Connectable() bool             { return a.connectable }
func (a *advertisement) Services() []string            { return a.services }
func (a *advertisement) ManufacturerData() []byte      { return a.manufData }
func (a *advertisement) ServiceData() map[string][]byte { return a.serviceData }
func (a *advertisement) TxPower() *int                 { return a.txPower }
