package gattnames_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blescope/blescope/internal/gattnames"
)

func TestService(t *testing.T) {
	assert.Equal(t, "Heart Rate", gattnames.Service("180d"))
	assert.Equal(t, "Battery Service", gattnames.Service("180F"), "lookup is case-insensitive")
	assert.Equal(t, "Heart Rate", gattnames.Service("0000180d-0000-1000-8000-00805f9b34fb"),
		"SIG-base 128-bit form resolves to the short name")
	assert.Empty(t, gattnames.Service("6e400001-b5a3-f393-e0a9-e50e24dcca9e"),
		"vendor UUIDs have no assigned name")
}

func TestCharacteristic(t *testing.T) {
	assert.Equal(t, "Device Name", gattnames.Characteristic("2a00"))
	assert.Equal(t, "Heart Rate Measurement", gattnames.Characteristic("0x2A37"))
	assert.Empty(t, gattnames.Characteristic("ff01"))
}

func TestDescriptor(t *testing.T) {
	assert.Equal(t, "Client Characteristic Configuration", gattnames.Descriptor("2902"))
	assert.Empty(t, gattnames.Descriptor("ffff"))
}
