package main

import (
	"context"
	"errors"

	"github.com/blescope/blescope/internal/core"
)

// ErrConnectionLost indicates the BLE connection was unexpectedly lost
// during an operation. This is distinct from core.ErrNotConnected, which
// indicates an attempt to use a device that was never connected or was
// already disconnected.
var ErrConnectionLost = errors.New("connection lost")

// FormatUserError translates internal errors into actionable messages.
func FormatUserError(err error) string {
	switch {
	case core.IsKind(err, core.AdapterUnavailable):
		return "Bluetooth is turned off or unavailable - enable the radio and retry"
	case core.IsKind(err, core.ScanAlreadyActive):
		return "a scan is already running - stop it before starting another"
	case core.IsKind(err, core.NotConnected):
		return "device is not connected"
	case core.IsKind(err, core.AlreadyConnecting):
		return "a connection attempt is already in progress for this device"
	case core.IsKind(err, core.AlreadyConnected):
		return "device is already connected"
	case core.IsKind(err, core.NotReadable):
		return "characteristic does not support reads"
	case core.IsKind(err, core.NotWritable):
		return "characteristic does not support writes"
	case core.IsKind(err, core.NotNotifiable):
		return "characteristic does not support notifications"
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out"
	case errors.Is(err, ErrConnectionLost):
		return "connection lost"
	default:
		return err.Error()
	}
}
