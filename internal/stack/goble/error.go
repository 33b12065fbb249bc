package goble

import (
	"fmt"
	"strings"

	"github.com/blescope/blescope/internal/core"
)

// NormalizeError maps known go-ble error strings to the structured failure
// taxonomy. It keeps handling consistent even if the upstream library changes
// messages slightly, and wraps to preserve the original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "central manager has invalid state"):
		// Darwin reports radio power through the central manager state;
		// have=4 is StatePoweredOff.
		return fmt.Errorf("%w: %v", core.ErrAdapterUnavailable, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", core.ErrAdapterUnavailable, err)
	case containsIgnoreCase(msg, "can't init hci"):
		return fmt.Errorf("%w: %v", core.ErrAdapterUnavailable, err)
	case containsIgnoreCase(msg, "no devices available"):
		return fmt.Errorf("%w: %v", core.ErrAdapterUnavailable, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", core.ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", core.ErrAlreadyConnected, err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively.
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
