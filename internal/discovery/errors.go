package discovery

import "fmt"

// NotFoundError reports a GATT resource missing from a discovered tree.
type NotFoundError struct {
	Resource string   // "service" or "characteristic"
	UUIDs    []string // [serviceUUID] or [serviceUUID, charUUID]
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 || e.UUIDs[0] == "" {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[len(e.UUIDs)-1])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}
