package protocol

import "fmt"

// ProtocolError reports a frame or reply that violates the wire contract.
// Detail carries a truncated body snippet where one is available.
type ProtocolError struct {
	Op     string
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("protocol: %s failed", e.Op)
	}
	return fmt.Sprintf("protocol: %s: %s", e.Op, e.Detail)
}
