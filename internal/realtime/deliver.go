package realtime

import (
	"context"
	"errors"
)

var (
	// ErrConnectionGone means the connection no longer exists at the transport.
	ErrConnectionGone = errors.New("connection gone")
	// ErrDelivery is any other failed delivery.
	ErrDelivery = errors.New("delivery failed")
)

// Deliverer pushes one payload to one connection.
type Deliverer interface {
	Deliver(ctx context.Context, connectionID string, payload []byte) error
}
