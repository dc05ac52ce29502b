package models

import "time"

// Connection is one live realtime subscriber.
type Connection struct {
	ConnectionID string    `json:"connection_id"`
	RegisteredAt time.Time `json:"registered_at"`
}
