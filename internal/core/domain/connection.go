package domain

import "time"

type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionError        ConnectionState = "error"
)

// ConnectionStatus is a point-in-time view of the stream connection.
type ConnectionStatus struct {
	State          ConnectionState `json:"state"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	NextRetryDelay time.Duration   `json:"next_retry_delay"`
	Exhausted      bool            `json:"exhausted"`
	LastError      string          `json:"last_error,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
