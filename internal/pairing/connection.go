package pairing

import "context"

// ConnectionState mirrors the messaging connection lifecycle.
type ConnectionState string

const (
	ConnectionConnecting ConnectionState = "connecting"
	ConnectionOpen       ConnectionState = "open"
	ConnectionClose      ConnectionState = "close"
)

// ConnectionUpdate is one connection-state change.
type ConnectionUpdate struct {
	Connection ConnectionState
	Err        error
}

// Connection is a live messaging connection for one session.
//
// Close must be idempotent and must close both channels once the last
// event has been delivered. Senders must never block on a slow reader.
type Connection interface {
	RequestPairingCode(ctx context.Context, phoneNumber string) (string, error)
	Updates() <-chan ConnectionUpdate
	// CredentialUpdates fires whenever the authentication material changed
	// and should be persisted.
	CredentialUpdates() <-chan struct{}
	Close() error
}

// Credentials is opaque per-session authentication state. Save is the
// persist-credentials callback.
type Credentials interface {
	Save(ctx context.Context) error
	Close() error
}

// CredentialStore restores or creates the credentials of a session.
type CredentialStore interface {
	Load(ctx context.Context, sessionID string) (Credentials, error)
}

// Dialer opens a connection from restored credentials.
type Dialer interface {
	Dial(ctx context.Context, sessionID string, creds Credentials) (Connection, error)
}
