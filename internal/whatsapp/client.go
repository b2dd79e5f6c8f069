package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/pairing"
)

// DefaultDisplayName is shown on the phone's linked-devices list. The server
// only accepts the "Browser (OS)" form.
const DefaultDisplayName = "Chrome (Linux)"

var (
	ErrLoggedOut      = errors.New("logged out from phone")
	ErrStreamReplaced = errors.New("session opened elsewhere")
)

// wsClient is the part of *whatsmeow.Client the connection drives.
type wsClient interface {
	PairPhone(ctx context.Context, phone string, showPushNotification bool, clientType whatsmeow.PairClientType, clientDisplayName string) (string, error)
	RemoveEventHandler(id uint32) bool
	Disconnect()
}

// Dialer connects whatsmeow clients from stored credentials.
type Dialer struct {
	displayName string
	log         zerolog.Logger
}

func NewDialer(displayName string, logger zerolog.Logger) *Dialer {
	if displayName == "" {
		displayName = DefaultDisplayName
	}
	return &Dialer{displayName: displayName, log: logger.With().Str("component", "whatsapp").Logger()}
}

func (d *Dialer) Dial(ctx context.Context, sessionID string, creds pairing.Credentials) (pairing.Connection, error) {
	wc, ok := creds.(*Credentials)
	if !ok {
		return nil, fmt.Errorf("whatsapp: unsupported credentials %T", creds)
	}

	logger := d.log.With().Str("session", sessionID).Logger()
	client := whatsmeow.NewClient(wc.Device(), waLog.Zerolog(logger))

	conn := newConnection(client, d.displayName, logger)
	conn.handlerID = client.AddEventHandler(conn.handle)

	if err := client.ConnectContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("whatsapp: connect: %w", err)
	}
	logger.Debug().Bool("logged_in", client.IsLoggedIn()).Msg("websocket connected")
	return conn, nil
}

// Connection turns whatsmeow events into pairing updates.
type Connection struct {
	client      wsClient
	displayName string
	handlerID   uint32
	log         zerolog.Logger

	mu      sync.Mutex
	closed  bool
	updates chan pairing.ConnectionUpdate
	creds   chan struct{}
}

func newConnection(client wsClient, displayName string, logger zerolog.Logger) *Connection {
	return &Connection{
		client:      client,
		displayName: displayName,
		log:         logger,
		updates:     make(chan pairing.ConnectionUpdate, 16),
		creds:       make(chan struct{}, 1),
	}
}

func (c *Connection) RequestPairingCode(ctx context.Context, phoneNumber string) (string, error) {
	return c.client.PairPhone(ctx, phoneNumber, true, whatsmeow.PairClientChrome, c.displayName)
}

func (c *Connection) Updates() <-chan pairing.ConnectionUpdate { return c.updates }

func (c *Connection) CredentialUpdates() <-chan struct{} { return c.creds }

// Close detaches from the client, drops the websocket and closes both
// channels. Further calls are no-ops.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.updates)
	close(c.creds)
	c.mu.Unlock()

	c.client.RemoveEventHandler(c.handlerID)
	c.client.Disconnect()
	return nil
}

func (c *Connection) handle(evt any) {
	switch e := evt.(type) {
	case *events.Connected:
		c.push(pairing.ConnectionUpdate{Connection: pairing.ConnectionOpen})
	case *events.Disconnected:
		c.push(pairing.ConnectionUpdate{Connection: pairing.ConnectionConnecting})
	case *events.PairSuccess:
		c.log.Info().Str("jid", e.ID.String()).Str("platform", e.Platform).Msg("device paired")
		c.credentialsChanged()
	case *events.PairError:
		c.push(pairing.ConnectionUpdate{Connection: pairing.ConnectionClose, Err: fmt.Errorf("pair error: %w", e.Error)})
	case *events.LoggedOut:
		c.push(pairing.ConnectionUpdate{Connection: pairing.ConnectionClose, Err: ErrLoggedOut})
	case *events.StreamReplaced:
		c.push(pairing.ConnectionUpdate{Connection: pairing.ConnectionClose, Err: ErrStreamReplaced})
	case *events.ConnectFailure:
		c.push(pairing.ConnectionUpdate{Connection: pairing.ConnectionClose, Err: fmt.Errorf("connect failure: %s", e.Message)})
	}
}

// push never blocks the whatsmeow event loop; a full buffer drops the update.
func (c *Connection) push(u pairing.ConnectionUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.updates <- u:
	default:
		c.log.Warn().Str("connection", string(u.Connection)).Msg("dropping connection update")
	}
}

// credentialsChanged coalesces bursts into one pending save.
func (c *Connection) credentialsChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.creds <- struct{}{}:
	default:
	}
}
