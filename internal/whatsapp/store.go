// Package whatsapp adapts whatsmeow to the pairing package: a sqlite-backed
// credential store per session and a connection that reports state changes
// over channels.
package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/pairing"
)

// Store keeps one sqlite database per pairing session under dir.
type Store struct {
	dir string
	log zerolog.Logger
}

func NewStore(dir string, logger zerolog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("whatsapp: empty sessions dir")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("whatsapp: creating sessions dir: %w", err)
	}
	return &Store{dir: dir, log: logger.With().Str("component", "whatsapp_store").Logger()}, nil
}

// Path is the database file backing sessionID.
func (s *Store) Path(sessionID string) string {
	return filepath.Join(s.dir, sanitize(sessionID)+".db")
}

// Load opens the session database and returns its device, creating a fresh
// unpaired one when nothing was stored yet.
func (s *Store) Load(ctx context.Context, sessionID string) (pairing.Credentials, error) {
	dsn := "file:" + s.Path(sessionID) + "?_foreign_keys=on"
	logger := s.log.With().Str("session", sessionID).Logger()

	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Zerolog(logger))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: open store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("whatsapp: load device: %w", err)
	}

	logger.Debug().Bool("paired", device.ID != nil).Msg("credentials loaded")
	return &Credentials{container: container, device: device}, nil
}

// Credentials is the stored whatsmeow device of one session.
type Credentials struct {
	container *sqlstore.Container
	device    *store.Device
}

// Device exposes the underlying whatsmeow device for dialing.
func (c *Credentials) Device() *store.Device {
	return c.device
}

// Save persists the device. Unpaired devices have nothing worth writing yet.
func (c *Credentials) Save(ctx context.Context) error {
	if c.device.ID == nil {
		return nil
	}
	if err := c.device.Save(ctx); err != nil {
		return fmt.Errorf("whatsapp: save device: %w", err)
	}
	return nil
}

func (c *Credentials) Close() error {
	return c.container.Close()
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, id)
}
