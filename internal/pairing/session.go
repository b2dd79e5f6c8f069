package pairing

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// State is the lifecycle of a pairing session. Pending moves exactly once
// into one of the terminal states.
type State string

const (
	StatePending       State = "pending"
	StateAuthenticated State = "authenticated"
	StateCodeIssued    State = "code_issued"
	StateTimedOut      State = "timed_out"
	StateFailed        State = "failed"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s != StatePending
}

// Status is a point-in-time view of a session.
type Status struct {
	SessionID   string
	PhoneNumber string
	State       State
	PairingCode string
	Err         error
	CreatedAt   time.Time
}

// Session is one pairing attempt for a phone number. It owns the messaging
// connection and the credential-persistence task bound to it.
type Session struct {
	ID          string
	PhoneNumber string
	CreatedAt   time.Time

	mu          sync.Mutex
	state       State
	pairingCode string
	err         error
	conn        Connection
	creds       Credentials

	// ctx lives as long as the connection; cancelled on teardown
	ctx    context.Context
	cancel context.CancelFunc

	persist   sync.WaitGroup
	closeOnce sync.Once
	log       zerolog.Logger
}

// SessionID derives the session identifier from the normalized number.
func SessionID(digits string) string {
	return "session_" + digits
}

func newSession(digits string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := SessionID(digits)
	return &Session{
		ID:          id,
		PhoneNumber: digits,
		CreatedAt:   time.Now(),
		state:       StatePending,
		ctx:         ctx,
		cancel:      cancel,
		log:         log.With().Str("session", id).Logger(),
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status snapshots the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		SessionID:   s.ID,
		PhoneNumber: s.PhoneNumber,
		State:       s.state,
		PairingCode: s.pairingCode,
		Err:         s.err,
		CreatedAt:   s.CreatedAt,
	}
}

// Done is closed once the connection has been torn down.
func (s *Session) Done() <-chan struct{} {
	return s.ctx.Done()
}

// finish moves a pending session into a terminal state. Later calls are
// ignored, so the first outcome wins.
func (s *Session) finish(state State, code string, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Terminal() {
		return false
	}
	s.state = state
	s.pairingCode = code
	s.err = err
	return true
}

// attach binds a live connection to the session and starts persisting
// credentials on every credential-update event until the connection closes.
// A session closed while dialing rejects the connection with ErrSessionClosed;
// the caller still owns conn and creds then.
func (s *Session) attach(conn Connection, creds Credentials) error {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.conn = conn
	s.creds = creds
	s.mu.Unlock()

	s.persist.Add(1)
	go func() {
		defer s.persist.Done()
		for range conn.CredentialUpdates() {
			saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := creds.Save(saveCtx); err != nil {
				s.log.Error().Err(err).Msg("failed to persist credentials")
			} else {
				s.log.Debug().Msg("credentials persisted")
			}
			cancel()
		}
	}()
	return nil
}

// Close tears the connection down exactly once and joins the persistence
// task. Safe to call from any goroutine, any number of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		// cancel under mu so attach either sees it or is seen here
		s.mu.Lock()
		s.cancel()
		conn, creds := s.conn, s.creds
		s.mu.Unlock()

		if conn != nil {
			if err := conn.Close(); err != nil {
				s.log.Warn().Err(err).Msg("error closing connection")
			}
		}
		s.persist.Wait()
		if creds != nil {
			if err := creds.Close(); err != nil {
				s.log.Warn().Err(err).Msg("error closing credential store")
			}
		}

		s.log.Debug().Msg("session closed")
	})
}
