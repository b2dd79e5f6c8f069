package pairing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Neggy5/OPTIMUS-PRIME-sub001/internal/phone"
)

const minPhoneDigits = 8

const (
	MessageAuthenticated = "Already authenticated"
	MessageCodeIssued    = "Enter the pairing code on your phone under Linked devices"
)

// Options tunes the pairing race.
type Options struct {
	// Timeout bounds the whole attempt, measured from session start.
	Timeout time.Duration
	// CodeDelay lets the connection handshake settle before a code is requested.
	CodeDelay time.Duration
	// LinkWindow keeps a successful connection alive so the phone can finish linking.
	LinkWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.CodeDelay <= 0 {
		o.CodeDelay = 2 * time.Second
	}
	if o.LinkWindow <= 0 {
		o.LinkWindow = 3 * time.Minute
	}
	return o
}

// Result is the successful outcome of a pairing attempt.
type Result struct {
	SessionID   string
	State       State
	PairingCode string
	Message     string
}

// Manager runs pairing sessions and owns their registry entries.
type Manager struct {
	registry Registry
	store    CredentialStore
	dialer   Dialer
	opts     Options

	wg sync.WaitGroup
}

func NewManager(registry Registry, store CredentialStore, dialer Dialer, opts Options) *Manager {
	return &Manager{
		registry: registry,
		store:    store,
		dialer:   dialer,
		opts:     opts.withDefaults(),
	}
}

type codeResult struct {
	code string
	err  error
}

// Pair starts a pairing session for phoneNumber and blocks until it reaches
// a terminal state. A second call for a number whose session is still
// pending fails with ErrPairingInProgress.
func (m *Manager) Pair(ctx context.Context, phoneNumber string) (*Result, error) {
	digits := phone.Digits(phoneNumber)
	if len(digits) < minPhoneDigits {
		return nil, ErrInvalidPhone
	}

	s := newSession(digits)
	if err := m.registry.Register(digits, s); err != nil {
		return nil, err
	}
	s.log.Info().Msg("pairing session started")

	deadline := s.CreatedAt.Add(m.opts.Timeout)
	dialCtx, cancelDial := context.WithDeadline(ctx, deadline)
	stopDial := context.AfterFunc(s.ctx, cancelDial)
	conn, err := m.open(dialCtx, s)
	stopDial()
	cancelDial()
	if err != nil {
		switch {
		case s.ctx.Err() != nil:
			err = ErrSessionClosed
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			err = ErrPairingTimeout
		}
		return nil, m.abort(s, stateFor(err), err)
	}

	return m.await(ctx, s, conn, deadline)
}

func (m *Manager) open(ctx context.Context, s *Session) (Connection, error) {
	creds, err := m.store.Load(ctx, s.ID)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	conn, err := m.dialer.Dial(ctx, s.ID, creds)
	if err != nil {
		_ = creds.Close()
		return nil, fmt.Errorf("dial: %w", err)
	}
	if err := s.attach(conn, creds); err != nil {
		_ = conn.Close()
		_ = creds.Close()
		return nil, err
	}
	return conn, nil
}

// await races connection updates, the delayed code request, the deadline
// and cancellation. The first to resolve wins; the rest are stopped.
func (m *Manager) await(ctx context.Context, s *Session, conn Connection, deadline time.Time) (*Result, error) {
	reqCtx, cancelReq := context.WithCancel(s.ctx)
	defer cancelReq()

	delay := time.NewTimer(m.opts.CodeDelay)
	defer delay.Stop()
	timeout := time.NewTimer(time.Until(deadline))
	defer timeout.Stop()

	codeCh := make(chan codeResult, 1)
	updates := conn.Updates()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return nil, m.abort(s, StateFailed, ErrSessionClosed)
			}
			switch u.Connection {
			case ConnectionOpen:
				return m.succeed(s, conn, StateAuthenticated, "")
			case ConnectionClose:
				if u.Err != nil {
					return nil, m.abort(s, StateFailed, fmt.Errorf("connection closed: %w", u.Err))
				}
				return nil, m.abort(s, StateFailed, ErrSessionClosed)
			}

		case <-delay.C:
			go func() {
				code, err := conn.RequestPairingCode(reqCtx, s.PhoneNumber)
				codeCh <- codeResult{code: code, err: err}
			}()

		case r := <-codeCh:
			if r.err != nil || r.code == "" {
				return nil, m.abort(s, StateFailed, newPairingRequestError(r.err))
			}
			return m.succeed(s, conn, StateCodeIssued, FormatCode(r.code))

		case <-timeout.C:
			return nil, m.abort(s, StateTimedOut, ErrPairingTimeout)

		case <-ctx.Done():
			return nil, m.abort(s, StateFailed, ctx.Err())

		case <-s.ctx.Done():
			return nil, m.abort(s, StateFailed, ErrSessionClosed)
		}
	}
}

func (m *Manager) succeed(s *Session, conn Connection, state State, code string) (*Result, error) {
	if !s.finish(state, code, nil) {
		return nil, ErrSessionClosed
	}
	s.log.Info().Str("state", string(state)).Msg("pairing resolved")

	m.wg.Add(1)
	go m.linger(s, conn.Updates())

	res := &Result{SessionID: s.ID, State: state, PairingCode: code, Message: MessageCodeIssued}
	if state == StateAuthenticated {
		res.Message = MessageAuthenticated
	}
	return res, nil
}

func (m *Manager) abort(s *Session, state State, err error) error {
	s.finish(state, "", err)
	s.Close()
	m.registry.RemoveIf(s.PhoneNumber, s)

	s.log.Warn().Err(err).Str("state", string(state)).Msg("pairing failed")
	return err
}

// linger keeps the connection up after a successful resolution until the
// device links, the remote closes, the link window passes or the session is
// evicted.
func (m *Manager) linger(s *Session, updates <-chan ConnectionUpdate) {
	defer m.wg.Done()
	defer m.registry.RemoveIf(s.PhoneNumber, s)
	defer s.Close()

	window := time.NewTimer(m.opts.LinkWindow)
	defer window.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			switch u.Connection {
			case ConnectionOpen:
				if s.State() == StateCodeIssued {
					s.log.Info().Msg("device linked")
					return
				}
			case ConnectionClose:
				s.log.Info().Err(u.Err).Msg("connection closed by remote")
				return
			}
		case <-window.C:
			s.log.Info().Msg("link window elapsed")
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// Status returns the session registered for phoneNumber.
func (m *Manager) Status(phoneNumber string) (Status, bool) {
	s, ok := m.registry.Get(phone.Digits(phoneNumber))
	if !ok {
		return Status{}, false
	}
	return s.Status(), true
}

// Sessions lists every registered session.
func (m *Manager) Sessions() []Status {
	sessions := m.registry.List()
	out := make([]Status, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Status())
	}
	return out
}

// Cancel tears down the session for phoneNumber, pending or not.
func (m *Manager) Cancel(phoneNumber string) bool {
	digits := phone.Digits(phoneNumber)
	s, ok := m.registry.Get(digits)
	if !ok {
		return false
	}
	s.Close()
	m.registry.RemoveIf(digits, s)
	return true
}

// Sweep evicts terminal sessions older than maxAge and returns how many
// were removed.
func (m *Manager) Sweep(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for _, s := range m.registry.List() {
		if !s.State().Terminal() || s.CreatedAt.After(cutoff) {
			continue
		}
		if m.registry.RemoveIf(s.PhoneNumber, s) {
			s.Close()
			n++
		}
	}
	return n
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, maxAge time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(maxAge); n > 0 {
				log.Info().Int("evicted", n).Msg("swept pairing sessions")
			}
		}
	}
}

// Shutdown closes every session and waits for their connections to drain.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, s := range m.registry.List() {
		s.Close()
		m.registry.RemoveIf(s.PhoneNumber, s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func stateFor(err error) State {
	if errors.Is(err, ErrPairingTimeout) {
		return StateTimedOut
	}
	return StateFailed
}
