package pairing

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPhone = "+234 801 234 5678"

type fixture struct {
	registry *MemoryRegistry
	conn     *mockConn
	creds    *mockCreds
	dialer   *mockDialer
	manager  *Manager
}

func newFixture(request func(ctx context.Context, phoneNumber string) (string, error)) *fixture {
	f := &fixture{
		registry: NewMemoryRegistry(),
		conn:     newMockConn(request),
		creds:    &mockCreds{},
	}
	f.dialer = &mockDialer{conn: f.conn}
	f.manager = NewManager(f.registry, &mockStore{creds: f.creds}, f.dialer, Options{})
	return f
}

func (f *fixture) shutdown(t *testing.T) {
	t.Helper()
	require.NoError(t, f.manager.Shutdown(context.Background()))
}

func TestPair_OpenBeforeCodeIsAuthenticated(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(nil)
		go func() {
			time.Sleep(time.Second)
			f.conn.emit(ConnectionUpdate{Connection: ConnectionOpen})
		}()

		start := time.Now()
		res, err := f.manager.Pair(context.Background(), testPhone)
		require.NoError(t, err)

		assert.Equal(t, time.Second, time.Since(start))
		assert.Equal(t, StateAuthenticated, res.State)
		assert.Equal(t, MessageAuthenticated, res.Message)
		assert.Equal(t, "session_2348012345678", res.SessionID)
		assert.Empty(t, res.PairingCode)

		// well past the pairing timeout, still inside the link window
		time.Sleep(2 * time.Minute)
		status, ok := f.manager.Status(testPhone)
		require.True(t, ok)
		assert.Equal(t, StateAuthenticated, status.State)
		assert.Equal(t, 0, f.conn.requestCount())
		assert.Equal(t, 0, f.conn.closeCount())

		f.shutdown(t)
		assert.Equal(t, 1, f.conn.closeCount())
	})
}

func TestPair_CodeIssued(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(func(ctx context.Context, phoneNumber string) (string, error) {
			time.Sleep(100 * time.Millisecond)
			return "ABCD1234EFGH", nil
		})

		start := time.Now()
		res, err := f.manager.Pair(context.Background(), testPhone)
		require.NoError(t, err)

		assert.Equal(t, 2100*time.Millisecond, time.Since(start))
		assert.Equal(t, StateCodeIssued, res.State)
		assert.Equal(t, "ABCD-1234-EFGH", res.PairingCode)
		assert.Equal(t, 1, f.conn.requestCount())

		status, ok := f.manager.Status(testPhone)
		require.True(t, ok)
		assert.Equal(t, "ABCD-1234-EFGH", status.PairingCode)

		// phone finishes linking: connection reopens, session is released
		f.conn.emit(ConnectionUpdate{Connection: ConnectionOpen})
		synctest.Wait()

		_, ok = f.manager.Status(testPhone)
		assert.False(t, ok)
		assert.Equal(t, 1, f.conn.closeCount())
		f.shutdown(t)
	})
}

func TestPair_Timeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(nil)

		start := time.Now()
		res, err := f.manager.Pair(context.Background(), testPhone)
		require.ErrorIs(t, err, ErrPairingTimeout)
		assert.Nil(t, res)
		assert.Equal(t, 60*time.Second, time.Since(start))

		synctest.Wait()
		assert.Equal(t, 1, f.conn.closeCount())
		_, closes := f.creds.counts()
		assert.Equal(t, 1, closes)

		_, ok := f.manager.Status(testPhone)
		assert.False(t, ok)
		f.shutdown(t)
		assert.Equal(t, 1, f.conn.closeCount())
	})
}

func TestPair_RequestError(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(func(ctx context.Context, phoneNumber string) (string, error) {
			return "", errors.New("rate-overlimit")
		})

		_, err := f.manager.Pair(context.Background(), testPhone)
		var reqErr *PairingRequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, "rate-overlimit", err.Error())
		assert.Equal(t, 1, f.conn.closeCount())
		f.shutdown(t)
	})
}

func TestPair_EmptyCodeIsRequestError(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(func(ctx context.Context, phoneNumber string) (string, error) {
			return "", nil
		})

		_, err := f.manager.Pair(context.Background(), testPhone)
		var reqErr *PairingRequestError
		require.ErrorAs(t, err, &reqErr)
		assert.Equal(t, "empty pairing code", err.Error())
		f.shutdown(t)
	})
}

func TestPair_RemoteCloseFails(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(nil)
		go func() {
			time.Sleep(500 * time.Millisecond)
			f.conn.emit(ConnectionUpdate{Connection: ConnectionClose, Err: errors.New("stream error")})
		}()

		_, err := f.manager.Pair(context.Background(), testPhone)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "stream error")
		f.shutdown(t)
	})
}

func TestPair_DuplicateRejected(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(nil)

		firstErr := make(chan error, 1)
		go func() {
			_, err := f.manager.Pair(context.Background(), testPhone)
			firstErr <- err
		}()
		synctest.Wait()

		_, err := f.manager.Pair(context.Background(), "2348012345678")
		require.ErrorIs(t, err, ErrPairingInProgress)
		assert.Equal(t, 1, f.dialer.dialCount())

		assert.True(t, f.manager.Cancel(testPhone))
		require.ErrorIs(t, <-firstErr, ErrSessionClosed)
		assert.Equal(t, 1, f.conn.closeCount())
		f.shutdown(t)
	})
}

func TestPair_CallerCancellation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(nil)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := f.manager.Pair(ctx, testPhone)
		require.ErrorIs(t, err, context.DeadlineExceeded)

		synctest.Wait()
		assert.Equal(t, 1, f.conn.closeCount())
		f.shutdown(t)
	})
}

func TestPair_PersistsCredentialUpdates(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(func(ctx context.Context, phoneNumber string) (string, error) {
			return "ABCD1234EFGH", nil
		})
		go func() {
			time.Sleep(time.Second)
			f.conn.credentialsChanged()
		}()

		_, err := f.manager.Pair(context.Background(), testPhone)
		require.NoError(t, err)

		// keeps persisting after the code was handed out
		f.conn.credentialsChanged()
		synctest.Wait()

		saves, _ := f.creds.counts()
		assert.Equal(t, 2, saves)

		f.shutdown(t)
		_, closes := f.creds.counts()
		assert.Equal(t, 1, closes)
	})
}

func TestPair_LinkWindowReleasesSession(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(func(ctx context.Context, phoneNumber string) (string, error) {
			return "ABCD1234EFGH", nil
		})

		_, err := f.manager.Pair(context.Background(), testPhone)
		require.NoError(t, err)

		time.Sleep(3*time.Minute + time.Second)
		synctest.Wait()

		_, ok := f.manager.Status(testPhone)
		assert.False(t, ok)
		assert.Equal(t, 1, f.conn.closeCount())
	})
}

func TestPair_CancelWhileDialingReleasesConnection(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		f := newFixture(nil)
		f.dialer.started = make(chan struct{})
		f.dialer.gate = make(chan struct{})

		errCh := make(chan error, 1)
		go func() {
			_, err := f.manager.Pair(context.Background(), testPhone)
			errCh <- err
		}()

		<-f.dialer.started
		require.True(t, f.manager.Cancel(testPhone))
		close(f.dialer.gate)

		require.ErrorIs(t, <-errCh, ErrSessionClosed)
		synctest.Wait()

		assert.Equal(t, 1, f.conn.closeCount())
		_, closes := f.creds.counts()
		assert.Equal(t, 1, closes)
		assert.Empty(t, f.registry.List())

		// nothing left to tear down
		f.shutdown(t)
		assert.Equal(t, 1, f.conn.closeCount())
	})
}

func TestPair_InvalidPhone(t *testing.T) {
	f := newFixture(nil)
	_, err := f.manager.Pair(context.Background(), "+1 234")
	require.ErrorIs(t, err, ErrInvalidPhone)
	assert.Equal(t, 0, f.dialer.dialCount())
}

func TestPair_LoadFailureReleasesRegistry(t *testing.T) {
	registry := NewMemoryRegistry()
	dialer := &mockDialer{conn: newMockConn(nil)}
	m := NewManager(registry, &mockStore{loadErr: errors.New("disk full")}, dialer, Options{})

	_, err := m.Pair(context.Background(), testPhone)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, registry.List())
	assert.Equal(t, 0, dialer.dialCount())
}

func TestSweep_EvictsOnlyOldTerminalSessions(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		registry := NewMemoryRegistry()
		m := NewManager(registry, &mockStore{}, &mockDialer{}, Options{})

		old := newSession("11111111")
		old.finish(StateCodeIssued, "ABCD-1234", nil)
		require.NoError(t, registry.Register(old.PhoneNumber, old))

		stale := newSession("22222222")
		require.NoError(t, registry.Register(stale.PhoneNumber, stale))

		time.Sleep(10 * time.Minute)

		fresh := newSession("33333333")
		fresh.finish(StateFailed, "", errors.New("boom"))
		require.NoError(t, registry.Register(fresh.PhoneNumber, fresh))

		assert.Equal(t, 1, m.Sweep(5*time.Minute))

		_, ok := registry.Get(old.PhoneNumber)
		assert.False(t, ok)
		_, ok = registry.Get(stale.PhoneNumber)
		assert.True(t, ok)
		_, ok = registry.Get(fresh.PhoneNumber)
		assert.True(t, ok)

		select {
		case <-old.Done():
		default:
			t.Fatal("evicted session was not closed")
		}

		stale.Close()
		fresh.Close()
	})
}

func TestRunSweeper_StopsOnCancel(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		registry := NewMemoryRegistry()
		m := NewManager(registry, &mockStore{}, &mockDialer{}, Options{})

		s := newSession("44444444")
		s.finish(StateTimedOut, "", ErrPairingTimeout)
		require.NoError(t, registry.Register(s.PhoneNumber, s))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- m.RunSweeper(ctx, time.Minute, 30*time.Second) }()

		time.Sleep(time.Minute + time.Second)
		assert.Empty(t, registry.List())

		cancel()
		require.NoError(t, <-done)
	})
}
