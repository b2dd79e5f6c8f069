package pairing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRegistry_RejectsPendingDuplicate(t *testing.T) {
	r := NewMemoryRegistry()
	first := newSession("2348012345678")
	second := newSession("2348012345678")
	defer first.Close()
	defer second.Close()

	require.NoError(t, r.Register(first.PhoneNumber, first))
	require.ErrorIs(t, r.Register(second.PhoneNumber, second), ErrPairingInProgress)

	got, ok := r.Get(first.PhoneNumber)
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestMemoryRegistry_ReplacesTerminalSession(t *testing.T) {
	r := NewMemoryRegistry()
	old := newSession("2348012345678")
	old.finish(StateTimedOut, "", ErrPairingTimeout)
	require.NoError(t, r.Register(old.PhoneNumber, old))

	next := newSession("2348012345678")
	defer next.Close()
	require.NoError(t, r.Register(next.PhoneNumber, next))

	got, _ := r.Get(next.PhoneNumber)
	assert.Same(t, next, got)

	select {
	case <-old.Done():
	case <-time.After(time.Second):
		t.Fatal("replaced session was not closed")
	}
}

func TestMemoryRegistry_RemoveIf(t *testing.T) {
	r := NewMemoryRegistry()
	old := newSession("2348012345678")
	old.finish(StateFailed, "", ErrSessionClosed)
	require.NoError(t, r.Register(old.PhoneNumber, old))

	next := newSession("2348012345678")
	defer next.Close()
	require.NoError(t, r.Register(next.PhoneNumber, next))

	assert.False(t, r.RemoveIf(old.PhoneNumber, old), "stale owner must not evict the new entry")
	assert.True(t, r.RemoveIf(next.PhoneNumber, next))

	_, ok := r.Get(next.PhoneNumber)
	assert.False(t, ok)
}

func TestMemoryRegistry_ListAndRemove(t *testing.T) {
	r := NewMemoryRegistry()
	a := newSession("11111111")
	a.CreatedAt = time.Unix(100, 0)
	b := newSession("22222222")
	b.CreatedAt = time.Unix(50, 0)
	require.NoError(t, r.Register(a.PhoneNumber, a))
	require.NoError(t, r.Register(b.PhoneNumber, b))

	list := r.List()
	require.Len(t, list, 2)
	assert.Same(t, b, list[0])
	assert.Same(t, a, list[1])

	r.Remove(a.PhoneNumber)
	assert.Len(t, r.List(), 1)
}

func TestSession_FirstOutcomeWins(t *testing.T) {
	s := newSession("2348012345678")
	defer s.Close()

	assert.True(t, s.finish(StateCodeIssued, "ABCD-1234", nil))
	assert.False(t, s.finish(StateTimedOut, "", ErrPairingTimeout))

	st := s.Status()
	assert.Equal(t, StateCodeIssued, st.State)
	assert.Equal(t, "ABCD-1234", st.PairingCode)
	assert.NoError(t, st.Err)
}

func TestSession_AttachAfterCloseIsRejected(t *testing.T) {
	s := newSession("2348012345678")
	s.Close()

	conn := newMockConn(nil)
	assert.ErrorIs(t, s.attach(conn, &mockCreds{}), ErrSessionClosed)

	// the rejected connection is not owned by the session
	s.Close()
	assert.Equal(t, 0, conn.closeCount())
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := newSession("2348012345678")
	conn := newMockConn(nil)
	creds := &mockCreds{}
	require.NoError(t, s.attach(conn, creds))

	s.Close()
	s.Close()

	assert.Equal(t, 1, conn.closeCount())
	_, closes := creds.counts()
	assert.Equal(t, 1, closes)
}
