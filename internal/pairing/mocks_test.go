package pairing

import (
	"context"
	"errors"
	"sync"
)

type mockConn struct {
	mu         sync.Mutex
	updates    chan ConnectionUpdate
	credsCh    chan struct{}
	closed     bool
	closeCalls int
	requests   int
	request    func(ctx context.Context, phoneNumber string) (string, error)
}

func newMockConn(request func(ctx context.Context, phoneNumber string) (string, error)) *mockConn {
	if request == nil {
		request = blockUntilCancelled
	}
	return &mockConn{
		updates: make(chan ConnectionUpdate, 8),
		credsCh: make(chan struct{}, 8),
		request: request,
	}
}

func blockUntilCancelled(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (c *mockConn) RequestPairingCode(ctx context.Context, phoneNumber string) (string, error) {
	c.mu.Lock()
	c.requests++
	c.mu.Unlock()
	return c.request(ctx, phoneNumber)
}

func (c *mockConn) Updates() <-chan ConnectionUpdate { return c.updates }

func (c *mockConn) CredentialUpdates() <-chan struct{} { return c.credsCh }

func (c *mockConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeCalls++
	if !c.closed {
		c.closed = true
		close(c.updates)
		close(c.credsCh)
	}
	return nil
}

func (c *mockConn) emit(u ConnectionUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.updates <- u
	}
}

func (c *mockConn) credentialsChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.credsCh <- struct{}{}
	}
}

func (c *mockConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeCalls
}

func (c *mockConn) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

type mockCreds struct {
	mu     sync.Mutex
	saves  int
	closes int
}

func (c *mockCreds) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saves++
	return nil
}

func (c *mockCreds) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *mockCreds) counts() (saves, closes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves, c.closes
}

type mockStore struct {
	creds   *mockCreds
	loadErr error
}

func (s *mockStore) Load(ctx context.Context, sessionID string) (Credentials, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.creds, nil
}

type mockDialer struct {
	mu    sync.Mutex
	conn  *mockConn
	dials int

	// when set, Dial signals started and blocks until gate is closed
	started chan struct{}
	gate    chan struct{}
}

func (d *mockDialer) Dial(ctx context.Context, sessionID string, creds Credentials) (Connection, error) {
	d.mu.Lock()
	d.dials++
	conn, started, gate := d.conn, d.started, d.gate
	d.mu.Unlock()

	if gate != nil {
		close(started)
		<-gate
	}
	if conn == nil {
		return nil, errors.New("no connection")
	}
	return conn, nil
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}
