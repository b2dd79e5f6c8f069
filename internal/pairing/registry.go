package pairing

import (
	"sort"
	"sync"
)

// Registry maps phone numbers to their pairing session. Implementations
// must make Register an atomic check-then-insert.
type Registry interface {
	// Register fails with ErrPairingInProgress when a non-terminal session
	// already exists for the number. A terminal one is replaced and closed.
	Register(phoneNumber string, s *Session) error
	Get(phoneNumber string) (*Session, bool)
	Remove(phoneNumber string)
	// RemoveIf removes the entry only while it still points at s.
	RemoveIf(phoneNumber string, s *Session) bool
	List() []*Session
}

// MemoryRegistry is a process-lifetime Registry.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[string]*Session)}
}

func (r *MemoryRegistry) Register(phoneNumber string, s *Session) error {
	r.mu.Lock()
	existing, ok := r.sessions[phoneNumber]
	if ok && !existing.State().Terminal() {
		r.mu.Unlock()
		return ErrPairingInProgress
	}
	r.sessions[phoneNumber] = s
	r.mu.Unlock()

	if ok && existing != s {
		existing.Close()
	}
	return nil
}

func (r *MemoryRegistry) Get(phoneNumber string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[phoneNumber]
	return s, ok
}

func (r *MemoryRegistry) Remove(phoneNumber string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, phoneNumber)
}

func (r *MemoryRegistry) RemoveIf(phoneNumber string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[phoneNumber]; ok && cur == s {
		delete(r.sessions, phoneNumber)
		return true
	}
	return false
}

// List returns the sessions ordered by creation time.
func (r *MemoryRegistry) List() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
