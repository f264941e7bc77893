package storage

import (
	"sync"
	"time"
)

// MemoryStore implements the Store interface using in-memory storage
// This is suitable for development and testing, but not for production
type MemoryStore struct {
	mu        sync.RWMutex
	bulletins map[string]*Bulletin
	revoked   map[string]bool
	closed    bool

	now       func() time.Time
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates a new in-memory store that sweeps expired bulletins
// every interval until Close. A non-positive interval disables the sweep.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	store := &MemoryStore{
		bulletins: make(map[string]*Bulletin),
		revoked:   make(map[string]bool),
		now:       time.Now,
		done:      make(chan struct{}),
	}

	if interval > 0 {
		go store.cleanupLoop(interval)
	}

	return store
}

// cleanupLoop runs periodic cleanup of expired bulletins
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanupExpiredBulletins(s.now())
		case <-s.done:
			return
		}
	}
}

// PutBulletin stores a new bulletin
func (s *MemoryStore) PutBulletin(b *Bulletin) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if _, exists := s.bulletins[b.ID]; exists {
		return ErrBulletinExists
	}

	if b.CreatedAt.IsZero() {
		b.CreatedAt = s.now()
	}

	// Store a copy to avoid race conditions
	bulletinCopy := *b
	bulletinCopy.Payload = append([]byte(nil), b.Payload...)
	s.bulletins[b.ID] = &bulletinCopy

	return nil
}

// GetBulletin retrieves a bulletin by ID
func (s *MemoryStore) GetBulletin(id string) (*Bulletin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.bulletins[id]
	if !exists {
		return nil, ErrBulletinNotFound
	}

	if b.Expired(s.now()) {
		return nil, ErrBulletinExpired
	}

	// Return a copy to avoid race conditions
	bulletinCopy := *b
	bulletinCopy.Payload = append([]byte(nil), b.Payload...)
	return &bulletinCopy, nil
}

// DeleteBulletin removes a bulletin
func (s *MemoryStore) DeleteBulletin(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bulletins[id]; !exists {
		return ErrBulletinNotFound
	}
	delete(s.bulletins, id)
	return nil
}

// ListBulletins returns all bulletins, expired ones included until swept
func (s *MemoryStore) ListBulletins() ([]Bulletin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bulletins := make([]Bulletin, 0, len(s.bulletins))
	for _, b := range s.bulletins {
		bulletins = append(bulletins, *b)
	}

	return bulletins, nil
}

// CleanupExpiredBulletins removes expired bulletins and reports how many
func (s *MemoryStore) CleanupExpiredBulletins(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, b := range s.bulletins {
		if b.Expired(now) {
			delete(s.bulletins, id)
			removed++
		}
	}

	return removed, nil
}

// RevokeReceipt marks a receipt ID as revoked
func (s *MemoryStore) RevokeReceipt(jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked[jti] = true
	return nil
}

// IsReceiptRevoked checks if a receipt ID is revoked
func (s *MemoryStore) IsReceiptRevoked(jti string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.revoked[jti], nil
}

// ListRevoked returns all revoked receipt IDs
func (s *MemoryStore) ListRevoked() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.revoked))
	for id := range s.revoked {
		ids = append(ids, id)
	}

	return ids, nil
}

// Close stops the cleanup loop. Further writes fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryStore) Ping() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Stats returns storage statistics for monitoring
func (s *MemoryStore) Stats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ballots := 0
	for _, b := range s.bulletins {
		ballots += b.Ballots
	}

	return map[string]int{
		"bulletins": len(s.bulletins),
		"ballots":   ballots,
		"revoked":   len(s.revoked),
	}
}
