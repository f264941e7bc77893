package storage

import (
	"fmt"
	"time"
)

// Bulletin is an encrypted bulletin accepted by the service
type Bulletin struct {
	ID        string    `json:"id"`         // Bulletin ID (UUID)
	Payload   []byte    `json:"payload"`    // Wire encoding of the encrypted bulletin
	Ballots   int       `json:"ballots"`    // Number of per-ballot proofs
	Digest    string    `json:"digest"`     // SHA-256 of Payload, hex
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether b has outlived its TTL at now
func (b *Bulletin) Expired(now time.Time) bool {
	return !b.ExpiresAt.IsZero() && now.After(b.ExpiresAt)
}

// BulletinStore defines the interface for encrypted bulletin storage
type BulletinStore interface {
	// PutBulletin stores a new bulletin
	PutBulletin(b *Bulletin) error

	// GetBulletin retrieves a bulletin by ID
	GetBulletin(id string) (*Bulletin, error)

	// DeleteBulletin removes a bulletin
	DeleteBulletin(id string) error

	// ListBulletins returns all stored bulletins (for admin purposes)
	ListBulletins() ([]Bulletin, error)

	// CleanupExpiredBulletins removes bulletins past their expiry
	CleanupExpiredBulletins(now time.Time) (int, error)
}

// RevocationStore defines the interface for revoked receipt IDs
type RevocationStore interface {
	// RevokeReceipt marks a receipt ID as revoked
	RevokeReceipt(jti string) error

	// IsReceiptRevoked checks if a receipt ID is revoked
	IsReceiptRevoked(jti string) (bool, error)

	// ListRevoked returns all revoked receipt IDs
	ListRevoked() ([]string, error)
}

// Store combines all storage interfaces
type Store interface {
	BulletinStore
	RevocationStore

	// Close closes the storage
	Close() error

	// Ping checks if the storage is healthy
	Ping() error
}

var (
	// ErrBulletinNotFound indicates a bulletin was not found
	ErrBulletinNotFound = fmt.Errorf("bulletin not found")

	// ErrBulletinExists indicates a bulletin ID is already taken
	ErrBulletinExists = fmt.Errorf("bulletin already exists")

	// ErrBulletinExpired indicates a bulletin has expired
	ErrBulletinExpired = fmt.Errorf("bulletin expired")

	// ErrStoreClosed indicates the store has been closed
	ErrStoreClosed = fmt.Errorf("store closed")
)
