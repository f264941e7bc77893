// Package server exposes ballot encryption over HTTP.
//
// Clients post plaintext bulletins and get back the encrypted bulletin in wire
// form plus a signed receipt. The receipt later opens the stored copy, and
// anyone can post a wire bulletin back to have its proofs checked.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/waves-enterprise/voting-encrypt/pkg/ballot"
	"github.com/waves-enterprise/voting-encrypt/pkg/middleware"
	"github.com/waves-enterprise/voting-encrypt/pkg/receipt"
	"github.com/waves-enterprise/voting-encrypt/pkg/storage"
	"github.com/waves-enterprise/voting-encrypt/pkg/wire"
)

// maxBodyBytes caps request bodies; a wire ballot is well under 2 KiB.
const maxBodyBytes = 4 << 20

// Handlers contains all bulletin handlers
type Handlers struct {
	encryptor *ballot.Encryptor
	store     storage.Store
	signer    receipt.Signer
	config    Config
	logger    zerolog.Logger
}

// Config contains configuration for the handlers
type Config struct {
	Audience    string        // receipt audience
	ReceiptTTL  time.Duration // receipt lifetime
	BulletinTTL time.Duration // how long stored bulletins are kept
	MaxBallots  int           // largest bulletin accepted
	Workers     int           // per-request encryption parallelism, 0 for GOMAXPROCS
}

// NewHandlers creates new bulletin handlers
func NewHandlers(
	encryptor *ballot.Encryptor,
	store storage.Store,
	signer receipt.Signer,
	config Config,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		encryptor: encryptor,
		store:     store,
		signer:    signer,
		config:    config,
		logger:    logger,
	}
}

// EncryptRequest is a plaintext bulletin
type EncryptRequest struct {
	Bulletin []int `json:"bulletin"` // one 0/1 vote per ballot
}

// EncryptResponse carries the encrypted bulletin and its receipt
type EncryptResponse struct {
	ID        string          `json:"id"`
	Bulletin  json.RawMessage `json:"bulletin"`   // wire encoding
	Aggregate string          `json:"aggregate"`  // "proof" or "placeholder"
	Receipt   string          `json:"receipt"`    // ES256 JWT
	ExpiresIn int64           `json:"expires_in"` // receipt lifetime in seconds
}

// BulletinResponse is a stored bulletin
type BulletinResponse struct {
	ID        string          `json:"id"`
	Bulletin  json.RawMessage `json:"bulletin"`
	Ballots   int             `json:"ballots"`
	Digest    string          `json:"digest"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// VerifyRequest carries a wire bulletin to check
type VerifyRequest struct {
	Bulletin json.RawMessage `json:"bulletin"`
}

// VerifyResponse reports the outcome of a verification
type VerifyResponse struct {
	Valid     bool   `json:"valid"`
	Ballots   int    `json:"ballots"`
	Aggregate string `json:"aggregate"` // "valid", "placeholder" or "invalid"
	Error     string `json:"error,omitempty"`
}

// Health reports liveness and store health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "service": "votecrypt"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "votecrypt"})
}

// Params returns the election parameters documents are encrypted under
func (h *Handlers) Params(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSON(w, http.StatusOK, wire.EncodeParams(h.encryptor.Config()))
}

// EncryptBulletin encrypts a plaintext bulletin, stores it and issues a receipt
func (h *Handlers) EncryptBulletin(w http.ResponseWriter, r *http.Request) {
	var req EncryptRequest
	if err := decodeBody(w, r, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if len(req.Bulletin) > h.config.MaxBallots {
		http.Error(w, fmt.Sprintf("bulletin has %d ballots, limit is %d", len(req.Bulletin), h.config.MaxBallots), http.StatusRequestEntityTooLarge)
		return
	}
	for i, v := range req.Bulletin {
		if v != 0 && v != 1 {
			http.Error(w, fmt.Sprintf("ballot %d: vote must be 0 or 1", i), http.StatusBadRequest)
			return
		}
	}

	encrypted, err := h.encryptor.EncryptConcurrent(r.Context(), req.Bulletin, h.config.Workers)
	if err != nil {
		if errors.Is(err, r.Context().Err()) {
			return
		}
		h.logger.Error().Err(err).Msg("bulletin encryption failed")
		http.Error(w, "encryption failed", http.StatusInternalServerError)
		return
	}

	payload, err := wire.MarshalBulletin(encrypted)
	if err != nil {
		http.Error(w, "failed to encode bulletin", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	stored := &storage.Bulletin{
		ID:        uuid.New().String(),
		Payload:   payload,
		Ballots:   len(encrypted.Proofs),
		Digest:    receipt.Digest(payload),
		CreatedAt: now,
		ExpiresAt: now.Add(h.config.BulletinTTL),
	}
	if err := h.store.PutBulletin(stored); err != nil {
		h.logger.Error().Err(err).Str("bulletin", stored.ID).Msg("failed to store bulletin")
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	token, _, err := receipt.MintReceipt(
		h.signer,
		stored.ID,
		h.config.Audience,
		payload,
		stored.Ballots,
		h.encryptor.Curve().Name(),
		h.config.ReceiptTTL,
	)
	if err != nil {
		h.logger.Error().Err(err).Str("bulletin", stored.ID).Msg("failed to mint receipt")
		http.Error(w, "failed to mint receipt", http.StatusInternalServerError)
		return
	}

	aggregate := "proof"
	if encrypted.Aggregate.IsDegenerate() {
		aggregate = "placeholder"
	}

	h.logger.Info().
		Str("bulletin", stored.ID).
		Int("ballots", stored.Ballots).
		Str("aggregate", aggregate).
		Msg("bulletin encrypted")

	writeJSON(w, http.StatusCreated, EncryptResponse{
		ID:        stored.ID,
		Bulletin:  payload,
		Aggregate: aggregate,
		Receipt:   token,
		ExpiresIn: int64(h.config.ReceiptTTL.Seconds()),
	})
}

// GetBulletin returns a stored bulletin. It runs behind ReceiptAuth and
// RequireSubject, and refuses to serve a payload whose digest no longer
// matches the receipt.
func (h *Handlers) GetBulletin(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	stored, err := h.store.GetBulletin(id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrBulletinNotFound):
			http.Error(w, "bulletin not found", http.StatusNotFound)
		case errors.Is(err, storage.ErrBulletinExpired):
			http.Error(w, "bulletin expired", http.StatusGone)
		default:
			http.Error(w, "storage error", http.StatusInternalServerError)
		}
		return
	}

	if claims, ok := middleware.GetReceiptClaims(r); ok && claims.Digest != stored.Digest {
		h.logger.Warn().Str("bulletin", id).Msg("stored bulletin digest does not match receipt")
		http.Error(w, "bulletin does not match receipt", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, BulletinResponse{
		ID:        stored.ID,
		Bulletin:  stored.Payload,
		Ballots:   stored.Ballots,
		Digest:    stored.Digest,
		CreatedAt: stored.CreatedAt,
		ExpiresAt: stored.ExpiresAt,
	})
}

// VerifyBulletin checks the proofs of a wire bulletin
func (h *Handlers) VerifyBulletin(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeBody(w, r, &req); err != nil || len(req.Bulletin) == 0 {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	decoded, err := wire.UnmarshalBulletin(h.encryptor.Curve(), req.Bulletin)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid bulletin: %v", err), http.StatusBadRequest)
		return
	}

	resp := VerifyResponse{Ballots: len(decoded.Proofs), Aggregate: "valid"}
	if err := h.encryptor.VerifyBulletin(decoded); err != nil {
		resp.Error = err.Error()
		switch {
		case errors.Is(err, ballot.ErrDegenerateAggregate):
			resp.Aggregate = "placeholder"
		case errors.Is(err, ballot.ErrInvalidAggregate):
			resp.Aggregate = "invalid"
		default:
			resp.Aggregate = "unchecked"
		}
	} else {
		resp.Valid = true
	}

	writeJSON(w, http.StatusOK, resp)
}

// JWKS returns the public keys for receipt verification
func (h *Handlers) JWKS(w http.ResponseWriter, r *http.Request) {
	jwks := h.signer.JWKS()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300") // Cache for 5 minutes

	if err := json.NewEncoder(w).Encode(jwks); err != nil {
		http.Error(w, "failed to encode JWKS", http.StatusInternalServerError)
		return
	}
}

// RevokeReceipt revokes a receipt by its ID (jti)
func (h *Handlers) RevokeReceipt(w http.ResponseWriter, r *http.Request) {
	jti := chi.URLParam(r, "jti")
	if jti == "" {
		http.Error(w, "missing receipt id", http.StatusBadRequest)
		return
	}

	if err := h.store.RevokeReceipt(jti); err != nil {
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	h.logger.Info().Str("receipt", jti).Msg("receipt revoked")
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked", "jti": jti})
}

// ListBulletins lists stored bulletins without their payloads
func (h *Handlers) ListBulletins(w http.ResponseWriter, r *http.Request) {
	bulletins, err := h.store.ListBulletins()
	if err != nil {
		http.Error(w, "Failed to list bulletins", http.StatusInternalServerError)
		return
	}

	type entry struct {
		ID        string    `json:"id"`
		Ballots   int       `json:"ballots"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]entry, 0, len(bulletins))
	for _, b := range bulletins {
		out = append(out, entry{ID: b.ID, Ballots: b.Ballots, CreatedAt: b.CreatedAt})
	}

	writeJSON(w, http.StatusOK, map[string]any{"bulletins": len(out), "data": out})
}

// Stats returns storage statistics
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	if memStore, ok := h.store.(*storage.MemoryStore); ok {
		writeJSON(w, http.StatusOK, map[string]any{"storage": memStore.Stats()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"storage": "unavailable"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
