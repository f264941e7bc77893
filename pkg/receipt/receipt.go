// Package receipt issues and checks bulletin receipts.
//
// A receipt is an ES256 JWT handed back when a bulletin is accepted. Its
// subject is the bulletin ID and it carries the SHA-256 digest of the stored
// wire encoding, so the holder can later fetch the bulletin and check that it
// was not altered. The signing key is published as a JWKS.
package receipt

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

var (
	// ErrInvalidReceipt indicates a receipt that failed verification
	ErrInvalidReceipt = errors.New("receipt: invalid receipt")
)

// Signer defines the interface for receipt signing
type Signer interface {
	// Sign creates a JWT with the given claims
	Sign(claims *Claims) (string, error)

	// JWKS returns the public keys for receipt verification
	JWKS() jwk.Set

	// Algorithm returns the signing algorithm
	Algorithm() string

	// Issuer returns the issuer identifier
	Issuer() string
}

// Claims are the claims of a bulletin receipt
type Claims struct {
	Digest  string `json:"digest"`  // SHA-256 of the bulletin wire encoding, hex
	Ballots int    `json:"ballots"` // Number of per-ballot proofs
	Group   string `json:"grp"`     // Curve name
	jwt.RegisteredClaims
}

// BulletinID returns the bulletin the receipt was issued for
func (c *Claims) BulletinID() string {
	return c.Subject
}

// Digest returns the hex SHA-256 digest of payload as carried by receipts
func Digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ES256Signer implements receipt signing using ECDSA P-256
type ES256Signer struct {
	privateKey *ecdsa.PrivateKey
	keyID      string
	issuer     string
	jwks       jwk.Set
}

// NewES256Signer creates a new ES256 receipt signer
func NewES256Signer(privateKey *ecdsa.PrivateKey, keyID, issuer string) (*ES256Signer, error) {
	// Create JWK set with the public key
	publicJWK, err := jwk.FromRaw(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK from public key: %w", err)
	}

	if err := publicJWK.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, fmt.Errorf("failed to set key ID: %w", err)
	}

	if err := publicJWK.Set(jwk.AlgorithmKey, "ES256"); err != nil {
		return nil, fmt.Errorf("failed to set algorithm: %w", err)
	}

	if err := publicJWK.Set(jwk.KeyUsageKey, "sig"); err != nil {
		return nil, fmt.Errorf("failed to set key usage: %w", err)
	}

	jwks := jwk.NewSet()
	if err := jwks.AddKey(publicJWK); err != nil {
		return nil, fmt.Errorf("failed to build JWKS: %w", err)
	}

	return &ES256Signer{
		privateKey: privateKey,
		keyID:      keyID,
		issuer:     issuer,
		jwks:       jwks,
	}, nil
}

// Sign creates a JWT with the given claims
func (s *ES256Signer) Sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)

	// Set key ID in header
	token.Header["kid"] = s.keyID

	tokenString, err := token.SignedString(s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign receipt: %w", err)
	}

	return tokenString, nil
}

// JWKS returns the public keys for receipt verification
func (s *ES256Signer) JWKS() jwk.Set {
	return s.jwks
}

// Algorithm returns the signing algorithm
func (s *ES256Signer) Algorithm() string {
	return "ES256"
}

// Issuer returns the issuer identifier
func (s *ES256Signer) Issuer() string {
	return s.issuer
}

// Verifier checks receipts against a JWKS
type Verifier struct {
	jwks   jwk.Set
	issuer string
}

// NewVerifier creates a verifier trusting the keys in jwks. A non-empty
// issuer is required to match the iss claim.
func NewVerifier(jwks jwk.Set, issuer string) *Verifier {
	return &Verifier{jwks: jwks, issuer: issuer}
}

// Verify checks the signature, expiry and audience of a receipt and returns
// its claims.
func (v *Verifier) Verify(tokenString, expectedAudience string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithAudience(expectedAudience),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidReceipt, err)
	}
	if !token.Valid {
		return nil, ErrInvalidReceipt
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidReceipt)
	}

	return claims, nil
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	// Get key ID
	kid, ok := token.Header["kid"].(string)
	if !ok {
		return nil, fmt.Errorf("missing key ID")
	}

	// Find key in JWKS
	key, ok := v.jwks.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("key not found: %s", kid)
	}

	// Convert to public key
	var publicKey interface{}
	if err := key.Raw(&publicKey); err != nil {
		return nil, fmt.Errorf("failed to extract public key: %w", err)
	}

	return publicKey, nil
}

// MintReceipt issues a receipt for a stored bulletin
func MintReceipt(
	signer Signer,
	bulletinID, audience string,
	payload []byte,
	ballots int,
	groupName string,
	ttl time.Duration,
) (string, *Claims, error) {
	now := time.Now()

	claims := &Claims{
		Digest:  Digest(payload),
		Ballots: ballots,
		Group:   groupName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    signer.Issuer(),
			Subject:   bulletinID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token, err := signer.Sign(claims)
	if err != nil {
		return "", nil, err
	}
	return token, claims, nil
}
