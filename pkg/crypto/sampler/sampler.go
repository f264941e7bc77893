// Package sampler draws the secret scalars used by ballot encryption and its
// proofs: ElGamal randomness, commitment nonces, and the simulated challenge
// and response of the fake proof branch.
//
// Every value drawn here hides something. The source MUST be a
// cryptographically secure random generator; crypto/rand.Reader is used unless
// another reader is supplied.
package sampler

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

var (
	// ErrInvalidModulus indicates DrawBelow was called with a non-positive bound
	ErrInvalidModulus = errors.New("sampler: modulus must be positive")

	// ErrEntropy indicates the random source failed
	ErrEntropy = errors.New("sampler: random source failed")
)

// extensionBound is the initial bound of the range-extension loop in
// DrawBelow, sized for a P-521 scalar field.
var extensionBound = new(big.Int).Lsh(big.NewInt(1), 521)

// Sampler draws scalars from the secp256k1 scalar field.
//
// A Sampler holds no mutable state of its own and is safe for concurrent use
// when its reader is.
type Sampler struct {
	rand io.Reader
}

// New returns a Sampler reading from r. A nil r selects crypto/rand.Reader.
func New(r io.Reader) *Sampler {
	if r == nil {
		r = rand.Reader
	}
	return &Sampler{rand: r}
}

// DrawSecretScalar returns a uniformly random integer in [1, N-1], where N is
// the secp256k1 group order: the same range as a private key.
//
// 32-byte strings are read from the source and rejected while they overflow N
// or are zero.
func (s *Sampler) DrawSecretScalar() (*big.Int, error) {
	var buf [32]byte
	var k btcec.ModNScalar
	defer k.Zero()

	for {
		if _, err := io.ReadFull(s.rand, buf[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEntropy, err)
		}
		overflow := k.SetBytes(&buf)
		if overflow == 0 && !k.IsZero() {
			break
		}
	}

	out := k.Bytes()
	return new(big.Int).SetBytes(out[:]), nil
}

// DrawBelow returns an integer in [0, n).
//
// The draw is reduced from secret scalars with a range-extension loop: while n
// exceeds the running bound (initially 2^521), the sample is multiplied by a
// fresh secret scalar and the bound squared. The loop compares against n
// itself every time. For challenge moduli at or below 2^521 the loop never
// runs and the result is a single secret scalar reduced mod n.
func (s *Sampler) DrawBelow(n *big.Int) (*big.Int, error) {
	if n == nil || n.Sign() <= 0 {
		return nil, ErrInvalidModulus
	}

	first, err := s.DrawSecretScalar()
	if err != nil {
		return nil, err
	}
	sample := new(big.Int).Mod(first, n)

	bound := new(big.Int).Set(extensionBound)
	for n.Cmp(bound) > 0 {
		next, err := s.DrawSecretScalar()
		if err != nil {
			return nil, err
		}
		sample.Mul(sample, next)
		bound.Mul(bound, bound)
	}

	return sample.Mod(sample, n), nil
}
