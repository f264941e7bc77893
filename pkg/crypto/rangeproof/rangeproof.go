// Package rangeproof implements a non-interactive disjunctive (OR) proof that an
// exponential-ElGamal ciphertext encrypts 0 or 1.
//
// # Statement
//
// A ciphertext (A, B) under public key PK with generator G is
//
//	A = r*G
//	B = r*PK + v*G
//
// The prover knows r and wants to show v ∈ {0, 1} without revealing v. Define
// two verification targets that do not depend on which branch is real:
//
//	T0 = B         (equals r*PK exactly when v = 0)
//	T1 = B - G     (equals r*PK exactly when v = 1)
//
// Branch i claims "log_G(A) = log_PK(Ti)". Each branch is a Chaum-Pedersen
// style equality-of-discrete-logs proof with verification equations
//
//	ri*G  == Ai + ci*A
//	ri*PK == Bi + ci*Ti
//
// # OR Composition
//
// Only one branch can be proven honestly. The other is simulated by picking
// its challenge and response first and solving the equations backwards for its
// commitments. The Fiat-Shamir challenge
//
//	c = H(PK, A, B, A0, B0, A1, B1)
//
// then fixes the real branch's challenge as c - c_sim (mod n), so the prover
// controls only one of the two challenge shares:
//
//	c0 + c1 ≡ c (mod n)
//
// # Moduli
//
// Challenges live modulo n = 2^hashLength. Responses live modulo q, which must
// be the order of the group for the equations to hold.
//
// # Security Properties
//
//   - COMPLETENESS: a proof built for bit 0 or 1 always verifies
//   - SOUNDNESS: a ciphertext of any other value cannot satisfy both branches
//     with challenges summing to the hash
//   - ZERO-KNOWLEDGE: simulated and real transcripts are identically
//     distributed, and the proof layout does not depend on the bit
package rangeproof

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/challenge"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/curve"
)

var (
	// ErrInvalidParams indicates proof parameters that cannot be used
	ErrInvalidParams = errors.New("rangeproof: invalid parameters")

	// ErrMalformedProof indicates a proof with missing fields
	ErrMalformedProof = errors.New("rangeproof: malformed proof")

	// ErrChallengeMismatch indicates c0 + c1 does not equal the transcript hash
	ErrChallengeMismatch = errors.New("rangeproof: challenge shares do not sum to transcript hash")

	// ErrBranchEquation indicates a branch verification equation failed
	ErrBranchEquation = errors.New("rangeproof: branch equation does not hold")
)

// Sampler is the source of secret scalars consumed by the prover.
type Sampler interface {
	// DrawSecretScalar returns a uniformly random non-zero scalar below the
	// group order.
	DrawSecretScalar() (*big.Int, error)

	// DrawBelow returns a random integer in [0, n).
	DrawBelow(n *big.Int) (*big.Int, error)
}

// Params are the public parameters shared by prover and verifier.
type Params struct {
	Curve curve.Curve
	Q     *big.Int    // response modulus
	N     *big.Int    // challenge modulus, 2^hashLength
	Base  curve.Point // generator used for encryption
}

// ChallengeModulus returns 2^hashLength.
func ChallengeModulus(hashLength uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), hashLength)
}

// NewParams validates and assembles proof parameters.
func NewParams(crv curve.Curve, q *big.Int, hashLength uint, base curve.Point) (Params, error) {
	if crv == nil {
		return Params{}, fmt.Errorf("%w: nil curve", ErrInvalidParams)
	}
	if q == nil || q.Sign() <= 0 {
		return Params{}, fmt.Errorf("%w: response modulus must be positive", ErrInvalidParams)
	}
	if base.IsInfinity() {
		return Params{}, fmt.Errorf("%w: base point is the identity", ErrInvalidParams)
	}
	return Params{
		Curve: crv,
		Q:     new(big.Int).Set(q),
		N:     ChallengeModulus(hashLength),
		Base:  base,
	}, nil
}

// Branch is one disjunct's transcript: commitments (A, B), challenge share C
// and response R.
type Branch struct {
	A, B curve.Point
	C, R *big.Int
}

// Proof asserts that the ciphertext (A, B) encrypts 0 or 1.
//
// Zero is always the "bit = 0" branch and One the "bit = 1" branch, whichever
// of them was simulated.
type Proof struct {
	A, B curve.Point
	Zero Branch
	One  Branch
}

// ProofWithoutAB is a Proof whose ciphertext is left implicit. The aggregate
// proof of a bulletin uses it, since its ciphertext is the sum of the per-ballot
// ciphertexts.
type ProofWithoutAB struct {
	Zero Branch
	One  Branch
}

// Degenerate returns the placeholder emitted for values outside {0, 1}: six
// identity points and four zero scalars. It never verifies.
func Degenerate() *Proof {
	return &Proof{
		Zero: Branch{C: new(big.Int), R: new(big.Int)},
		One:  Branch{C: new(big.Int), R: new(big.Int)},
	}
}

// IsDegenerate reports whether p has the placeholder shape.
func (p *Proof) IsDegenerate() bool {
	return p.A.IsInfinity() && p.B.IsInfinity() && p.WithoutAB().IsDegenerate()
}

// WithoutAB drops the ciphertext from p.
func (p *Proof) WithoutAB() ProofWithoutAB {
	return ProofWithoutAB{Zero: p.Zero, One: p.One}
}

// WithAB attaches a ciphertext to p.
func (p ProofWithoutAB) WithAB(a, b curve.Point) *Proof {
	return &Proof{A: a, B: b, Zero: p.Zero, One: p.One}
}

// IsDegenerate reports whether p has the placeholder shape.
func (p ProofWithoutAB) IsDegenerate() bool {
	for _, br := range [2]Branch{p.Zero, p.One} {
		if !br.A.IsInfinity() || !br.B.IsInfinity() {
			return false
		}
		if !isZero(br.C) || !isZero(br.R) {
			return false
		}
	}
	return true
}

func isZero(v *big.Int) bool {
	return v != nil && v.Sign() == 0
}

// Targets returns the verification targets (T0, T1) = (B, B - G).
func Targets(params Params, b curve.Point) [2]curve.Point {
	return [2]curve.Point{b, params.Curve.Sub(b, params.Base)}
}

// Prover builds bit proofs. It is safe for concurrent use when its Sampler is.
type Prover struct {
	params  Params
	sampler Sampler
}

// NewProver returns a prover for params drawing randomness from s.
func NewProver(params Params, s Sampler) *Prover {
	return &Prover{params: params, sampler: s}
}

// Params returns the prover's public parameters.
func (pv *Prover) Params() Params {
	return pv.params
}

// Prove builds a proof that (a, b) = (r*G, r*pub + bit*G) encrypts bit.
//
// Any integer is accepted for bit. For values outside {0, 1} the result is the
// Degenerate placeholder, which lets the aggregate proof of a bulletin be built
// uniformly even when the vote sum exceeds one.
//
// Randomness is drawn in a fixed order: the simulated challenge, the simulated
// response, then the real branch's nonce.
func (pv *Prover) Prove(bit int, a, b curve.Point, r *big.Int, pub curve.Point) (*Proof, error) {
	if bit != 0 && bit != 1 {
		return Degenerate(), nil
	}
	if r == nil {
		return nil, fmt.Errorf("%w: nil randomness", ErrInvalidParams)
	}

	crv := pv.params.Curve
	g := pv.params.Base
	targets := Targets(pv.params, b)
	honest, sim := bit, 1-bit

	var branches [2]Branch

	// ═══════════════════════════════════════════════════════════════════════
	// STEP 1: Simulate the false branch
	// ═══════════════════════════════════════════════════════════════════════
	// Pick c_sim and r_sim first, then solve the verification equations for
	// the commitments:
	//   A_sim = r_sim*G  - c_sim*A
	//   B_sim = r_sim*PK - c_sim*T_sim

	cSim, err := pv.sampler.DrawBelow(pv.params.N)
	if err != nil {
		return nil, fmt.Errorf("failed to draw simulated challenge: %w", err)
	}
	rSim, err := pv.sampler.DrawSecretScalar()
	if err != nil {
		return nil, fmt.Errorf("failed to draw simulated response: %w", err)
	}

	branches[sim] = Branch{
		A: crv.Sub(crv.ScalarMult(g, rSim), crv.ScalarMult(a, cSim)),
		B: crv.Sub(crv.ScalarMult(pub, rSim), crv.ScalarMult(targets[sim], cSim)),
		C: cSim,
		R: rSim,
	}

	// ═══════════════════════════════════════════════════════════════════════
	// STEP 2: Commit on the real branch
	// ═══════════════════════════════════════════════════════════════════════
	// The shift by G lives only in the target T1, never in the commitment.

	nonce, err := pv.sampler.DrawSecretScalar()
	if err != nil {
		return nil, fmt.Errorf("failed to draw commitment nonce: %w", err)
	}
	branches[honest].A = crv.ScalarMult(g, nonce)
	branches[honest].B = crv.ScalarMult(pub, nonce)

	// ═══════════════════════════════════════════════════════════════════════
	// STEP 3: Fiat-Shamir challenge and challenge split
	// ═══════════════════════════════════════════════════════════════════════

	c := challenge.Hash(pub, a, b, branches[0].A, branches[0].B, branches[1].A, branches[1].B)

	cReal := new(big.Int).Sub(c, cSim)
	cReal.Mod(cReal, pv.params.N)

	// ═══════════════════════════════════════════════════════════════════════
	// STEP 4: Response on the real branch: r_real = nonce + c_real*r mod q
	// ═══════════════════════════════════════════════════════════════════════

	rReal := new(big.Int).Mul(cReal, r)
	rReal.Add(rReal, nonce)
	rReal.Mod(rReal, pv.params.Q)

	branches[honest].C = cReal
	branches[honest].R = rReal

	return &Proof{A: a, B: b, Zero: branches[0], One: branches[1]}, nil
}
