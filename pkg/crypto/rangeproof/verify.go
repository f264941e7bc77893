package rangeproof

import (
	"fmt"
	"math/big"

	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/challenge"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/curve"
)

// Verify checks a bit proof against the public key pub.
//
// It recomputes c = H(pub, A, B, A0, B0, A1, B1), checks
//
//	c0 + c1 ≡ c (mod n)
//
// and then both branch equations
//
//	ri*G  == Ai + ci*A
//	ri*PK == Bi + ci*Ti
//
// with T0 = B and T1 = B - G. A nil return means the proof is valid. The
// Degenerate placeholder never verifies.
func Verify(params Params, pub curve.Point, proof *Proof) error {
	if params.Curve == nil || params.N == nil || params.Q == nil {
		return ErrInvalidParams
	}
	if proof == nil || !scalarsPresent(proof) {
		return ErrMalformedProof
	}

	crv := params.Curve
	g := params.Base

	c := challenge.Hash(pub, proof.A, proof.B, proof.Zero.A, proof.Zero.B, proof.One.A, proof.One.B)
	c.Mod(c, params.N)

	sum := new(big.Int).Add(proof.Zero.C, proof.One.C)
	sum.Mod(sum, params.N)
	if sum.Cmp(c) != 0 {
		return ErrChallengeMismatch
	}

	targets := Targets(params, proof.B)
	for i, br := range [2]Branch{proof.Zero, proof.One} {
		lhs := crv.ScalarMult(g, br.R)
		rhs := crv.Add(br.A, crv.ScalarMult(proof.A, br.C))
		if !lhs.Equal(rhs) {
			return fmt.Errorf("%w: branch %d commitment A", ErrBranchEquation, i)
		}

		lhs = crv.ScalarMult(pub, br.R)
		rhs = crv.Add(br.B, crv.ScalarMult(targets[i], br.C))
		if !lhs.Equal(rhs) {
			return fmt.Errorf("%w: branch %d commitment B", ErrBranchEquation, i)
		}
	}

	return nil
}

// VerifyAggregate checks an aggregate proof against the summed ciphertext
// (sumA, sumB).
func VerifyAggregate(params Params, pub, sumA, sumB curve.Point, proof ProofWithoutAB) error {
	return Verify(params, pub, proof.WithAB(sumA, sumB))
}

func scalarsPresent(p *Proof) bool {
	for _, v := range []*big.Int{p.Zero.C, p.Zero.R, p.One.C, p.One.R} {
		if v == nil {
			return false
		}
	}
	return true
}
