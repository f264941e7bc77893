// Package challenge derives Fiat-Shamir challenges from ordered lists of
// curve points.
//
// The transcript encoding is fixed by the bulletin board that verifies the
// proofs: each point contributes the text "<x>,<y>," with base-10 affine
// coordinates, the identity contributes "0,0,", and the concatenation is
// hashed with SHA-256. The digest is read as a big-endian unsigned integer.
package challenge

import (
	"crypto/sha256"
	"math/big"

	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/curve"
)

// Transcript returns the canonical byte encoding of points.
func Transcript(points ...curve.Point) []byte {
	buf := make([]byte, 0, len(points)*160)
	for _, p := range points {
		buf = appendPoint(buf, p)
	}
	return buf
}

// Hash computes the challenge integer for points. Order matters.
func Hash(points ...curve.Point) *big.Int {
	h := sha256.New()
	var scratch []byte
	for _, p := range points {
		scratch = appendPoint(scratch[:0], p)
		h.Write(scratch)
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

func appendPoint(buf []byte, p curve.Point) []byte {
	x, y, ok := p.Coordinates()
	if !ok {
		return append(buf, "0,0,"...)
	}
	buf = x.Append(buf, 10)
	buf = append(buf, ',')
	buf = y.Append(buf, 10)
	return append(buf, ',')
}
