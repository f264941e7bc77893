package curve

import (
	"crypto/elliptic"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// Secp256k1Curve implements the Curve interface for secp256k1
type Secp256k1Curve struct {
	params *elliptic.CurveParams
}

// NewSecp256k1 creates a new secp256k1 curve instance
func NewSecp256k1() Curve {
	return &Secp256k1Curve{params: btcec.S256().Params()}
}

// Name returns the curve name
func (c *Secp256k1Curve) Name() string {
	return "secp256k1"
}

// PointFromCoordinates validates the affine pair (x, y).
//
// The pair is checked by parsing its SEC1 uncompressed encoding, which rejects
// coordinates outside the field and points that do not satisfy y² = x³ + 7.
func (c *Secp256k1Curve) PointFromCoordinates(x, y *big.Int) (Point, error) {
	if x == nil || y == nil {
		return Point{}, &InvalidPointError{X: "<nil>", Y: "<nil>", Err: ErrMalformedCoordinate}
	}
	if x.Sign() < 0 || y.Sign() < 0 || x.BitLen() > 256 || y.BitLen() > 256 {
		return Point{}, &InvalidPointError{X: x.String(), Y: y.String(), Err: ErrPointNotOnCurve}
	}

	encoded := make([]byte, 65)
	encoded[0] = 0x04
	x.FillBytes(encoded[1:33])
	y.FillBytes(encoded[33:])

	pubKey, err := btcec.ParsePubKey(encoded)
	if err != nil {
		return Point{}, &InvalidPointError{
			X:   x.String(),
			Y:   y.String(),
			Err: fmt.Errorf("%w: %v", ErrPointNotOnCurve, err),
		}
	}

	return Point{x: pubKey.X(), y: pubKey.Y()}, nil
}

// Identity returns the point at infinity
func (c *Secp256k1Curve) Identity() Point {
	return Point{}
}

// Generator returns the standard secp256k1 base point
func (c *Secp256k1Curve) Generator() Point {
	return Point{x: new(big.Int).Set(c.params.Gx), y: new(big.Int).Set(c.params.Gy)}
}

// Add adds two points: P + Q
func (c *Secp256k1Curve) Add(p, q Point) Point {
	if p.IsInfinity() {
		return q
	}
	if q.IsInfinity() {
		return p
	}

	pj, qj := toJacobian(p), toJacobian(q)
	var result btcec.JacobianPoint
	btcec.AddNonConst(&pj, &qj, &result)
	return fromJacobian(&result)
}

// Negate returns -P, the reflection of P across the x axis
func (c *Secp256k1Curve) Negate(p Point) Point {
	if p.IsInfinity() {
		return p
	}
	y := new(big.Int).Sub(c.params.P, p.y)
	y.Mod(y, c.params.P)
	return Point{x: new(big.Int).Set(p.x), y: y}
}

// Sub computes P - Q
func (c *Secp256k1Curve) Sub(p, q Point) Point {
	return c.Add(p, c.Negate(q))
}

// ScalarMult computes k * P. k is reduced modulo the group order first, so
// negative and oversized scalars are accepted.
func (c *Secp256k1Curve) ScalarMult(p Point, k *big.Int) Point {
	reduced := new(big.Int).Mod(k, c.params.N)
	if p.IsInfinity() || reduced.Sign() == 0 {
		return Point{}
	}

	var buf [32]byte
	reduced.FillBytes(buf[:])
	var scalar btcec.ModNScalar
	scalar.SetBytes(&buf)

	pj := toJacobian(p)
	var result btcec.JacobianPoint
	btcec.ScalarMultNonConst(&scalar, &pj, &result)
	return fromJacobian(&result)
}

// Order returns the order of the secp256k1 group
func (c *Secp256k1Curve) Order() *big.Int {
	return new(big.Int).Set(c.params.N)
}

// toJacobian lifts a finite affine point to Jacobian coordinates with Z = 1.
func toJacobian(p Point) btcec.JacobianPoint {
	var j btcec.JacobianPoint
	var buf [32]byte

	p.x.FillBytes(buf[:])
	j.X.SetBytes(&buf)
	p.y.FillBytes(buf[:])
	j.Y.SetBytes(&buf)
	j.Z.SetInt(1)
	return j
}

// fromJacobian converts back to affine coordinates. A zero Z coordinate is the
// point at infinity. The argument is normalized in place.
func fromJacobian(j *btcec.JacobianPoint) Point {
	if j.Z.Normalize().IsZero() {
		return Point{}
	}
	j.ToAffine()
	if j.X.IsZero() && j.Y.IsZero() {
		return Point{}
	}

	xb := j.X.Bytes()
	yb := j.Y.Bytes()
	return Point{x: new(big.Int).SetBytes(xb[:]), y: new(big.Int).SetBytes(yb[:])}
}
