// Package curve provides the elliptic curve group used by the ballot encryption
// engine.
//
// # Supported Curves
//
// Ballots are encrypted on secp256k1, the Koblitz curve used by Bitcoin and
// Ethereum. The curve is fixed: the public election parameters carry affine
// (x, y) coordinates, and every party hashing those coordinates must agree on
// the field they live in.
//
// # Elliptic Curve Basics
//
// An elliptic curve group consists of:
//   - A set of points on the curve (including a special "identity" point)
//   - A generator point G that generates the entire group
//   - A group order q (the number of points in the group)
//
// Key operations:
//   - Point Addition: P + Q = R
//   - Negation: -P, so that P + (-P) = identity
//   - Scalar Multiplication: k * P (adding P to itself k times)
//
// The package uses additive notation throughout. Multiplicative notation from
// ElGamal literature maps as g^r -> r*G and A·B -> A + B.
//
// # Identity
//
// The identity element ("point at infinity") has no affine coordinates. It is
// the zero value of Point, and it is what homomorphic sums start from.
package curve

import (
	"errors"
	"fmt"
	"math/big"
)

// Point is an element of the curve group in affine coordinates.
//
// Point is an immutable value: the coordinate accessors return copies, and all
// group operations return fresh points. The zero value is the identity.
type Point struct {
	x, y *big.Int
}

// IsInfinity reports whether p is the identity element.
func (p Point) IsInfinity() bool {
	return p.x == nil || p.y == nil
}

// Coordinates returns copies of the affine coordinates of p. ok is false for
// the identity, which has none.
func (p Point) Coordinates() (x, y *big.Int, ok bool) {
	if p.IsInfinity() {
		return nil, nil, false
	}
	return new(big.Int).Set(p.x), new(big.Int).Set(p.y), true
}

// X returns a copy of the x coordinate, or zero for the identity.
func (p Point) X() *big.Int {
	if p.IsInfinity() {
		return new(big.Int)
	}
	return new(big.Int).Set(p.x)
}

// Y returns a copy of the y coordinate, or zero for the identity.
func (p Point) Y() *big.Int {
	if p.IsInfinity() {
		return new(big.Int)
	}
	return new(big.Int).Set(p.y)
}

// Equal reports whether p and q are the same group element.
func (p Point) Equal(q Point) bool {
	if p.IsInfinity() || q.IsInfinity() {
		return p.IsInfinity() && q.IsInfinity()
	}
	return p.x.Cmp(q.x) == 0 && p.y.Cmp(q.y) == 0
}

// String renders p as "(x, y)" in base 10, or "inf" for the identity.
func (p Point) String() string {
	if p.IsInfinity() {
		return "inf"
	}
	return fmt.Sprintf("(%s, %s)", p.x.String(), p.y.String())
}

// Curve abstracts the group operations the encryption engine consumes.
//
// Implementations are immutable and safe for concurrent use. Scalars are plain
// non-negative or negative integers; implementations reduce them modulo the
// group order before multiplying.
type Curve interface {
	// Name returns the curve identifier (e.g., "secp256k1").
	Name() string

	// PointFromCoordinates validates (x, y) and returns the corresponding
	// point. It fails with an *InvalidPointError if the pair is not on the
	// curve. The identity cannot be constructed this way.
	PointFromCoordinates(x, y *big.Int) (Point, error)

	// Identity returns the point at infinity.
	Identity() Point

	// Generator returns the curve's standard base point G.
	Generator() Point

	// Add computes P + Q.
	Add(p, q Point) Point

	// Negate computes -P.
	Negate(p Point) Point

	// Sub computes P - Q.
	Sub(p, q Point) Point

	// ScalarMult computes k * P.
	ScalarMult(p Point, k *big.Int) Point

	// Order returns a copy of the group order.
	Order() *big.Int
}

var (
	// ErrInvalidPoint indicates an invalid point
	ErrInvalidPoint = errors.New("invalid point")

	// ErrPointNotOnCurve indicates the point is not on the curve
	ErrPointNotOnCurve = errors.New("point is not on curve")

	// ErrMalformedCoordinate indicates a coordinate that is not a base-10 integer
	ErrMalformedCoordinate = errors.New("malformed coordinate")
)

// InvalidPointError reports coordinates that cannot be turned into a point.
// It matches ErrInvalidPoint under errors.Is.
type InvalidPointError struct {
	X, Y string // coordinates as supplied
	Err  error  // underlying cause
}

func (e *InvalidPointError) Error() string {
	return fmt.Sprintf("invalid point (%s, %s): %v", e.X, e.Y, e.Err)
}

func (e *InvalidPointError) Unwrap() error {
	return e.Err
}

// Is makes every InvalidPointError match ErrInvalidPoint.
func (e *InvalidPointError) Is(target error) bool {
	return target == ErrInvalidPoint
}

// ParseCoordinates parses a pair of base-10 coordinate strings and validates
// the resulting point on crv.
func ParseCoordinates(crv Curve, xs, ys string) (Point, error) {
	x, ok := new(big.Int).SetString(xs, 10)
	if !ok {
		return Point{}, &InvalidPointError{X: xs, Y: ys, Err: ErrMalformedCoordinate}
	}
	y, ok := new(big.Int).SetString(ys, 10)
	if !ok {
		return Point{}, &InvalidPointError{X: xs, Y: ys, Err: ErrMalformedCoordinate}
	}
	return crv.PointFromCoordinates(x, y)
}
