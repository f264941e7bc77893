// Package wire encodes bulletins and election parameters as JSON.
//
// The layouts are positional and shared with the bulletin board:
//
//	Point          ["x", "y"]          base-10 strings, identity is ["0", "0"]
//	Proof          [A, B, A0, A1, B0, B1, c0, c1, r0, r1]
//	Aggregate      [A0, A1, B0, B1, c0, c1, r0, r1]
//	Bulletin       [[Proof, ...], Aggregate]
//	Params         {"q", "hashLength", "mainKey", "basePoint"}
//
// Scalars are base-10 strings. Decoding validates every point other than
// ["0", "0"] against the curve.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/waves-enterprise/voting-encrypt/pkg/ballot"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/curve"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/rangeproof"
)

var (
	// ErrInvalidParams indicates a params document that cannot be decoded
	ErrInvalidParams = errors.New("wire: invalid params")

	// ErrMalformed indicates JSON that does not have the expected layout
	ErrMalformed = errors.New("wire: malformed encoding")
)

const (
	proofLen     = 10
	aggregateLen = 8
)

// Point is the ["x", "y"] encoding of a curve point.
type Point [2]string

// EncodePoint encodes p. The identity becomes ["0", "0"].
func EncodePoint(p curve.Point) Point {
	return Point{p.X().String(), p.Y().String()}
}

// IsIdentity reports whether p is the ["0", "0"] identity encoding.
func (p Point) IsIdentity() bool {
	return p[0] == "0" && p[1] == "0"
}

// Decode validates p on crv.
func (p Point) Decode(crv curve.Curve) (curve.Point, error) {
	if p.IsIdentity() {
		return crv.Identity(), nil
	}
	return curve.ParseCoordinates(crv, p[0], p[1])
}

func encodeScalar(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func decodeScalar(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("%w: scalar %q", ErrMalformed, s)
	}
	return v, nil
}

// Proof is the 10-slot encoding of a rangeproof.Proof.
type Proof struct {
	A, B           Point
	A0, A1, B0, B1 Point
	C0, C1, R0, R1 string
}

// Aggregate is the 8-slot encoding of a rangeproof.ProofWithoutAB.
type Aggregate struct {
	A0, A1, B0, B1 Point
	C0, C1, R0, R1 string
}

// EncodeProof encodes p.
func EncodeProof(p *rangeproof.Proof) Proof {
	agg := EncodeAggregate(p.WithoutAB())
	return Proof{
		A:  EncodePoint(p.A),
		B:  EncodePoint(p.B),
		A0: agg.A0, A1: agg.A1, B0: agg.B0, B1: agg.B1,
		C0: agg.C0, C1: agg.C1, R0: agg.R0, R1: agg.R1,
	}
}

// EncodeAggregate encodes p.
func EncodeAggregate(p rangeproof.ProofWithoutAB) Aggregate {
	return Aggregate{
		A0: EncodePoint(p.Zero.A),
		A1: EncodePoint(p.One.A),
		B0: EncodePoint(p.Zero.B),
		B1: EncodePoint(p.One.B),
		C0: encodeScalar(p.Zero.C),
		C1: encodeScalar(p.One.C),
		R0: encodeScalar(p.Zero.R),
		R1: encodeScalar(p.One.R),
	}
}

// Decode validates p on crv.
func (p Proof) Decode(crv curve.Curve) (*rangeproof.Proof, error) {
	a, err := p.A.Decode(crv)
	if err != nil {
		return nil, fmt.Errorf("A: %w", err)
	}
	b, err := p.B.Decode(crv)
	if err != nil {
		return nil, fmt.Errorf("B: %w", err)
	}
	rest, err := p.withoutAB().Decode(crv)
	if err != nil {
		return nil, err
	}
	return rest.WithAB(a, b), nil
}

func (p Proof) withoutAB() Aggregate {
	return Aggregate{
		A0: p.A0, A1: p.A1, B0: p.B0, B1: p.B1,
		C0: p.C0, C1: p.C1, R0: p.R0, R1: p.R1,
	}
}

// Decode validates a on crv.
func (a Aggregate) Decode(crv curve.Curve) (rangeproof.ProofWithoutAB, error) {
	var out rangeproof.ProofWithoutAB

	points := []struct {
		name string
		enc  Point
		dst  *curve.Point
	}{
		{"A0", a.A0, &out.Zero.A},
		{"A1", a.A1, &out.One.A},
		{"B0", a.B0, &out.Zero.B},
		{"B1", a.B1, &out.One.B},
	}
	for _, p := range points {
		pt, err := p.enc.Decode(crv)
		if err != nil {
			return rangeproof.ProofWithoutAB{}, fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = pt
	}

	scalars := []struct {
		name string
		enc  string
		dst  **big.Int
	}{
		{"c0", a.C0, &out.Zero.C},
		{"c1", a.C1, &out.One.C},
		{"r0", a.R0, &out.Zero.R},
		{"r1", a.R1, &out.One.R},
	}
	for _, s := range scalars {
		v, err := decodeScalar(s.enc)
		if err != nil {
			return rangeproof.ProofWithoutAB{}, fmt.Errorf("%s: %w", s.name, err)
		}
		*s.dst = v
	}

	return out, nil
}

// MarshalJSON implements json.Marshaler.
func (p Proof) MarshalJSON() ([]byte, error) {
	return json.Marshal([proofLen]any{p.A, p.B, p.A0, p.A1, p.B0, p.B1, p.C0, p.C1, p.R0, p.R1})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Proof) UnmarshalJSON(data []byte) error {
	var slots []json.RawMessage
	if err := json.Unmarshal(data, &slots); err != nil {
		return fmt.Errorf("%w: proof: %v", ErrMalformed, err)
	}
	if len(slots) != proofLen {
		return fmt.Errorf("%w: proof has %d slots, want %d", ErrMalformed, len(slots), proofLen)
	}
	if err := unmarshalSlots(slots[:6], &p.A, &p.B, &p.A0, &p.A1, &p.B0, &p.B1); err != nil {
		return err
	}
	return unmarshalSlots(slots[6:], &p.C0, &p.C1, &p.R0, &p.R1)
}

// MarshalJSON implements json.Marshaler.
func (a Aggregate) MarshalJSON() ([]byte, error) {
	return json.Marshal([aggregateLen]any{a.A0, a.A1, a.B0, a.B1, a.C0, a.C1, a.R0, a.R1})
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Aggregate) UnmarshalJSON(data []byte) error {
	var slots []json.RawMessage
	if err := json.Unmarshal(data, &slots); err != nil {
		return fmt.Errorf("%w: aggregate: %v", ErrMalformed, err)
	}
	if len(slots) != aggregateLen {
		return fmt.Errorf("%w: aggregate has %d slots, want %d", ErrMalformed, len(slots), aggregateLen)
	}
	if err := unmarshalSlots(slots[:4], &a.A0, &a.A1, &a.B0, &a.B1); err != nil {
		return err
	}
	return unmarshalSlots(slots[4:], &a.C0, &a.C1, &a.R0, &a.R1)
}

func unmarshalSlots(slots []json.RawMessage, dst ...any) error {
	for i, raw := range slots {
		if err := json.Unmarshal(raw, dst[i]); err != nil {
			return fmt.Errorf("%w: slot %d: %v", ErrMalformed, i, err)
		}
	}
	return nil
}

// Bulletin is the [[Proof, ...], Aggregate] encoding of a ballot.Bulletin.
type Bulletin struct {
	Proofs    []Proof
	Aggregate Aggregate
}

// EncodeBulletin encodes b.
func EncodeBulletin(b *ballot.Bulletin) Bulletin {
	out := Bulletin{
		Proofs:    make([]Proof, len(b.Proofs)),
		Aggregate: EncodeAggregate(b.Aggregate),
	}
	for i, p := range b.Proofs {
		out.Proofs[i] = EncodeProof(p)
	}
	return out
}

// Decode validates every point of b on crv.
func (b Bulletin) Decode(crv curve.Curve) (*ballot.Bulletin, error) {
	out := &ballot.Bulletin{Proofs: make([]*rangeproof.Proof, len(b.Proofs))}
	for i, p := range b.Proofs {
		proof, err := p.Decode(crv)
		if err != nil {
			return nil, fmt.Errorf("ballot %d: %w", i, err)
		}
		out.Proofs[i] = proof
	}

	agg, err := b.Aggregate.Decode(crv)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	out.Aggregate = agg
	return out, nil
}

// MarshalJSON implements json.Marshaler. An empty bulletin encodes its proofs
// as [] rather than null.
func (b Bulletin) MarshalJSON() ([]byte, error) {
	proofs := b.Proofs
	if proofs == nil {
		proofs = []Proof{}
	}
	return json.Marshal([2]any{proofs, b.Aggregate})
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bulletin) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: bulletin: %v", ErrMalformed, err)
	}
	if len(parts) != 2 {
		return fmt.Errorf("%w: bulletin has %d parts, want 2", ErrMalformed, len(parts))
	}
	var proofs []Proof
	if err := json.Unmarshal(parts[0], &proofs); err != nil {
		return fmt.Errorf("%w: bulletin proofs: %v", ErrMalformed, err)
	}
	var agg Aggregate
	if err := json.Unmarshal(parts[1], &agg); err != nil {
		return err
	}
	b.Proofs, b.Aggregate = proofs, agg
	return nil
}

// MarshalBulletin encodes b as JSON.
func MarshalBulletin(b *ballot.Bulletin) ([]byte, error) {
	return json.Marshal(EncodeBulletin(b))
}

// UnmarshalBulletin decodes JSON data into a bulletin on crv.
func UnmarshalBulletin(crv curve.Curve, data []byte) (*ballot.Bulletin, error) {
	var b Bulletin
	if err := json.Unmarshal(data, &b); err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return b.Decode(crv)
}
