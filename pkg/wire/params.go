package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"strconv"

	"github.com/waves-enterprise/voting-encrypt/pkg/ballot"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/curve"
)

// Params is the public election parameters document.
type Params struct {
	Q          string `json:"q"`
	HashLength string `json:"hashLength"`
	MainKey    Point  `json:"mainKey"`
	BasePoint  Point  `json:"basePoint"`
}

// DecodeParams reads a params document from r. Only the JSON shape is checked
// here; Config validates the values.
func DecodeParams(r io.Reader) (*Params, error) {
	var p Params
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return &p, nil
}

// EncodeParams builds the params document for cfg.
func EncodeParams(cfg ballot.Config) *Params {
	q := "0"
	if cfg.Q != nil {
		q = cfg.Q.String()
	}
	return &Params{
		Q:          q,
		HashLength: strconv.FormatUint(uint64(cfg.HashLength), 10),
		MainKey:    EncodePoint(cfg.MainKey),
		BasePoint:  EncodePoint(cfg.BasePoint),
	}
}

// Config validates p on crv and returns the encryptor configuration.
//
// Both points must lie on the curve; the identity encoding is rejected for
// them since neither a key nor a generator can be the identity.
func (p *Params) Config(crv curve.Curve) (ballot.Config, error) {
	q, ok := new(big.Int).SetString(p.Q, 10)
	if !ok || q.Sign() <= 0 {
		return ballot.Config{}, fmt.Errorf("%w: q %q is not a positive integer", ErrInvalidParams, p.Q)
	}

	hashLength, err := strconv.ParseUint(p.HashLength, 10, 32)
	if err != nil || hashLength == 0 {
		return ballot.Config{}, fmt.Errorf("%w: hashLength %q is not a positive integer", ErrInvalidParams, p.HashLength)
	}

	mainKey, err := curve.ParseCoordinates(crv, p.MainKey[0], p.MainKey[1])
	if err != nil {
		return ballot.Config{}, fmt.Errorf("mainKey: %w", err)
	}
	basePoint, err := curve.ParseCoordinates(crv, p.BasePoint[0], p.BasePoint[1])
	if err != nil {
		return ballot.Config{}, fmt.Errorf("basePoint: %w", err)
	}

	return ballot.Config{
		Q:          q,
		HashLength: uint(hashLength),
		MainKey:    mainKey,
		BasePoint:  basePoint,
	}, nil
}
