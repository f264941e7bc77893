// Package ballot encrypts bulletins of yes/no votes.
//
// Each vote v is encrypted with exponential ElGamal under the election key PK:
//
//	R = r*G
//	C = r*PK + v*G
//
// and accompanied by a disjunctive proof that v is 0 or 1. The ciphertexts are
// additively homomorphic, so the bulletin also carries one aggregate proof over
// the sum of all its ciphertexts. For a bulletin with at most one affirmative
// vote that proof shows the sum is 0 or 1 as well.
package ballot

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/curve"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/rangeproof"
	"github.com/waves-enterprise/voting-encrypt/pkg/crypto/sampler"
)

var (
	// ErrInvalidConfig indicates election parameters the encryptor cannot use
	ErrInvalidConfig = errors.New("ballot: invalid config")

	// ErrMalformedBulletin indicates a bulletin with missing parts
	ErrMalformedBulletin = errors.New("ballot: malformed bulletin")

	// ErrInvalidBallot indicates a per-ballot proof that does not verify
	ErrInvalidBallot = errors.New("ballot: invalid ballot proof")

	// ErrInvalidAggregate indicates an aggregate proof that does not verify
	ErrInvalidAggregate = errors.New("ballot: invalid aggregate proof")

	// ErrDegenerateAggregate indicates the aggregate proof is the placeholder
	// produced when the vote sum is outside {0, 1}
	ErrDegenerateAggregate = errors.New("ballot: aggregate proof is degenerate")
)

// Config holds the public election parameters.
type Config struct {
	Q          *big.Int    // response modulus; the group order for verifiable proofs
	HashLength uint        // challenges live modulo 2^HashLength
	MainKey    curve.Point // election public key
	BasePoint  curve.Point // generator used for encryption
}

// Bulletin is an encrypted bulletin: one proof per ballot, in input order, and
// the aggregate proof over their sum.
type Bulletin struct {
	Proofs    []*rangeproof.Proof
	Aggregate rangeproof.ProofWithoutAB
}

// Sum returns the aggregate ciphertext, the point-sums of the per-ballot A and
// B components. An empty bulletin sums to (identity, identity).
func (b *Bulletin) Sum(crv curve.Curve) (curve.Point, curve.Point) {
	sumA, sumB := crv.Identity(), crv.Identity()
	for _, p := range b.Proofs {
		sumA = crv.Add(sumA, p.A)
		sumB = crv.Add(sumB, p.B)
	}
	return sumA, sumB
}

// Option configures an Encryptor.
type Option func(*Encryptor)

// WithSampler overrides the source of secret scalars. The sampler must be a
// cryptographically secure one outside of tests.
func WithSampler(s rangeproof.Sampler) Option {
	return func(e *Encryptor) {
		e.sampler = s
	}
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Encryptor) {
		e.logger = logger
	}
}

// Encryptor encrypts bulletins under a fixed election configuration. It holds
// no per-call state and is safe for concurrent use when its sampler is.
type Encryptor struct {
	crv     curve.Curve
	cfg     Config
	params  rangeproof.Params
	prover  *rangeproof.Prover
	sampler rangeproof.Sampler
	logger  zerolog.Logger
}

// NewEncryptor validates cfg and returns an encryptor on crv.
func NewEncryptor(crv curve.Curve, cfg Config, opts ...Option) (*Encryptor, error) {
	if crv == nil {
		return nil, fmt.Errorf("%w: nil curve", ErrInvalidConfig)
	}
	if cfg.MainKey.IsInfinity() {
		return nil, fmt.Errorf("%w: main key is the identity", ErrInvalidConfig)
	}
	if cfg.HashLength == 0 {
		return nil, fmt.Errorf("%w: hash length must be positive", ErrInvalidConfig)
	}

	params, err := rangeproof.NewParams(crv, cfg.Q, cfg.HashLength, cfg.BasePoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	e := &Encryptor{
		crv:     crv,
		cfg:     cfg,
		params:  params,
		sampler: sampler.New(nil),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.prover = rangeproof.NewProver(params, e.sampler)

	if params.Q.Cmp(crv.Order()) != 0 {
		e.logger.Warn().
			Str("curve", crv.Name()).
			Msg("response modulus differs from the group order; proofs will not verify")
	}

	return e, nil
}

// Curve returns the encryptor's curve.
func (e *Encryptor) Curve() curve.Curve {
	return e.crv
}

// Config returns the election configuration.
func (e *Encryptor) Config() Config {
	return e.cfg
}

// Params returns the proof parameters derived from the configuration.
func (e *Encryptor) Params() rangeproof.Params {
	return e.params
}

// encrypted is one ballot's output before folding into the bulletin sums.
type encrypted struct {
	proof *rangeproof.Proof
	r     *big.Int
}

// encryptBallot draws fresh randomness, encrypts v and proves it.
func (e *Encryptor) encryptBallot(v int) (encrypted, error) {
	r, err := e.sampler.DrawSecretScalar()
	if err != nil {
		return encrypted{}, fmt.Errorf("failed to draw ballot randomness: %w", err)
	}

	g := e.cfg.BasePoint
	a := e.crv.ScalarMult(g, r)
	b := e.crv.Add(e.crv.ScalarMult(e.cfg.MainKey, r), e.crv.ScalarMult(g, big.NewInt(int64(v))))

	proof, err := e.prover.Prove(v, a, b, r, e.cfg.MainKey)
	if err != nil {
		return encrypted{}, err
	}
	return encrypted{proof: proof, r: r}, nil
}

// Encrypt encrypts bits in order and builds the aggregate proof.
//
// Values outside {0, 1} are encrypted as given and receive the degenerate
// placeholder proof. Two calls with the same input produce different, equally
// valid bulletins.
func (e *Encryptor) Encrypt(bits []int) (*Bulletin, error) {
	results := make([]encrypted, len(bits))
	for i, v := range bits {
		e.checkBit(i, v)
		res, err := e.encryptBallot(v)
		if err != nil {
			return nil, fmt.Errorf("ballot %d: %w", i, err)
		}
		results[i] = res
	}
	return e.fold(bits, results)
}

// fold accumulates the homomorphic sums in input order and proves the
// aggregate.
func (e *Encryptor) fold(bits []int, results []encrypted) (*Bulletin, error) {
	sumVote := 0
	sumR, sumC := e.crv.Identity(), e.crv.Identity()
	sumr := new(big.Int)

	proofs := make([]*rangeproof.Proof, len(results))
	for i, res := range results {
		sumVote += bits[i]
		sumR = e.crv.Add(sumR, res.proof.A)
		sumC = e.crv.Add(sumC, res.proof.B)
		sumr.Add(sumr, res.r)
		sumr.Mod(sumr, e.params.Q)
		proofs[i] = res.proof
	}

	agg, err := e.prover.Prove(sumVote, sumR, sumC, sumr, e.cfg.MainKey)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}
	if agg.IsDegenerate() {
		e.logger.Debug().Int("ballots", len(bits)).Msg("aggregate sum outside {0,1}; emitting placeholder proof")
	}

	return &Bulletin{Proofs: proofs, Aggregate: agg.WithoutAB()}, nil
}

func (e *Encryptor) checkBit(i, v int) {
	if v != 0 && v != 1 {
		e.logger.Warn().Int("ballot", i).Msg("ballot value outside {0,1}; proof will be degenerate")
	}
}

// VerifyBulletin checks every per-ballot proof and the aggregate proof against
// the summed ciphertext. A placeholder aggregate yields ErrDegenerateAggregate.
func (e *Encryptor) VerifyBulletin(b *Bulletin) error {
	if b == nil {
		return ErrMalformedBulletin
	}

	for i, p := range b.Proofs {
		if p == nil {
			return fmt.Errorf("%w: ballot %d missing", ErrMalformedBulletin, i)
		}
		if err := rangeproof.Verify(e.params, e.cfg.MainKey, p); err != nil {
			return fmt.Errorf("%w: ballot %d: %v", ErrInvalidBallot, i, err)
		}
	}

	if b.Aggregate.IsDegenerate() {
		return ErrDegenerateAggregate
	}

	sumA, sumB := b.Sum(e.crv)
	if err := rangeproof.VerifyAggregate(e.params, e.cfg.MainKey, sumA, sumB, b.Aggregate); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAggregate, err)
	}
	return nil
}
