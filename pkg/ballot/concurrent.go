package ballot

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// EncryptConcurrent is Encrypt with the per-ballot work spread over at most
// workers goroutines. A non-positive workers uses GOMAXPROCS.
//
// The homomorphic sums are folded in input order once every ballot is done, so
// the result has the same shape and distribution as Encrypt's. Cancelling ctx
// abandons ballots that have not started.
func (e *Encryptor) EncryptConcurrent(ctx context.Context, bits []int, workers int) (*Bulletin, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	results := make([]encrypted, len(bits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, v := range bits {
		e.checkBit(i, v)
		i, v := i, v
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := e.encryptBallot(v)
			if err != nil {
				return fmt.Errorf("ballot %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.fold(bits, results)
}
