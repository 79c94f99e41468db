package engine

import (
	"context"
	"fmt"

	"github.com/Veraticus/dre-classifier/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency bounds CategorizeBatch when concurrency is not positive.
const DefaultBatchConcurrency = 8

// CategorizeBatch categorizes txns concurrently, at most concurrency at a
// time. Results keep the input order. progress, if non-nil, is called once per
// finished transaction from the worker goroutines. The first hard error
// cancels the remaining work.
func (e *Engine) CategorizeBatch(ctx context.Context, txns []model.TransactionContext, opts Options, concurrency int, progress func()) ([]model.CategorizationResult, error) {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}

	results := make([]model.CategorizationResult, len(txns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, txn := range txns {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := e.Categorize(gctx, txn, opts)
			if err != nil {
				return fmt.Errorf("transaction %d: %w", i, err)
			}
			results[i] = result
			if progress != nil {
				progress()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
