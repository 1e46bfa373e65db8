package tiercache

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type InvalidatorOptions struct {
	Logger Logger
	Hooks  Hooks
}

// Invalidator removes a key from a fixed list of tiers.
type Invalidator struct {
	tiers []Remover
	log   Logger
	hooks Hooks
}

func NewInvalidator(opts InvalidatorOptions, tiers ...Remover) *Invalidator {
	return &Invalidator{
		tiers: tiers,
		log:   coalesce[Logger](opts.Logger, NopLogger{}),
		hooks: coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
}

// Invalidate removes key from every tier concurrently. Every tier is attempted
// regardless of the others. Returns nil only if all succeeded, otherwise an
// *InvalidateError carrying each tier's outcome.
func (inv *Invalidator) Invalidate(ctx context.Context, key string) error {
	results := inv.InvalidateAll(ctx, key)
	for _, r := range results {
		if r.Err != nil {
			ie := &InvalidateError{Key: key, Results: results}
			failed := ie.Failed()
			inv.hooks.InvalidatePartial(key, failed)
			inv.log.Error("invalidate partially failed", Fields{"key": key, "failed": len(failed), "tiers": len(results), "err": ie})
			return ie
		}
	}
	inv.log.Debug("invalidated key", Fields{"key": key, "tiers": len(results)})
	return nil
}

// InvalidateAll is Invalidate returning every tier's outcome, in configuration order.
func (inv *Invalidator) InvalidateAll(ctx context.Context, key string) []TierResult {
	results := make([]TierResult, len(inv.tiers))
	var g errgroup.Group
	for i, t := range inv.tiers {
		g.Go(func() error {
			err := t.Remove(ctx, key)
			results[i] = TierResult{Tier: t.Tier(), Err: err}
			return err
		})
	}
	// per-tier outcomes are in results; the first error alone is not useful
	_ = g.Wait()
	return results
}
