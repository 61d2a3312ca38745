package orders

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/config"
	"github.com/Whyuuuau/simple-bybit-spread-capture/internal/exchange"
)

// Result summarizes one reconciliation pass.
type Result struct {
	Kept         int
	Placed       int
	Canceled     int
	Failed       int
	CrowdSkipped bool
}

// Reconcile moves the resting orders toward the desired ladder with
// minimal churn. Open orders within the price tolerance of a desired
// level are kept (each level claims at most one), the rest are
// canceled, and missing levels are placed post-only in batches.
//
// When the venue holds more than crowdFactor times the desired count
// the book is considered foreign (another session's orders, or a
// leak): everything is canceled and the cycle is skipped so the next
// pass starts clean.
func (e *Executor) Reconcile(ctx context.Context, desired []exchange.OrderRequest, cfg config.StrategyConfig, crowdFactor float64) (Result, error) {
	var res Result
	cycle, err := e.loadCycle(ctx)
	if err != nil {
		return res, fmt.Errorf("load quote cycle: %w", err)
	}
	// Quote client IDs are deterministic per cycle and level, so a pass
	// interrupted mid-placement replays the same IDs on restart and the
	// persisted keys stop the survivors from being placed twice.
	for i := range desired {
		if desired[i].ClientID == "" {
			desired[i].ClientID = fmt.Sprintf("q-%d-%s-%d", cycle, desired[i].Side, i)
		}
	}

	open, err := e.client.OpenOrders(ctx)
	if err != nil {
		return res, fmt.Errorf("list open orders: %w", err)
	}

	// Tracked IDs that no longer rest were filled or canceled by the
	// venue; release their keys so the store does not grow forever.
	stillOpen := make(map[string]bool, len(open))
	for _, o := range open {
		if o.ClientID != "" {
			stillOpen[o.ClientID] = true
		}
	}
	e.mu.Lock()
	var gone []string
	for id := range e.tracked {
		if !stillOpen[id] {
			gone = append(gone, id)
		}
	}
	e.mu.Unlock()
	for _, id := range gone {
		e.forget(ctx, id)
	}

	if crowdFactor > 0 && len(desired) > 0 && float64(len(open)) > crowdFactor*float64(len(desired)) {
		e.log.Warn("open orders crowd the book, canceling all",
			zap.Int("open", len(open)),
			zap.Int("desired", len(desired)))
		if err := e.retry(ctx, func() error { return e.client.CancelAll(ctx) }); err != nil {
			return res, err
		}
		for _, o := range open {
			e.forget(ctx, o.ClientID)
		}
		res.Canceled = len(open)
		res.CrowdSkipped = true
		return res, nil
	}

	keep := make(map[string]bool, len(open))
	claimed := make([]bool, len(open))
	var place []exchange.OrderRequest
	for _, want := range desired {
		idx := -1
		for i, o := range open {
			if claimed[i] || o.Side != want.Side {
				continue
			}
			if priceWithinTolerance(o.Price, want.Price, cfg.PriceTolerancePct) {
				idx = i
				break
			}
		}
		if idx >= 0 {
			claimed[idx] = true
			keep[open[idx].ID] = true
			if id := open[idx].ClientID; id != "" {
				e.mu.Lock()
				e.tracked[id] = struct{}{}
				e.mu.Unlock()
			}
			res.Kept++
			continue
		}
		place = append(place, want)
	}

	for _, o := range open {
		if keep[o.ID] {
			continue
		}
		if err := e.Cancel(ctx, o.ID); err != nil {
			e.log.Warn("cancel failed",
				zap.String("order_id", o.ID),
				zap.Error(err))
			res.Failed++
			continue
		}
		e.forget(ctx, o.ClientID)
		res.Canceled++
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(place)
	}
	for i, req := range place {
		if i > 0 && i%batchSize == 0 && cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(cfg.BatchPause):
			}
		}
		if _, err := e.Place(ctx, req); err != nil {
			e.log.Warn("place failed",
				zap.String("side", req.Side),
				zap.Float64("price", req.Price),
				zap.Error(err))
			res.Failed++
			continue
		}
		e.mu.Lock()
		e.tracked[req.ClientID] = struct{}{}
		e.mu.Unlock()
		res.Placed++
	}
	e.bumpCycle(ctx)
	return res, nil
}

func priceWithinTolerance(have, want, tolerancePct float64) bool {
	if want <= 0 {
		return false
	}
	return math.Abs(have-want)/want*100 <= tolerancePct
}
