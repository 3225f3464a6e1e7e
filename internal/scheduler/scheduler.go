// Package scheduler drives the top-level quoting loop: for each active
// market, invoke the controller; apply inter-market and inter-cycle
// pacing; retire terminated markets (spec §4.7).
//
// The scheduling model is a single logical controller thread processing
// markets round-robin within a cycle, never in parallel (spec §5) — so
// this package has no goroutines of its own, only sleeps between HTTP
// calls.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketmaker/internal/exchange"
	"marketmaker/internal/metrics"
	"marketmaker/internal/store"
	"marketmaker/internal/strategy"
	"marketmaker/pkg/types"
)

// MarketTimeoutSecs is the inter-market pacing within one cycle.
const MarketTimeoutSecs = 1 * time.Second

// PollingFrequencySecs is the inter-cycle pacing.
const PollingFrequencySecs = 15 * time.Second

// Scheduler owns the active-market set and drives Controller.Tick over it.
type Scheduler struct {
	client     *exchange.Client
	controller *strategy.Controller
	store      *store.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger

	order  []string // market_id insertion order, for deterministic round-robin
	active map[string]types.MarketProfile
}

// New builds a scheduler over the given strategy profile's markets, keyed
// by market_ticker (spec §3's Active-market set).
func New(client *exchange.Client, controller *strategy.Controller, st *store.Store, m *metrics.Metrics, logger *slog.Logger, profile types.StrategyProfile) *Scheduler {
	s := &Scheduler{
		client:     client,
		controller: controller,
		store:      st,
		metrics:    m,
		logger:     logger,
		active:     make(map[string]types.MarketProfile, len(profile.Markets)),
	}
	for _, mp := range profile.Markets {
		s.active[mp.MarketTicker] = mp
		s.order = append(s.order, mp.MarketTicker)
	}
	return s
}

// Make runs Clear once, then loops forever: fetch positions once per
// cycle, tick every active market, retire terminated ones, pace between
// markets and between cycles. Returns when the active set is empty or ctx
// is cancelled.
func (s *Scheduler) Make(ctx context.Context) error {
	s.Clear(ctx)

	for len(s.active) > 0 {
		if err := ctx.Err(); err != nil {
			return nil
		}

		s.logger.Info(fmt.Sprintf("Managing active markets: %v", s.order))

		positions, err := s.client.ListPositions(ctx)
		if err != nil {
			s.logger.Error("failed to fetch positions, skipping cycle", "err", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(PollingFrequencySecs):
			}
			continue
		}

		var remaining []string
		for _, marketID := range s.order {
			if err := ctx.Err(); err != nil {
				return nil
			}

			profile, ok := s.active[marketID]
			if !ok {
				continue // retired mid-cycle by an earlier tick, shouldn't happen but stay safe
			}

			state, err := s.store.LoadState(marketID)
			if err != nil {
				s.logger.Error("failed to load state", "market", marketID, "err", err)
				remaining = append(remaining, marketID)
				continue
			}
			if state == nil {
				state = &types.PerMarketState{}
			}

			result := s.controller.Tick(ctx, time.Now(), profile, state, positions)

			if err := s.store.SaveState(marketID, *state); err != nil {
				s.logger.Error("failed to save state", "market", marketID, "err", err)
			}

			if result.Retire {
				s.logger.Info(result.Reason)
				delete(s.active, marketID)
				if err := s.store.RemoveState(marketID); err != nil {
					s.logger.Error("failed to remove retired state", "market", marketID, "err", err)
				}
				continue
			}

			remaining = append(remaining, marketID)

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(MarketTimeoutSecs):
			}
		}
		s.order = remaining

		if s.metrics != nil {
			s.metrics.ActiveMarkets.Set(float64(len(s.active)))
		}

		if len(s.active) == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(PollingFrequencySecs):
		}
	}

	return nil
}

// Clear cancels every resting order in every active market. No quoting.
func (s *Scheduler) Clear(ctx context.Context) {
	for _, marketID := range s.order {
		if err := ctx.Err(); err != nil {
			return
		}
		s.controller.CancelAllResting(ctx, marketID)
	}
}
