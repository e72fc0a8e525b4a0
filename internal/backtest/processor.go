package backtest

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Processor drains the pending backtest queue in the background. One run
// executes at a time; heavy simulations should not starve the API of
// database connections.
type Processor struct {
	service  *Service
	interval time.Duration
}

func NewProcessor(service *Service, interval time.Duration) *Processor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Processor{
		service:  service,
		interval: interval,
	}
}

// Start blocks until the context is done, polling for pending backtests
func (p *Processor) Start(ctx context.Context) {
	log.Info().Dur("interval", p.interval).Msg("backtest processor started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("backtest processor stopping")
			return
		case <-ticker.C:
			p.drainQueue(ctx)
		}
	}
}

func (p *Processor) drainQueue(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		bt, err := p.service.db.ClaimNextPending()
		if err != nil {
			log.Error().Err(err).Msg("failed to claim pending backtest")
			return
		}
		if bt == nil {
			return
		}

		p.runOne(ctx, bt)
	}
}

func (p *Processor) runOne(ctx context.Context, bt *Backtest) {
	logger := log.With().Str("backtest_id", bt.BacktestID).Logger()
	logger.Info().Str("symbol", bt.Symbol).Msg("running backtest")

	cfg, err := p.service.strategies.GetStrategy(bt.StrategyID, bt.UserID)
	if err != nil {
		p.fail(bt, "strategy no longer available: "+err.Error())
		return
	}

	progress := func(fraction float64) {
		if err := p.service.db.UpdateProgress(bt.BacktestID, fraction); err != nil {
			logger.Warn().Err(err).Msg("failed to update backtest progress")
		}
	}

	result, err := p.service.engine.Run(ctx, bt, cfg, progress)
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown mid-run: requeue so the next start picks it up
			bt.Status = StatusPending
			bt.StartedAt = nil
			if saveErr := p.service.db.UpdateBacktest(bt); saveErr != nil {
				logger.Error().Err(saveErr).Msg("failed to requeue backtest on shutdown")
			}
			return
		}
		p.fail(bt, err.Error())
		return
	}

	// A cancel that raced the run wins; discard the result
	cancelled, err := p.service.db.IsCancelled(bt.BacktestID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to check cancellation")
		return
	}
	if cancelled {
		logger.Info().Msg("backtest was cancelled during run, discarding result")
		return
	}

	now := time.Now()
	bt.Status = StatusCompleted
	bt.Progress = 1
	bt.FinalBalance = result.FinalBalance
	bt.Metrics = result.Metrics
	bt.CompletedAt = &now

	if err := p.service.db.UpdateBacktest(bt); err != nil {
		logger.Error().Err(err).Msg("failed to store backtest result")
		return
	}
	if err := p.service.db.SaveTrades(result.Trades); err != nil {
		logger.Error().Err(err).Msg("failed to store backtest trades")
	}

	logger.Info().
		Float64("final_balance", result.FinalBalance).
		Int("trades", len(result.Trades)).
		Float64("total_return_pct", result.Metrics.TotalReturnPct).
		Msg("backtest completed")
}

func (p *Processor) fail(bt *Backtest, reason string) {
	now := time.Now()
	bt.Status = StatusFailed
	bt.Error = reason
	bt.CompletedAt = &now

	if err := p.service.db.UpdateBacktest(bt); err != nil {
		log.Error().Err(err).Str("backtest_id", bt.BacktestID).Msg("failed to mark backtest failed")
		return
	}
	log.Warn().Str("backtest_id", bt.BacktestID).Str("reason", reason).Msg("backtest failed")
}
