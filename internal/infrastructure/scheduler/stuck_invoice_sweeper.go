package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StuckInvoiceFailer times out invoices stuck in processing
type StuckInvoiceFailer interface {
	FailStuckInvoices(ctx context.Context) (int, error)
}

// StuckInvoiceSweeperConfig holds configuration for the stuck invoice sweeper
type StuckInvoiceSweeperConfig struct {
	// Enabled determines if the sweeper is active
	Enabled bool

	// Interval is the time between sweeps
	Interval time.Duration

	// SweepTimeout is the maximum time for a single sweep
	SweepTimeout time.Duration
}

// DefaultStuckInvoiceSweeperConfig returns default configuration
func DefaultStuckInvoiceSweeperConfig() StuckInvoiceSweeperConfig {
	return StuckInvoiceSweeperConfig{
		Enabled:      true,
		Interval:     30 * time.Second,
		SweepTimeout: 10 * time.Second,
	}
}

// StuckInvoiceSweeper periodically fails invoices that stayed in processing too long
type StuckInvoiceSweeper struct {
	failer StuckInvoiceFailer
	logger *zap.Logger
	config StuckInvoiceSweeperConfig

	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewStuckInvoiceSweeper creates a new stuck invoice sweeper
func NewStuckInvoiceSweeper(
	failer StuckInvoiceFailer,
	logger *zap.Logger,
	config StuckInvoiceSweeperConfig,
) *StuckInvoiceSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.SweepTimeout <= 0 {
		config.SweepTimeout = DefaultStuckInvoiceSweeperConfig().SweepTimeout
	}
	return &StuckInvoiceSweeper{
		failer: failer,
		logger: logger,
		config: config,
	}
}

// Start starts the sweep loop. Starting a running sweeper is a no-op.
func (s *StuckInvoiceSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if !s.config.Enabled {
		s.logger.Info("Stuck invoice sweeper is disabled")
		return nil
	}
	if s.config.Interval <= 0 || s.failer == nil {
		return ErrInvalidConfig
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.isRunning = true

	s.wg.Add(1)
	go s.run(s.runCtx)

	s.logger.Info("Stuck invoice sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("sweep_timeout", s.config.SweepTimeout),
	)
	return nil
}

// Stop stops the sweep loop and waits for an in-flight sweep. Stopping a stopped sweeper is a no-op.
func (s *StuckInvoiceSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Stuck invoice sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TriggerImmediateSweep runs a sweep now without waiting for the next tick
func (s *StuckInvoiceSweeper) TriggerImmediateSweep() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	ctx := s.runCtx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.sweep(ctx)
	}()
	return nil
}

// IsRunning returns whether the sweeper is running
func (s *StuckInvoiceSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *StuckInvoiceSweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *StuckInvoiceSweeper) sweep(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.config.SweepTimeout)
	defer cancel()

	start := time.Now()
	count, err := s.failer.FailStuckInvoices(sweepCtx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("Stuck invoice sweep failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}

	if count > 0 {
		s.logger.Warn("Timed out stuck invoices",
			zap.Int("count", count),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	s.logger.Debug("Stuck invoice sweep found nothing", zap.Duration("duration", time.Since(start)))
}
