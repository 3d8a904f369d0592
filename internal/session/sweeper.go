// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// DefaultSweepInterval is how often expired sessions are purged.
const DefaultSweepInterval = time.Hour

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Interval between sweeps. Defaults to DefaultSweepInterval.
	Interval time.Duration

	Logger *slog.Logger

	// Registerer receives the active and swept session metrics. Optional.
	Registerer prometheus.Registerer
}

// Sweeper periodically removes expired sessions in the background.
//
// Call Start to launch the goroutine and Stop to end it.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// nil if no registry provided
	sweptCounter prometheus.Counter
}

// NewSweeper creates a Sweeper for manager.
func NewSweeper(manager *Manager, cfg SweeperConfig) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sweeper{
		manager:  manager,
		interval: interval,
		logger:   logger,
	}

	if cfg.Registerer != nil {
		active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "gatehouse_sessions_active",
			Help: "Current number of stored sessions",
		}, func() float64 {
			return float64(manager.Count(context.Background()))
		})
		s.sweptCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatehouse_sessions_swept_total",
			Help: "Total number of expired sessions removed by the sweeper",
		})
		cfg.Registerer.MustRegister(active, s.sweptCounter)
	}

	return s
}

// Start launches the sweep loop. Calling Start on a running Sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop ends the sweep loop and blocks until it has exited.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
}

// RunOnce performs a single sweep and returns the number of removed sessions.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	removed, err := s.manager.Sweep(ctx)
	if err != nil {
		errutil.LogError(s.logger, "session sweep failed", err)
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "expired sessions swept", "removed", removed)
	}

	if s.sweptCounter != nil {
		s.sweptCounter.Add(float64(removed))
	}
	return removed
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
