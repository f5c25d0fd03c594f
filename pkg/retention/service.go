// Package retention implements the Retention / GC Service (A6): a
// ticker-driven background loop that detects projects stuck in early
// phases past a staleness window and vacuums any optional read-model
// cache sitting in front of the append-only defense file.
//
// Grounded on pkg/cleanup/service.go: the exact same started-once guard
// (nil cancel check), context.CancelFunc + done-channel shutdown
// handshake, and "run once immediately, then on every tick" loop shape.
package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultInterval              = 60 * time.Second
	defaultStalePendingThreshold = 24 * time.Hour
)

// Config tunes the service. Zero values fall back to spec defaults.
type Config struct {
	Interval              time.Duration
	StalePendingThreshold time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = defaultInterval
	}
	if c.StalePendingThreshold <= 0 {
		c.StalePendingThreshold = defaultStalePendingThreshold
	}
	return c
}

// ReadModelVacuumer is consulted every tick to report (and optionally
// evict) cache entries. A nil Vacuumer on Service disables this step.
type ReadModelVacuumer interface {
	Vacuum(ctx context.Context) (evicted int, err error)
}

// Service runs the background sweep.
type Service struct {
	cfg      Config
	pool     *pgxpool.Pool
	vacuumer ReadModelVacuumer

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds a Service. vacuumer may be nil.
func NewService(cfg Config, pool *pgxpool.Pool, vacuumer ReadModelVacuumer) *Service {
	return &Service{cfg: cfg.withDefaults(), pool: pool, vacuumer: vacuumer}
}

// Start launches the loop. Idempotent: a second call is a no-op.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("retention service started",
		"interval", s.cfg.Interval, "stale_pending_threshold", s.cfg.StalePendingThreshold)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("retention service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.detectStalePending(ctx)
	s.vacuumReadModel(ctx)
}

// detectStalePending flags projects still in F0/F1 whose last update is
// older than StalePendingThreshold — these are candidates for a reviewer
// to chase, not something the engine auto-closes.
func (s *Service) detectStalePending(ctx context.Context) {
	if s.pool == nil {
		return
	}
	rows, err := s.pool.Query(ctx,
		`SELECT project_id FROM projects
		 WHERE current_phase IN ('F0', 'F1') AND updated_at < now() - $1::interval`,
		s.cfg.StalePendingThreshold.String())
	if err != nil {
		slog.Error("retention: stale-pending query failed", "error", err)
		return
	}
	defer rows.Close()

	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			slog.Error("retention: scan stale-pending row failed", "error", err)
			continue
		}
		stale = append(stale, id)
	}
	if len(stale) > 0 {
		slog.Warn("retention: stale pending projects detected", "count", len(stale), "project_ids", stale)
	}
}

func (s *Service) vacuumReadModel(ctx context.Context) {
	if s.vacuumer == nil {
		return
	}
	evicted, err := s.vacuumer.Vacuum(ctx)
	if err != nil {
		slog.Error("retention: read-model vacuum failed", "error", err)
		return
	}
	if evicted > 0 {
		slog.Info("retention: vacuumed read-model cache entries", "count", evicted)
	}
}
