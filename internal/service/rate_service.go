package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"currency_go/internal/domain"
	"currency_go/internal/infra"
)

// RateService owns the process-wide rate snapshot and its refresh cycle.
// The snapshot is replaced as a whole; readers never lock.
type RateService struct {
	provider domain.RatesProvider
	store    domain.SnapshotStore
	metrics  *infra.Metrics
	logger   *slog.Logger

	checkInterval time.Duration
	now           func() time.Time

	current   atomic.Pointer[domain.RateSnapshot]
	refreshMu sync.Mutex // At most one fetch in flight

	subMu sync.Mutex
	subs  map[chan *domain.RateSnapshot]struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRateService creates a RateService. metrics may be nil.
func NewRateService(provider domain.RatesProvider, store domain.SnapshotStore, metrics *infra.Metrics, checkInterval time.Duration) *RateService {
	if checkInterval <= 0 {
		checkInterval = 10 * time.Minute
	}
	return &RateService{
		provider:      provider,
		store:         store,
		metrics:       metrics,
		logger:        slog.Default().With("module", "rate_service"),
		checkInterval: checkInterval,
		now:           time.Now,
		subs:          make(map[chan *domain.RateSnapshot]struct{}),
	}
}

// SetClock replaces the time source used for freshness checks
func (s *RateService) SetClock(now func() time.Time) {
	s.now = now
}

// Current returns the installed snapshot, or nil if none is available
func (s *RateService) Current() *domain.RateSnapshot {
	return s.current.Load()
}

// Load runs the startup freshness check: a fresh stored snapshot is reused,
// otherwise exactly one fetch is issued. A stale stored snapshot is never installed.
func (s *RateService) Load(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	stored, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		s.logger.Warn("Stored rate snapshot unreadable, refetching", slog.Any("error", err))
		stored = nil
	}

	if domain.IsFresh(stored, s.now()) {
		if s.metrics != nil {
			s.metrics.SnapshotCacheHits.Inc()
		}
		s.logger.Info("Using stored rate snapshot", slog.Time("fetched_at", stored.FetchedAt))
		s.install(stored)
		return nil
	}

	return s.fetchLocked(ctx)
}

// CheckAndRefresh refetches only when the installed snapshot is missing or stale
func (s *RateService) CheckAndRefresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	snap := s.current.Load()
	if snap != nil && s.metrics != nil {
		s.metrics.SnapshotAge.Set(s.now().Sub(snap.FetchedAt).Seconds())
	}
	if domain.IsFresh(snap, s.now()) {
		return nil
	}
	return s.fetchLocked(ctx)
}

// fetchLocked performs the single fetch of a refresh cycle. Caller holds refreshMu.
func (s *RateService) fetchLocked(ctx context.Context) error {
	snap, err := s.provider.FetchRates(ctx)
	if err != nil {
		s.logger.Error("Rate refresh failed", slog.Any("error", err))
		return err
	}

	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		// The snapshot is still good for this process
		s.logger.Warn("Failed to persist rate snapshot", slog.Any("error", err))
	}

	s.install(snap)
	return nil
}

func (s *RateService) install(snap *domain.RateSnapshot) {
	s.current.Store(snap)

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		// Keep only the newest pending snapshot per subscriber
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

// Subscribe returns a channel receiving every newly installed snapshot.
// Call the returned func to unsubscribe.
func (s *RateService) Subscribe() (<-chan *domain.RateSnapshot, func()) {
	ch := make(chan *domain.RateSnapshot, 1)

	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()

	return ch, func() {
		s.subMu.Lock()
		delete(s.subs, ch)
		s.subMu.Unlock()
	}
}

// Start runs Load immediately and then re-checks freshness every checkInterval
func (s *RateService) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.Load(ctx); err != nil {
		s.logger.Warn("Initial rate load failed", slog.Any("error", err))
		// Continue anyway - the next check is the recovery path
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Rate refresh loop panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Rate refresh loop stopped")
				return
			case <-ticker.C:
				// Errors are already logged; nothing else to do until the next tick
				_ = s.CheckAndRefresh(ctx)
			}
		}
	}()

	return nil
}

// Stop stops the refresh loop
func (s *RateService) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.wg.Wait()
	}
}
