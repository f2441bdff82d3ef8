package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"newsfeed/backend/internal/logger"
	"newsfeed/backend/internal/service"
)

// Scheduler sweeps all feeds on a fixed interval. It only decides when
// ingestion runs; ingestion correctness does not depend on it.
type Scheduler struct {
	refreshService service.RefreshService
	interval       time.Duration
	stopCh         chan struct{}
	stopOnce       sync.Once
	wg             sync.WaitGroup
	cancelFunc     context.CancelFunc // cancels the current sweep
	mu             sync.Mutex         // protects cancelFunc
}

func New(refreshService service.RefreshService, interval time.Duration) *Scheduler {
	return &Scheduler{
		refreshService: refreshService,
		interval:       interval,
		stopCh:         make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	logger.Info("scheduler started", "module", "scheduler", "action", "refresh", "resource", "feed", "result", "ok", "interval_ms", s.interval.Milliseconds())
}

// Stop cancels a running sweep and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.cancelFunc != nil {
			s.cancelFunc()
		}
		s.mu.Unlock()

		close(s.stopCh)
		s.wg.Wait()
		logger.Info("scheduler stopped", "module", "scheduler", "action", "refresh", "resource", "feed", "result", "ok")
	})
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.refresh()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.refresh()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) refresh() {
	select {
	case <-s.stopCh:
		return
	default:
	}

	// A sweep may not outlive the interval.
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)

	s.mu.Lock()
	s.cancelFunc = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		s.cancelFunc = nil
		s.mu.Unlock()
	}()

	logger.Info("scheduled feed refresh started", "module", "scheduler", "action", "refresh", "resource", "feed", "result", "ok")
	summary, err := s.refreshService.RefreshAll(ctx)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyRefreshing):
			logger.Warn("scheduled refresh skipped", "module", "scheduler", "action", "refresh", "resource", "feed", "result", "skipped", "error", err)
		case ctx.Err() != nil:
			logger.Warn("scheduled refresh cancelled", "module", "scheduler", "action", "refresh", "resource", "feed", "result", "cancelled")
		default:
			logger.Error("scheduled refresh failed", "module", "scheduler", "action", "refresh", "resource", "feed", "result", "failed", "error", err)
		}
		return
	}
	logger.Info("scheduled feed refresh completed", "module", "scheduler", "action", "refresh", "resource", "feed", "result", "ok",
		"feeds", summary.Feeds, "failed", summary.Failed, "inserted", summary.Inserted)
}
