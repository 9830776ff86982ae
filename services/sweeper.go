package services

import (
	"time"

	"rag-retrieval-service/internal/cache"
	"rag-retrieval-service/internal/logger"

	"github.com/go-co-op/gocron"
)

// CacheSweeper periodically evicts expired entries from in-memory cache
// backends. Redis backends expire natively and need no sweeping.
type CacheSweeper struct {
	scheduler *gocron.Scheduler
	backends  []*cache.MemoryBackend
	interval  time.Duration
}

func NewCacheSweeper(interval time.Duration, backends ...*cache.MemoryBackend) *CacheSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CacheSweeper{
		scheduler: gocron.NewScheduler(time.UTC),
		backends:  backends,
		interval:  interval,
	}
}

func (s *CacheSweeper) Start() error {
	if len(s.backends) == 0 {
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		removed := 0
		for _, backend := range s.backends {
			removed += backend.Sweep()
		}
		if removed > 0 {
			logger.Debug("cache sweep completed", "removed", removed)
		}
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	logger.Info("cache sweeper started", "interval", s.interval.String())
	return nil
}

func (s *CacheSweeper) Stop() {
	s.scheduler.Stop()
}
