package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"databd/config"
	"databd/storage"
)

// Scheduler recomputes the daily statistics snapshot on a cron expression
// or a fixed interval, whichever the config provides.
type Scheduler struct {
	cfg    *config.Config
	store  storage.Store
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}
}

func New(cfg *config.Config, store storage.Store) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		store:  store,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	switch {
	case s.cfg.Stats.Cron != "":
		log.Printf("Starting stats scheduler with cron: %s", s.cfg.Stats.Cron)
		_, err := s.cron.AddFunc(s.cfg.Stats.Cron, func() {
			s.recompute(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	case s.cfg.Stats.Interval > 0:
		log.Printf("Starting stats scheduler with interval: %s", s.cfg.Stats.Interval)
		s.ticker = time.NewTicker(s.cfg.Stats.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.recompute(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	default:
		log.Println("Stats scheduler disabled (no STATS_CRON or STATS_INTERVAL)")
	}
	return nil
}

// RecomputeNow runs one snapshot for today's date.
func (s *Scheduler) RecomputeNow(ctx context.Context) error {
	date := time.Now().Format(storage.DateLayout)
	if err := s.store.ComputeDailyStats(ctx, date); err != nil {
		return err
	}
	log.Printf("Daily statistics recomputed for %s", date)
	return nil
}

func (s *Scheduler) recompute(ctx context.Context) {
	if err := s.RecomputeNow(ctx); err != nil {
		log.Printf("Stats recompute error: %v", err)
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
	if s.ticker != nil {
		s.ticker.Stop()
	}
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
}
