package jobs

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper purges expired moderation state.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Cleaner removes idle rooms and stale session handles.
type Cleaner interface {
	CleanupIdle(now time.Time) int
}

// Reaper drops session handles past the idle grace period.
type Reaper interface {
	ReapIdle(now time.Time) int
}

// Collector samples activity metrics for every tracked room.
type Collector interface {
	Collect(now time.Time) int
}

// Scheduler drives the periodic background passes. They are performance
// aids, not correctness requirements: lazy expiry already guarantees
// correct reads, so a missed tick costs memory, never consistency.
type Scheduler struct {
	cron      *cron.Cron
	sweeper   Sweeper
	cleaner   Cleaner
	reaper    Reaper
	collector Collector
	log       zerolog.Logger
}

func NewScheduler(sweeper Sweeper, cleaner Cleaner, reaper Reaper, collector Collector, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		sweeper:   sweeper,
		cleaner:   cleaner,
		reaper:    reaper,
		collector: collector,
		log:       log.With().Str("component", "jobs").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if s.sweeper != nil {
		if _, err := s.cron.AddFunc("0 * * * * *", s.runSweep); err != nil {
			return err
		}
	}
	if s.cleaner != nil {
		if _, err := s.cron.AddFunc("0 */5 * * * *", s.runCleanup); err != nil {
			return err
		}
	}
	if s.reaper != nil {
		if _, err := s.cron.AddFunc("30 * * * * *", s.runReap); err != nil {
			return err
		}
	}
	if s.collector != nil {
		if _, err := s.cron.AddFunc("15 * * * * *", s.runCollect); err != nil {
			return err
		}
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) runSweep() {
	dropped := s.sweeper.Sweep(time.Now())
	if dropped > 0 {
		s.log.Debug().Int("dropped", dropped).Msg("moderation sweep")
	}
}

func (s *Scheduler) runCleanup() {
	removed := s.cleaner.CleanupIdle(time.Now())
	if removed > 0 {
		s.log.Info().Int("removed", removed).Msg("idle room cleanup")
	}
}

func (s *Scheduler) runReap() {
	s.reaper.ReapIdle(time.Now())
}

func (s *Scheduler) runCollect() {
	s.collector.Collect(time.Now())
}
