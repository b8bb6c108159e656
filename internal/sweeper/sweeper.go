// Package sweeper evicts idle session agents on a cron schedule.
package sweeper

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSchedule runs a sweep every half hour.
const DefaultSchedule = "@every 30m"

// Registry is the part of the agent registry a sweep needs.
type Registry interface {
	EvictIdle(maxAge time.Duration) []string
	Len() int
}

// Recorder receives sweep results, typically the metrics collector.
type Recorder interface {
	SetActiveSessions(n int)
	RecordEvictions(n int)
}

// Sweeper periodically evicts sessions idle for longer than maxAge.
type Sweeper struct {
	registry Registry
	recorder Recorder
	maxAge   time.Duration
	schedule string
	cron     *cron.Cron
	lastRun  time.Time
	mu       sync.Mutex
	logger   *zap.Logger
}

// New creates a sweeper. An empty schedule uses DefaultSchedule; the
// recorder may be nil.
func New(registry Registry, recorder Recorder, schedule string, maxAge time.Duration, logger *zap.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", schedule, err)
	}
	return &Sweeper{
		registry: registry,
		recorder: recorder,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   logger,
	}, nil
}

// Start schedules the sweep. Calling Start twice is a no-op.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	s.cron = c
	s.logger.Info("session sweeper started",
		zap.String("schedule", s.schedule),
		zap.Duration("max_age", s.maxAge))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

// Sweep evicts idle sessions now and returns their ids.
func (s *Sweeper) Sweep() []string {
	evicted := s.registry.EvictIdle(s.maxAge)
	active := s.registry.Len()

	s.mu.Lock()
	s.lastRun = time.Now()
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordEvictions(len(evicted))
		s.recorder.SetActiveSessions(active)
	}
	if len(evicted) > 0 {
		s.logger.Info("evicted idle sessions",
			zap.Int("count", len(evicted)),
			zap.Strings("sessions", evicted),
			zap.Int("active", active))
	} else {
		s.logger.Debug("sweep found no idle sessions", zap.Int("active", active))
	}
	return evicted
}

// LastRun reports when the last sweep finished; zero if none has.
func (s *Sweeper) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
