package scheduler

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
)

// Pinger is anything whose liveness can be probed, typically the storage backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Scheduler periodically probes the storage backend and remembers the last outcome.
type Scheduler struct {
	scheduler *gocron.Scheduler
	target    Pinger
	interval  time.Duration
	healthy   atomic.Bool
}

// New creates a new Scheduler. The backend counts as healthy until a probe fails.
func New(target Pinger, interval time.Duration) *Scheduler {
	s := &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		target:    target,
		interval:  interval,
	}
	s.healthy.Store(true)
	return s
}

// Start schedules the periodic probe and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		s.interval = time.Minute
	}

	_, err := s.scheduler.Every(s.interval).Do(s.probe)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.target.Ping(ctx)
	was := s.healthy.Swap(err == nil)
	switch {
	case err != nil && was:
		log.Printf("ERROR: scheduler: storage health check failed: %v", err)
	case err == nil && !was:
		log.Println("INFO: scheduler: storage is reachable again")
	}
}

// Healthy reports the outcome of the most recent probe.
func (s *Scheduler) Healthy() bool {
	return s.healthy.Load()
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
