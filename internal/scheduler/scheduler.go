package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Fetcher is the part of weather.Service the scheduler drives.
type Fetcher interface {
	FetchAndStore(ctx context.Context, stids, vars []string) error
}

// Scheduler periodically fetches the latest observations for the configured stations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   Fetcher
	stations  []string
	vars      []string
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler.
func New(stations, vars []string, interval time.Duration, service Fetcher, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		stations:  stations,
		vars:      vars,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.stations) == 0 {
		s.logger.Info("no stations configured; nothing to schedule")
		return nil
	}

	interval := s.interval
	if interval < time.Minute {
		interval = 15 * time.Minute
	}

	_, err := s.scheduler.Every(interval).Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// run performs one poll. All stations go out in a single request.
func (s *Scheduler) run() {
	s.logger.Debug("running fetch job", "stations", len(s.stations))

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.service.FetchAndStore(ctx, s.stations, s.vars); err != nil {
		s.logger.Error("fetch failed", "error", err)
		return
	}
	s.logger.Debug("completed fetch job")
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
