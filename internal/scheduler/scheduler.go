// Package scheduler runs the engine's maintenance jobs on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrUnknownJob is returned by RunNow for names that were never registered
var ErrUnknownJob = errors.New("unknown job")

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus is the outcome of a job's most recent run
type JobStatus struct {
	Name      string        `json:"name"`
	Schedule  string        `json:"schedule"`
	LastRun   time.Time     `json:"last_run,omitempty"`
	Duration  time.Duration `json:"duration"`
	LastError string        `json:"last_error,omitempty"`
	Runs      int           `json:"runs"`
	Failures  int           `json:"failures"`
}

type entry struct {
	job    Job
	status JobStatus
	// running serializes runs of the same job; cron may fire while a slow run is still going
	running sync.Mutex
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*entry
}

// New creates a new scheduler
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		log:  log.With().Str("component", "scheduler").Logger(),
		jobs: make(map[string]*entry),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a new job with cron schedule
// Schedule examples:
//   - "0 */5 * * * *"      - Every 5 minutes
//   - "@hourly"            - Every hour
//   - "@every 30s"         - Every 30 seconds
func (s *Scheduler) AddJob(schedule string, job Job) error {
	s.mu.Lock()
	if _, exists := s.jobs[job.Name()]; exists {
		s.mu.Unlock()
		return fmt.Errorf("job %s already registered", job.Name())
	}
	e := &entry{job: job, status: JobStatus{Name: job.Name(), Schedule: schedule}}
	s.jobs[job.Name()] = e
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(schedule, func() { _ = s.run(e) }); err != nil {
		s.mu.Lock()
		delete(s.jobs, job.Name())
		s.mu.Unlock()
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, job.Name(), err)
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a registered job immediately (outside schedule)
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.log.Info().Str("job", name).Msg("Running job immediately")
	return s.run(e)
}

// Status returns the last outcome of every registered job, ordered by name
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Scheduler) run(e *entry) error {
	e.running.Lock()
	defer e.running.Unlock()

	name := e.job.Name()
	s.log.Debug().Str("job", name).Msg("Running job")
	start := time.Now()
	err := e.job.Run()
	elapsed := time.Since(start)

	s.mu.Lock()
	e.status.LastRun = start
	e.status.Duration = elapsed
	e.status.Runs++
	e.status.LastError = ""
	if err != nil {
		e.status.Failures++
		e.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", name).
			Dur("duration", elapsed).
			Msg("Job failed")
		return err
	}
	s.log.Debug().Str("job", name).Dur("duration", elapsed).Msg("Job completed")
	return nil
}
