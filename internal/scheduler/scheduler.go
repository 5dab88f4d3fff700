// Package scheduler runs periodic count reconciliation for user sessions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ReconcileFunc refreshes the authoritative count for a session and returns
// it.
type ReconcileFunc func(ctx context.Context, sessionID string) (int, error)

// JobStatus is the state of one session's reconcile job.
type JobStatus struct {
	SessionID string    `json:"session_id"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastCount int       `json:"last_count"`
	NextRun   time.Time `json:"next_run"`
	Schedule  string    `json:"schedule"`
	LastError string    `json:"last_error,omitempty"`
}

type job struct {
	entry     cron.EntryID
	schedule  string
	running   bool
	lastRun   time.Time
	lastCount int
	lastErr   error
}

// Scheduler owns one cron job per session. A job never overlaps itself:
// a tick that fires while the previous run is active is skipped.
type Scheduler struct {
	cron      *cron.Cron
	reconcile ReconcileFunc
	logger    *slog.Logger

	mu      sync.RWMutex
	jobs    map[string]*job
	started bool
	stopped bool

	ctx    context.Context    // cancelled on Stop
	cancel context.CancelFunc // cancels ctx
	wg     sync.WaitGroup     // tracks running jobs
}

// New creates a Scheduler that calls fn for each due session.
func New(fn ReconcileFunc) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:      cron.New(cron.WithParser(standardParser)),
		reconcile: fn,
		logger:    slog.Default(),
		jobs:      make(map[string]*job),
		ctx:       ctx,
		cancel:    cancel,
	}
}

var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// WithLogger sets the logger for the scheduler.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// AddSession schedules reconciliation for sessionID, replacing any existing
// schedule. Returns an error if the cron expression is invalid.
func (s *Scheduler) AddSession(sessionID, cronExpr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.jobs[sessionID]; ok {
		s.cron.Remove(j.entry)
		delete(s.jobs, sessionID)
	}

	entry, err := s.cron.AddFunc(cronExpr, func() {
		if s.claim(sessionID) {
			s.run(sessionID)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	s.jobs[sessionID] = &job{entry: entry, schedule: cronExpr}
	s.logger.Info("scheduled reconcile",
		"session", sessionID,
		"schedule", cronExpr,
		"next_run", s.cron.Entry(entry).Next)
	return nil
}

// RemoveSession drops the schedule for sessionID.
func (s *Scheduler) RemoveSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[sessionID]; ok {
		s.cron.Remove(j.entry)
		delete(s.jobs, sessionID)
		s.logger.Info("removed schedule", "session", sessionID)
	}
}

// Start begins executing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	s.started = true
	s.stopped = false
	n := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", n)
}

// IsRunning returns true if the scheduler has been started and not yet stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started && !s.stopped
}

// Stop cancels running jobs and returns a context that is done once cron
// and every job have returned.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("scheduler stopping")

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	s.cancel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
	}()
	return ctx
}

// claim marks sessionID as running. It reports false when the scheduler is
// stopped, the session is unknown or a run is already active.
func (s *Scheduler) claim(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[sessionID]
	if s.stopped || !ok || j.running {
		return false
	}
	j.running = true
	s.wg.Add(1)
	return true
}

// run executes one reconcile. The caller must have claimed the session.
func (s *Scheduler) run(sessionID string) {
	defer s.wg.Done()

	start := time.Now()
	n, err := s.reconcile(s.ctx, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[sessionID]
	if !ok {
		return
	}
	j.running = false
	j.lastErr = err
	if err != nil {
		s.logger.Error("scheduled reconcile failed",
			"session", sessionID,
			"duration", time.Since(start),
			"error", err)
		return
	}
	j.lastRun = time.Now()
	j.lastCount = n
	s.logger.Info("scheduled reconcile completed",
		"session", sessionID,
		"count", n,
		"duration", time.Since(start))
}

// IsScheduled reports whether sessionID has a schedule.
func (s *Scheduler) IsScheduled(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[sessionID]
	return ok
}

// Trigger runs sessionID's job now, outside its schedule.
func (s *Scheduler) Trigger(sessionID string) error {
	s.mu.RLock()
	stopped := s.stopped
	j, ok := s.jobs[sessionID]
	running := ok && j.running
	s.mu.RUnlock()

	switch {
	case stopped:
		return fmt.Errorf("scheduler is stopped")
	case !ok:
		return fmt.Errorf("session %s is not scheduled", sessionID)
	case running:
		return fmt.Errorf("reconcile already running for %s", sessionID)
	}
	if !s.claim(sessionID) {
		return fmt.Errorf("reconcile already running for %s", sessionID)
	}
	go s.run(sessionID)
	return nil
}

// Status returns the state of every job, ordered by session id.
func (s *Scheduler) Status() []JobStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for id, j := range s.jobs {
		st := JobStatus{
			SessionID: id,
			Running:   j.running,
			LastRun:   j.lastRun,
			LastCount: j.lastCount,
			NextRun:   s.cron.Entry(j.entry).Next,
			Schedule:  j.schedule,
		}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].SessionID < out[b].SessionID })
	return out
}

// ValidateCronExpr validates a cron expression without scheduling anything.
func ValidateCronExpr(expr string) error {
	if _, err := standardParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}
