package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Job is a unit of scheduled work run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) (Report, error)
}

// Report counts what one run touched, keyed by item kind ("updated", "pruned").
type Report map[string]int

type schedule struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry holds each job with its own cadence. A job with no cadence runs on
// every tick of the service.
type Registry struct {
	mu        sync.Mutex
	schedules []*schedule
	byName    map[string]*schedule
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]*schedule{}}
}

// Register adds job to run at most once per every.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return errors.New("cron job is required")
	}
	name := job.Name()
	if name == "" {
		return errors.New("cron job name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("cron job %q already registered", name)
	}
	s := &schedule{job: job, every: every}
	r.schedules = append(r.schedules, s)
	r.byName[name] = s
	return nil
}

// Due returns the jobs whose cadence has elapsed at now, in registration order.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Job
	for _, s := range r.schedules {
		if s.lastRun.IsZero() || s.every <= 0 || !now.Before(s.lastRun.Add(s.every)) {
			due = append(due, s.job)
		}
	}
	return due
}

// MarkRun records that name ran at at, so Due skips it until its cadence passes.
func (r *Registry) MarkRun(name string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byName[name]; ok {
		s.lastRun = at
	}
}

// Names lists the registered jobs in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.schedules))
	for i, s := range r.schedules {
		names[i] = s.job.Name()
	}
	return names
}
