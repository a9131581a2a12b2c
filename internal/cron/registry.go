package cron

import (
	"context"
	"time"
)

// Job represents a periodic task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry pairs a job with its own cadence. Each entry gets a dedicated
// ticker loop, so a slow job never delays the others.
type Entry struct {
	Job      Job
	Interval time.Duration
}

// Registry tracks registered cron entries.
type Registry struct {
	entries []Entry
}

// NewRegistry builds a registry preloaded with the provided entries.
func NewRegistry(entries ...Entry) *Registry {
	registry := &Registry{}
	for _, entry := range entries {
		registry.Register(entry.Job, entry.Interval)
	}
	return registry
}

// Register adds a job with its interval to the registry.
func (r *Registry) Register(job Job, interval time.Duration) {
	if job == nil || interval <= 0 {
		return
	}
	r.entries = append(r.entries, Entry{Job: job, Interval: interval})
}

// Entries returns the registered entries in the order they were added.
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	copy(entries, r.entries)
	return entries
}
