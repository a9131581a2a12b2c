package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/hmardones/ticketero-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	acquires int
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.releases++
	f.held = false
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRegistryIgnoresInvalidEntries(t *testing.T) {
	registry := NewRegistry()
	registry.Register(nil, time.Second)
	registry.Register(&testJob{name: "no-interval"}, 0)
	registry.Register(&testJob{name: "ok"}, time.Second)

	entries := registry.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Job.Name() != "ok" {
		t.Fatalf("unexpected job %q", entries[0].Job.Name())
	}
}

func TestRunJobSkipsWhenLockIsHeld(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger: testLogger(),
		Locks:  func(string) (Lock, error) { return &fakeLock{}, nil },
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	job := &testJob{name: "held"}
	lock := &fakeLock{held: true}
	service.runJob(context.Background(), job, lock)

	if job.runs != 0 {
		t.Fatalf("expected job to be skipped, ran %d times", job.runs)
	}
	if lock.releases != 0 {
		t.Fatalf("a skipped run must not release a lock it never held")
	}
}

func TestRunJobReleasesLockAfterFailure(t *testing.T) {
	service, err := NewService(ServiceParams{
		Logger: testLogger(),
		Locks:  func(string) (Lock, error) { return &fakeLock{}, nil },
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	job := &testJob{name: "flaky", err: errors.New("boom")}
	lock := &fakeLock{}
	service.runJob(context.Background(), job, lock)

	if job.runs != 1 {
		t.Fatalf("expected job to run once, ran %d", job.runs)
	}
	if lock.releases != 1 {
		t.Fatalf("expected lock release after failed run, got %d", lock.releases)
	}
}

func TestRunStartsEveryEntryWithItsOwnLock(t *testing.T) {
	registry := NewRegistry()
	fast := &testJob{name: "fast"}
	slow := &testJob{name: "slow"}
	registry.Register(fast, 5*time.Millisecond)
	registry.Register(slow, time.Hour)

	var lockedTasks []string
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Locks: func(task string) (Lock, error) {
			lockedTasks = append(lockedTasks, task)
			return &fakeLock{}, nil
		},
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	time.Sleep(40 * time.Millisecond)
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned unexpected error: %v", err)
	}

	if len(lockedTasks) != 2 {
		t.Fatalf("expected one lock per task, got %v", lockedTasks)
	}
	// Every entry runs immediately; the fast one keeps ticking.
	if fast.runs < 2 {
		t.Fatalf("expected fast job to tick at least twice, ran %d", fast.runs)
	}
	if slow.runs != 1 {
		t.Fatalf("expected slow job to run exactly once, ran %d", slow.runs)
	}
}

func TestRunFailsWhenLockFactoryFails(t *testing.T) {
	registry := NewRegistry(Entry{Job: &testJob{name: "job"}, Interval: time.Second})
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Locks:    func(string) (Lock, error) { return nil, errors.New("redis down") },
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.Run(context.Background()); err == nil {
		t.Fatal("expected error when lock factory fails")
	}
}
