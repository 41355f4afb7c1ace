package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	done  chan struct{}
}

func (f *fakeFetcher) FetchAndStore(ctx context.Context, stids, vars []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, stids)
	first := len(f.calls) == 1
	f.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected a bounded context")
	}
	if first {
		close(f.done)
	}
	return f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStartRunsImmediately(t *testing.T) {
	f := &fakeFetcher{done: make(chan struct{})}
	s := New([]string{"WBB", "KSLC"}, nil, time.Hour, f, quietLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("fetch job did not run")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls[0]) != 2 {
		t.Fatalf("expected both stations in one call, got %v", f.calls[0])
	}
}

func TestStartWithoutStations(t *testing.T) {
	f := &fakeFetcher{done: make(chan struct{})}
	s := New(nil, nil, time.Minute, f, quietLogger())
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.Stop()
	if len(f.calls) != 0 {
		t.Fatalf("expected no calls, got %d", len(f.calls))
	}
}

func TestRunLogsFailures(t *testing.T) {
	f := &fakeFetcher{done: make(chan struct{}), err: errors.New("boom")}
	s := New([]string{"WBB"}, nil, time.Hour, f, quietLogger())
	s.run()
	if len(f.calls) != 1 {
		t.Fatalf("expected one call, got %d", len(f.calls))
	}
}
