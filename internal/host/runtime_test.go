package host

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/buildtall-systems/storebridge/internal/db"
	"github.com/buildtall-systems/storebridge/internal/materials"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *recordingSink) Send(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSink) Messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(); err != nil {
		_ = database.Close()
		t.Fatalf("migrating test db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRuntime("test-server", setupTestDB(t), materials.Default(), logger)
}

// startRuntime launches the main loop and stops it when the test ends.
func startRuntime(t *testing.T, r *Runtime) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		_ = r.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-exited:
		case <-time.After(5 * time.Second):
			t.Error("main loop did not stop")
		}
	})
}

func TestRuntime_SerializesWork(t *testing.T) {
	r := newTestRuntime(t)
	startRuntime(t, r)

	var (
		mu      sync.Mutex
		running int
		maxSeen int
		order   []int
	)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := r.Do(context.Background(), func(context.Context) {
				mu.Lock()
				running++
				if running > maxSeen {
					maxSeen = running
				}
				order = append(order, i)
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
			})
			if err != nil {
				t.Errorf("Do: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected one unit of work at a time, saw %d", maxSeen)
	}
	if len(order) != 20 {
		t.Errorf("expected 20 units of work, got %d", len(order))
	}
}

func TestRuntime_DoCancelledStillRuns(t *testing.T) {
	r := newTestRuntime(t)
	startRuntime(t, r)

	release := make(chan struct{})
	ran := make(chan struct{})

	// Block the loop so the next task waits in the queue.
	blocker, err := r.Submit(context.Background(), func(context.Context) { <-release })
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- r.Do(ctx, func(context.Context) { close(ran) })
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	close(release)
	<-blocker

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Error("accepted work should run to completion after the caller gave up")
	}
}

func TestRuntime_SubmitAfterStop(t *testing.T) {
	r := newTestRuntime(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := r.Submit(context.Background(), func(context.Context) {}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestRuntime_StopDrainsAcceptedWork(t *testing.T) {
	r := newTestRuntime(t)

	done, err := r.Submit(context.Background(), func(context.Context) {})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = r.Run(ctx)

	select {
	case <-done:
	default:
		t.Error("work accepted before stop should have run")
	}
}

func TestRuntime_PanicIsolated(t *testing.T) {
	r := newTestRuntime(t)
	startRuntime(t, r)

	if err := r.Do(context.Background(), func(context.Context) { panic("boom") }); err != nil {
		t.Fatalf("Do: %v", err)
	}

	ran := false
	if err := r.Do(context.Background(), func(context.Context) { ran = true }); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if !ran {
		t.Error("loop should keep running after a panicking task")
	}
}

func TestRuntime_Later(t *testing.T) {
	r := newTestRuntime(t)
	startRuntime(t, r)

	ran := make(chan time.Time, 1)
	start := time.Now()
	r.Later(20*time.Millisecond, func(context.Context) { ran <- time.Now() })

	select {
	case at := <-ran:
		if at.Sub(start) < 20*time.Millisecond {
			t.Errorf("ran after %v, want at least 20ms", at.Sub(start))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task never ran")
	}
}
