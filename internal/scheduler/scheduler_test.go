package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
)

type fakeRunner struct {
	mu       sync.Mutex
	calls    int32
	inFlight int32
	maxConc  int32
	release  chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context) (domain.RunHistory, error) {
	atomic.AddInt32(&f.calls, 1)
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	if cur > f.maxConc {
		f.maxConc = cur
	}
	f.mu.Unlock()

	if f.release != nil {
		<-f.release
	}
	return domain.RunHistory{ID: "run-1"}, nil
}

func TestTickSkipsWhileRunInProgress(t *testing.T) {
	runner := &fakeRunner{release: make(chan struct{})}
	s := New(runner, time.Hour, time.Millisecond, time.Second, zerolog.Nop())

	go s.tick()
	time.Sleep(20 * time.Millisecond) // let the first tick claim the lock

	s.tick() // second tick should observe running=true and skip immediately

	close(runner.release)
	time.Sleep(20 * time.Millisecond)

	if got := atomic.LoadInt32(&runner.calls); got != 1 {
		t.Fatalf("expected exactly 1 run, got %d", got)
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	if runner.maxConc > 1 {
		t.Fatalf("expected no concurrent runs, saw max concurrency %d", runner.maxConc)
	}
}

func TestRunOnceBypassesSingleFlight(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, time.Hour, time.Millisecond, time.Second, zerolog.Nop())

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce returned error: %v", err)
	}
	if got := atomic.LoadInt32(&runner.calls); got != 1 {
		t.Fatalf("expected 1 call, got %d", got)
	}
}

func TestStopReturnsPromptlyWhenIdle(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, time.Hour, time.Millisecond, 200*time.Millisecond, zerolog.Nop())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-s.stop
	}()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return for an idle scheduler")
	}
}
