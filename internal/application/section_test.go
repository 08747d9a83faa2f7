package application

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestSection_RunSuccessAndFailure(t *testing.T) {
	var s Section[int]
	if !s.Snapshot().Idle() {
		t.Fatal("new section should be idle")
	}

	if err := s.Run(context.Background(), func(context.Context) (int, error) { return 7, nil }); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	state := s.Snapshot()
	if !state.Loaded || state.Value != 7 || state.Loading || state.Err != "" {
		t.Fatalf("unexpected state %+v", state)
	}

	boom := errors.New("boom")
	if err := s.Run(context.Background(), func(context.Context) (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	state = s.Snapshot()
	if state.Loaded || state.Value != 0 {
		t.Errorf("failed run must not keep the stale value: %+v", state)
	}
	if state.Err != "Provider error: boom" {
		t.Errorf("unexpected message %q", state.Err)
	}
	if !errors.Is(s.Err(), boom) {
		t.Errorf("expected underlying error to be kept")
	}
}

func TestSection_LoadingWhileInFlight(t *testing.T) {
	var s Section[string]
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.Run(context.Background(), func(context.Context) (string, error) {
			close(started)
			<-release
			return "ok", nil
		})
		close(done)
	}()
	<-started
	if !s.Snapshot().Loading {
		t.Error("section should report loading while in flight")
	}
	close(release)
	<-done
	if s.Snapshot().Loading {
		t.Error("loading should clear after completion")
	}
}

func TestSection_MostRecentTriggerWins(t *testing.T) {
	var s Section[string]
	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Run(context.Background(), func(context.Context) (string, error) {
			close(slowStarted)
			<-releaseSlow
			return "old", nil
		})
	}()
	<-slowStarted

	if err := s.Run(context.Background(), func(context.Context) (string, error) { return "new", nil }); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	close(releaseSlow)
	wg.Wait()

	if got := s.Snapshot().Value; got != "new" {
		t.Errorf("expected newest result to win, got %q", got)
	}
}

func TestSection_Fail(t *testing.T) {
	var s Section[int]
	s.Fail(ErrInvalidAddress)
	state := s.Snapshot()
	if state.Err == "" || state.Loaded || state.Loading {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestDisclosure_LoadsOncePerOpenedState(t *testing.T) {
	calls := 0
	d := NewDisclosure(func(context.Context) (int, error) {
		calls++
		return calls, nil
	})
	ctx := context.Background()

	if err := d.Ensure(ctx); err != nil || calls != 0 {
		t.Fatalf("closed disclosure must not load (calls=%d)", calls)
	}

	if !d.Toggle() {
		t.Fatal("toggle should open")
	}
	for i := 0; i < 3; i++ {
		if err := d.Ensure(ctx); err != nil {
			t.Fatalf("ensure failed: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one load while open, got %d", calls)
	}

	if d.Toggle() {
		t.Fatal("toggle should close")
	}
	_ = d.Ensure(ctx)
	if calls != 1 {
		t.Fatalf("closed disclosure must not load, got %d", calls)
	}

	d.Open()
	_ = d.Ensure(ctx)
	_ = d.Ensure(ctx)
	if calls != 2 {
		t.Fatalf("expected exactly one more load after reopening, got %d", calls)
	}
	if d.Snapshot().Value != 2 {
		t.Errorf("expected latest value, got %d", d.Snapshot().Value)
	}
}

func TestDisclosure_FailureCountsAsLoad(t *testing.T) {
	calls := 0
	d := NewDisclosure(func(context.Context) (int, error) {
		calls++
		return 0, errors.New("unavailable")
	})
	d.Open()
	_ = d.Ensure(context.Background())
	_ = d.Ensure(context.Background())
	if calls != 1 {
		t.Fatalf("failed load must not be retried while open, got %d calls", calls)
	}
	if d.Snapshot().Err == "" {
		t.Error("expected error message")
	}
	d.Close()
	if d.IsOpen() {
		t.Error("expected closed")
	}
}

func TestSectionLoads_RunsEveryLoad(t *testing.T) {
	var (
		mu   sync.Mutex
		done int
	)
	loads := newSectionLoads()
	for i := 0; i < maxSectionLoads+2; i++ {
		loads.Go(func() {
			mu.Lock()
			defer mu.Unlock()
			done++
		})
	}
	loads.Wait()
	if done != maxSectionLoads+2 {
		t.Fatalf("expected %d loads, got %d", maxSectionLoads+2, done)
	}
}
