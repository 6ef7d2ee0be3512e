package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/repoboot/pkg/lifecycle"
)

const (
	typeA ComponentType = "a"
	typeB ComponentType = "b"
)

// recorder collects delivered events.
type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Event, 64)}
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- ev
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.ch:
		t.Fatalf("unexpected event %v %s", ev.Kind, ev.Type())
	case <-time.After(50 * time.Millisecond):
	}
}

// stopper records Stop calls into a shared order slice.
type stopper struct {
	name  string
	order *[]string
	mu    *sync.Mutex
	err   error
}

func (s *stopper) Stop(ctx context.Context) error {
	s.mu.Lock()
	*s.order = append(*s.order, s.name)
	s.mu.Unlock()
	return s.err
}

// fakeActivator registers a single component on start.
type fakeActivator struct {
	name     string
	startErr error
	stopErr  error
	t        ComponentType
	instance any
	started  bool
	stopped  bool
}

func (a *fakeActivator) Name() string { return a.name }

func (a *fakeActivator) Start(ctx context.Context, reg *Registry) error {
	if a.startErr != nil {
		return a.startErr
	}
	a.started = true
	if a.instance != nil {
		if _, err := reg.Register(a.t, a.instance, WithSource(a.name)); err != nil {
			return err
		}
	}
	return nil
}

func (a *fakeActivator) Stop(ctx context.Context) error {
	a.stopped = true
	return a.stopErr
}

func startRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	reg := New(Config{Name: t.Name()}, append([]Option{WithDrainTimeout(time.Second)}, opts...)...)
	if err := reg.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	t.Cleanup(func() { _ = reg.Shutdown(context.Background()) })
	return reg
}

func TestRegistry_RegisterLookup(t *testing.T) {
	reg := startRegistry(t)

	if _, ok := reg.Lookup(typeA); ok {
		t.Fatal("Lookup on empty registry should miss")
	}

	first := "first"
	second := "second"
	if _, err := reg.Register(typeA, first); err != nil {
		t.Fatalf("Register() = %v", err)
	}
	if _, err := reg.Register(typeA, second); err != nil {
		t.Fatalf("Register() = %v", err)
	}

	for i := 0; i < 3; i++ {
		got, ok := reg.Lookup(typeA)
		if !ok || got != first {
			t.Fatalf("Lookup() = %v, %v; want earliest registration", got, ok)
		}
	}

	ranked := "ranked"
	if _, err := reg.Register(typeA, ranked, WithRanking(10)); err != nil {
		t.Fatalf("Register() = %v", err)
	}
	if got, _ := reg.Lookup(typeA); got != ranked {
		t.Errorf("Lookup() = %v, want highest ranking", got)
	}

	all := reg.LookupAll(typeA)
	if len(all) != 3 || all[0] != ranked || all[1] != first || all[2] != second {
		t.Errorf("LookupAll() = %v", all)
	}
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	reg := startRegistry(t)

	if _, err := reg.Register("", "x"); !errors.Is(err, ErrInvalidComponent) {
		t.Errorf("empty type: err = %v, want ErrInvalidComponent", err)
	}
	if _, err := reg.Register(typeA, nil); !errors.Is(err, ErrInvalidComponent) {
		t.Errorf("nil instance: err = %v, want ErrInvalidComponent", err)
	}
}

func TestRegistry_NotRunning(t *testing.T) {
	reg := New(Config{})

	if _, err := reg.Register(typeA, "x"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Register before Start: err = %v, want ErrNotRunning", err)
	}
	if _, err := reg.Subscribe(nil, func(Event) {}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Subscribe before Start: err = %v, want ErrNotRunning", err)
	}
	if err := reg.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown on stopped registry = %v, want nil", err)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	reg := startRegistry(t)

	m := map[string]int{"uncomparable": 1}
	if _, err := reg.Register(typeA, m); err != nil {
		t.Fatalf("Register() = %v", err)
	}
	// Uncomparable values cannot be matched by value.
	if err := reg.Unregister(typeA, m); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("Unregister(map) = %v, want ErrNotRegistered", err)
	}

	v := &struct{ n int }{1}
	ref, err := reg.Register(typeB, v)
	if err != nil {
		t.Fatalf("Register() = %v", err)
	}
	if err := reg.Unregister(typeB, v); err != nil {
		t.Errorf("Unregister() = %v", err)
	}
	if _, ok := reg.Lookup(typeB); ok {
		t.Error("Lookup after Unregister should miss")
	}
	if err := reg.UnregisterRef(ref); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("UnregisterRef twice = %v, want ErrNotRegistered", err)
	}
}

func TestRegistry_SubscribeReplaysExisting(t *testing.T) {
	reg := startRegistry(t)

	if _, err := reg.Register(typeA, "a1"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(typeB, "b1"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Register(typeA, "a2"); err != nil {
		t.Fatal(err)
	}

	rec := newRecorder()
	if _, err := reg.Subscribe([]ComponentType{typeA}, rec.listen); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"a1", "a2"} {
		ev := rec.next(t)
		if ev.Kind != Added || ev.Instance() != want {
			t.Errorf("replayed %v %v, want added %s", ev.Kind, ev.Instance(), want)
		}
	}
	rec.none(t)
}

func TestRegistry_EventsInOrder(t *testing.T) {
	reg := startRegistry(t)

	rec := newRecorder()
	sub, err := reg.Subscribe(nil, rec.listen)
	if err != nil {
		t.Fatal(err)
	}

	ref, _ := reg.Register(typeA, "a1")
	_, _ = reg.Register(typeB, "b1")
	_ = reg.UnregisterRef(ref)

	want := []struct {
		kind EventKind
		t    ComponentType
	}{
		{Added, typeA}, {Added, typeB}, {Removed, typeA},
	}
	for i, w := range want {
		ev := rec.next(t)
		if ev.Kind != w.kind || ev.Type() != w.t {
			t.Errorf("event %d = %v %s, want %v %s", i, ev.Kind, ev.Type(), w.kind, w.t)
		}
	}

	sub.Close()
	_, _ = reg.Register(typeA, "a2")
	rec.none(t)
}

func TestRegistry_ListenerPanicDoesNotStallDelivery(t *testing.T) {
	reg := startRegistry(t)

	if _, err := reg.Subscribe(nil, func(Event) { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	rec := newRecorder()
	if _, err := reg.Subscribe(nil, rec.listen); err != nil {
		t.Fatal(err)
	}

	_, _ = reg.Register(typeA, "a1")
	_, _ = reg.Register(typeA, "a2")

	if ev := rec.next(t); ev.Instance() != "a1" {
		t.Errorf("first event instance = %v, want a1", ev.Instance())
	}
	if ev := rec.next(t); ev.Instance() != "a2" {
		t.Errorf("second event instance = %v, want a2", ev.Instance())
	}
}

func TestRegistry_ListenerMayCallRegistry(t *testing.T) {
	reg := startRegistry(t)

	found := make(chan any, 1)
	if _, err := reg.Subscribe([]ComponentType{typeA}, func(ev Event) {
		v, _ := reg.Lookup(ev.Type())
		found <- v
	}); err != nil {
		t.Fatal(err)
	}
	_, _ = reg.Register(typeA, "a1")

	select {
	case v := <-found:
		if v != "a1" {
			t.Errorf("Lookup from listener = %v, want a1", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not run")
	}
}

func TestRegistry_Snapshot(t *testing.T) {
	reg := startRegistry(t)

	_, _ = reg.Register(typeA, "a1")
	snap := reg.Snapshot(typeA, typeB)

	if !snap.Has(typeA) || snap.Has(typeB) {
		t.Errorf("Has: a=%v b=%v", snap.Has(typeA), snap.Has(typeB))
	}
	if snap.Satisfies([]ComponentType{typeA, typeB}) {
		t.Error("Satisfies should be false without b")
	}

	_, _ = reg.Register(typeB, "b1")
	if snap.Has(typeB) {
		t.Error("snapshot must not observe later registrations")
	}
	if !reg.Snapshot(typeA, typeB).Satisfies([]ComponentType{typeA, typeB}) {
		t.Error("fresh snapshot should satisfy a and b")
	}
}

func TestRegistry_ShutdownStopsComponents(t *testing.T) {
	var mu sync.Mutex
	var order []string

	reg := New(Config{Name: "shutdown"}, WithDrainTimeout(time.Second))
	if err := reg.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	rec := newRecorder()
	if _, err := reg.Subscribe([]ComponentType{typeA}, rec.listen); err != nil {
		t.Fatal(err)
	}

	_, _ = reg.Register(typeA, &stopper{name: "first", order: &order, mu: &mu})
	_, _ = reg.Register(typeA, &stopper{name: "second", order: &order, mu: &mu})
	rec.next(t)
	rec.next(t)

	if err := reg.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if reg.State() != lifecycle.StateStopped {
		t.Errorf("state = %v, want Stopped", reg.State())
	}

	mu.Lock()
	got := append([]string(nil), order...)
	mu.Unlock()
	if len(got) != 2 || got[0] != "second" || got[1] != "first" {
		t.Errorf("stop order = %v, want [second first]", got)
	}

	for i := 0; i < 2; i++ {
		if ev := rec.next(t); ev.Kind != Removed {
			t.Errorf("event %d kind = %v, want removed", i, ev.Kind)
		}
	}

	if _, err := reg.Register(typeA, "late"); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Register after Shutdown = %v, want ErrNotRunning", err)
	}
	if err := reg.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown = %v, want nil", err)
	}
}

func TestRegistry_ShutdownCollectsErrors(t *testing.T) {
	var mu sync.Mutex
	var order []string
	stopErr := errors.New("disk busy")
	actErr := errors.New("watcher stuck")

	act := &fakeActivator{name: "act", stopErr: actErr}
	reg := New(Config{}, WithActivator(act), WithDrainTimeout(time.Second))
	if err := reg.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, _ = reg.Register(typeA, &stopper{name: "s", order: &order, mu: &mu, err: stopErr})

	err := reg.Shutdown(context.Background())
	var se *ShutdownError
	if !errors.As(err, &se) {
		t.Fatalf("Shutdown() = %v, want *ShutdownError", err)
	}
	if len(se.Errs) != 2 {
		t.Errorf("collected %d errors, want 2", len(se.Errs))
	}
	if !errors.Is(err, stopErr) || !errors.Is(err, actErr) {
		t.Errorf("ShutdownError should wrap both causes: %v", err)
	}
	if reg.State() != lifecycle.StateStopped {
		t.Errorf("state = %v, want Stopped", reg.State())
	}
}

func TestRegistry_ActivatorFailureRollsBack(t *testing.T) {
	ok := &fakeActivator{name: "ok", t: typeA, instance: "from-ok"}
	bad := &fakeActivator{name: "bad", startErr: errors.New("no config dir")}
	never := &fakeActivator{name: "never"}

	reg := New(Config{}, WithActivator(ok), WithActivator(bad), WithActivator(never), WithDrainTimeout(time.Second))
	err := reg.Start(context.Background())
	if err == nil {
		t.Fatal("Start() should fail")
	}
	if !errors.Is(err, bad.startErr) {
		t.Errorf("Start() = %v, want wrapped activator error", err)
	}
	if !ok.stopped {
		t.Error("started activator should be stopped on rollback")
	}
	if never.started {
		t.Error("activators after the failing one must not start")
	}
	if reg.State() != lifecycle.StateCrashed {
		t.Errorf("state = %v, want Crashed", reg.State())
	}
	if _, found := reg.Lookup(typeA); found {
		t.Error("components from a failed start should be removed")
	}
	if err := reg.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown after failed start = %v", err)
	}
}

func TestRegistry_StartTwice(t *testing.T) {
	reg := startRegistry(t)
	if err := reg.Start(context.Background()); !errors.Is(err, lifecycle.ErrAlreadyRunning) {
		t.Errorf("second Start() = %v, want ErrAlreadyRunning", err)
	}
}

func TestRegistry_Property(t *testing.T) {
	reg := New(Config{Properties: map[string]string{"config.dir": "/srv/config"}})
	if got := reg.Property("config.dir"); got != "/srv/config" {
		t.Errorf("Property() = %q", got)
	}
	if got := reg.Property("missing"); got != "" {
		t.Errorf("Property(missing) = %q, want empty", got)
	}
	if reg.Name() != "registry" {
		t.Errorf("default Name() = %q, want registry", reg.Name())
	}
}

func TestRegistry_ConcurrentRegistration(t *testing.T) {
	reg := startRegistry(t)

	var count sync.WaitGroup
	rec := make(chan Event, 200)
	count.Add(100)
	if _, err := reg.Subscribe(nil, func(ev Event) {
		rec <- ev
		count.Done()
	}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref, err := reg.Register(typeA, i)
			if err != nil {
				t.Errorf("Register() = %v", err)
				return
			}
			if err := reg.UnregisterRef(ref); err != nil {
				t.Errorf("UnregisterRef() = %v", err)
			}
		}(i)
	}
	wg.Wait()

	done := make(chan struct{})
	go func() {
		count.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not every event was delivered")
	}
	if _, ok := reg.Lookup(typeA); ok {
		t.Error("registry should be empty")
	}
}

func TestRegistry_Revision(t *testing.T) {
	reg := startRegistry(t)

	if got := reg.Revision(typeA); got != 0 {
		t.Fatalf("Revision() = %d before any registration, want 0", got)
	}
	ref, err := reg.Register(typeA, "one")
	if err != nil {
		t.Fatal(err)
	}
	if ref.Revision() != 1 || reg.Revision(typeA) != 1 {
		t.Errorf("after Register: ref %d, registry %d, want 1", ref.Revision(), reg.Revision(typeA))
	}
	if err := reg.UnregisterRef(ref); err != nil {
		t.Fatal(err)
	}
	if got := reg.Revision(typeA); got != 2 {
		t.Errorf("Revision() after Unregister = %d, want 2", got)
	}
	if got := reg.Revision(typeB); got != 0 {
		t.Errorf("Revision(b) = %d, want 0", got)
	}
}

func TestRegistry_DispatchRunsAfterQueuedEvents(t *testing.T) {
	reg := startRegistry(t)
	rec := newRecorder()
	if _, err := reg.Subscribe([]ComponentType{typeA}, rec.listen); err != nil {
		t.Fatal(err)
	}
	_, _ = reg.Register(typeA, "one")

	done := make(chan int, 1)
	if err := reg.Dispatch(func() {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		done <- len(rec.events)
	}); err != nil {
		t.Fatalf("Dispatch() = %v", err)
	}

	select {
	case n := <-done:
		if n != 1 {
			t.Errorf("events delivered before dispatched func = %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatched func never ran")
	}

	if err := reg.Dispatch(func() { panic("boom") }); err != nil {
		t.Fatal(err)
	}
	_, _ = reg.Register(typeA, "two")
	rec.next(t)
	rec.next(t)

	stopped := New(Config{})
	if err := stopped.Dispatch(func() {}); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Dispatch() on stopped registry = %v, want ErrNotRunning", err)
	}
}
