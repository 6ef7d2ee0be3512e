package handoff

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestHandoff_PublishBeforeAwait(t *testing.T) {
	h := New[string]()
	if !h.Publish("ready") {
		t.Fatal("first Publish should win")
	}

	got, err := h.Await(time.Second)
	if err != nil || got != "ready" {
		t.Fatalf("Await() = %q, %v; want ready, nil", got, err)
	}
}

func TestHandoff_PublishWhileAwaiting(t *testing.T) {
	h := New[int]()

	go func() {
		time.Sleep(20 * time.Millisecond)
		h.Publish(42)
	}()

	got, err := h.Await(2 * time.Second)
	if err != nil || got != 42 {
		t.Fatalf("Await() = %d, %v; want 42, nil", got, err)
	}
}

func TestHandoff_SingleAssignment(t *testing.T) {
	h := New[string]()
	cause := errors.New("builder exploded")

	if !h.Publish("first") {
		t.Fatal("Publish should win")
	}
	if h.Publish("second") {
		t.Error("second Publish should be ignored")
	}
	if h.Fail(cause) {
		t.Error("Fail after Publish should be ignored")
	}

	got, err := h.Await(time.Second)
	if err != nil || got != "first" {
		t.Errorf("Await() = %q, %v; want first, nil", got, err)
	}
}

func TestHandoff_Fail(t *testing.T) {
	h := New[string]()
	cause := errors.New("builder exploded")

	if !h.Fail(cause) {
		t.Fatal("Fail should win")
	}
	if h.Publish("late") {
		t.Error("Publish after Fail should be ignored")
	}

	_, err := h.Await(time.Second)
	if !errors.Is(err, cause) {
		t.Errorf("Await() err = %v, want %v", err, cause)
	}
}

func TestHandoff_FailNilCause(t *testing.T) {
	h := New[string]()
	h.Fail(nil)
	if _, err := h.Await(time.Second); err == nil {
		t.Error("Fail(nil) must still surface an error")
	}
}

func TestHandoff_Timeout(t *testing.T) {
	h := New[string]()

	start := time.Now()
	_, err := h.Await(30 * time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Await() err = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Await returned after %v, before the timeout", elapsed)
	}

	// A publish after the timeout is kept for later readers.
	if !h.Publish("late") {
		t.Error("Publish after a timed-out Await should still win")
	}
	if !h.IsSet() {
		t.Error("IsSet() should report true")
	}
}

func TestHandoff_AwaitContext(t *testing.T) {
	h := New[string]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := h.AwaitContext(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("AwaitContext() err = %v, want context.Canceled", err)
	}

	h.Publish("v")
	got, err := h.AwaitContext(ctx)
	if err != nil || got != "v" {
		t.Errorf("AwaitContext() after publish = %q, %v; published value should win", got, err)
	}
}

func TestHandoff_ConcurrentPublishers(t *testing.T) {
	h := New[int]()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var won bool
			if i%2 == 0 {
				won = h.Publish(i)
			} else {
				won = h.Fail(errors.New("lost"))
			}
			if won {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
	select {
	case <-h.Done():
	default:
		t.Error("Done() should be closed")
	}
}
