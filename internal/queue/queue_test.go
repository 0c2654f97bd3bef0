package queue

import (
	"sync"
	"testing"
	"time"
)

func TestPushPopFIFO(t *testing.T) {
	q := New[int]()

	for i := range 5 {
		if !q.Push(i) {
			t.Fatalf("Push(%d) rejected", i)
		}
	}
	if q.Len() != 5 {
		t.Errorf("expected len 5, got %d", q.Len())
	}

	for i := range 5 {
		got, ok := q.Pop()
		if !ok || got != i {
			t.Errorf("expected (%d, true), got (%d, %v)", i, got, ok)
		}
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New[string]()
	done := make(chan string, 1)

	go func() {
		v, _ := q.Pop()
		done <- v
	}()

	select {
	case <-done:
		t.Fatal("Pop returned before any Push")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push("hello")

	select {
	case v := <-done:
		if v != "hello" {
			t.Errorf("expected hello, got %s", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Pop")
	}
}

func TestCloseWakesBlockedPop(t *testing.T) {
	q := New[int]()
	done := make(chan bool, 1)

	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected ok=false after Close on empty queue")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake Pop")
	}
}

func TestCloseKeepsQueuedItems(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	q.Close()

	if q.Push(3) {
		t.Error("Push after Close should be rejected")
	}
	if !q.Closed() {
		t.Error("expected Closed() true")
	}

	for _, want := range []int{1, 2} {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Errorf("expected (%d, true), got (%d, %v)", want, got, ok)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Error("expected ok=false once drained")
	}

	// 二重 Close は no-op
	q.Close()
}

func TestDrain(t *testing.T) {
	q := New[int]()

	if got := q.Drain(); got != nil {
		t.Errorf("expected nil from empty queue, got %v", got)
	}

	q.Push(1)
	q.Push(2)
	q.Push(3)
	_, _ = q.Pop()

	got := q.Drain()
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("expected [2 3], got %v", got)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestManyProducers(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for p := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				q.Push(p*100 + i)
			}
		}()
	}
	wg.Wait()
	q.Close()

	seen := make(map[int]bool)
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		if seen[v] {
			t.Fatalf("duplicate item %d", v)
		}
		seen[v] = true
	}
	if len(seen) != 1000 {
		t.Errorf("expected 1000 items, got %d", len(seen))
	}
}
