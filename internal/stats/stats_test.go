package stats

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"tcp-kvs/internal/events"
	"tcp-kvs/internal/store"
)

func TestCounters(t *testing.T) {
	c := NewCounters()

	c.RecordGet()
	c.RecordGet()
	c.RecordSet()

	gets, sets := c.Totals()
	if gets != 2 || sets != 1 {
		t.Errorf("expected totals 2/1, got %d/%d", gets, sets)
	}

	rg, rs := c.SwapRecent()
	if rg != 2 || rs != 1 {
		t.Errorf("expected recent 2/1, got %d/%d", rg, rs)
	}

	rg, rs = c.Recent()
	if rg != 0 || rs != 0 {
		t.Errorf("expected recent reset to 0, got %d/%d", rg, rs)
	}

	// lifetime はリセットされない
	gets, sets = c.Totals()
	if gets != 2 || sets != 1 {
		t.Errorf("totals changed after swap: %d/%d", gets, sets)
	}
}

func TestCountersConcurrent(t *testing.T) {
	c := NewCounters()
	var wg sync.WaitGroup

	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordGet()
			c.RecordSet()
		}()
	}
	wg.Wait()

	gets, sets := c.Totals()
	if gets != 100 || sets != 100 {
		t.Errorf("expected 100/100, got %d/%d", gets, sets)
	}
}

func TestSortedKeyCounts(t *testing.T) {
	rows := SortedKeyCounts(map[string]store.KeyStats{
		"b": {Reads: 1},
		"a": {Writes: 2},
		"c": {Reads: 3, Writes: 3},
	})

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, want := range []string{"a", "b", "c"} {
		if rows[i].Key != want {
			t.Errorf("row %d: expected %s, got %s", i, want, rows[i].Key)
		}
	}
	if rows[0].Writes != 2 {
		t.Errorf("expected writes 2 for a, got %d", rows[0].Writes)
	}
}

func TestRender(t *testing.T) {
	buf := &bytes.Buffer{}
	err := Render(buf, Report{
		Interval: 5 * time.Second,
		Requests: events.Requests{TotalGets: 10, TotalSets: 4, RecentGets: 3, RecentSets: 1},
		PerKey:   []events.KeyCounts{{Key: "key1", Reads: 7, Writes: 2}},
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Request statistics",
		"Total Get Requests: 10",
		"Total Set Requests: 4",
		"Get Requests in last 5s: 3",
		"Set Requests in last 5s: 1",
		"key1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in report:\n%s", want, out)
		}
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

func TestRenderWriteError(t *testing.T) {
	if err := Render(failingWriter{}, Report{}); err == nil {
		t.Error("expected write error")
	}
}

func TestCollectResetsRecent(t *testing.T) {
	c := NewCounters()
	st := store.New()
	st.MergeBatch([]store.Intent{{Key: "a", Value: "1"}})
	_, _ = st.Get("a")

	c.RecordGet()
	c.RecordSet()

	r := NewReporter(c, st, time.Second, &bytes.Buffer{}, nil)

	first := r.Collect()
	if first.Requests.RecentGets != 1 || first.Requests.RecentSets != 1 {
		t.Errorf("unexpected recent counts %+v", first.Requests)
	}
	if len(first.PerKey) != 1 || first.PerKey[0].Reads != 1 || first.PerKey[0].Writes != 1 {
		t.Errorf("unexpected per-key rows %+v", first.PerKey)
	}

	second := r.Collect()
	if second.Requests.RecentGets != 0 || second.Requests.TotalGets != 1 {
		t.Errorf("expected recent reset and totals kept, got %+v", second.Requests)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestReporterLoop(t *testing.T) {
	out := &syncBuffer{}
	bus := events.NewBus()
	sub := bus.Subscribe()

	r := NewReporter(NewCounters(), store.New(), 10*time.Millisecond, out, bus)
	r.Start(context.Background())
	r.Start(context.Background())

	select {
	case ev := <-sub:
		if ev.Type != events.EventStatsReport {
			t.Errorf("expected stats_report, got %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for stats report event")
	}

	r.Stop()
	r.Stop()

	if !strings.Contains(out.String(), "Request statistics") {
		t.Error("expected report on output")
	}
}

func TestReporterSurvivesWriteFailure(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe()

	r := NewReporter(NewCounters(), store.New(), 5*time.Millisecond, failingWriter{}, bus)
	r.Start(context.Background())
	defer r.Stop()

	for range 2 {
		select {
		case <-sub:
		case <-time.After(time.Second):
			t.Fatal("reporter stopped after a write failure")
		}
	}
}
