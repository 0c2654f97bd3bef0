package stats

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"

	"golang.org/x/exp/slices"

	"tcp-kvs/internal/events"
	"tcp-kvs/internal/logger"
	"tcp-kvs/internal/store"
)

// KeySource はキー統計の取得元
type KeySource interface {
	KeyStats() map[string]store.KeyStats
}

// Report は1回分の統計レポート
type Report struct {
	Interval time.Duration
	Requests events.Requests
	PerKey   []events.KeyCounts
}

// Reporter は一定間隔で統計レポートを出力する
type Reporter struct {
	counters *Counters
	source   KeySource
	interval time.Duration
	out      io.Writer
	bus      *events.Bus

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReporter は Reporter を作成する。bus は nil でもよい
func NewReporter(counters *Counters, source KeySource, interval time.Duration, out io.Writer, bus *events.Bus) *Reporter {
	return &Reporter{
		counters: counters,
		source:   source,
		interval: interval,
		out:      out,
		bus:      bus,
	}
}

// Start はレポートループを起動する
func (r *Reporter) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Swap(true) {
		return
	}

	var loopCtx context.Context
	loopCtx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.loop(loopCtx)

	logger.Info("stats", "reporter started (interval %v)", r.interval)
}

// Stop はレポートループを停止し、終了を待つ
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.running.Swap(false) {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	logger.Info("stats", "reporter stopped")
}

func (r *Reporter) loop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := r.Collect()
			if err := Render(r.out, report); err != nil {
				logger.Warn("stats", "failed to print statistics: %v", err)
			}
			r.bus.Publish(events.NewStatsReportEvent(report.Requests, report.PerKey))
		}
	}
}

// Collect は recent カウンタをリセットしながら現在の統計を集める
func (r *Reporter) Collect() Report {
	recentGets, recentSets := r.counters.SwapRecent()
	totalGets, totalSets := r.counters.Totals()

	return Report{
		Interval: r.interval,
		Requests: events.Requests{
			TotalGets:  totalGets,
			TotalSets:  totalSets,
			RecentGets: recentGets,
			RecentSets: recentSets,
		},
		PerKey: SortedKeyCounts(r.source.KeyStats()),
	}
}

// SortedKeyCounts はキー統計をキー順の行に変換する
func SortedKeyCounts(m map[string]store.KeyStats) []events.KeyCounts {
	rows := make([]events.KeyCounts, 0, len(m))
	for k, st := range m {
		rows = append(rows, events.KeyCounts{Key: k, Reads: st.Reads, Writes: st.Writes})
	}
	slices.SortFunc(rows, func(a, b events.KeyCounts) int {
		return strings.Compare(a.Key, b.Key)
	})
	return rows
}

// Render はレポートを人間向けの表として書き出す
func Render(w io.Writer, r Report) error {
	var b strings.Builder

	b.WriteString("==================== Request statistics ====================\n")
	fmt.Fprintf(&b, "Total Get Requests: %d\n", r.Requests.TotalGets)
	fmt.Fprintf(&b, "Total Set Requests: %d\n", r.Requests.TotalSets)
	fmt.Fprintf(&b, "Get Requests in last %v: %d\n", r.Interval, r.Requests.RecentGets)
	fmt.Fprintf(&b, "Set Requests in last %v: %d\n", r.Interval, r.Requests.RecentSets)

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Key\tReads\tWrites\t")
	for _, row := range r.PerKey {
		fmt.Fprintf(tw, "%s\t%d\t%d\t\n", row.Key, row.Reads, row.Writes)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := io.WriteString(w, b.String())
	return err
}
