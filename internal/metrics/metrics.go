package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slices"
)

// DefaultMaxSamples は P99 計算に保持するレイテンシの既定数
const DefaultMaxSamples = 10000

// Op は計測対象の操作種別
type Op int

const (
	OpGet Op = iota
	OpSet
)

// Metrics は負荷クライアントのリクエスト結果を集計する
type Metrics struct {
	gets      atomic.Uint64
	sets      atomic.Uint64
	misses    atomic.Uint64
	failures  atomic.Uint64
	reconnect atomic.Uint64
	latencyNs atomic.Uint64

	mu         sync.Mutex
	start      time.Time
	samples    []time.Duration
	maxSamples int
}

// New は Metrics を作成する
func New() *Metrics {
	return NewWithSamples(DefaultMaxSamples)
}

// NewWithSamples は保持するサンプル数を指定して Metrics を作成する
func NewWithSamples(maxSamples int) *Metrics {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Metrics{
		start:      time.Now(),
		samples:    make([]time.Duration, 0, min(maxSamples, 1024)),
		maxSamples: maxSamples,
	}
}

// RecordSuccess は応答を得られたリクエストを記録する
func (m *Metrics) RecordSuccess(op Op, latency time.Duration) {
	m.count(op)
	m.latencyNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	if len(m.samples) < m.maxSamples {
		m.samples = append(m.samples, latency)
	}
	m.mu.Unlock()
}

// RecordMiss は "Key not found" になった get を記録する。成功として数える
func (m *Metrics) RecordMiss(latency time.Duration) {
	m.misses.Add(1)
	m.RecordSuccess(OpGet, latency)
}

// RecordFailure は接続エラーや拒否で失敗したリクエストを記録する
func (m *Metrics) RecordFailure(op Op) {
	m.count(op)
	m.failures.Add(1)
}

// RecordReconnect は再接続を記録する
func (m *Metrics) RecordReconnect() {
	m.reconnect.Add(1)
}

func (m *Metrics) count(op Op) {
	if op == OpSet {
		m.sets.Add(1)
	} else {
		m.gets.Add(1)
	}
}

// Total は記録したリクエストの総数を返す
func (m *Metrics) Total() uint64 {
	return m.gets.Load() + m.sets.Load()
}

// Failures は失敗数を返す
func (m *Metrics) Failures() uint64 {
	return m.failures.Load()
}

// P99Latency は保持しているサンプルから P99 を求める
func (m *Metrics) P99Latency() time.Duration {
	m.mu.Lock()
	sorted := slices.Clone(m.samples)
	m.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)

	idx := int(float64(len(sorted)) * 0.99)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// Snapshot は集計結果
type Snapshot struct {
	Gets           uint64        `json:"gets"`
	Sets           uint64        `json:"sets"`
	Misses         uint64        `json:"misses"`
	Total          uint64        `json:"total"`
	Success        uint64        `json:"success"`
	Failures       uint64        `json:"failures"`
	Reconnects     uint64        `json:"reconnects"`
	ErrorRate      float64       `json:"error_rate"`
	AverageLatency time.Duration `json:"average_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
	RPS            float64       `json:"rps"`
	Elapsed        time.Duration `json:"elapsed"`
}

// Snapshot は現在の集計結果を返す
func (m *Metrics) Snapshot() Snapshot {
	gets, sets := m.gets.Load(), m.sets.Load()
	failures := m.failures.Load()
	total := gets + sets
	success := total - failures
	elapsed := time.Since(m.start)

	s := Snapshot{
		Gets:       gets,
		Sets:       sets,
		Misses:     m.misses.Load(),
		Total:      total,
		Success:    success,
		Failures:   failures,
		Reconnects: m.reconnect.Load(),
		P99Latency: m.P99Latency(),
		Elapsed:    elapsed,
	}
	if total > 0 {
		s.ErrorRate = float64(failures) / float64(total)
	}
	if success > 0 {
		s.AverageLatency = time.Duration(m.latencyNs.Load() / success)
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.RPS = float64(total) / secs
	}
	return s
}
