package stats

import "sync/atomic"

// Counters はプロトコル層のリクエスト数
// lifetime はプロセス終了まで単調増加し、recent はレポートごとにゼロへ戻る
type Counters struct {
	totalGets  atomic.Uint64
	totalSets  atomic.Uint64
	recentGets atomic.Uint64
	recentSets atomic.Uint64
}

// NewCounters はゼロ値の Counters を返す
func NewCounters() *Counters {
	return &Counters{}
}

// RecordGet は get リクエストを1件記録する
func (c *Counters) RecordGet() {
	c.totalGets.Add(1)
	c.recentGets.Add(1)
}

// RecordSet は受け付けた set リクエストを1件記録する
func (c *Counters) RecordSet() {
	c.totalSets.Add(1)
	c.recentSets.Add(1)
}

// Totals は lifetime のカウントを返す
func (c *Counters) Totals() (gets, sets uint64) {
	return c.totalGets.Load(), c.totalSets.Load()
}

// Recent は recent のカウントをリセットせずに返す
func (c *Counters) Recent() (gets, sets uint64) {
	return c.recentGets.Load(), c.recentSets.Load()
}

// SwapRecent は recent のカウントを返してゼロに戻す
func (c *Counters) SwapRecent() (gets, sets uint64) {
	return c.recentGets.Swap(0), c.recentSets.Swap(0)
}
