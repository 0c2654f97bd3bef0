package worker

import (
	"context"
	"runtime"
	"sync"

	"tcp-kvs/internal/logger"
)

// Job はワーカーが実行するジョブ
// ctx はプールの停止で取り消され、id は実行するワーカーの番号
type Job func(ctx context.Context, id int)

// PoolConfig はワーカープールの設定
type PoolConfig struct {
	NumWorkers  int // ワーカー数（0でCPU数）
	QueueFactor int // キューサイズ = NumWorkers * QueueFactor
}

// DefaultPoolConfig はデフォルト設定を返す
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		NumWorkers:  0,
		QueueFactor: 4,
	}
}

// Pool は固定数のゴルーチンでジョブを実行する
type Pool struct {
	numWorkers int
	jobs       chan Job
	wg         sync.WaitGroup

	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool
}

// NewPool はワーカープールを作成する
// numWorkers が 0 以下の場合は CPU 数を使用
func NewPool(numWorkers int) *Pool {
	config := DefaultPoolConfig()
	config.NumWorkers = numWorkers
	return NewPoolWithConfig(config)
}

// NewPoolWithConfig は設定を指定してワーカープールを作成する
func NewPoolWithConfig(config PoolConfig) *Pool {
	numWorkers := config.NumWorkers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	queueFactor := config.QueueFactor
	if queueFactor <= 0 {
		queueFactor = 4
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan Job, numWorkers*queueFactor),
	}
}

// Start はワーカーを起動する。2回目以降は何もしない
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.closed {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.started = true

	for i := range p.numWorkers {
		p.wg.Add(1)
		go p.worker(i)
	}

	logger.Debug("worker", "pool started with %d workers", p.numWorkers)
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			job(p.ctx, id)
		}
	}
}

// Submit はジョブをキューに積む。キューが一杯なら空くまで待つ
// 開始前、Wait/Stop 後、またはコンテキスト取り消し後は false を返す
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.started || p.closed {
		return false
	}

	select {
	case <-p.ctx.Done():
		return false
	default:
	}

	select {
	case <-p.ctx.Done():
		return false
	case p.jobs <- job:
		return true
	}
}

// Wait は受付を締め切り、積まれたジョブがすべて終わるまで待つ
func (p *Pool) Wait() {
	if !p.close() {
		return
	}
	p.wg.Wait()
	p.cancel()
	logger.Debug("worker", "pool drained")
}

// Stop は実行中のジョブを取り消してワーカーの終了を待つ
// 積まれたまま実行されなかったジョブは捨てられる
func (p *Pool) Stop() {
	p.mu.RLock()
	started := p.started
	p.mu.RUnlock()
	if !started {
		return
	}

	p.cancel()
	if p.close() {
		p.wg.Wait()
		logger.Debug("worker", "pool stopped")
	}
}

// close は受付を締め切る。最初の呼び出しだけ true を返す
func (p *Pool) close() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started || p.closed {
		return false
	}
	p.closed = true
	close(p.jobs)
	return true
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return p.numWorkers
}

// QueueSize はキューに残っているジョブ数を返す
func (p *Pool) QueueSize() int {
	return len(p.jobs)
}
