package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"tcp-kvs/internal/events"
	"tcp-kvs/internal/logger"
	"tcp-kvs/internal/queue"
	"tcp-kvs/internal/snapshot"
	"tcp-kvs/internal/store"
)

// Pipeline は set 要求をストアへ反映し、定期的にスナップショットへ書き出す
type Pipeline struct {
	store    *store.Store
	queue    *queue.Queue[store.Intent]
	file     *snapshot.File
	bus      *events.Bus
	interval time.Duration

	running    atomic.Bool
	flushedGen atomic.Uint64
	flushes    atomic.Uint64
	failures   atomic.Uint64

	fired       chan struct{} // timer -> writer
	flushed     chan struct{} // writer -> applier
	stop        chan struct{}
	applierDone chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	timerWG   sync.WaitGroup
	applierWG sync.WaitGroup
	writerWG  sync.WaitGroup
}

// Stats はパイプラインの状態
type Stats struct {
	Queued     int    `json:"queued"`
	Generation uint64 `json:"generation"`
	Flushed    uint64 `json:"flushed_generation"`
	Flushes    uint64 `json:"flushes"`
	Failures   uint64 `json:"failures"`
	Dirty      bool   `json:"dirty"`
	Accepting  bool   `json:"accepting"`
}

// New は Pipeline を作成する。bus は nil でもよい
func New(st *store.Store, file *snapshot.File, interval time.Duration, bus *events.Bus) *Pipeline {
	p := &Pipeline{
		store:       st,
		queue:       queue.New[store.Intent](),
		file:        file,
		bus:         bus,
		interval:    interval,
		fired:       make(chan struct{}, 1),
		flushed:     make(chan struct{}, 1),
		stop:        make(chan struct{}),
		applierDone: make(chan struct{}),
	}
	// 起動時にロード済みの内容はすでにファイルにある
	p.flushedGen.Store(st.Generation())
	return p
}

// Start は timer, writer, applier の各ゴルーチンを起動する
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		p.running.Store(true)

		p.timerWG.Add(1)
		go p.timerLoop()

		p.writerWG.Add(1)
		go p.writerLoop()

		p.applierWG.Add(1)
		go p.applierLoop()

		logger.Info("pipeline", "started (persist interval %v, snapshot %s)", p.interval, p.file.Path())
	})
}

// Enqueue は set 要求をキューに積む。ブロックしない
// 停止処理開始後は false を返す
func (p *Pipeline) Enqueue(in store.Intent) bool {
	return p.queue.Push(in)
}

// Running は停止処理が始まっていなければ true を返す
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Dirty は最後の書き出し以降にストアが変更されていれば true を返す
func (p *Pipeline) Dirty() bool {
	return p.store.Generation() > p.flushedGen.Load()
}

// Stats は現在の状態を返す
func (p *Pipeline) Stats() Stats {
	gen := p.store.Generation()
	flushed := p.flushedGen.Load()
	return Stats{
		Queued:     p.queue.Len(),
		Generation: gen,
		Flushed:    flushed,
		Flushes:    p.flushes.Load(),
		Failures:   p.failures.Load(),
		Dirty:      gen > flushed,
		Accepting:  !p.queue.Closed(),
	}
}

// Interrupt は停止処理を開始する。何度呼んでもよい
// 新しい要求の受付を止め、待機中のすべてのゴルーチンを起こす
func (p *Pipeline) Interrupt() {
	p.stopOnce.Do(func() {
		p.running.Store(false)
		close(p.stop)
		p.queue.Close()
	})
}

// WaitTimer は timer ゴルーチンの終了を待つ
func (p *Pipeline) WaitTimer() { p.timerWG.Wait() }

// WaitApplier は applier がキューを空にして終了するのを待つ
func (p *Pipeline) WaitApplier() { p.applierWG.Wait() }

// WaitWriter は writer が最終書き出しを終えるのを待つ
func (p *Pipeline) WaitWriter() { p.writerWG.Wait() }

// Stop は Interrupt の後 timer -> applier -> writer の順に終了を待つ
func (p *Pipeline) Stop() {
	p.Interrupt()
	p.WaitTimer()
	p.WaitApplier()
	p.WaitWriter()
}

func (p *Pipeline) timerLoop() {
	defer p.timerWG.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			select {
			case p.fired <- struct{}{}:
			default:
			}
		}
	}
}

func (p *Pipeline) writerLoop() {
	defer p.writerWG.Done()

	for {
		select {
		case <-p.fired:
			p.flush()
		case <-p.applierDone:
			p.flush()
			if p.Dirty() {
				logger.Error("writer", "final flush failed; generation %d was not persisted", p.store.Generation())
			}
			logger.Info("writer", "stopped after %d flushes", p.flushes.Load())
			return
		}
	}
}

// flush は dirty な場合だけスナップショットを書き出す
// 失敗時は dirty のまま残し、次の周期で再試行する
func (p *Pipeline) flush() {
	if !p.Dirty() {
		return
	}

	entries, gen := p.store.Snapshot()
	start := time.Now()

	if err := p.file.Save(entries); err != nil {
		p.failures.Add(1)
		logger.Warn("writer", "snapshot flush failed, will retry: %v", err)
		p.bus.Publish(events.NewSnapshotFailedEvent(gen, err))
		return
	}

	took := time.Since(start)
	p.flushedGen.Store(gen)
	p.flushes.Add(1)
	logger.Debug("writer", "wrote %d keys (generation %d) in %v", len(entries), gen, took)
	p.bus.Publish(events.NewSnapshotWrittenEvent(len(entries), gen, took))

	select {
	case p.flushed <- struct{}{}:
	default:
	}
}

func (p *Pipeline) applierLoop() {
	defer p.applierWG.Done()
	defer close(p.applierDone)

	for {
		first, ok := p.queue.Pop()
		if !ok {
			return
		}

		p.awaitFlush()

		batch := append([]store.Intent{first}, p.queue.Drain()...)
		gen := p.store.MergeBatch(batch)
		logger.Debug("applier", "merged %d intents (generation %d)", len(batch), gen)
	}
}

// awaitFlush は直前の世代が書き出されるまで待つ
// 停止処理中は待たずに戻る
func (p *Pipeline) awaitFlush() {
	for p.Dirty() {
		select {
		case <-p.flushed:
		case <-p.stop:
			return
		}
	}
}
