package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"tcp-kvs/internal/api"
	"tcp-kvs/internal/config"
	"tcp-kvs/internal/events"
	"tcp-kvs/internal/logger"
	"tcp-kvs/internal/netserver"
	"tcp-kvs/internal/pipeline"
	"tcp-kvs/internal/protocol"
	"tcp-kvs/internal/snapshot"
	"tcp-kvs/internal/stats"
	"tcp-kvs/internal/store"
)

// App はサーバー全体の起動順序と停止順序を管理する
type App struct {
	cfg      config.Server
	statsOut io.Writer

	store    *store.Store
	file     *snapshot.File
	bus      *events.Bus
	counters *stats.Counters
	pipeline *pipeline.Pipeline
	reporter *stats.Reporter
	server   *netserver.Server
	admin    *api.Server

	mu       sync.Mutex
	cancel   context.CancelFunc
	adminWG  sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// Option は App の設定を変更する
type Option func(*App)

// WithStatsOutput は統計レポートの出力先を指定する。既定は標準出力
func WithStatsOutput(w io.Writer) Option {
	return func(a *App) { a.statsOut = w }
}

// New はスナップショットを読み込み、待ち受けソケットを開く
// バックグラウンド処理は Run まで起動しない
func New(cfg config.Server, opts ...Option) (*App, error) {
	a := &App{
		cfg:      cfg,
		statsOut: os.Stdout,
		store:    store.New(),
		file:     snapshot.New(cfg.SnapshotPath),
		bus:      events.NewBus(),
		counters: stats.NewCounters(),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.loadSnapshot(); err != nil {
		return nil, err
	}

	a.pipeline = pipeline.New(a.store, a.file, cfg.PersistInterval, a.bus)
	a.reporter = stats.NewReporter(a.counters, a.store, cfg.StatsInterval, a.statsOut, a.bus)

	handler := protocol.NewHandler(a.store, a.pipeline, a.counters)
	a.server = netserver.New(handler, cfg.MaxConnections, a.bus)
	if err := a.server.Listen(cfg.Addr()); err != nil {
		return nil, err
	}

	if cfg.AdminAddr != "" {
		a.admin = api.NewServer(cfg.AdminAddr, api.Deps{
			Keys:     a.store,
			Counters: a.counters,
			Pipeline: a.pipeline,
			Sessions: a.server,
			Bus:      a.bus,
		})
	}

	return a, nil
}

// loadSnapshot は既存のスナップショットを読み込む
// ファイルが無ければ空で作成し、壊れていれば空の状態で起動する
func (a *App) loadSnapshot() error {
	created, err := a.file.Ensure()
	if err != nil {
		return fmt.Errorf("prepare snapshot file: %w", err)
	}
	if created {
		logger.Info("", "created empty snapshot file %s", a.file.Path())
		return nil
	}

	entries, err := a.file.Load()
	switch {
	case errors.Is(err, snapshot.ErrMalformed):
		logger.Warn("", "ignoring unreadable snapshot, starting empty: %v", err)
		return nil
	case err != nil:
		return fmt.Errorf("load snapshot: %w", err)
	}

	a.store.Load(entries)
	logger.Info("", "loaded %d keys from %s", len(entries), a.file.Path())
	return nil
}

// Addr は TCP の待ち受けアドレスを返す
func (a *App) Addr() net.Addr {
	return a.server.Addr()
}

// Store はストアを返す
func (a *App) Store() *store.Store {
	return a.store
}

// Bus はイベントバスを返す
func (a *App) Bus() *events.Bus {
	return a.bus
}

// Run はバックグラウンド処理を起動し、ctx が終わるか Shutdown が呼ばれるまで接続を受け付ける
// 停止処理がすべて終わってから戻る
func (a *App) Run(ctx context.Context) error {
	select {
	case <-a.stopped:
		return netserver.ErrServerClosed
	default:
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	defer cancel()

	a.pipeline.Start()
	a.reporter.Start(runCtx)

	if a.admin != nil {
		a.adminWG.Add(1)
		go func() {
			defer a.adminWG.Done()
			if err := a.admin.Start(runCtx); err != nil {
				logger.Error("admin", "API server failed: %v", err)
			}
		}()
	}

	go func() {
		select {
		case <-runCtx.Done():
			a.Shutdown()
		case <-a.stopped:
		}
	}()

	err := a.server.Serve()
	a.Shutdown()

	if errors.Is(err, netserver.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown はサーバーを停止する。何度呼んでも一度だけ実行され、完了まで待つ
//
//  1. 新規接続の受付を止め、既存セッションを閉じる
//  2. パイプラインに停止を通知し、待機中の処理をすべて起こす
//  3. timer -> stats -> applier -> writer の順に終了を待つ
func (a *App) Shutdown() {
	a.stopOnce.Do(func() {
		logger.Info("", "shutting down")

		if err := a.server.Close(); err != nil {
			logger.Warn("acceptor", "close listener: %v", err)
		}

		a.pipeline.Interrupt()
		a.pipeline.WaitTimer()
		a.reporter.Stop()
		a.pipeline.WaitApplier()
		a.pipeline.WaitWriter()

		a.mu.Lock()
		if a.cancel != nil {
			a.cancel()
		}
		a.mu.Unlock()
		a.adminWG.Wait()

		a.bus.Close()
		logger.Info("", "shutdown complete (%d keys)", a.store.Len())
		close(a.stopped)
	})
	<-a.stopped
}
