package loadgen

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"tcp-kvs/internal/client"
	"tcp-kvs/internal/logger"
	"tcp-kvs/internal/metrics"
	"tcp-kvs/internal/worker"
)

// Config は Runner の設定
type Config struct {
	Addr           string
	Profile        Profile
	ReconnectDelay time.Duration // 接続失敗後の待ち時間
	Timeout        time.Duration // 1リクエストの待ち時間
	Seed           uint64        // 0 なら時刻から決める
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig(addr string) Config {
	return Config{
		Addr:           addr,
		Profile:        DefaultProfile(),
		ReconnectDelay: time.Second,
		Timeout:        client.DefaultTimeout,
	}
}

// ClientResult は1クライアント分の結果
type ClientResult struct {
	ID         int      `json:"id"`
	Gets       int      `json:"gets"`
	Sets       int      `json:"sets"`
	Reconnects int      `json:"reconnects"`
	Responses  []string `json:"responses,omitempty"`
}

// Result は実行結果
type Result struct {
	Profile string           `json:"profile"`
	Metrics metrics.Snapshot `json:"metrics"`
	Clients []ClientResult   `json:"clients"`
}

// Runner は複数のクライアントを並行に動かして負荷をかける
type Runner struct {
	config  Config
	metrics *metrics.Metrics
}

// New は Runner を作成する
func New(config Config) *Runner {
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = time.Second
	}
	if config.Seed == 0 {
		config.Seed = uint64(time.Now().UnixNano())
	}
	return &Runner{
		config:  config,
		metrics: metrics.New(),
	}
}

// Metrics は集計中のメトリクスを返す
func (r *Runner) Metrics() *metrics.Metrics {
	return r.metrics
}

// Run はすべてのクライアントが終わるか ctx が終わるまで負荷をかける
func (r *Runner) Run(ctx context.Context) (Result, error) {
	p := r.config.Profile
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	logger.Info("loadgen", "profile %s: %d clients x %d requests against %s",
		p.Name, p.Clients, p.Requests, r.config.Addr)

	pool := worker.NewPoolWithConfig(worker.PoolConfig{NumWorkers: p.Clients, QueueFactor: 1})
	pool.Start(ctx)

	results := make([]ClientResult, p.Clients)
	var mu sync.Mutex
	for i := range p.Clients {
		submitted := pool.Submit(func(ctx context.Context, _ int) {
			res := r.session(ctx, i)
			mu.Lock()
			results[i] = res
			mu.Unlock()
		})
		if !submitted {
			break
		}
	}
	pool.Wait()

	mu.Lock()
	defer mu.Unlock()
	result := Result{
		Profile: p.Name,
		Metrics: r.metrics.Snapshot(),
		Clients: results,
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// session は1本の接続で Requests 回のリクエストを送る
// 接続が切れたら ReconnectDelay 待って繋ぎ直す
func (r *Runner) session(ctx context.Context, id int) ClientResult {
	p := r.config.Profile
	rng := rand.New(rand.NewPCG(r.config.Seed, uint64(id)))
	res := ClientResult{ID: id}

	var conn *client.Conn
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	waiting := false
	connectedOnce := false
	for done := 0; done < p.Requests; {
		if ctx.Err() != nil {
			return res
		}

		if conn == nil {
			c, err := r.dial(ctx)
			if err != nil {
				if !waiting {
					logger.Info("loadgen", "client %d waiting for server: %v", id, err)
					waiting = true
				}
				if !sleep(ctx, r.config.ReconnectDelay) {
					return res
				}
				continue
			}
			if connectedOnce {
				res.Reconnects++
				r.metrics.RecordReconnect()
			}
			conn, waiting, connectedOnce = c, false, true
		}

		var err error
		if len(p.Fragments) > 0 {
			err = r.sendFragments(conn, &res, p.Fragments[(id+done)%len(p.Fragments)])
		} else {
			err = r.request(conn, rng, &res)
		}
		done++

		if err != nil {
			logger.Warn("loadgen", "client %d connection failed, reconnecting: %v", id, err)
			_ = conn.Close()
			conn = nil
		}
	}
	return res
}

func (r *Runner) dial(ctx context.Context) (*client.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, r.config.ReconnectDelay)
	defer cancel()
	conn, err := client.Dial(dialCtx, r.config.Addr)
	if err != nil {
		return nil, err
	}
	conn.SetTimeout(r.config.Timeout)
	return conn, nil
}

// request はランダムに get か set を1回送る
// 戻り値のエラーは接続を捨てるべきものに限る
func (r *Runner) request(conn *client.Conn, rng *rand.Rand, res *ClientResult) error {
	p := r.config.Profile
	key := p.Keys[rng.IntN(len(p.Keys))]
	start := time.Now()

	if rng.Float64() < p.ReadRatio {
		res.Gets++
		_, err := conn.Get(key)
		switch {
		case errors.Is(err, client.ErrKeyNotFound):
			r.metrics.RecordMiss(time.Since(start))
			return nil
		case err != nil:
			r.metrics.RecordFailure(metrics.OpGet)
			return err
		}
		r.metrics.RecordSuccess(metrics.OpGet, time.Since(start))
		return nil
	}

	res.Sets++
	value := fmt.Sprintf("value%d", rng.IntN(p.ValueRange)+1)
	err := conn.Set(key, value)
	switch {
	case errors.Is(err, client.ErrRejected):
		r.metrics.RecordFailure(metrics.OpSet)
		return nil
	case err != nil:
		r.metrics.RecordFailure(metrics.OpSet)
		return err
	}
	r.metrics.RecordSuccess(metrics.OpSet, time.Since(start))
	return nil
}

func (r *Runner) sendFragments(conn *client.Conn, res *ClientResult, fragments []string) error {
	op := metrics.OpGet
	if strings.HasPrefix(strings.Join(fragments, ""), "set ") {
		op = metrics.OpSet
		res.Sets++
	} else {
		res.Gets++
	}

	start := time.Now()
	resp, err := conn.SendFragments(fragments, r.config.Profile.FragmentGap)
	if err != nil {
		r.metrics.RecordFailure(op)
		return err
	}
	r.metrics.RecordSuccess(op, time.Since(start))
	res.Responses = append(res.Responses, resp)
	logger.Debug("loadgen", "client %d sent %q, got %q", res.ID, fragments, resp)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
