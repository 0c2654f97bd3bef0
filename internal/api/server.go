package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"golang.org/x/net/websocket"

	"tcp-kvs/internal/events"
	"tcp-kvs/internal/logger"
	"tcp-kvs/internal/netserver"
	"tcp-kvs/internal/pipeline"
	"tcp-kvs/internal/stats"
	"tcp-kvs/internal/store"
)

// KeySource はキー統計とキー数の取得元
type KeySource interface {
	KeyStats() map[string]store.KeyStats
	Len() int
}

// PipelineSource は書き込みパイプラインの状態
type PipelineSource interface {
	Stats() pipeline.Stats
	Running() bool
}

// SessionSource は接続数の統計
type SessionSource interface {
	Stats() netserver.Stats
}

// Deps は API が参照するコンポーネント
type Deps struct {
	Keys     KeySource
	Counters *stats.Counters
	Pipeline PipelineSource
	Sessions SessionSource
	Bus      *events.Bus
}

// Server は管理用 HTTP サーバー
type Server struct {
	addr string
	deps Deps

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]bool
	listener  net.Listener
	server    *http.Server
}

// NewServer は新しい管理サーバーを作成する
func NewServer(addr string, deps Deps) *Server {
	return &Server{
		addr:      addr,
		deps:      deps,
		wsClients: make(map[*websocket.Conn]bool),
	}
}

// Handler はルーティング済みの http.Handler を返す
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/stats", s.handleStats)
	r.Get("/api/keys", s.handleKeys)
	r.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return r
}

// Addr は待ち受けアドレスを返す。Start 前は設定値
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start は ctx が終わるまでサーバーを動かす
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.listener = ln
	s.server = srv
	s.mu.Unlock()

	logger.Info("admin", "API server listening on http://%s", ln.Addr())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		s.closeWebSockets()
	}()

	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	running := s.deps.Pipeline != nil && s.deps.Pipeline.Running()
	status := "ok"
	if !running {
		status = "stopping"
	}
	s.writeJSON(w, HealthResponse{Status: status, Running: running})
}

// StatsResponse は統計のレスポンス
type StatsResponse struct {
	Requests events.Requests  `json:"requests"`
	Keys     int              `json:"keys"`
	Pipeline *pipeline.Stats  `json:"pipeline,omitempty"`
	Sessions *netserver.Stats `json:"sessions,omitempty"`
	// Subscribers は購読中のイベントストリーム数（/ws 接続を含む）
	Subscribers int `json:"subscribers"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{}

	if c := s.deps.Counters; c != nil {
		resp.Requests.TotalGets, resp.Requests.TotalSets = c.Totals()
		resp.Requests.RecentGets, resp.Requests.RecentSets = c.Recent()
	}
	if s.deps.Keys != nil {
		resp.Keys = s.deps.Keys.Len()
	}
	if s.deps.Pipeline != nil {
		ps := s.deps.Pipeline.Stats()
		resp.Pipeline = &ps
	}
	if s.deps.Sessions != nil {
		ss := s.deps.Sessions.Stats()
		resp.Sessions = &ss
	}
	resp.Subscribers = s.deps.Bus.SubscriberCount()

	s.writeJSON(w, resp)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	rows := []events.KeyCounts{}
	if s.deps.Keys != nil {
		rows = stats.SortedKeyCounts(s.deps.Keys.KeyStats())
	}
	s.writeJSON(w, rows)
}

// handleWebSocket はバスのイベントをそのままクライアントへ流す
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	if s.deps.Bus == nil {
		_ = ws.Close()
		return
	}

	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	sub := s.deps.Bus.Subscribe()
	defer func() {
		s.deps.Bus.Unsubscribe(sub)
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// クライアント側の切断を検知する
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			var msg string
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(ws, ev); err != nil {
				logger.Debug("admin", "websocket send failed: %v", err)
				return
			}
		}
	}
}

func (s *Server) closeWebSockets() {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	for _, ws := range clients {
		_ = ws.Close()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("admin", "Failed to encode JSON: %v", err)
	}
}
