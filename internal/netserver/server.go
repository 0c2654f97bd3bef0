package netserver

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"tcp-kvs/internal/events"
	"tcp-kvs/internal/logger"
	"tcp-kvs/internal/protocol"
)

// ErrServerClosed は Close 後に Serve が返すエラー
var ErrServerClosed = errors.New("netserver: server closed")

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// Handler は1コマンドを処理してレスポンスを返す
type Handler interface {
	HandleRequest(command []byte) []byte
}

// Server は TCP 接続を受け付け、接続ごとにセッションを回す
type Server struct {
	handler  Handler
	bus      *events.Bus
	maxConns int

	mu       sync.Mutex
	listener net.Listener
	sessions map[*session]struct{}
	closing  bool

	wg       sync.WaitGroup
	accepted atomic.Uint64
	active   atomic.Int64
}

// Stats は接続数の統計
type Stats struct {
	Accepted uint64 `json:"accepted"`
	Active   int64  `json:"active"`
}

// New は Server を作成する
// maxConns が 0 なら同時接続数を制限しない
func New(handler Handler, maxConns int, bus *events.Bus) *Server {
	return &Server{
		handler:  handler,
		bus:      bus,
		maxConns: maxConns,
		sessions: make(map[*session]struct{}),
	}
}

// Listen は addr で待ち受けを開始する
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		_ = ln.Close()
		return ErrServerClosed
	}
	s.listener = ln
	return nil
}

// Addr は待ち受けアドレスを返す。Listen 前は nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats は現在の接続数を返す
func (s *Server) Stats() Stats {
	return Stats{
		Accepted: s.accepted.Load(),
		Active:   s.active.Load(),
	}
}

// Serve は Close されるまで接続を受け付け続ける
// 受け付けの失敗はログに残して続行する
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("netserver: Serve called before Listen")
	}

	logger.Info("acceptor", "listening on %s", ln.Addr())

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}

			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(backoff*2, maxAcceptBackoff)
			}
			logger.Warn("acceptor", "accept failed, retrying in %v: %v", backoff, err)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		sess := newSession(conn)
		if !s.track(sess) {
			_ = conn.Close()
			return ErrServerClosed
		}

		s.accepted.Add(1)
		s.active.Add(1)
		logger.Debug("acceptor", "accepted %s", sess.remote)
		s.bus.Publish(events.NewSessionOpenedEvent(sess.remote))

		s.wg.Add(1)
		go s.serveSession(sess)
	}
}

// Close は待ち受けを止め、すべてのセッションを閉じて終了を待つ
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		s.wg.Wait()
		return nil
	}
	s.closing = true

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for sess := range s.sessions {
		_ = sess.conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) track(sess *session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess] = struct{}{}
	return true
}

func (s *Server) untrack(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}

func (s *Server) serveSession(sess *session) {
	defer s.wg.Done()
	defer s.active.Add(-1)
	defer s.untrack(sess)

	err := sess.run(s.handler)
	_ = sess.conn.Close()

	switch {
	case err == nil, errors.Is(err, io.EOF):
		logger.Debug("session", "%s disconnected", sess.remote)
		err = nil
	case errors.Is(err, syscall.ECONNRESET):
		logger.Debug("session", "%s disconnected forcibly", sess.remote)
	case errors.Is(err, net.ErrClosed) && s.isClosing():
		logger.Debug("session", "%s closed by shutdown", sess.remote)
		err = nil
	default:
		logger.Warn("session", "%s dropped: %v", sess.remote, err)
	}
	s.bus.Publish(events.NewSessionClosedEvent(sess.remote, err))
}

// session は1接続分の状態。ソケットと固定長バッファ、直前のレスポンスだけを持つ
type session struct {
	conn     net.Conn
	remote   string
	buf      [protocol.BufferSize]byte
	response []byte
}

func newSession(conn net.Conn) *session {
	return &session{
		conn:   conn,
		remote: conn.RemoteAddr().String(),
	}
}

// run は read -> dispatch -> write を接続が切れるまで繰り返す
// 1回の Read で届いたバイト列をそのまま1コマンドとして扱う
func (s *session) run(h Handler) error {
	for {
		n, err := s.conn.Read(s.buf[:])
		if n > 0 {
			s.response = h.HandleRequest(s.buf[:n])
			if _, werr := s.conn.Write(s.response); werr != nil {
				return fmt.Errorf("write: %w", werr)
			}
		}
		if err != nil {
			return err
		}
	}
}
