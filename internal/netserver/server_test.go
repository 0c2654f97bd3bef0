package netserver

import (
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tcp-kvs/internal/events"
)

// recordingHandler は受け取ったコマンドを記録し、大文字化して返す
type recordingHandler struct {
	mu       sync.Mutex
	commands []string
}

func (h *recordingHandler) HandleRequest(command []byte) []byte {
	h.mu.Lock()
	h.commands = append(h.commands, string(command))
	h.mu.Unlock()
	return []byte(strings.ToUpper(string(command)))
}

func (h *recordingHandler) seen() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.commands...)
}

func startServer(t *testing.T, h Handler, maxConns int, bus *events.Bus) *Server {
	t.Helper()
	srv := New(h, maxConns, bus)
	require.NoError(t, srv.Listen("127.0.0.1:0"))

	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	t.Cleanup(func() {
		_ = srv.Close()
		select {
		case err := <-served:
			assert.ErrorIs(t, err, ErrServerClosed)
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return after Close")
		}
	})
	return srv
}

func roundTrip(t *testing.T, conn net.Conn, req string) string {
	t.Helper()
	_, err := conn.Write([]byte(req))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestSessionRequestResponseLoop(t *testing.T) {
	h := &recordingHandler{}
	srv := startServer(t, h, 0, nil)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "GET A", roundTrip(t, conn, "get a"))
	assert.Equal(t, "SET B=1", roundTrip(t, conn, "set b=1"))
	assert.Equal(t, []string{"get a", "set b=1"}, h.seen())
}

func TestSplitCommandIsNotReassembled(t *testing.T) {
	// 区切りもフレーミングも無いので、分割送信は別々のコマンドとして届く
	h := &recordingHandler{}
	srv := startServer(t, h, 0, nil)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "GET ", roundTrip(t, conn, "get "))
	assert.Equal(t, "KEY1", roundTrip(t, conn, "key1"))
	assert.Equal(t, []string{"get ", "key1"}, h.seen())
}

func TestOversizedCommandIsChunked(t *testing.T) {
	h := &recordingHandler{}
	srv := startServer(t, h, 0, nil)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("set k=" + strings.Repeat("x", 3000)))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		total := 0
		for _, c := range h.seen() {
			assert.LessOrEqual(t, len(c), 1024)
			total += len(c)
		}
		return total == 3006
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConcurrentSessions(t *testing.T) {
	h := &recordingHandler{}
	srv := startServer(t, h, 0, nil)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", srv.Addr().String())
			if !assert.NoError(t, err) {
				return
			}
			defer conn.Close()
			req := "get key" + string(rune('a'+i))
			assert.Equal(t, strings.ToUpper(req), roundTrip(t, conn, req))
		}()
	}
	wg.Wait()

	assert.Len(t, h.seen(), 10)
	assert.Equal(t, uint64(10), srv.Stats().Accepted)
}

func TestPeerDisconnectDropsSession(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe()
	srv := startServer(t, &recordingHandler{}, 0, bus)

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	roundTrip(t, conn, "get a")
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return srv.Stats().Active == 0 }, 2*time.Second, 5*time.Millisecond)

	var opened, closed bool
	timeout := time.After(time.Second)
	for !(opened && closed) {
		select {
		case ev := <-sub:
			opened = opened || ev.Type == events.EventSessionOpened
			closed = closed || ev.Type == events.EventSessionClosed
		case <-timeout:
			t.Fatalf("missing session events (opened=%v closed=%v)", opened, closed)
		}
	}
}

func TestCloseEndsActiveSessions(t *testing.T) {
	h := &recordingHandler{}
	srv := New(h, 0, nil)
	require.NoError(t, srv.Listen("127.0.0.1:0"))
	served := make(chan error, 1)
	go func() { served <- srv.Serve() }()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	roundTrip(t, conn, "get a")

	require.NoError(t, srv.Close())
	assert.Equal(t, int64(0), srv.Stats().Active)
	assert.True(t, errors.Is(<-served, ErrServerClosed))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = conn.Read(make([]byte, 16))
	assert.Error(t, err, "client should observe the closed session")

	assert.NoError(t, srv.Close(), "second Close is a no-op")
}

func TestMaxConnections(t *testing.T) {
	srv := startServer(t, &recordingHandler{}, 1, nil)

	first, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	assert.Equal(t, "GET A", roundTrip(t, first, "get a"))

	second, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	_, err = second.Write([]byte("get b"))
	require.NoError(t, err)
	require.NoError(t, second.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err = second.Read(make([]byte, 16))
	require.Error(t, err, "second client must wait while the first holds the only slot")

	require.NoError(t, first.Close())

	require.NoError(t, second.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 16)
	n, err := second.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "GET B", string(buf[:n]))
}

func TestServeBeforeListen(t *testing.T) {
	srv := New(&recordingHandler{}, 0, nil)
	assert.Error(t, srv.Serve())
	assert.Nil(t, srv.Addr())
}
