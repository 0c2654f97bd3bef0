package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"tcp-kvs/internal/protocol"
	"tcp-kvs/internal/store"
)

// DefaultTimeout は1リクエストあたりの既定の待ち時間
const DefaultTimeout = 5 * time.Second

var (
	// ErrKeyNotFound はサーバーが "Key not found" を返したことを示す
	ErrKeyNotFound = errors.New("key not found")
	// ErrRejected はサーバーが set を受け付けなかったことを示す
	ErrRejected = errors.New("request rejected")
)

// Result は get の結果
type Result struct {
	Key   string
	Value string
	Stats store.KeyStats
}

// Conn はサーバーへの1本の接続
// 同時に複数のゴルーチンから使ってはいけない
type Conn struct {
	conn    net.Conn
	timeout time.Duration
	buf     []byte
}

// Dial は addr に接続する
func Dial(ctx context.Context, addr string) (*Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Conn{
		conn:    conn,
		timeout: DefaultTimeout,
		// JSON で包まれる分だけレスポンスはコマンドより長くなりうる
		buf: make([]byte, 4*protocol.BufferSize),
	}, nil
}

// SetTimeout は1リクエストの待ち時間を変更する。0 で無制限
func (c *Conn) SetTimeout(d time.Duration) {
	c.timeout = d
}

// LocalAddr は接続元アドレスを返す
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Do は raw をそのまま送り、レスポンスを1回分読んで返す
func (c *Conn) Do(raw string) (string, error) {
	if err := c.arm(); err != nil {
		return "", err
	}
	if _, err := c.conn.Write([]byte(raw)); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	return c.read()
}

// Get は key の値と統計を取得する
func (c *Conn) Get(key string) (Result, error) {
	resp, err := c.Do("get " + key + "\n")
	if err != nil {
		return Result{}, err
	}
	if resp == protocol.RespKeyNotFound {
		return Result{}, ErrKeyNotFound
	}

	var body protocol.GetResponse
	if err := json.Unmarshal([]byte(resp), &body); err != nil {
		return Result{}, fmt.Errorf("unexpected get response %q: %w", resp, err)
	}
	value, ok := body.Values[key]
	if !ok {
		return Result{}, fmt.Errorf("get response for %q has no value", key)
	}
	return Result{Key: key, Value: value, Stats: body.Statistics}, nil
}

// Set は key に value を書き込む。OK 以外のレスポンスは ErrRejected になる
func (c *Conn) Set(key, value string) error {
	resp, err := c.Do("set " + key + "=" + value + "\n")
	if err != nil {
		return err
	}
	if resp != protocol.RespOK {
		return fmt.Errorf("%w: %s", ErrRejected, resp)
	}
	return nil
}

// SendFragments は fragments を gap 間隔で別々に書き込み、その後1回だけ読む
// サーバーは断片を連結しないので、断片ごとのレスポンスが連なって返ることがある
func (c *Conn) SendFragments(fragments []string, gap time.Duration) (string, error) {
	if err := c.arm(); err != nil {
		return "", err
	}
	for i, frag := range fragments {
		if i > 0 && gap > 0 {
			time.Sleep(gap)
		}
		if _, err := c.conn.Write([]byte(frag)); err != nil {
			return "", fmt.Errorf("write fragment %d: %w", i, err)
		}
	}
	return c.read()
}

// Close は接続を閉じる
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) arm() error {
	if c.timeout <= 0 {
		return c.conn.SetDeadline(time.Time{})
	}
	return c.conn.SetDeadline(time.Now().Add(c.timeout))
}

func (c *Conn) read() (string, error) {
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		return string(c.buf[:n]), nil
	}
	if err == nil {
		err = errors.New("empty response")
	}
	return "", fmt.Errorf("read: %w", err)
}
