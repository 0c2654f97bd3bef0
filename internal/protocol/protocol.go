// Package protocol implements the text command grammar spoken on client
// connections.
//
// One read from the socket is one command; there is no length prefix and no
// delimiter. A single trailing "\n" or "\r\n" is ignored.
//
//	get <key>            -> {"values":{"<key>":"<value>"},"statistics":{"reads":N,"writes":M}}
//	                        or "Key not found"
//	set <key>=<value>    -> "OK" (applied and persisted later)
//	                        or "Invalid command format" when "=" is missing
//	anything else        -> "Unknown command"
//
// Success is JSON while the not-found answer is plain text; existing clients
// depend on both shapes.
package protocol

import (
	"encoding/json"
	"errors"
	"strings"

	"tcp-kvs/internal/logger"
	"tcp-kvs/internal/stats"
	"tcp-kvs/internal/store"
)

// BufferSize は1回の読み取りで扱うコマンドの最大バイト数
const BufferSize = 1024

// 固定レスポンス
const (
	RespOK            = "OK"
	RespKeyNotFound   = "Key not found"
	RespInvalidFormat = "Invalid command format"
	RespUnknown       = "Unknown command"
	RespShuttingDown  = "Server shutting down"
)

const (
	prefixGet = "get "
	prefixSet = "set "
)

var (
	// ErrUnknownCommand は get/set のどちらでもないコマンド
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidFormat は "=" を含まない set コマンド
	ErrInvalidFormat = errors.New("invalid command format")
)

// Op はコマンド種別
type Op int

const (
	OpGet Op = iota + 1
	OpSet
)

func (o Op) String() string {
	switch o {
	case OpGet:
		return "get"
	case OpSet:
		return "set"
	default:
		return "unknown"
	}
}

// Command はパース済みのコマンド
type Command struct {
	Op    Op
	Key   string
	Value string
}

// Parse は受信したバイト列を Command に変換する
func Parse(raw []byte) (Command, error) {
	s := string(raw)
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")

	switch {
	case strings.HasPrefix(s, prefixGet):
		return Command{Op: OpGet, Key: s[len(prefixGet):]}, nil
	case strings.HasPrefix(s, prefixSet):
		rest := s[len(prefixSet):]
		key, value, ok := strings.Cut(rest, "=")
		if !ok {
			return Command{}, ErrInvalidFormat
		}
		return Command{Op: OpSet, Key: key, Value: value}, nil
	default:
		return Command{}, ErrUnknownCommand
	}
}

// Reader は get が参照するストア
type Reader interface {
	Get(key string) (store.Lookup, error)
}

// Enqueuer は set 要求の受け付け先
type Enqueuer interface {
	Enqueue(in store.Intent) bool
}

// GetResponse は get 成功時の JSON
type GetResponse struct {
	Values     map[string]string `json:"values"`
	Statistics store.KeyStats    `json:"statistics"`
}

// Handler はコマンドを解釈してストアまたはキューに委譲する
type Handler struct {
	reader   Reader
	enqueuer Enqueuer
	counters *stats.Counters
}

// NewHandler は Handler を作成する
func NewHandler(reader Reader, enqueuer Enqueuer, counters *stats.Counters) *Handler {
	if counters == nil {
		counters = stats.NewCounters()
	}
	return &Handler{
		reader:   reader,
		enqueuer: enqueuer,
		counters: counters,
	}
}

// HandleRequest は1コマンドを処理してレスポンスを返す
func (h *Handler) HandleRequest(raw []byte) []byte {
	cmd, err := Parse(raw)
	switch {
	case errors.Is(err, ErrInvalidFormat):
		return []byte(RespInvalidFormat)
	case err != nil:
		return []byte(RespUnknown)
	}

	switch cmd.Op {
	case OpGet:
		return h.handleGet(cmd.Key)
	case OpSet:
		return h.handleSet(cmd.Key, cmd.Value)
	default:
		return []byte(RespUnknown)
	}
}

func (h *Handler) handleGet(key string) []byte {
	h.counters.RecordGet()

	found, err := h.reader.Get(key)
	if err != nil {
		return []byte(RespKeyNotFound)
	}

	body, err := json.Marshal(GetResponse{
		Values:     map[string]string{found.Key: found.Value},
		Statistics: found.Stats,
	})
	if err != nil {
		logger.Error("protocol", "failed to encode get response for %q: %v", key, err)
		return []byte(RespKeyNotFound)
	}
	return body
}

func (h *Handler) handleSet(key, value string) []byte {
	if !h.enqueuer.Enqueue(store.Intent{Key: key, Value: value}) {
		logger.Warn("protocol", "set %q rejected: write pipeline is shutting down", key)
		return []byte(RespShuttingDown)
	}
	h.counters.RecordSet()
	return []byte(RespOK)
}
