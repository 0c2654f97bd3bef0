package store

import (
	"errors"
	"sync"
)

// ErrKeyNotFound はキーが存在しないことを表す
var ErrKeyNotFound = errors.New("key not found")

// Intent は apply worker がまだ反映していない set 要求
type Intent struct {
	Key   string
	Value string
}

// KeyStats はキーごとの読み書き回数
type KeyStats struct {
	Reads  uint64 `json:"reads"`
	Writes uint64 `json:"writes"`
}

// Lookup は Get の結果
type Lookup struct {
	Key   string
	Value string
	Stats KeyStats
}

// Store は key/value マップとキー統計を保持する唯一の状態
//
// ロック順序は常に mu -> statsMu
type Store struct {
	mu         sync.RWMutex
	values     map[string]string
	generation uint64

	statsMu sync.RWMutex
	stats   map[string]*KeyStats
}

// New は空のストアを作成する
func New() *Store {
	return &Store{
		values: make(map[string]string),
		stats:  make(map[string]*KeyStats),
	}
}

// Load は起動時のスナップショット内容をストアへ流し込む
// 統計と世代には触れない
func (s *Store) Load(entries map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range entries {
		s.values[k] = v
	}
}

// Get はキーの値を返し、そのキーの read カウンタを1増やす
// 存在しないキーは統計に載せない
func (s *Store) Get(key string) (Lookup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.values[key]
	if !exists {
		return Lookup{}, ErrKeyNotFound
	}

	s.statsMu.Lock()
	st := s.statLocked(key)
	st.Reads++
	snapshot := *st
	s.statsMu.Unlock()

	return Lookup{Key: key, Value: value, Stats: snapshot}, nil
}

// MergeBatch は intents を順に適用し、新しい世代番号を返す
// 同じキーが複数あれば後勝ち
func (s *Store) MergeBatch(intents []Intent) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(intents) == 0 {
		return s.generation
	}

	s.statsMu.Lock()
	for _, in := range intents {
		s.values[in.Key] = in.Value
		s.statLocked(in.Key).Writes++
	}
	s.statsMu.Unlock()

	s.generation++
	return s.generation
}

// Snapshot は値マップのコピーと、そのコピーが反映している世代を返す
func (s *Store) Snapshot() (map[string]string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out, s.generation
}

// Generation は最後に適用したバッチの世代番号を返す
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Len は保持しているキー数を返す
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// KeyStats はキー統計のコピーを返す
func (s *Store) KeyStats() map[string]KeyStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	out := make(map[string]KeyStats, len(s.stats))
	for k, st := range s.stats {
		out[k] = *st
	}
	return out
}

// statLocked は statsMu を保持した状態で呼ぶこと
func (s *Store) statLocked(key string) *KeyStats {
	st, ok := s.stats[key]
	if !ok {
		st = &KeyStats{}
		s.stats[key] = st
	}
	return st
}
