package events

import (
	"sync"

	"tcp-kvs/internal/logger"
)

// defaultBufferSize は購読者ごとのチャネル容量
const defaultBufferSize = 100

// subscription は1購読者の送信先と取りこぼし数
type subscription struct {
	ch      chan Event
	dropped uint64
}

// Bus はプロセス内のイベント配信路
// nil の *Bus も有効で、その場合はすべて何もしない
type Bus struct {
	mu         sync.Mutex
	subs       map[<-chan Event]*subscription
	bufferSize int
	closed     bool
}

// NewBus は Bus を作成する
func NewBus() *Bus {
	return &Bus{
		subs:       make(map[<-chan Event]*subscription),
		bufferSize: defaultBufferSize,
	}
}

// Subscribe は購読を開始し、受信用チャネルを返す
// Close 後は閉じたチャネルを返す
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, b.capacity())
	if b == nil {
		close(ch)
		return ch
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[ch] = &subscription{ch: ch}
	return ch
}

// Unsubscribe は購読をやめてチャネルを閉じる。未登録のチャネルは無視する
func (b *Bus) Unsubscribe(ch <-chan Event) {
	if b == nil {
		return
	}

	b.mu.Lock()
	sub, ok := b.subs[ch]
	if ok {
		delete(b.subs, ch)
		close(sub.ch)
	}
	b.mu.Unlock()

	if ok && sub.dropped > 0 {
		logger.Debug("events", "subscriber left after missing %d events", sub.dropped)
	}
}

// Publish はすべての購読者へ event を送る。ブロックしない
// 受信が追いつかない購読者にはその回の event を捨てる
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			sub.dropped++
		}
	}
}

// SubscriberCount は購読者数を返す
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close はすべての購読を終了する。以後の Subscribe は閉じたチャネルを返す
func (b *Bus) Close() {
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for key, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, key)
	}
}

func (b *Bus) capacity() int {
	if b == nil {
		return 0
	}
	return b.bufferSize
}
