// Package queue provides the blocking FIFO that carries set intents from
// client sessions to the apply worker.
package queue

import "sync"

// Queue は複数 producer / 単一 consumer の無制限 FIFO
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []T
	closed   bool
}

// New は空のキューを作成する
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push は要素を末尾に追加する。ブロックしない
// Close 後は何もせず false を返す
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, item)
	q.notEmpty.Signal()
	return true
}

// Pop は要素が届くまで待って先頭を返す
// Close 後も残っている要素は返し続け、空になった時点で ok=false を返す
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.notEmpty.Wait()
	}
	if len(q.items) == 0 {
		return item, false
	}
	return q.shiftLocked(), true
}

// Drain は現在キューにある要素をすべて取り出す。ブロックしない
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Close は以降の Push を拒否し、Pop で待機中の consumer を起こす
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
}

// Closed は Close 済みかどうかを返す
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len は待機中の要素数を返す
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) shiftLocked() T {
	var zero T
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return item
}
