// Package observable は購読可能な状態ホルダーを提供する。
// 値の変更は登録順にすべての購読者へ同期的に通知される。
package observable

import "sync"

// Readable は読み取り専用の購読可能な値のインターフェース。
type Readable[T any] interface {
	Get() T
	Subscribe(fn func(T)) (unsubscribe func())
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Value は型付きの状態ホルダー。
// Set/Updateは直列化され、通知が完了するまで次の更新は開始されない。
// 購読者のコールバック内から同じValueのSet/Updateを呼び出してはならない。
type Value[T any] struct {
	writeMu sync.Mutex // Set/Update と通知を直列化する

	mu     sync.RWMutex
	value  T
	subs   []subscriber[T]
	nextID int
}

// New は初期値を持つValueを生成する。
func New[T any](initial T) *Value[T] {
	return &Value[T]{value: initial}
}

// Get は現在の値を返す。
func (v *Value[T]) Get() T {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value
}

// Subscribe は購読者を登録し、現在の値で即座に1回呼び出す。
// 返された関数を呼ぶと購読を解除する。複数回呼んでも安全。
func (v *Value[T]) Subscribe(fn func(T)) func() {
	v.writeMu.Lock()
	v.mu.Lock()
	id := v.nextID
	v.nextID++
	v.subs = append(v.subs, subscriber[T]{id: id, fn: fn})
	current := v.value
	v.mu.Unlock()

	fn(current)
	v.writeMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { v.remove(id) })
	}
}

// Set は値を置き換え、全購読者に登録順で通知する。
func (v *Value[T]) Set(value T) {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()

	v.mu.Lock()
	v.value = value
	subs := make([]subscriber[T], len(v.subs))
	copy(subs, v.subs)
	v.mu.Unlock()

	for _, s := range subs {
		s.fn(value)
	}
}

// Update は現在の値にfnを適用した結果で値を置き換える。
func (v *Value[T]) Update(fn func(T) T) {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()

	v.mu.Lock()
	next := fn(v.value)
	v.value = next
	subs := make([]subscriber[T], len(v.subs))
	copy(subs, v.subs)
	v.mu.Unlock()

	for _, s := range subs {
		s.fn(next)
	}
}

// SubscriberCount は現在の購読者数を返す。テスト用。
func (v *Value[T]) SubscriberCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.subs)
}

func (v *Value[T]) remove(id int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, s := range v.subs {
		if s.id == id {
			v.subs = append(v.subs[:i:i], v.subs[i+1:]...)
			return
		}
	}
}

var _ Readable[int] = (*Value[int])(nil)
