// Package grenade はグレネード一覧の再取得を促す更新通知を提供する。
package grenade

import (
	"time"

	"github.com/hitoshi/nadeguide/internal/observable"
)

// Tick は最後の変更時刻。
type Tick struct {
	LastUpdate int64 `json:"lastUpdate"`
}

// Notifier はグレネードの変更を購読者へ知らせる。
type Notifier struct {
	tick *observable.Value[Tick]
	now  func() time.Time
}

// NewNotifier は生成時刻を初期値とするNotifierを生成する。
func NewNotifier() *Notifier {
	return newNotifier(time.Now)
}

func newNotifier(now func() time.Time) *Notifier {
	return &Notifier{
		tick: observable.New(Tick{LastUpdate: now().UnixMilli()}),
		now:  now,
	}
}

// NotifyChange はlastUpdateを現在時刻に更新し、購読者へ通知する。
// 同一ミリ秒内の連続呼び出しでも値は単調増加する。
func (n *Notifier) NotifyChange() Tick {
	var next Tick
	n.tick.Update(func(cur Tick) Tick {
		ts := n.now().UnixMilli()
		if ts <= cur.LastUpdate {
			ts = cur.LastUpdate + 1
		}
		next = Tick{LastUpdate: ts}
		return next
	})
	return next
}

// Current は現在の値を返す。
func (n *Notifier) Current() Tick {
	return n.tick.Get()
}

// Subscribe は変更を購読する。
func (n *Notifier) Subscribe(fn func(Tick)) func() {
	return n.tick.Subscribe(fn)
}
