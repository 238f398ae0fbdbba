package observable

// Derived はソースの値から導出される読み取り専用ビュー。
// ソースが変わるたびに再計算され、自身の購読者へ通知する。
type Derived[T any] struct {
	inner *Value[T]
	stop  func()
}

// Derive はsrcを購読し、fnで変換した値を公開するDerivedを生成する。
func Derive[S, T any](src Readable[S], fn func(S) T) *Derived[T] {
	d := &Derived[T]{}
	initialized := false
	d.stop = src.Subscribe(func(s S) {
		if !initialized {
			d.inner = New(fn(s))
			initialized = true
			return
		}
		d.inner.Set(fn(s))
	})
	return d
}

// Get は導出済みの現在値を返す。
func (d *Derived[T]) Get() T {
	return d.inner.Get()
}

// Subscribe は導出値の購読者を登録する。
func (d *Derived[T]) Subscribe(fn func(T)) func() {
	return d.inner.Subscribe(fn)
}

// Close はソースの購読を解除する。以降ソースの変更は反映されない。
func (d *Derived[T]) Close() {
	d.stop()
}

var _ Readable[int] = (*Derived[int])(nil)
