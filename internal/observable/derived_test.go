package observable

import "testing"

type pair struct {
	left  []string
	right []string
}

func TestDerive_ReflectsSourceChanges(t *testing.T) {
	src := New(pair{left: []string{}, right: []string{}})
	left := Derive[pair](src, func(p pair) []string { return p.left })

	if len(left.Get()) != 0 {
		t.Fatalf("initial derived value = %v, want empty", left.Get())
	}

	src.Set(pair{left: []string{"mirage", "inferno"}})

	got := left.Get()
	if len(got) != 2 || got[0] != "mirage" {
		t.Errorf("derived value = %v, want [mirage inferno]", got)
	}
}

func TestDerive_NotifiesSubscribers(t *testing.T) {
	src := New(1)
	doubled := Derive[int](src, func(n int) int { return n * 2 })

	var seen []int
	doubled.Subscribe(func(n int) { seen = append(seen, n) })
	src.Set(4)

	if len(seen) != 2 || seen[0] != 2 || seen[1] != 8 {
		t.Errorf("seen = %v, want [2 8]", seen)
	}
}

func TestDerived_Close_DetachesFromSource(t *testing.T) {
	src := New(1)
	d := Derive[int](src, func(n int) int { return n })

	d.Close()
	src.Set(99)

	if d.Get() != 1 {
		t.Errorf("Get() after Close = %d, want 1", d.Get())
	}
	if src.SubscriberCount() != 0 {
		t.Errorf("source SubscriberCount() = %d, want 0", src.SubscriberCount())
	}
}
