package filters

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/nadeguide/internal/model"
	"github.com/hitoshi/nadeguide/internal/security"
)

// --- モック定義 ---

// mockFetcher はコレクション取得を記録する。releaseが設定されている場合、closeされるまでブロックする。
type mockFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	batches atomic.Int32
	started chan struct{}
	release chan struct{}
	failFn  func(name string) error
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{calls: make(map[string]int)}
}

func (m *mockFetcher) Collection(ctx context.Context, name string) ([]model.FilterOption, error) {
	m.mu.Lock()
	m.calls[name]++
	m.mu.Unlock()

	if name == CollectionMaps {
		m.batches.Add(1)
		if m.started != nil {
			m.started <- struct{}{}
		}
	}
	if m.release != nil {
		<-m.release
	}
	if m.failFn != nil {
		if err := m.failFn(name); err != nil {
			return nil, err
		}
	}

	return []model.FilterOption{
		{ID: 1, Name: "<b>" + name + "-1</b>"},
		{ID: 2, Name: name + "-2"},
	}, nil
}

type mockRecorder struct {
	fetchSuccess atomic.Int32
	fetchFailure atomic.Int32
	coalesced    atomic.Int32
}

func (m *mockRecorder) RecordFilterFetch(success bool, duration time.Duration) {
	if success {
		m.fetchSuccess.Add(1)
	} else {
		m.fetchFailure.Add(1)
	}
}

func (m *mockRecorder) RecordFilterCoalesced() {
	m.coalesced.Add(1)
}

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

func newTestCache(f Fetcher, rec Recorder) *Cache {
	return NewCache(f, security.NewTextSanitizer(), rec, newTestLogger(), CacheConfig{FetchTimeout: 5 * time.Second})
}

// waitFor は条件が満たされるまで待つ。
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

// --- テスト ---

func TestCache_Load_PopulatesAllCollections(t *testing.T) {
	f := newMockFetcher()
	rec := &mockRecorder{}
	c := newTestCache(f, rec)

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if !c.Loaded() {
		t.Error("expected cache to be loaded")
	}
	if c.Loading() {
		t.Error("loading flag should be cleared after completion")
	}

	data := c.Data()
	for name, got := range map[string][]model.FilterOption{
		CollectionMaps:        data.Maps,
		CollectionTeams:       data.Teams,
		CollectionTypes:       data.Types,
		CollectionCollections: data.Collections,
	} {
		if len(got) != 2 {
			t.Errorf("%s: len = %d, want 2", name, len(got))
			continue
		}
		if got[0].Name != name+"-1" {
			t.Errorf("%s: name = %q, want sanitized %q", name, got[0].Name, name+"-1")
		}
	}

	if len(c.Maps().Get()) != 2 || len(c.Collections().Get()) != 2 {
		t.Error("derived views should reflect loaded data")
	}
	if rec.fetchSuccess.Load() != 1 {
		t.Errorf("recorded successes = %d, want 1", rec.fetchSuccess.Load())
	}
}

func TestCache_ConcurrentLoads_ShareOneBatch(t *testing.T) {
	f := newMockFetcher()
	f.started = make(chan struct{}, 4)
	f.release = make(chan struct{})
	rec := &mockRecorder{}
	c := newTestCache(f, rec)

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- c.Load(context.Background())
	}()
	<-f.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- c.Load(context.Background())
	}()
	waitFor(t, func() bool { return rec.coalesced.Load() == 1 })

	close(f.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Load returned error: %v", err)
		}
	}

	if got := f.batches.Load(); got != 1 {
		t.Errorf("fetch batches = %d, want 1", got)
	}

	// 成功後の3回目は何もしない
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("third Load returned error: %v", err)
	}
	if got := f.batches.Load(); got != 1 {
		t.Errorf("fetch batches after third Load = %d, want 1", got)
	}
}

func TestCache_ResetThenRepeatedLoads_OneNewBatch(t *testing.T) {
	f := newMockFetcher()
	c := newTestCache(f, nil)

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("initial Load returned error: %v", err)
	}

	c.Reset()
	if c.Loaded() {
		t.Error("Reset should clear the loaded flag")
	}
	if len(c.Data().Maps) != 0 {
		t.Error("Reset should clear the data")
	}

	f.started = make(chan struct{}, 4)
	f.release = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Load(context.Background()); err != nil {
				t.Errorf("Load returned error: %v", err)
			}
		}()
	}
	<-f.started
	close(f.release)
	wg.Wait()

	if got := f.batches.Load(); got != 2 {
		t.Errorf("fetch batches = %d, want 2 (initial + one after reset)", got)
	}
	if !c.Loaded() {
		t.Error("expected cache to be loaded again")
	}
}

func TestCache_LoadFailure_KeepsPreviousDataAndAllowsRetry(t *testing.T) {
	f := newMockFetcher()
	rec := &mockRecorder{}
	c := newTestCache(f, rec)

	f.failFn = func(name string) error {
		if name == CollectionTeams {
			return errors.New("teams returned status 500")
		}
		return nil
	}

	if err := c.Load(context.Background()); err == nil {
		t.Fatal("expected error from failing fetch")
	}
	if c.Loaded() {
		t.Error("failed load must not mark the cache loaded")
	}
	if c.Loading() {
		t.Error("loading flag should be cleared after failure")
	}
	if len(c.Data().Maps) != 0 {
		t.Error("partial results must not replace data")
	}
	if rec.fetchFailure.Load() != 1 {
		t.Errorf("recorded failures = %d, want 1", rec.fetchFailure.Load())
	}

	// 次のLoadで再試行される
	f.failFn = nil
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("retry Load returned error: %v", err)
	}
	if got := f.batches.Load(); got != 2 {
		t.Errorf("fetch batches = %d, want 2", got)
	}
}

func TestCache_Load_CallerCancellationDoesNotAbortBatch(t *testing.T) {
	f := newMockFetcher()
	f.started = make(chan struct{}, 4)
	f.release = make(chan struct{})
	c := newTestCache(f, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Load(ctx) }()

	<-f.started
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Load error = %v, want context.Canceled", err)
	}

	close(f.release)
	waitFor(t, c.Loaded)
	if got := f.batches.Load(); got != 1 {
		t.Errorf("fetch batches = %d, want 1", got)
	}
}

func TestCache_DerivedViews_NotifyOnLoadAndReset(t *testing.T) {
	c := newTestCache(newMockFetcher(), nil)

	var lengths []int
	unsubscribe := c.Maps().Subscribe(func(opts []model.FilterOption) {
		lengths = append(lengths, len(opts))
	})
	defer unsubscribe()

	c.Load(context.Background())
	c.Reset()

	want := []int{0, 2, 0}
	if len(lengths) != len(want) {
		t.Fatalf("notifications = %v, want %v", lengths, want)
	}
	for i := range want {
		if lengths[i] != want[i] {
			t.Errorf("notification[%d] = %d, want %d", i, lengths[i], want[i])
		}
	}
}
