package manager

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"shrimp/internal/transform"
)

type recorded struct {
	status  int
	body    string
	blob    *transform.Blob
	format  transform.Format
	src     ImageSrc
	timings *Timings
}

// fakeResponder records terminal calls. ch, if set, receives each record
// (for tests that cross goroutines).
type fakeResponder struct {
	responses []recorded
	ch        chan recorded
}

func (f *fakeResponder) SendImage(blob *transform.Blob, format transform.Format, src ImageSrc, timings *Timings) {
	r := recorded{status: http.StatusOK, blob: blob, format: format, src: src, timings: timings}
	f.responses = append(f.responses, r)
	if f.ch != nil {
		f.ch <- r
	}
}

func (f *fakeResponder) SendStatus(status int, body string) {
	r := recorded{status: status, body: body}
	f.responses = append(f.responses, r)
	if f.ch != nil {
		f.ch <- r
	}
}

func testKey(path string) transform.RequestKey {
	return transform.RequestKey{
		Path:   path,
		Format: transform.PNG,
		Params: transform.ResizeParams{Mode: transform.ByWidth, Value: 100},
	}
}

func newTestManager(workers int) *Manager {
	return NewWithConfig(ManagerConfig{RootDir: ".", Workers: workers})
}

// checkPoolInvariant verifies |free workers| + |in-progress unique keys|
// equals the pool size.
func checkPoolInvariant(t *testing.T, m *Manager) {
	t.Helper()
	if got := len(m.freeWorkers) + m.inProgress.UniqueKeys(); got != m.workerCount {
		t.Fatalf("pool invariant broken: free=%d inprogress=%d pool=%d",
			len(m.freeWorkers), m.inProgress.UniqueKeys(), m.workerCount)
	}
}

func TestCacheHitServedImmediately(t *testing.T) {
	m := newTestManager(1)
	key := testKey("/a.png")
	blob := transform.NewBlob([]byte("imagebytes"))
	m.storeInCache(key, blob)

	resp := &fakeResponder{}
	m.onResizeRequest(resizeRequest{resp: resp, key: key})

	if len(resp.responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(resp.responses))
	}
	r := resp.responses[0]
	if r.status != http.StatusOK || r.src != SrcCache || r.blob != blob {
		t.Fatalf("unexpected response %+v", r)
	}
	if r.timings != nil {
		t.Fatalf("cache hit must not carry timings")
	}
	if !m.pending.Empty() || !m.inProgress.Empty() {
		t.Fatalf("cache hit must not enter the queues")
	}
}

func TestCoalescingSingleJobForIdenticalRequests(t *testing.T) {
	m := newTestManager(1)
	key := testKey("/b.png")

	r1, r2, r3 := &fakeResponder{}, &fakeResponder{}, &fakeResponder{}
	m.onResizeRequest(resizeRequest{resp: r1, key: key})
	m.onResizeRequest(resizeRequest{resp: r2, key: key})
	m.onResizeRequest(resizeRequest{resp: r3, key: key})

	// Exactly one job dispatched to the single worker.
	worker := m.workers[0].jobs
	if len(worker) != 1 {
		t.Fatalf("expected 1 dispatched job, got %d", len(worker))
	}
	job := <-worker
	if job.key != key {
		t.Fatalf("dispatched wrong key: %v", job.key)
	}

	// The key must be only in in-progress, never in both queues.
	if m.pending.HasKey(key) {
		t.Fatalf("key present in pending and in-progress simultaneously")
	}
	if m.inProgress.UniqueKeys() != 1 || m.inProgress.Len() != 3 {
		t.Fatalf("in-progress unique=%d len=%d, want 1/3",
			m.inProgress.UniqueKeys(), m.inProgress.Len())
	}
	checkPoolInvariant(t, m)

	// Completion fans the same blob out to every waiter.
	blob := transform.NewBlob([]byte("payload"))
	m.onResizeResult(resizeResult{
		worker: worker,
		key:    key,
		outcome: resizeOutcome{
			blob:        blob,
			resizeDur:   1500 * time.Microsecond,
			encodingDur: 500 * time.Microsecond,
		},
	})

	for i, resp := range []*fakeResponder{r1, r2, r3} {
		if len(resp.responses) != 1 {
			t.Fatalf("responder %d got %d responses", i, len(resp.responses))
		}
		r := resp.responses[0]
		if r.status != http.StatusOK || r.src != SrcTransform || r.blob != blob {
			t.Fatalf("responder %d unexpected response %+v", i, r)
		}
		if r.timings == nil || r.timings.Resize != 1500*time.Microsecond {
			t.Fatalf("responder %d missing timings", i)
		}
	}

	if _, ok := m.cache.Lookup(key); !ok {
		t.Fatalf("successful result not stored in cache")
	}
	checkPoolInvariant(t, m)
}

func TestSecondKeyWaitsWhenPoolBusy(t *testing.T) {
	m := newTestManager(1)
	k1, k2 := testKey("/one.png"), testKey("/two.png")

	m.onResizeRequest(resizeRequest{resp: &fakeResponder{}, key: k1})
	m.onResizeRequest(resizeRequest{resp: &fakeResponder{}, key: k2})

	if !m.inProgress.HasKey(k1) || !m.pending.HasKey(k2) {
		t.Fatalf("expected k1 in-progress and k2 pending")
	}
	checkPoolInvariant(t, m)

	// Completing k1 must dispatch k2 before anything else.
	worker := m.workers[0].jobs
	<-worker
	m.onResizeResult(resizeResult{
		worker:  worker,
		key:     k1,
		outcome: resizeOutcome{blob: transform.NewBlob([]byte("x"))},
	})

	if m.pending.HasKey(k2) {
		t.Fatalf("k2 still pending after a worker freed up")
	}
	if !m.inProgress.HasKey(k2) {
		t.Fatalf("k2 not moved to in-progress")
	}
	if len(worker) != 1 {
		t.Fatalf("freed worker did not receive the next job")
	}
	checkPoolInvariant(t, m)
}

func TestFailedResizeFansOut404(t *testing.T) {
	m := newTestManager(1)
	key := testKey("/gone.png")

	r1, r2 := &fakeResponder{}, &fakeResponder{}
	m.onResizeRequest(resizeRequest{resp: r1, key: key})
	m.onResizeRequest(resizeRequest{resp: r2, key: key})
	worker := m.workers[0].jobs
	<-worker

	m.onResizeResult(resizeResult{
		worker:  worker,
		key:     key,
		outcome: resizeOutcome{err: fmt.Errorf("unable to read image")},
	})

	for i, resp := range []*fakeResponder{r1, r2} {
		if len(resp.responses) != 1 || resp.responses[0].status != http.StatusNotFound {
			t.Fatalf("responder %d: expected single 404, got %+v", i, resp.responses)
		}
	}
	if _, ok := m.cache.Lookup(key); ok {
		t.Fatalf("failed result must not be cached")
	}
	checkPoolInvariant(t, m)
}

func TestOverloadRejectsWith503(t *testing.T) {
	m := newTestManager(1)
	// Starve the pool so everything stays pending.
	m.freeWorkers = nil
	m.workerCount = 0

	for i := 0; i < MaxPending; i++ {
		m.onResizeRequest(resizeRequest{resp: &fakeResponder{}, key: testKey(fmt.Sprintf("/img%d.png", i))})
	}
	if m.pending.UniqueKeys() != MaxPending {
		t.Fatalf("pending unique keys=%d, want %d", m.pending.UniqueKeys(), MaxPending)
	}

	over := &fakeResponder{}
	m.onResizeRequest(resizeRequest{resp: over, key: testKey("/one-too-many.png")})
	if len(over.responses) != 1 || over.responses[0].status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %+v", over.responses)
	}

	// A coalesced duplicate of an already-pending key is still admitted.
	dup := &fakeResponder{}
	m.onResizeRequest(resizeRequest{resp: dup, key: testKey("/img0.png")})
	if len(dup.responses) != 0 {
		t.Fatalf("duplicate of pending key must be admitted, got %+v", dup.responses)
	}
}

func TestPendingTimeoutSweep(t *testing.T) {
	m := newTestManager(1)
	m.freeWorkers = nil
	m.workerCount = 0

	resp := &fakeResponder{}
	m.onResizeRequest(resizeRequest{resp: resp, key: testKey("/slow.png")})

	// Sweep with a threshold before the request aged out: nothing happens.
	m.onCheckPendingRequests()
	if len(resp.responses) != 0 {
		t.Fatalf("fresh request timed out prematurely")
	}

	// Move the manager clock past the pending budget.
	m.now = func() time.Time { return time.Now().Add(MaxPendingTime + time.Second) }
	m.onCheckPendingRequests()

	if len(resp.responses) != 1 || resp.responses[0].status != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %+v", resp.responses)
	}
	if !m.pending.Empty() {
		t.Fatalf("timed-out request still pending")
	}
}

func TestStoreInCacheEvictsOldestOverBudget(t *testing.T) {
	m := newTestManager(1)
	k1, k2 := testKey("/big1.png"), testKey("/big2.png")
	sixty := uint64(60) * 1024 * 1024

	m.storeInCache(k1, &transform.Blob{Data: make([]byte, sixty), CreatedAt: time.Now()})
	if m.cacheBytes != sixty {
		t.Fatalf("cacheBytes=%d, want %d", m.cacheBytes, sixty)
	}

	m.storeInCache(k2, &transform.Blob{Data: make([]byte, sixty), CreatedAt: time.Now()})
	if m.cacheBytes > MaxCacheBytes {
		t.Fatalf("cacheBytes=%d exceeds budget", m.cacheBytes)
	}
	if _, ok := m.cache.Lookup(k1); ok {
		t.Fatalf("oldest entry survived eviction")
	}
	if _, ok := m.cache.Lookup(k2); !ok {
		t.Fatalf("newest entry was evicted")
	}
	if m.cacheBytes != sixty || m.cache.Size() != 1 {
		t.Fatalf("cacheBytes=%d size=%d after eviction", m.cacheBytes, m.cache.Size())
	}
}

func TestStoreInCacheKeepsSingleOversizedEntry(t *testing.T) {
	m := newTestManager(1)
	key := testKey("/huge.png")
	huge := uint64(MaxCacheBytes) + 1024

	m.storeInCache(key, &transform.Blob{Data: make([]byte, huge), CreatedAt: time.Now()})

	if m.cache.Size() != 1 {
		t.Fatalf("oversized lone entry was evicted")
	}
	if m.cacheBytes != huge {
		t.Fatalf("cacheBytes=%d, want %d", m.cacheBytes, huge)
	}
}

func TestClearCacheAgeSweep(t *testing.T) {
	m := newTestManager(1)
	k1, k2 := testKey("/old.png"), testKey("/older.png")
	m.storeInCache(k1, transform.NewBlob([]byte("aaaa")))
	m.storeInCache(k2, transform.NewBlob([]byte("bbbb")))

	// Young entries survive.
	m.onClearCache()
	if m.cache.Size() != 2 {
		t.Fatalf("young entries were swept")
	}

	m.now = func() time.Time { return time.Now().Add(MaxCacheAge + time.Minute) }
	m.onClearCache()
	if !m.cache.Empty() {
		t.Fatalf("aged entries survived the sweep")
	}
	if m.cacheBytes != 0 {
		t.Fatalf("cacheBytes=%d after full sweep", m.cacheBytes)
	}
}

func TestDeleteCacheWithValidToken(t *testing.T) {
	t.Setenv(adminTokenEnv, "sekret")
	m := newTestManager(1)
	m.storeInCache(testKey("/a.png"), transform.NewBlob([]byte("data")))

	resp := &fakeResponder{}
	m.onDeleteCacheRequest(deleteCacheRequest{resp: resp, token: "sekret"})

	if len(resp.responses) != 1 {
		t.Fatalf("expected immediate response")
	}
	r := resp.responses[0]
	if r.status != http.StatusOK || r.body != "Cache deleted\r\n" {
		t.Fatalf("unexpected response %+v", r)
	}
	if !m.cache.Empty() || m.cacheBytes != 0 {
		t.Fatalf("cache not cleared")
	}
}

func TestDeleteCacheNegativeResponsesAreDelayed(t *testing.T) {
	tests := []struct {
		name     string
		envToken string
		token    string
		wantText string
	}{
		{"mismatch", "sekret", "wrong", "Token value mismatch\r\n"},
		{"no env token", "", "anything", "No admin token defined\r\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(adminTokenEnv, tc.envToken)
			m := newTestManager(1)
			m.negativeRespDelay = time.Millisecond

			resp := &fakeResponder{}
			m.onDeleteCacheRequest(deleteCacheRequest{resp: resp, token: tc.token})

			// Nothing synchronous; the 403 arrives via the inbox.
			if len(resp.responses) != 0 {
				t.Fatalf("negative response was not delayed")
			}
			select {
			case msg := <-m.inbox:
				m.handleMessage(msg)
			case <-time.After(2 * time.Second):
				t.Fatalf("delayed negative response never arrived")
			}
			if len(resp.responses) != 1 {
				t.Fatalf("expected 1 response, got %d", len(resp.responses))
			}
			r := resp.responses[0]
			if r.status != http.StatusForbidden || r.body != tc.wantText {
				t.Fatalf("unexpected response %+v", r)
			}
		})
	}
}

// End-to-end through Run: a real worker transforms a real file.
func TestRunLoopTransformsImage(t *testing.T) {
	dir := t.TempDir()
	img := imaging.New(64, 48, image.White.C)
	if err := imaging.Save(img, filepath.Join(dir, "pic.png")); err != nil {
		t.Fatalf("save: %v", err)
	}

	m := NewWithConfig(ManagerConfig{RootDir: dir, Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	resp := &fakeResponder{ch: make(chan recorded, 1)}
	m.SubmitResize(resp, transform.RequestKey{
		Path:   "/pic.png",
		Format: transform.JPEG,
		Params: transform.ResizeParams{Mode: transform.ByWidth, Value: 32},
	})

	select {
	case r := <-resp.ch:
		if r.status != http.StatusOK || r.src != SrcTransform {
			t.Fatalf("unexpected response %+v", r)
		}
		if r.blob == nil || r.blob.Size() == 0 {
			t.Fatalf("empty blob")
		}
		if r.format != transform.JPEG {
			t.Fatalf("format=%v, want JPEG", r.format)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("no response from run loop")
	}
}
