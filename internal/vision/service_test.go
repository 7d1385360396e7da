package vision

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
)

// fakeEngine is a scriptable OCR engine.
type fakeEngine struct {
	mu         sync.Mutex
	initCalls  int
	initErr    error
	lines      []Line
	recognized atomic.Int64
	block      chan struct{} // when set, Recognize blocks until closed
}

func (e *fakeEngine) Init(ctx context.Context, language string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.initCalls++
	return e.initErr
}

func (e *fakeEngine) Recognize(ctx context.Context, image []byte) ([]Line, error) {
	e.recognized.Add(1)
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Line(nil), e.lines...), nil
}

func (e *fakeEngine) Close() error { return nil }

func sampleLines() []Line {
	return []Line{
		{Text: "Allow cookies", Confidence: 85, BBox: browser.Rect{X: 10, Y: 10, Width: 120, Height: 20}},
		{Text: "Allow", Confidence: 72, BBox: browser.Rect{X: 10, Y: 40, Width: 50, Height: 20}},
		{Text: "allow", Confidence: 95, BBox: browser.Rect{X: 10, Y: 70, Width: 50, Height: 20}},
		{Text: "Decline", Confidence: 40, BBox: browser.Rect{X: 10, Y: 100, Width: 60, Height: 20}},
	}
}

func newTestService(engine *fakeEngine) (*Service, *browser.FakeClient) {
	fake := browser.NewFakeClient()
	fake.Shot = []byte{0x89, 'P', 'N', 'G'}
	svc := NewService(fake, engine, Options{Language: "eng", MaxConcurrent: 2}, nil)
	return svc, fake
}

func TestFindTextPrefersExactThenConfidence(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{lines: sampleLines()}
	svc, _ := newTestService(engine)

	m, err := svc.FindText(context.Background(), "tab", "Allow", false)
	if err != nil {
		t.Fatalf("FindText: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match")
	}
	// "allow" (95) beats "Allow" (72): exact (case-insensitive) and higher confidence.
	if m.Line.Confidence != 95 || !m.Exact {
		t.Fatalf("expected exact 95-confidence match, got %+v", m)
	}
	if m.ClickPoint.X != 35 || m.ClickPoint.Y != 80 {
		t.Fatalf("click point should be bbox center, got %+v", m.ClickPoint)
	}
}

func TestFindTextSkipsLowConfidenceLines(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{lines: sampleLines()}
	svc, _ := newTestService(engine)

	m, err := svc.FindText(context.Background(), "tab", "Decline", false)
	if err != nil {
		t.Fatalf("FindText: %v", err)
	}
	if m != nil {
		t.Fatalf("line below confidence 60 must not match, got %+v", m)
	}
}

func TestFindAnyTextReturnsFirstMatchingTerm(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{lines: sampleLines()}
	svc, _ := newTestService(engine)

	term, m, err := svc.FindAnyText(context.Background(), "tab", []string{"Keep", "Allow"})
	if err != nil {
		t.Fatalf("FindAnyText: %v", err)
	}
	if term != "Allow" || m == nil {
		t.Fatalf("expected term Allow to match, got term=%q match=%+v", term, m)
	}
}

func TestLinesCachedWithinTTL(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{lines: sampleLines()}
	svc, fake := newTestService(engine)

	current := time.Unix(2000, 0)
	svc.now = func() time.Time { return current }

	if _, err := svc.Lines(context.Background(), "tab"); err != nil {
		t.Fatalf("Lines: %v", err)
	}
	current = current.Add(time.Second)
	if _, err := svc.Lines(context.Background(), "tab"); err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if got := fake.Calls("capture_screenshot"); got != 1 {
		t.Fatalf("expected 1 screenshot within TTL, got %d", got)
	}

	current = current.Add(2 * time.Second)
	if _, err := svc.Lines(context.Background(), "tab"); err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if got := fake.Calls("capture_screenshot"); got != 2 {
		t.Fatalf("expected recapture after TTL, got %d", got)
	}
}

func TestInvalidateCacheForcesRescan(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{lines: sampleLines()}
	svc, fake := newTestService(engine)

	if _, err := svc.Lines(context.Background(), "tab"); err != nil {
		t.Fatalf("Lines: %v", err)
	}
	svc.InvalidateCache("tab")
	if _, err := svc.Lines(context.Background(), "tab"); err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if got := fake.Calls("capture_screenshot"); got != 2 {
		t.Fatalf("expected rescan after invalidation, got %d screenshots", got)
	}
}

func TestConcurrentRequestsShareOneScan(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{lines: sampleLines(), block: make(chan struct{})}
	svc, _ := newTestService(engine)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Lines(context.Background(), "tab")
		}()
	}

	// Let the goroutines pile onto the in-flight scan, then release it.
	time.Sleep(50 * time.Millisecond)
	close(engine.block)
	wg.Wait()

	if got := engine.recognized.Load(); got != 1 {
		t.Fatalf("expected one shared recognition, got %d", got)
	}
}

func TestEngineInitializedLazilyAndOnce(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{lines: sampleLines()}
	svc, _ := newTestService(engine)

	if engine.initCalls != 0 {
		t.Fatal("engine must not initialize before first use")
	}
	if _, err := svc.Lines(context.Background(), "tab"); err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if _, err := svc.Lines(context.Background(), "tab"); err != nil {
		t.Fatalf("Lines: %v", err)
	}
	if engine.initCalls != 1 {
		t.Fatalf("expected single lazy init, got %d", engine.initCalls)
	}
}

func TestInitFailureSurfacesAsError(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{initErr: errors.New("language pack missing")}
	svc, _ := newTestService(engine)

	if _, err := svc.Lines(context.Background(), "tab"); err == nil {
		t.Fatal("expected init failure to surface")
	}
	// A later call retries initialization rather than caching the failure.
	engine.mu.Lock()
	engine.initErr = nil
	engine.mu.Unlock()
	if _, err := svc.Lines(context.Background(), "tab"); err != nil {
		t.Fatalf("expected recovery after init failure, got %v", err)
	}
}

func TestBBoxScaledByDevicePixelRatio(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{lines: []Line{
		{Text: "Scaled", Confidence: 90, BBox: browser.Rect{X: 200, Y: 100, Width: 80, Height: 40}},
	}}
	svc, fake := newTestService(engine)
	fake.Layout.DevicePixelRatio = 2

	m, err := svc.FindText(context.Background(), "tab", "Scaled", false)
	if err != nil {
		t.Fatalf("FindText: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.Line.BBox.X != 100 || m.Line.BBox.Width != 40 {
		t.Fatalf("bbox should be scaled to CSS pixels, got %+v", m.Line.BBox)
	}
}
