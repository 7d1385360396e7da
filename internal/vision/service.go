// service.go — OCR vision service.
// Owns the OCR engine lifecycle (lazy init, optional pre-warm), the worker
// semaphore, and the per-tab screenshot cache (TTL 2 s). Concurrent requests
// for the same tab share a single in-flight recognition.
package vision

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/logging"
)

// Line is one recognized text line with its confidence ([0,100]) and
// bounding box in CSS pixels.
type Line struct {
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	BBox       browser.Rect `json:"bbox"`
}

// Engine is the OCR runtime. Binary-asset wiring lives outside the engine
// core; any implementation of this interface suffices.
type Engine interface {
	Init(ctx context.Context, language string) error
	Recognize(ctx context.Context, image []byte) ([]Line, error)
	Close() error
}

const (
	cacheTTL = 2 * time.Second
	// minLineConfidence is the floor below which recognized lines are not
	// considered for matching.
	minLineConfidence = 60.0
)

// Options configures a Service.
type Options struct {
	Language      string
	MaxConcurrent int
	CacheTTL      time.Duration
}

// Service coordinates screenshot capture and OCR.
type Service struct {
	client   browser.Client
	engine   Engine
	logger   *slog.Logger
	language string
	sem      chan struct{}
	ttl      time.Duration

	mu          sync.Mutex
	initialized bool
	cache       map[browser.TabID]*cachedLines
	inflight    map[browser.TabID]*inflightScan

	now func() time.Time
}

type cachedLines struct {
	lines      []Line
	capturedAt time.Time
}

type inflightScan struct {
	done  chan struct{}
	lines []Line
	err   error
}

// NewService creates a vision service over the given provider and engine.
func NewService(client browser.Client, engine Engine, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cacheTTL
	}
	return &Service{
		client:   client,
		engine:   engine,
		logger:   logging.WithComponent(logger, "vision"),
		language: opts.Language,
		sem:      make(chan struct{}, opts.MaxConcurrent),
		ttl:      opts.CacheTTL,
		cache:    make(map[browser.TabID]*cachedLines),
		inflight: make(map[browser.TabID]*inflightScan),
		now:      time.Now,
	}
}

// Prewarm initializes the OCR engine eagerly. Optional; Lines initializes
// lazily on first use otherwise.
func (s *Service) Prewarm(ctx context.Context) error {
	return s.ensureEngine(ctx)
}

// Close shuts the engine down.
func (s *Service) Close() error {
	s.mu.Lock()
	initialized := s.initialized
	s.initialized = false
	s.mu.Unlock()
	if !initialized {
		return nil
	}
	return s.engine.Close()
}

func (s *Service) ensureEngine(ctx context.Context) error {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// Init outside the lock — it may download language data or spin up a
	// worker and must not block cache reads.
	if err := s.engine.Init(ctx, s.language); err != nil {
		return fmt.Errorf("initialize ocr engine (%s): %w", s.language, err)
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

// InvalidateCache drops cached OCR lines for the tab. The conditional-click
// loop calls this before every poll.
func (s *Service) InvalidateCache(tab browser.TabID) {
	s.mu.Lock()
	delete(s.cache, tab)
	s.mu.Unlock()
}

// Lines returns the OCR lines for the tab's current viewport, served from
// cache when fresh. Concurrent callers for the same tab share one scan.
func (s *Service) Lines(ctx context.Context, tab browser.TabID) ([]Line, error) {
	s.mu.Lock()
	if entry, ok := s.cache[tab]; ok && s.now().Sub(entry.capturedAt) < s.ttl {
		lines := entry.lines
		s.mu.Unlock()
		return lines, nil
	}
	if fl, ok := s.inflight[tab]; ok {
		s.mu.Unlock()
		select {
		case <-fl.done:
			return fl.lines, fl.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	fl := &inflightScan{done: make(chan struct{})}
	s.inflight[tab] = fl
	s.mu.Unlock()

	lines, err := s.scan(ctx, tab)
	fl.lines, fl.err = lines, err

	s.mu.Lock()
	delete(s.inflight, tab)
	if err == nil {
		s.cache[tab] = &cachedLines{lines: lines, capturedAt: s.now()}
	}
	s.mu.Unlock()
	close(fl.done)
	return lines, err
}

func (s *Service) scan(ctx context.Context, tab browser.TabID) ([]Line, error) {
	if err := s.ensureEngine(ctx); err != nil {
		return nil, err
	}

	shot, err := s.client.CaptureScreenshot(ctx, tab, browser.FormatPNG)
	if err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}

	metrics, err := s.client.GetLayoutMetrics(ctx, tab)
	if err != nil {
		return nil, fmt.Errorf("read layout metrics: %w", err)
	}

	// The worker semaphore caps concurrent OCR runs across all tabs.
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.sem }()

	lines, err := s.engine.Recognize(ctx, shot)
	if err != nil {
		return nil, fmt.Errorf("ocr recognize: %w", err)
	}

	// OCR works on device pixels; scale bboxes back to CSS pixels.
	ratio := metrics.DevicePixelRatio
	if ratio > 0 && ratio != 1 {
		for i := range lines {
			lines[i].BBox.X /= ratio
			lines[i].BBox.Y /= ratio
			lines[i].BBox.Width /= ratio
			lines[i].BBox.Height /= ratio
		}
	}
	return lines, nil
}
