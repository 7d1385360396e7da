// stability.go — Per-node position history for the stability probe.
// Bounded to the last few samples; cleared when the node detaches.
package waiting

import (
	"sync"
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
)

const maxSamples = 10

type positionSample struct {
	x, y float64
	at   time.Time
}

type nodeKey struct {
	tab  browser.TabID
	node browser.NodeID
}

// stabilityTracker keeps a rolling position history per node. A node is
// stable once its top-left corner has not moved for the threshold duration.
type stabilityTracker struct {
	mu        sync.Mutex
	histories map[nodeKey]*nodeHistory
}

type nodeHistory struct {
	samples     []positionSample
	stableSince time.Time
}

func newStabilityTracker() *stabilityTracker {
	return &stabilityTracker{histories: make(map[nodeKey]*nodeHistory)}
}

// observe records the node's current position and reports whether it has
// been unchanged for at least threshold.
func (t *stabilityTracker) observe(tab browser.TabID, node browser.NodeID, box browser.Rect, now time.Time, threshold time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := nodeKey{tab: tab, node: node}
	history, ok := t.histories[key]
	if !ok {
		history = &nodeHistory{stableSince: now}
		t.histories[key] = history
	}

	if n := len(history.samples); n > 0 {
		last := history.samples[n-1]
		if last.x != box.X || last.y != box.Y {
			// Any movement resets the stability timer.
			history.stableSince = now
		}
	}

	history.samples = append(history.samples, positionSample{x: box.X, y: box.Y, at: now})
	if len(history.samples) > maxSamples {
		history.samples = history.samples[len(history.samples)-maxSamples:]
	}

	return now.Sub(history.stableSince) >= threshold
}

// forget drops the node's history, e.g. when it detaches.
func (t *stabilityTracker) forget(tab browser.TabID, node browser.NodeID) {
	t.mu.Lock()
	delete(t.histories, nodeKey{tab: tab, node: node})
	t.mu.Unlock()
}
