// service.go — Accessibility service: cached tree fetch and semantic queries.
// Owns the per-tab tree cache (TTL 1 s); no other component mutates it.
package ax

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
	"github.com/replaydeck/replaydeck/internal/logging"
)

const cacheTTL = time.Second

// Service fetches and queries accessibility trees.
type Service struct {
	client browser.Client
	logger *slog.Logger

	mu    sync.Mutex
	cache map[browser.TabID]*cachedTree

	now func() time.Time
}

type cachedTree struct {
	nodes     []browser.AXNode
	fetchedAt time.Time
}

// NewService creates an accessibility service over the given provider.
func NewService(client browser.Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		client: client,
		logger: logging.WithComponent(logger, "ax"),
		cache:  make(map[browser.TabID]*cachedTree),
		now:    time.Now,
	}
}

// Tree returns the tab's accessibility tree, served from cache when the
// last fetch is younger than the TTL.
func (s *Service) Tree(ctx context.Context, tab browser.TabID) ([]browser.AXNode, error) {
	s.mu.Lock()
	if entry, ok := s.cache[tab]; ok && s.now().Sub(entry.fetchedAt) < cacheTTL {
		nodes := entry.nodes
		s.mu.Unlock()
		return nodes, nil
	}
	s.mu.Unlock()

	nodes, err := s.client.GetAccessibilityTree(ctx, tab)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[tab] = &cachedTree{nodes: nodes, fetchedAt: s.now()}
	s.mu.Unlock()
	return nodes, nil
}

// ClearCache drops the cached tree for the tab so the next Tree call
// refetches. The conditional-click loop calls this before every poll.
func (s *Service) ClearCache(tab browser.TabID) {
	s.mu.Lock()
	delete(s.cache, tab)
	s.mu.Unlock()
}

// Query describes a semantic lookup against the accessibility tree.
type Query struct {
	Role          string
	Name          string // empty means role-only match
	ExactName     bool   // substring match when false
	IncludeHidden bool

	// State filters; nil means "don't care".
	Expanded *bool
	Pressed  *bool
	Checked  *string // "true", "false", "mixed"
	Disabled *bool
	Selected *bool
	Level    *int // heading level, meaningful when Role == "heading"
}

// Find returns every tree node satisfying the query, in tree order.
func (s *Service) Find(ctx context.Context, tab browser.TabID, q Query) ([]browser.AXNode, error) {
	nodes, err := s.Tree(ctx, tab)
	if err != nil {
		return nil, err
	}

	var matches []browser.AXNode
	for _, node := range nodes {
		if matchesQuery(node, q) {
			matches = append(matches, node)
		}
	}
	return matches, nil
}

func matchesQuery(node browser.AXNode, q Query) bool {
	if !q.IncludeHidden && (node.Ignored || node.Hidden) {
		return false
	}
	if q.Role != "" && !strings.EqualFold(node.Role, q.Role) {
		return false
	}
	if q.Name != "" && !nameMatches(node.Name, q.Name, q.ExactName) {
		return false
	}
	if q.Expanded != nil && boolProp(node, "expanded") != *q.Expanded {
		return false
	}
	if q.Pressed != nil && boolProp(node, "pressed") != *q.Pressed {
		return false
	}
	if q.Checked != nil && !strings.EqualFold(node.Properties["checked"], *q.Checked) {
		return false
	}
	if q.Disabled != nil && boolProp(node, "disabled") != *q.Disabled {
		return false
	}
	if q.Selected != nil && boolProp(node, "selected") != *q.Selected {
		return false
	}
	if q.Level != nil && strings.EqualFold(node.Role, "heading") {
		level, err := strconv.Atoi(node.Properties["level"])
		if err != nil || level != *q.Level {
			return false
		}
	}
	return true
}

func nameMatches(name, pattern string, exact bool) bool {
	if exact {
		return strings.EqualFold(name, pattern)
	}
	return strings.Contains(strings.ToLower(name), strings.ToLower(pattern))
}

func boolProp(node browser.AXNode, key string) bool {
	return strings.EqualFold(node.Properties[key], "true")
}

// FormRoles are the accessibility roles treated as form-interactive for
// label-based lookup.
var FormRoles = map[string]bool{
	"textbox":    true,
	"checkbox":   true,
	"radio":      true,
	"combobox":   true,
	"listbox":    true,
	"spinbutton": true,
	"slider":     true,
}

// InteractiveRoles are roles the scorer treats as interactive.
var InteractiveRoles = map[string]bool{
	"button":   true,
	"link":     true,
	"checkbox": true,
	"radio":    true,
	"textbox":  true,
	"combobox": true,
	"menuitem": true,
}
