package ax

import (
	"context"
	"testing"
	"time"

	"github.com/replaydeck/replaydeck/internal/browser"
)

func boolPtr(b bool) *bool    { return &b }
func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func sampleTree() []browser.AXNode {
	return []browser.AXNode{
		{ID: "1", Role: "button", Name: "Submit Order", BackendNodeID: 10},
		{ID: "2", Role: "button", Name: "Cancel", BackendNodeID: 11, Hidden: true},
		{ID: "3", Role: "textbox", Name: "Email", BackendNodeID: 12},
		{ID: "4", Role: "checkbox", Name: "Subscribe", BackendNodeID: 13, Properties: map[string]string{"checked": "mixed"}},
		{ID: "5", Role: "heading", Name: "Checkout", BackendNodeID: 14, Properties: map[string]string{"level": "2"}},
		{ID: "6", Role: "button", Name: "Submit Payment", BackendNodeID: 15, Properties: map[string]string{"disabled": "true"}},
	}
}

func newTestService(fake *browser.FakeClient) *Service {
	return NewService(fake, nil)
}

func TestFindByRoleAndName(t *testing.T) {
	t.Parallel()

	fake := browser.NewFakeClient()
	fake.Tree = sampleTree()
	svc := newTestService(fake)

	tests := []struct {
		name  string
		q     Query
		want  []browser.NodeID
	}{
		{
			name: "role only skips hidden",
			q:    Query{Role: "button"},
			want: []browser.NodeID{10, 15},
		},
		{
			name: "substring name case-insensitive",
			q:    Query{Role: "button", Name: "submit"},
			want: []browser.NodeID{10, 15},
		},
		{
			name: "exact name",
			q:    Query{Role: "button", Name: "submit order", ExactName: true},
			want: []browser.NodeID{10},
		},
		{
			name: "include hidden",
			q:    Query{Role: "button", Name: "Cancel", IncludeHidden: true},
			want: []browser.NodeID{11},
		},
		{
			name: "checked mixed state",
			q:    Query{Role: "checkbox", Checked: strPtr("mixed")},
			want: []browser.NodeID{13},
		},
		{
			name: "disabled filter",
			q:    Query{Role: "button", Disabled: boolPtr(true)},
			want: []browser.NodeID{15},
		},
		{
			name: "heading level match",
			q:    Query{Role: "heading", Level: intPtr(2)},
			want: []browser.NodeID{14},
		},
		{
			name: "heading level mismatch",
			q:    Query{Role: "heading", Level: intPtr(3)},
			want: nil,
		},
	}

	for _, tt := range tests {
		matches, err := svc.Find(context.Background(), "tab", tt.q)
		if err != nil {
			t.Fatalf("%s: Find: %v", tt.name, err)
		}
		var got []browser.NodeID
		for _, m := range matches {
			got = append(got, m.BackendNodeID)
		}
		if len(got) != len(tt.want) {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
			}
		}
	}
}

func TestTreeCacheServesWithinTTL(t *testing.T) {
	t.Parallel()

	fake := browser.NewFakeClient()
	fake.Tree = sampleTree()
	svc := newTestService(fake)

	current := time.Unix(1000, 0)
	svc.now = func() time.Time { return current }

	if _, err := svc.Tree(context.Background(), "tab"); err != nil {
		t.Fatalf("Tree: %v", err)
	}
	current = current.Add(500 * time.Millisecond)
	if _, err := svc.Tree(context.Background(), "tab"); err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if got := fake.Calls("get_accessibility_tree"); got != 1 {
		t.Fatalf("expected 1 fetch within TTL, got %d", got)
	}

	current = current.Add(time.Second)
	if _, err := svc.Tree(context.Background(), "tab"); err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if got := fake.Calls("get_accessibility_tree"); got != 2 {
		t.Fatalf("expected refetch after TTL, got %d fetches", got)
	}
}

func TestClearCacheForcesRefetch(t *testing.T) {
	t.Parallel()

	fake := browser.NewFakeClient()
	fake.Tree = sampleTree()
	svc := newTestService(fake)

	if _, err := svc.Tree(context.Background(), "tab"); err != nil {
		t.Fatalf("Tree: %v", err)
	}
	svc.ClearCache("tab")
	if _, err := svc.Tree(context.Background(), "tab"); err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if got := fake.Calls("get_accessibility_tree"); got != 2 {
		t.Fatalf("expected refetch after ClearCache, got %d fetches", got)
	}
}

func TestCacheIsPerTab(t *testing.T) {
	t.Parallel()

	fake := browser.NewFakeClient()
	fake.Tree = sampleTree()
	svc := newTestService(fake)

	if _, err := svc.Tree(context.Background(), "tab-a"); err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if _, err := svc.Tree(context.Background(), "tab-b"); err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if got := fake.Calls("get_accessibility_tree"); got != 2 {
		t.Fatalf("expected a fetch per tab, got %d", got)
	}
}
