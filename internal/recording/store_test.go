package recording

import (
	"encoding/json"
	"errors"
	"testing"
)

func sampleRecording() *Recording {
	return &Recording{
		ID:            "rec-1",
		Name:          "Checkout flow",
		URL:           "https://shop.example/checkout",
		CreatedAt:     "2026-02-01T10:00:00Z",
		SchemaVersion: CurrentSchemaVersion,
		Steps: []Step{
			{ID: "s1", Event: EventOpen, URL: "https://shop.example/checkout"},
			{ID: "s2", Event: EventClick, Selector: "#pay", RecordedVia: ViaDOM},
		},
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	rec := sampleRecording()
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, _, err := store.Load("rec-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Name != rec.Name || len(loaded.Steps) != 2 || loaded.Steps[1].Selector != "#pay" {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestStoreLoadMissing(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, _, err := store.Load("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStorePreservesUnknownFields(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	raw := []byte(`{
		"id": "rec-x",
		"name": "Legacy",
		"url": "/",
		"created_at": "2025-01-01T00:00:00Z",
		"future_field": {"nested": true},
		"steps": [
			{"id": "s1", "event": "click", "selector": "#a", "step_future": 42}
		]
	}`)
	if err := store.SaveRaw("rec-x", raw); err != nil {
		t.Fatalf("SaveRaw: %v", err)
	}

	rec, _, err := store.Load("rec-x")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	rec.Name = "Renamed"
	if err := store.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	_, rawAfter, err := store.Load("rec-x")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(rawAfter, &doc); err != nil {
		t.Fatalf("parse raw: %v", err)
	}
	if doc["name"] != "Renamed" {
		t.Fatalf("rename lost: %v", doc["name"])
	}
	if _, ok := doc["future_field"]; !ok {
		t.Fatal("unknown top-level field must be preserved")
	}
	steps := doc["steps"].([]any)
	step := steps[0].(map[string]any)
	if _, ok := step["step_future"]; !ok {
		t.Fatal("unknown step field must be preserved")
	}
}

func TestStoreListAndDelete(t *testing.T) {
	t.Parallel()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.Save(sampleRecording()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ids, err := store.List()
	if err != nil || len(ids) != 1 || ids[0] != "rec-1" {
		t.Fatalf("List = %v, %v", ids, err)
	}

	if err := store.Delete("rec-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.Load("rec-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRecordingValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Recording)
		wantErr bool
	}{
		{name: "valid", mutate: func(r *Recording) {}},
		{name: "no steps", mutate: func(r *Recording) { r.Steps = nil }, wantErr: true},
		{name: "loop start past end", mutate: func(r *Recording) { r.LoopStartIndex = 5 }, wantErr: true},
		{name: "negative delay", mutate: func(r *Recording) { r.GlobalDelayMs = -1 }, wantErr: true},
		{name: "excess delay", mutate: func(r *Recording) { r.GlobalDelayMs = 70000 }, wantErr: true},
		{
			name: "conditional-click without config",
			mutate: func(r *Recording) {
				r.Steps = append(r.Steps, Step{ID: "s3", Event: EventConditionalClick})
			},
			wantErr: true,
		},
		{
			name: "dom step without selector",
			mutate: func(r *Recording) {
				r.Steps = append(r.Steps, Step{ID: "s3", Event: EventClick, RecordedVia: ViaDOM})
			},
			wantErr: true,
		},
		{
			name: "vision step without coordinates",
			mutate: func(r *Recording) {
				r.Steps = append(r.Steps, Step{ID: "s3", Event: EventClick, RecordedVia: ViaVision})
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		rec := sampleRecording()
		tt.mutate(rec)
		err := rec.Validate()
		if (err != nil) != tt.wantErr {
			t.Fatalf("%s: Validate() = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestConditionalConfigValidation(t *testing.T) {
	t.Parallel()

	valid := ConditionalConfig{
		Enabled:         true,
		SearchTerms:     []string{"Allow"},
		TimeoutSeconds:  120,
		PollIntervalMs:  1000,
		InteractionType: InteractClick,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ConditionalConfig)
	}{
		{name: "no terms", mutate: func(c *ConditionalConfig) { c.SearchTerms = nil }},
		{name: "too many terms", mutate: func(c *ConditionalConfig) {
			c.SearchTerms = make([]string, 21)
			for i := range c.SearchTerms {
				c.SearchTerms[i] = "x"
			}
		}},
		{name: "timeout too low", mutate: func(c *ConditionalConfig) { c.TimeoutSeconds = 0 }},
		{name: "timeout too high", mutate: func(c *ConditionalConfig) { c.TimeoutSeconds = 7200 }},
		{name: "poll too fast", mutate: func(c *ConditionalConfig) { c.PollIntervalMs = 100 }},
		{name: "type without text", mutate: func(c *ConditionalConfig) { c.InteractionType = InteractType }},
	}

	for _, tt := range tests {
		cfg := valid
		cfg.SearchTerms = append([]string(nil), valid.SearchTerms...)
		tt.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tt.name)
		}
	}
}
