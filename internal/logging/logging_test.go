package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestWithComponentAttachesAttr(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	WithComponent(logger, "decision").Info("strategy selected")
	if !strings.Contains(buf.String(), `"component":"decision"`) {
		t.Fatalf("expected component attr in output, got %s", buf.String())
	}
}
