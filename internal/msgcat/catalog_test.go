package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

type reason struct {
	Type   string
	RoomID string
}

func TestDefaultCatalogRenders(t *testing.T) {
	c := MustDefault()
	got, err := c.Render("errors.room_full", reason{RoomID: "ABC123"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Room ABC123 is full." {
		t.Fatalf("got %q", got)
	}
	if _, err := c.Render("errors.nope", nil); err == nil {
		t.Fatalf("expected missing key error")
	}
	if got := c.RenderOr("errors.nope", nil, "fallback"); got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestMissingFieldIsError(t *testing.T) {
	c := MustDefault()
	if _, err := c.Render("errors.room_full", map[string]string{}); err == nil {
		t.Fatalf("expected missingkey error")
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("errors:\n  not_your_turn: \"Patience.\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.RenderOr("errors.not_your_turn", nil, ""); got != "Patience." {
		t.Fatalf("override not applied: %q", got)
	}
	if !c.Has("errors.room_full") {
		t.Fatalf("defaults lost")
	}

	if err := os.WriteFile(filepath.Join(dir, "b.yml"), []byte("errors:\n  not_your_turn: \"Again.\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}
