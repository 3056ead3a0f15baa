package prompt

import (
	"strings"
	"testing"
)

func TestTemplateRender(t *testing.T) {
	tmpl, err := NewTemplate("greet", "Hello {{.name}}")
	if err != nil {
		t.Fatalf("NewTemplate error: %v", err)
	}
	out, err := tmpl.Render(map[string]any{"name": "Ada"})
	if err != nil {
		t.Fatalf("Render error: %v", err)
	}
	if out != "Hello Ada" {
		t.Fatalf("unexpected render %q", out)
	}
	if _, err := tmpl.Render(map[string]any{}); err == nil {
		t.Fatal("expected error for missing variable")
	}
}

func TestManagerRegisterAndOverride(t *testing.T) {
	m := NewManager()
	if err := m.RegisterString("a", "one"); err != nil {
		t.Fatalf("RegisterString error: %v", err)
	}
	if err := m.RegisterString("a", "two"); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
	if err := m.Override("a", "two"); err != nil {
		t.Fatalf("Override error: %v", err)
	}
	out, err := m.Render("a", nil)
	if err != nil || out != "two" {
		t.Fatalf("expected overridden template, got %q err=%v", out, err)
	}
	if _, err := m.Get("missing"); err == nil {
		t.Fatal("expected missing template error")
	}
}

func TestDefaults(t *testing.T) {
	m := Defaults()
	names := m.Names()
	want := []string{Generate, Relevance, Groundedness, Rewrite, Route}
	if len(names) != len(want) {
		t.Fatalf("expected %d templates, got %v", len(want), names)
	}
	out, err := m.Render(Generate, map[string]any{
		"history":  "human: hi",
		"question": "What is Go?",
		"context":  "Go is a language.",
	})
	if err != nil {
		t.Fatalf("render generate: %v", err)
	}
	for _, part := range []string{"human: hi", "What is Go?", "Go is a language."} {
		if !strings.Contains(out, part) {
			t.Fatalf("generate prompt missing %q", part)
		}
	}
}
