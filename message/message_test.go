package message

import (
	"testing"
)

func TestNewMessage(t *testing.T) {
	msg := NewMessage(RoleHuman, "Hello, world!")

	if msg.Role != RoleHuman {
		t.Errorf("Expected role %s, got %s", RoleHuman, msg.Role)
	}

	if msg.Content != "Hello, world!" {
		t.Errorf("Expected content 'Hello, world!', got '%s'", msg.Content)
	}

	if msg.ID == "" {
		t.Error("Expected non-empty ID")
	}

	if msg.CreatedAt.IsZero() {
		t.Error("Expected non-zero created time")
	}
}

func TestMessageIDsAreUnique(t *testing.T) {
	a := NewMessage(RoleHuman, "a")
	b := NewMessage(RoleHuman, "b")
	if a.ID == b.ID {
		t.Fatalf("Expected distinct IDs, both were %s", a.ID)
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleHuman, RoleAssistant, RoleSystem} {
		if !r.Valid() {
			t.Errorf("Expected %s to be valid", r)
		}
	}
	if Role("tool").Valid() {
		t.Error("Expected unknown role to be invalid")
	}
}

func TestCloneIsDeep(t *testing.T) {
	msg := NewMessage(RoleAssistant, "answer")
	msg.Metadata = map[string]any{"k": "v"}

	cloned := Clone(msg)
	cloned.Metadata["k"] = "changed"
	cloned.Content = "other"

	if msg.Metadata["k"] != "v" {
		t.Errorf("Clone shares metadata with original")
	}
	if msg.Content != "answer" {
		t.Errorf("Clone shares content with original")
	}
	if Clone(nil) != nil {
		t.Errorf("Clone(nil) should return nil")
	}
}

func TestWindow(t *testing.T) {
	var msgs []*Message
	for i := 0; i < 12; i++ {
		msgs = append(msgs, NewMessage(RoleHuman, string(rune('a'+i))))
	}

	got := Window(msgs, 10)
	if len(got) != 10 {
		t.Fatalf("Expected 10 messages, got %d", len(got))
	}
	if got[0].Content != "c" || got[9].Content != "l" {
		t.Errorf("Unexpected window bounds: %s..%s", got[0].Content, got[9].Content)
	}

	if all := Window(msgs, 0); len(all) != 12 {
		t.Errorf("Expected full copy for n=0, got %d", len(all))
	}
	if short := Window(msgs[:3], 10); len(short) != 3 {
		t.Errorf("Expected 3 messages, got %d", len(short))
	}
}
