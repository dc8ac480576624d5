package types

import "testing"

func TestMessageConstructors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		msg  Message
		role Role
	}{
		{NewSystemMessage("instructions"), RoleSystem},
		{NewUserMessage("hello"), RoleUser},
		{NewAssistantMessage("hi there"), RoleAssistant},
	}

	for _, tc := range cases {
		if tc.msg.Role != tc.role {
			t.Errorf("expected role %q, got %q", tc.role, tc.msg.Role)
		}
		if tc.msg.Content == "" {
			t.Errorf("message for role %q lost its content", tc.role)
		}
		if tc.msg.Timestamp.IsZero() {
			t.Errorf("message for role %q has no timestamp", tc.role)
		}
	}
}

func TestCloneMessages_Independence(t *testing.T) {
	t.Parallel()

	if got := CloneMessages(nil); got != nil {
		t.Fatalf("expected nil clone of nil slice, got %v", got)
	}

	src := []Message{NewSystemMessage("sys"), NewUserMessage("hi")}
	dst := CloneMessages(src)
	if len(dst) != len(src) {
		t.Fatalf("expected %d messages, got %d", len(src), len(dst))
	}

	dst[1].Content = "mutated"
	if src[1].Content != "hi" {
		t.Fatalf("clone mutation leaked into source: %q", src[1].Content)
	}
}
