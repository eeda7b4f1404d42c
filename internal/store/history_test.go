package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rahul/tabpilot/internal/llm"
)

func TestConversationStore(t *testing.T) {
	s, err := NewConversationStore("")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	for _, m := range []llm.ChatMessage{
		{Type: llm.ChatUser, Content: "one"},
		{Type: llm.ChatAI, Content: "two"},
		{Type: llm.ChatUser, Content: "three"},
	} {
		if _, err := s.Append(ctx, "chat-1", m); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Append(ctx, "chat-2", llm.ChatMessage{Type: llm.ChatUser, Content: "other"}); err != nil {
		t.Fatal(err)
	}

	history, err := s.History(ctx, "chat-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 || history[0].Content != "two" || history[1].Content != "three" {
		t.Fatalf("unexpected history %+v", history)
	}
	if history[0].Type != llm.ChatAI || history[0].ID == "" {
		t.Errorf("message fields not kept: %+v", history[0])
	}

	all, err := s.History(ctx, "chat-1", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("expected full history, got %d (%v)", len(all), err)
	}

	if err := s.Clear(ctx, "chat-1"); err != nil {
		t.Fatal(err)
	}
	if history, _ := s.History(ctx, "chat-1", 10); len(history) != 0 {
		t.Errorf("history not cleared: %+v", history)
	}
	if other, _ := s.History(ctx, "chat-2", 10); len(other) != 1 {
		t.Errorf("clear touched another chat: %+v", other)
	}
}

func TestConversationStore_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := NewConversationStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Append(context.Background(), "c", llm.ChatMessage{ID: "fixed", Type: llm.ChatUser, Content: "hi"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = NewConversationStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	history, err := s.History(context.Background(), "c", 5)
	if err != nil || len(history) != 1 || history[0].ID != "fixed" {
		t.Errorf("unexpected history %+v (%v)", history, err)
	}
}
