package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type failingStore struct {
	Store
}

func (failingStore) Recent(context.Context, string, int) ([]Message, error) {
	return nil, errors.New("backend down")
}

func TestLogLoadEmptySeedsWelcome(t *testing.T) {
	l := NewLog(NewInMemoryStore(10), "s1", "", 10)
	l.Load(context.Background())

	msgs := l.Messages()
	if len(msgs) != 1 {
		t.Fatalf("len = %d, want 1", len(msgs))
	}
	if msgs[0].Text != DefaultWelcome || msgs[0].Sender != SenderBot {
		t.Fatalf("welcome = %+v", msgs[0])
	}
}

func TestLogLoadFailureFallsBackToWelcome(t *testing.T) {
	l := NewLog(failingStore{}, "s1", "hello!", 10)
	l.Load(context.Background())

	msgs := l.Messages()
	if len(msgs) != 1 || msgs[0].Text != "hello!" {
		t.Fatalf("messages = %+v, want only the welcome", msgs)
	}
}

func TestLogWelcomeNeverPersisted(t *testing.T) {
	store := NewInMemoryStore(10)
	l := NewLog(store, "s1", "", 10)
	l.Load(context.Background())

	persisted, err := store.Recent(context.Background(), "s1", 10)
	if err != nil {
		t.Fatalf("Recent error: %v", err)
	}
	if len(persisted) != 0 {
		t.Fatalf("persisted = %d messages, want 0 (welcome stays in memory)", len(persisted))
	}
}

func TestLogLoadResumesPersistedConversation(t *testing.T) {
	store := NewInMemoryStore(10)
	ctx := context.Background()
	first := NewLog(store, "s1", "", 10)
	first.Load(ctx)
	if _, err := first.Append(ctx, Message{Text: "hi", Sender: SenderUser}); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	second := NewLog(store, "s1", "", 10)
	second.Load(ctx)
	msgs := second.Messages()
	if len(msgs) != 1 || msgs[0].Text != "hi" {
		t.Fatalf("resumed messages = %+v, want the persisted one (no welcome)", msgs)
	}
}

func TestLogAppendFillsIDAndTimestamp(t *testing.T) {
	l := NewLog(NewInMemoryStore(10), "s1", "", 10)
	l.Load(context.Background())

	msg, err := l.Append(context.Background(), Message{Text: "hi", Sender: SenderUser})
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if msg.ID == "" || msg.Timestamp == 0 {
		t.Fatalf("message missing identity: %+v", msg)
	}
	if msg.SessionID != "s1" {
		t.Fatalf("SessionID = %q, want s1", msg.SessionID)
	}
}

func TestLogAppendDropsOldestBeyondLimit(t *testing.T) {
	l := NewLog(NewInMemoryStore(5), "s1", "", 5)
	l.Load(context.Background())

	for i := 0; i < 8; i++ {
		if _, err := l.Append(context.Background(), Message{Text: fmt.Sprintf("m%d", i), Sender: SenderUser}); err != nil {
			t.Fatalf("Append #%d error: %v", i, err)
		}
	}

	msgs := l.Messages()
	if len(msgs) != 5 {
		t.Fatalf("len = %d, want 5", len(msgs))
	}
	if msgs[0].Text != "m3" || msgs[4].Text != "m7" {
		t.Fatalf("window = %q..%q, want m3..m7", msgs[0].Text, msgs[4].Text)
	}
}

func TestLogClearResetsToWelcome(t *testing.T) {
	store := NewInMemoryStore(10)
	l := NewLog(store, "s1", "", 10)
	ctx := context.Background()
	l.Load(ctx)
	if _, err := l.Append(ctx, Message{Text: "hi", Sender: SenderUser}); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	if err := l.Clear(ctx); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	msgs := l.Messages()
	if len(msgs) != 1 || msgs[0].Text != DefaultWelcome {
		t.Fatalf("after clear = %+v, want single welcome", msgs)
	}

	persisted, _ := store.Recent(ctx, "s1", 10)
	if len(persisted) != 0 {
		t.Fatalf("store still holds %d messages after clear", len(persisted))
	}
}

func TestLogMessagesReturnsCopy(t *testing.T) {
	l := NewLog(NewInMemoryStore(10), "s1", "", 10)
	l.Load(context.Background())

	msgs := l.Messages()
	msgs[0].Text = "mutated"
	if got := l.Messages()[0].Text; got == "mutated" {
		t.Fatalf("caller mutation leaked into the log")
	}
}
