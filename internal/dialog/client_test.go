package dialog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClientSendParsesReply(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{
			"message": "We offer a 30-day return window.",
			"emotion": {"detected": "joy", "confidence": 0.85, "emoji": "😊"},
			"action": "open_returns"
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second)
	reply, err := client.Send(context.Background(), "session_1", "what is your return policy?")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if reply.Message != "We offer a 30-day return window." {
		t.Fatalf("Message = %q", reply.Message)
	}
	if reply.Emotion == nil || reply.Emotion.Detected != "joy" || reply.Emotion.Emoji != "😊" {
		t.Fatalf("Emotion = %+v", reply.Emotion)
	}
	if reply.Action != "open_returns" {
		t.Fatalf("Action = %q, want open_returns", reply.Action)
	}
	if gotBody["message"] != "what is your return policy?" || gotBody["sessionId"] != "session_1" {
		t.Fatalf("request body = %v", gotBody)
	}
}

func TestClientSendWithoutEmotion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message": "plain reply"}`))
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL, time.Second).Send(context.Background(), "s", "hi")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if reply.Emotion != nil {
		t.Fatalf("Emotion = %+v, want nil", reply.Emotion)
	}
	if reply.Action != "" {
		t.Fatalf("Action = %q, want empty", reply.Action)
	}
}

func TestClientSendClampsConfidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message": "ok", "emotion": {"detected": "anger", "confidence": 3.5}}`))
	}))
	defer srv.Close()

	reply, err := NewClient(srv.URL, time.Second).Send(context.Background(), "s", "hi")
	if err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if reply.Emotion.Confidence != 1 {
		t.Fatalf("Confidence = %v, want clamped to 1", reply.Emotion.Confidence)
	}
}

func TestClientSendNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Send(context.Background(), "s", "hi")
	if !IsNetworkError(err) {
		t.Fatalf("error = %v, want network error", err)
	}
}

func TestClientSendMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message": `))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Send(context.Background(), "s", "hi")
	if !IsNetworkError(err) {
		t.Fatalf("error = %v, want network error", err)
	}
}

func TestClientSendEmptyMessageField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message": "  "}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Send(context.Background(), "s", "hi")
	if !IsNetworkError(err) {
		t.Fatalf("error = %v, want network error", err)
	}
}

func TestClientSendUnreachableHost(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := client.Send(context.Background(), "s", "hi")
	if !IsNetworkError(err) {
		t.Fatalf("error = %v, want network error", err)
	}
}

func TestIsNetworkErrorOnOtherErrors(t *testing.T) {
	if IsNetworkError(nil) {
		t.Fatalf("IsNetworkError(nil) = true")
	}
	if IsNetworkError(context.Canceled) {
		t.Fatalf("IsNetworkError(context.Canceled) = true")
	}
}
