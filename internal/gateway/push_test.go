package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPushWebhook_SendPush(t *testing.T) {
	t.Parallel()

	var got PushMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := ioReadAll(r)
		_ = json.Unmarshal(b, &got)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messageId":"push-1"}`))
	}))
	defer srv.Close()

	id, err := NewPushWebhook(srv.URL).SendPush(context.Background(), PushMessage{
		Token:  "tok",
		UserID: "u2",
		Title:  "New SOS alert",
		Body:   "Ana Lee triggered an SOS alert.",
		Data:   map[string]string{"alertId": "a1"},
	})
	if err != nil {
		t.Fatalf("SendPush() error: %v", err)
	}
	if id != "push-1" {
		t.Fatalf("expected id push-1, got %q", id)
	}
	if got.Token != "tok" || got.Data["alertId"] != "a1" {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestPushWebhook_RejectsUnexpectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	_, err := NewPushWebhook(srv.URL).SendPush(context.Background(), PushMessage{Token: "tok"})
	if err == nil {
		t.Fatalf("expected 204 to be rejected")
	}
}

func TestPushWebhook_NoToken(t *testing.T) {
	t.Parallel()

	_, err := NewPushWebhook("http://127.0.0.1:1").SendPush(context.Background(), PushMessage{UserID: "u2"})
	if !errors.Is(err, ErrNoPushToken) {
		t.Fatalf("expected ErrNoPushToken, got %v", err)
	}
}
