package channel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSender_PostsTextEnvelope(t *testing.T) {
	var gotPath, gotAuth, gotType string
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, `{"messages":[{"id":"wamid.out"}]}`)
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{
		AuthToken:     "tok",
		PhoneNumberID: "12345",
		APIBase:       srv.URL + "/",
		APIVersion:    "v19.0",
		Logger:        testLogger(),
	})
	res := s.Send(context.Background(), "111", "hola")

	if !res.Delivered {
		t.Fatalf("expected delivered, got %s", res)
	}
	if gotPath != "/v19.0/12345/messages" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("unexpected auth %q", gotAuth)
	}
	if gotType != "application/json" {
		t.Errorf("unexpected content type %q", gotType)
	}
	if got["messaging_product"] != "whatsapp" || got["to"] != "111" || got["type"] != "text" {
		t.Errorf("unexpected envelope %v", got)
	}
	text, _ := got["text"].(map[string]any)
	if text["body"] != "hola" {
		t.Errorf("unexpected text %v", got["text"])
	}
}

func TestSender_AnySuccessStatusDelivers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{PhoneNumberID: "1", APIBase: srv.URL, Logger: testLogger()})
	if res := s.Send(context.Background(), "111", "x"); !res.Delivered {
		t.Fatalf("202 should count as delivered, got %s", res)
	}
}

func TestSender_NonSuccessStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad token"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewSender(SenderConfig{PhoneNumberID: "1", APIBase: srv.URL, Logger: testLogger()})
	res := s.Send(context.Background(), "111", "x")
	if res.Delivered {
		t.Fatal("401 should fail")
	}
	if !strings.Contains(res.Reason, "401") || !strings.Contains(res.Reason, "bad token") {
		t.Errorf("reason should carry status and body, got %q", res.Reason)
	}
}

func TestSender_TransportErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	s := NewSender(SenderConfig{PhoneNumberID: "1", APIBase: base, Logger: testLogger()})
	res := s.Send(context.Background(), "111", "x")
	if res.Delivered || res.Reason == "" {
		t.Fatalf("expected failure with reason, got %s", res)
	}
}

func TestSender_TimeoutFails(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	s := NewSender(SenderConfig{PhoneNumberID: "1", APIBase: srv.URL, Timeout: 50 * time.Millisecond, Logger: testLogger()})
	if res := s.Send(context.Background(), "111", "x"); res.Delivered {
		t.Fatal("expected timeout failure")
	}
}

func TestSender_Defaults(t *testing.T) {
	s := NewSender(SenderConfig{PhoneNumberID: "42"})
	if s.endpoint != "https://graph.facebook.com/v19.0/42/messages" {
		t.Errorf("unexpected endpoint %q", s.endpoint)
	}
}
