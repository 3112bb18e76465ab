package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestReason(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if req.Transcript != "allume la lumière" {
			t.Errorf("Unexpected transcript: %s", req.Transcript)
		}
		if req.RoomID != "salon" {
			t.Errorf("Unexpected room: %s", req.RoomID)
		}
		if req.Model != "house-llm" {
			t.Errorf("Expected configured model forwarded, got %s", req.Model)
		}

		json.NewEncoder(w).Encode(Response{
			Reply: "c'est fait",
			Actions: []Action{
				{Name: "home.light_on", Args: map[string]string{"entity": "salon_plafond"}},
			},
		})
	}))
	defer ts.Close()

	client, err := NewClient(Config{Endpoint: ts.URL, Model: "house-llm"})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	resp, err := client.Reason(context.Background(), &Request{
		Transcript: "allume la lumière",
		RoomID:     "salon",
		SessionID:  "salon-1",
	})
	if err != nil {
		t.Fatalf("Reason failed: %v", err)
	}

	if resp.Reply != "c'est fait" {
		t.Errorf("Expected reply 'c'est fait', got '%s'", resp.Reply)
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Name != "home.light_on" {
		t.Errorf("Unexpected actions: %+v", resp.Actions)
	}
}

func TestReasonServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer ts.Close()

	client, err := NewClient(Config{Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Reason(context.Background(), &Request{Transcript: "bonjour", RoomID: "salon"})
	if !errors.Is(err, ErrReasoningUnavailable) {
		t.Errorf("Expected ErrReasoningUnavailable, got %v", err)
	}
}

func TestReasonInvalidResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer ts.Close()

	client, err := NewClient(Config{Endpoint: ts.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Reason(context.Background(), &Request{Transcript: "bonjour", RoomID: "salon"})
	if !errors.Is(err, ErrReasoningUnavailable) {
		t.Errorf("Expected ErrReasoningUnavailable, got %v", err)
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("Expected error for empty endpoint")
	}
}
