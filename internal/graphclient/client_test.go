package graphclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientGetEntity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/entities/e-1" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(entityWire{
			ID:         "e-1",
			Type:       "person",
			Properties: map[string]interface{}{"label": "captain ahab"},
		})
	}))
	defer server.Close()

	client := New(DefaultConfig(), server.URL)
	entity, err := client.GetEntity(context.Background(), "e-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entity.Label() != "captain ahab" {
		t.Errorf("expected label captain ahab, got %q", entity.Label())
	}
}

func TestClientGetEntityNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(DefaultConfig(), server.URL)
	_, err := client.GetEntity(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected an error for a 404 response")
	}
}

func TestClientCreateEntity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body createRequestWire
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if !body.SyncIndex {
			t.Error("expected sync_index to be forwarded as true")
		}
		json.NewEncoder(w).Encode(createResponseWire{ID: "e-2"})
	}))
	defer server.Close()

	client := New(DefaultConfig(), server.URL)
	result, err := client.CreateEntity(context.Background(), "moby-dick", "person", map[string]interface{}{"label": "starbuck"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ID != "e-2" {
		t.Errorf("expected id e-2, got %q", result.ID)
	}
}

func TestClientPostAdditiveUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body additiveUpdatesRequestWire
		raw, _ := json.Marshal(map[string]interface{}{})
		_ = raw
		_ = json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(additiveUpdatesResponseWire{Accepted: 1})
	}))
	defer server.Close()

	client := New(DefaultConfig(), server.URL)
	accepted, err := client.PostAdditiveUpdates(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accepted != 1 {
		t.Errorf("expected 1 accepted, got %d", accepted)
	}
}
