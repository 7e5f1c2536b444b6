package ticket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{
		BaseURL:    server.URL,
		Email:      "bot@example.com",
		APIToken:   "secret",
		ProjectKey: "INFRA",
	})
}

func TestListTickets(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/search" {
			t.Errorf("path=%s", r.URL.Path)
		}
		jql := r.URL.Query().Get("jql")
		if !strings.Contains(jql, `"INFRA"`) || !strings.Contains(jql, `"To Do"`) {
			t.Errorf("jql=%q", jql)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "bot@example.com" || pass != "secret" {
			t.Errorf("basic auth: %q %q %v", user, pass, ok)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"issues": []map[string]interface{}{
				{
					"id":  "10001",
					"key": "INFRA-42",
					"fields": map[string]interface{}{
						"summary":     "Increase disk size",
						"description": "Bump the data disk to 500GB",
						"status":      map[string]string{"name": "To Do"},
					},
				},
			},
		})
	}))

	tickets, err := c.ListTickets(context.Background(), "To Do")
	if err != nil {
		t.Fatalf("ListTickets failed: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("tickets=%d, want 1", len(tickets))
	}
	got := tickets[0]
	if got.Key != "INFRA-42" || got.Status != "To Do" || got.Summary != "Increase disk size" {
		t.Fatalf("ticket=%+v", got)
	}
}

func TestTransitionResolvesIDByName(t *testing.T) {
	t.Parallel()

	var posted map[string]interface{}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /rest/api/2/issue/10001/transitions", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"transitions": []map[string]interface{}{
				{"id": "11", "to": map[string]string{"name": "To Do"}},
				{"id": "21", "to": map[string]string{"name": "In Progress"}},
			},
		})
	})
	mux.HandleFunc("POST /rest/api/2/issue/10001/transitions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&posted)
		w.WriteHeader(http.StatusNoContent)
	})

	c := newTestClient(t, mux)
	if err := c.Transition(context.Background(), "10001", "in progress"); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	transition, _ := posted["transition"].(map[string]interface{})
	if transition["id"] != "21" {
		t.Fatalf("posted=%+v", posted)
	}
}

func TestTransitionUnavailable(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"transitions": []interface{}{}})
	}))

	err := c.Transition(context.Background(), "10001", "Done")
	if err == nil || !strings.Contains(err.Error(), "no matching transition") {
		t.Fatalf("err=%v", err)
	}
}

func TestComment(t *testing.T) {
	t.Parallel()

	var body map[string]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/api/2/issue/INFRA-42/comment" {
			t.Errorf("path=%s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusCreated)
	}))

	if err := c.Comment(context.Background(), "INFRA-42", "PR: https://example/pr/1"); err != nil {
		t.Fatalf("Comment failed: %v", err)
	}
	if body["body"] != "PR: https://example/pr/1" {
		t.Fatalf("body=%+v", body)
	}
}
