package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/schema"
	"github.com/JonMunkholm/tablekit/internal/table"
)

func newTestAPI(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()

	r.Get("/api/users", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"users":  []any{map[string]any{"id": 12345678901234567, "status": q.Get("status.eq")}},
			"cursor": nil,
			"echo":   map[string]string{"cursor": q.Get("cursor"), "limit": q.Get("limit")},
		})
	})

	r.Post("/api/users", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"users": []any{}, "cursor": "c2", "body": body})
	})

	r.Get("/api/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"error": "not allowed"})
	})

	r.Get("/api/plain-error", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	})

	r.Get("/api/garbage", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestCall_GETQueryPayload(t *testing.T) {
	srv := newTestAPI(t)
	tr, err := New(Config{BaseURL: srv.URL + "/api"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	resp, err := tr.Call(context.Background(), table.Request{
		Method:  "GET",
		URL:     "/users",
		Payload: map[string]any{"cursor": "", "limit": 10, "status.eq": "active"},
	})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
	users := resp.Data["users"].([]any)
	rec := users[0].(map[string]any)
	if rec["status"] != "active" {
		t.Errorf("status = %v, want active", rec["status"])
	}
	if rec["id"] != json.Number("12345678901234567") {
		t.Errorf("id = %#v, want exact json.Number", rec["id"])
	}
	echo := resp.Data["echo"].(map[string]any)
	if echo["limit"] != "10" {
		t.Errorf("limit = %v, want 10", echo["limit"])
	}
	if resp.Data["cursor"] != nil {
		t.Errorf("cursor = %v, want nil", resp.Data["cursor"])
	}
}

func TestCall_KeepsEscapedRouteValues(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)

	tr, err := New(Config{BaseURL: srv.URL + "/api"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	target := table.ResolveURL("/orders/:sku/cancel", map[string]string{"sku": "A/B"})
	if _, err := tr.Call(context.Background(), table.Request{Method: "POST", URL: target}); err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	if want := "/api/orders/A%2FB/cancel"; gotPath != want {
		t.Errorf("server path = %q, want %q", gotPath, want)
	}
}

func TestCall_POSTJSONBody(t *testing.T) {
	srv := newTestAPI(t)
	tr, _ := New(Config{})

	resp, err := tr.Call(context.Background(), table.Request{
		Method: "post",
		URL:    srv.URL + "/api/users",
		Payload: map[string]any{
			"cursor":  "",
			"limit":   10,
			"filters": filter.Filters{"status": {"in": []any{"a", "b"}}},
		},
	})
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}

	body := resp.Data["body"].(map[string]any)
	filters := body["filters"].(map[string]any)
	in := filters["status"].(map[string]any)["in"].([]any)
	if len(in) != 2 || in[0] != "a" {
		t.Errorf("filters.status.in = %v, want [a b]", in)
	}
	if resp.Data["cursor"] != "c2" {
		t.Errorf("cursor = %v, want c2", resp.Data["cursor"])
	}
}

func TestCall_ApplicationErrors(t *testing.T) {
	srv := newTestAPI(t)
	tr, _ := New(Config{BaseURL: srv.URL})

	tests := []struct {
		path       string
		wantStatus int
		wantError  string
	}{
		{"/api/forbidden", http.StatusForbidden, "not allowed"},
		{"/api/plain-error", http.StatusBadGateway, "upstream exploded"},
		{"/api/missing", http.StatusNotFound, "404 page not found"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := tr.Call(context.Background(), table.Request{URL: tt.path})
			if err != nil {
				t.Fatalf("Call() error: %v", err)
			}
			if resp.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", resp.Status, tt.wantStatus)
			}
			if resp.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestCall_UndecodableSuccess(t *testing.T) {
	srv := newTestAPI(t)
	tr, _ := New(Config{BaseURL: srv.URL})

	if _, err := tr.Call(context.Background(), table.Request{URL: "/api/garbage"}); err == nil {
		t.Error("Call() on non-JSON 200: expected error")
	}
}

func TestCall_NetworkError(t *testing.T) {
	srv := newTestAPI(t)
	addr := srv.URL
	srv.Close()

	tr, _ := New(Config{BaseURL: addr, Timeout: time.Second})
	if _, err := tr.Call(context.Background(), table.Request{URL: "/api/users"}); err == nil {
		t.Error("Call() against closed server: expected error")
	}
}

func TestCall_RateLimitHonoursContext(t *testing.T) {
	srv := newTestAPI(t)
	tr, _ := New(Config{BaseURL: srv.URL, RateLimit: 0.001, RateBurst: 1})

	if _, err := tr.Call(context.Background(), table.Request{URL: "/api/users"}); err != nil {
		t.Fatalf("first Call() error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := tr.Call(ctx, table.Request{URL: "/api/users"}); err == nil {
		t.Error("second Call() within the limit window: expected error")
	}
}

func TestEngineOverHTTP(t *testing.T) {
	srv := newTestAPI(t)
	tr, _ := New(Config{BaseURL: srv.URL + "/api"})

	var messages []string
	e, err := table.New(table.Options{
		Config:    usersTable(),
		Transport: tr,
		Notifier:  table.NotifierFunc(func(m string) { messages = append(messages, m) }),
	})
	if err != nil {
		t.Fatalf("table.New() error: %v", err)
	}

	e.Mount(context.Background())

	s := e.State()
	if len(messages) != 0 {
		t.Fatalf("notifications = %v", messages)
	}
	if len(s.Records) != 1 || !s.IsLastPage {
		t.Errorf("records = %d, IsLastPage = %v", len(s.Records), s.IsLastPage)
	}
}

func usersTable() schema.TableConfig {
	return schema.TableConfig{
		Name: "users",
		Properties: []schema.PropertyDescriptor{
			{DataIndex: "id", IsIdentifier: true},
			{DataIndex: "status", IsFilterable: true},
		},
		Api: schema.ApiDescriptor{URL: "/users", ResponseKey: "users"},
	}
}
