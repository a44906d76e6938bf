package table

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"testing"

	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/identity"
	"github.com/JonMunkholm/tablekit/internal/schema"
)

// fakeTransport records calls and answers through respond.
type fakeTransport struct {
	mu      sync.Mutex
	calls   []Request
	respond func(req Request) (*Response, error)
}

func (f *fakeTransport) Call(_ context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	respond := f.respond
	f.mu.Unlock()

	if respond == nil {
		return okResponse("users", nil, nil), nil
	}
	return respond(req)
}

func (f *fakeTransport) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) NotifyError(message string) {
	n.mu.Lock()
	n.messages = append(n.messages, message)
	n.mu.Unlock()
}

func (n *fakeNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func okResponse(key string, records []any, cursor any) *Response {
	if records == nil {
		records = []any{}
	}
	return &Response{
		Status: http.StatusOK,
		Data:   map[string]any{key: records, "cursor": cursor},
	}
}

func usersConfig() schema.TableConfig {
	return schema.TableConfig{
		Name: "users",
		Properties: []schema.PropertyDescriptor{
			{DataIndex: "id", Title: "ID", FieldType: schema.FieldNumber, IsIdentifier: true},
			{DataIndex: "name", Title: "Name", IsFilterable: true},
			{DataIndex: "status", Title: "Status", IsFilterable: true},
			{DataIndex: "createdAt", Title: "Created", FieldType: schema.FieldDate, IsFilterable: true},
			{DataIndex: "active", Title: "Active", FieldType: schema.FieldBoolean},
		},
		Api: schema.ApiDescriptor{URL: "/users", Method: "GET", ResponseKey: "users"},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, cfg schema.TableConfig, tr *fakeTransport) (*Engine, *fakeNotifier) {
	t.Helper()
	n := &fakeNotifier{}
	e, err := New(Options{
		Config:    cfg,
		Transport: tr,
		Notifier:  n,
		Logger:    quietLogger(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return e, n
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Config: usersConfig(), Notifier: &fakeNotifier{}}); err == nil {
		t.Error("New() without transport: expected error")
	}
	if _, err := New(Options{Config: usersConfig(), Transport: &fakeTransport{}}); err == nil {
		t.Error("New() without notifier: expected error")
	}
}

func TestMount_InitialFetch(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, usersConfig(), tr)

	e.Mount(context.Background())
	e.Mount(context.Background())

	calls := tr.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(calls))
	}
	req := calls[0]
	if req.Method != "GET" || req.URL != "/users" {
		t.Errorf("request = %s %s, want GET /users", req.Method, req.URL)
	}
	if req.Payload["cursor"] != "" {
		t.Errorf("cursor = %v, want empty", req.Payload["cursor"])
	}
	if req.Payload["limit"] != 10 {
		t.Errorf("limit = %v, want 10", req.Payload["limit"])
	}
	if !e.Mounted() {
		t.Error("Mounted() = false after Mount")
	}
}

func TestMount_EmptyURL(t *testing.T) {
	cfg := usersConfig()
	cfg.Api = schema.ApiDescriptor{}
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, cfg, tr)

	e.Mount(context.Background())

	if n := len(tr.Calls()); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
}

func TestFilterApply_GETPayload(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, usersConfig(), tr)
	ctx := context.Background()

	e.Mount(ctx)
	e.Filters.Apply(ctx, filter.Filters{"status": {"eq": "active"}})

	calls := tr.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	p := calls[1].Payload
	if p["status.eq"] != "active" {
		t.Errorf("status.eq = %v, want active", p["status.eq"])
	}
	if p["cursor"] != "" {
		t.Errorf("cursor = %v, want empty", p["cursor"])
	}
}

func TestFilterApply_NonGETPayload(t *testing.T) {
	cfg := usersConfig()
	cfg.Api.Method = "post"
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, cfg, tr)
	ctx := context.Background()

	e.Mount(ctx)
	e.Filters.Apply(ctx, filter.Filters{"id": {"in": []any{1, 2}}})

	calls := tr.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[1].Method != "POST" {
		t.Errorf("method = %s, want POST", calls[1].Method)
	}
	nested, ok := calls[1].Payload["filters"].(filter.Filters)
	if !ok {
		t.Fatalf("filters = %T, want filter.Filters", calls[1].Payload["filters"])
	}
	if got := nested["id"]["in"].([]any); len(got) != 2 {
		t.Errorf("filters.id.in = %v, want 2 values", got)
	}
}

func TestFilterApply_BeforeMountDoesNotFetch(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, usersConfig(), tr)

	e.Filters.Apply(context.Background(), filter.Filters{"status": {"eq": "active"}})

	if n := len(tr.Calls()); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
	if got := e.State().Filters["status"]["eq"]; got != "active" {
		t.Errorf("filters not stored: got %v", got)
	}
}

func TestFilterClear(t *testing.T) {
	tests := []struct {
		name           string
		refetchOnClear bool
		wantCalls      int
	}{
		{"default keeps records", false, 2},
		{"refetch on clear", true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{}
			e, err := New(Options{
				Config:         usersConfig(),
				Transport:      tr,
				Notifier:       &fakeNotifier{},
				RefetchOnClear: tt.refetchOnClear,
				Logger:         quietLogger(),
			})
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			ctx := context.Background()

			e.Mount(ctx)
			e.Filters.Set(ctx, "status", "eq", "active")
			e.Filters.Clear(ctx)

			if n := len(tr.Calls()); n != tt.wantCalls {
				t.Errorf("calls = %d, want %d", n, tt.wantCalls)
			}
			if len(e.State().Filters) != 0 {
				t.Errorf("filters = %v, want empty", e.State().Filters)
			}
		})
	}
}

func TestFetch_Dedup(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, usersConfig(), tr)
	ctx := context.Background()

	e.Fetch(ctx, 1, "")
	e.Fetch(ctx, 1, "")
	if n := len(tr.Calls()); n != 1 {
		t.Fatalf("identical fetch: calls = %d, want 1", n)
	}

	e.Fetch(ctx, 2, "c2")
	e.Fetch(ctx, 1, "")
	if n := len(tr.Calls()); n != 3 {
		t.Errorf("after intervening fetch: calls = %d, want 3", n)
	}
}

func TestFetch_SuppressedDoesNotToggleLoading(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, usersConfig(), tr)
	ctx := context.Background()

	e.Fetch(ctx, 1, "")
	before := e.State()

	var events int
	cancel := e.Subscribe(func(State) { events++ })
	defer cancel()

	e.Fetch(ctx, 1, "")

	if events != 0 {
		t.Errorf("suppressed fetch published %d states, want 0", events)
	}
	if e.State().Token != before.Token {
		t.Errorf("token = %d, want %d", e.State().Token, before.Token)
	}
}

func TestFetch_FormatsAndTagsRecords(t *testing.T) {
	raw := map[string]any{
		"id":        json.Number("7"),
		"name":      "Ada",
		"createdAt": "0001699999999000",
		"active":    true,
	}
	tr := &fakeTransport{respond: func(Request) (*Response, error) {
		return okResponse("users", []any{raw}, "c2"), nil
	}}
	e, _ := newTestEngine(t, usersConfig(), tr)

	e.Mount(context.Background())

	s := e.State()
	if len(s.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(s.Records))
	}
	rec := s.Records[0]
	if rec["createdAt"] != "2023-11-14" {
		t.Errorf("createdAt = %v, want 2023-11-14", rec["createdAt"])
	}
	if rec["active"] != "YES" {
		t.Errorf("active = %v, want YES", rec["active"])
	}
	if rec[identity.Key] != `[{"id":7}]` {
		t.Errorf("identity = %v, want [{\"id\":7}]", rec[identity.Key])
	}
	if raw["createdAt"] != "0001699999999000" {
		t.Errorf("input record mutated: createdAt = %v", raw["createdAt"])
	}
	if _, ok := raw[identity.Key]; ok {
		t.Error("input record mutated: identity key added")
	}
}

func TestFetch_IdentityUsesUnformattedValues(t *testing.T) {
	cfg := usersConfig()
	cfg.Properties = []schema.PropertyDescriptor{
		{DataIndex: "takenAt", Title: "Taken", FieldType: schema.FieldDatetime, IsIdentifier: true},
		{DataIndex: "name", Title: "Name"},
	}
	tr := &fakeTransport{respond: func(Request) (*Response, error) {
		return okResponse("users", []any{
			map[string]any{"takenAt": json.Number("1700000000000"), "name": "first"},
			map[string]any{"takenAt": json.Number("1700000030000"), "name": "second"},
		}, nil), nil
	}}
	e, _ := newTestEngine(t, cfg, tr)

	e.Mount(context.Background())

	recs := e.State().Records
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0]["takenAt"] != recs[1]["takenAt"] {
		t.Fatalf("display values differ (%v, %v), want the same minute", recs[0]["takenAt"], recs[1]["takenAt"])
	}
	if recs[0][identity.Key] == recs[1][identity.Key] {
		t.Errorf("identity tags both %v, want distinct", recs[0][identity.Key])
	}
	if want := `[{"takenAt":1700000000000}]`; recs[0][identity.Key] != want {
		t.Errorf("identity = %v, want %s", recs[0][identity.Key], want)
	}
}

func TestFetch_Pagination(t *testing.T) {
	pages := map[string]*Response{
		"":   okResponse("users", []any{map[string]any{"id": 1}}, "c2"),
		"c2": okResponse("users", []any{map[string]any{"id": 2}}, "c3"),
		"c3": okResponse("users", []any{map[string]any{"id": 3}}, nil),
	}
	tr := &fakeTransport{respond: func(req Request) (*Response, error) {
		return pages[req.Payload["cursor"].(string)], nil
	}}
	e, _ := newTestEngine(t, usersConfig(), tr)
	ctx := context.Background()

	e.Mount(ctx)
	s := e.State()
	if s.CurrentPage != 1 || s.Cursors[2] != "c2" || s.IsLastPage {
		t.Fatalf("after page 1: page=%d cursors=%v last=%v", s.CurrentPage, s.Cursors, s.IsLastPage)
	}
	if e.Pages.HasPrevious() {
		t.Error("HasPrevious() = true on page 1")
	}

	if !e.Pages.Next(ctx) || !e.Pages.Next(ctx) {
		t.Fatal("Next() = false, want true")
	}
	s = e.State()
	if s.CurrentPage != 3 {
		t.Errorf("CurrentPage = %d, want 3", s.CurrentPage)
	}
	if !s.IsLastPage || e.Pages.HasNext() {
		t.Errorf("IsLastPage = %v, HasNext = %v, want true/false", s.IsLastPage, e.Pages.HasNext())
	}
	if e.Pages.Next(ctx) {
		t.Error("Next() on last page = true")
	}
	if s.Cursors[2] != "c2" || s.Cursors[3] != "c3" {
		t.Errorf("cursors = %v, want 2:c2 3:c3", s.Cursors)
	}

	if !e.Pages.Previous(ctx) {
		t.Fatal("Previous() = false")
	}
	if got := e.State().CurrentPage; got != 2 {
		t.Errorf("after Previous CurrentPage = %d, want 2", got)
	}
	if got := e.State().Records[0]["id"]; got != 2 {
		t.Errorf("page 2 record id = %v, want 2", got)
	}

	if e.Pages.GoTo(ctx, 9) {
		t.Error("GoTo(9) = true without a known cursor")
	}
}

func TestFetch_ApplicationError(t *testing.T) {
	first := true
	tr := &fakeTransport{respond: func(Request) (*Response, error) {
		if first {
			first = false
			return okResponse("users", []any{map[string]any{"id": 1}}, nil), nil
		}
		return &Response{Status: http.StatusForbidden, Error: "not allowed"}, nil
	}}
	e, n := newTestEngine(t, usersConfig(), tr)
	ctx := context.Background()

	e.Mount(ctx)
	e.Filters.Set(ctx, "status", "eq", "x")

	s := e.State()
	if got := n.Messages(); len(got) != 1 || got[0] != "not allowed" {
		t.Errorf("notifications = %v, want [not allowed]", got)
	}
	if len(s.Records) != 1 {
		t.Errorf("records = %d, want previous 1 kept", len(s.Records))
	}
	if s.Loading {
		t.Error("Loading = true after failure")
	}
	if s.Status != StatusError {
		t.Errorf("Status = %v, want error", s.Status)
	}
}

func TestFetch_TransportError(t *testing.T) {
	tr := &fakeTransport{respond: func(Request) (*Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	e, n := newTestEngine(t, usersConfig(), tr)

	e.Mount(context.Background())

	if got := n.Messages(); len(got) != 1 || got[0] != FetchFailedMessage {
		t.Errorf("notifications = %v, want [%s]", got, FetchFailedMessage)
	}
	if e.State().Loading {
		t.Error("Loading = true after transport error")
	}
}

func TestFetch_MissingResponseKey(t *testing.T) {
	tr := &fakeTransport{respond: func(Request) (*Response, error) {
		return okResponse("rows", []any{}, nil), nil
	}}
	e, n := newTestEngine(t, usersConfig(), tr)

	e.Mount(context.Background())

	if got := n.Messages(); len(got) != 1 || got[0] != FetchFailedMessage {
		t.Errorf("notifications = %v, want [%s]", got, FetchFailedMessage)
	}
}

func TestFetch_KeyCollisionRejected(t *testing.T) {
	tr := &fakeTransport{}
	e, n := newTestEngine(t, usersConfig(), tr)
	ctx := context.Background()

	e.Mount(ctx)
	e.Filters.Apply(ctx, filter.Filters{
		"a.b": {"c": 1},
		"a":   {"b.c": 2},
	})

	if got := len(tr.Calls()); got != 1 {
		t.Errorf("calls = %d, want 1", got)
	}
	if len(n.Messages()) != 1 {
		t.Errorf("notifications = %v, want one", n.Messages())
	}
}

func TestFetch_StaleResponseDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	tr := &fakeTransport{respond: func(req Request) (*Response, error) {
		if req.Payload["status.eq"] == "slow" {
			close(started)
			<-release
			return okResponse("users", []any{map[string]any{"id": "A"}}, "a2"), nil
		}
		return okResponse("users", []any{map[string]any{"id": "B"}}, nil), nil
	}}
	e, n := newTestEngine(t, usersConfig(), tr)
	ctx := context.Background()
	e.Mount(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		e.Filters.Set(ctx, "status", "eq", "slow")
	}()
	<-started

	e.Filters.Set(ctx, "status", "eq", "fast")
	if !e.State().IsLastPage {
		t.Fatal("fast response not applied")
	}

	close(release)
	wg.Wait()

	s := e.State()
	if len(s.Records) != 1 || s.Records[0]["id"] != "B" {
		t.Errorf("records = %v, want B's", s.Records)
	}
	if !s.IsLastPage {
		t.Error("IsLastPage = false, stale cursor applied")
	}
	if _, ok := s.Cursors[2]; ok {
		t.Errorf("cursors = %v, stale cursor stored", s.Cursors)
	}
	if s.Loading {
		t.Error("Loading = true after latest fetch resolved")
	}
	if len(n.Messages()) != 0 {
		t.Errorf("notifications = %v, want none", n.Messages())
	}
}

// pausingHandler blocks the first "fetch issued" record after arm until
// release is closed.
type pausingHandler struct {
	st *pauseState
}

type pauseState struct {
	mu      sync.Mutex
	armed   bool
	paused  chan struct{}
	release chan struct{}
}

func (h pausingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h pausingHandler) WithAttrs([]slog.Attr) slog.Handler       { return h }
func (h pausingHandler) WithGroup(string) slog.Handler            { return h }

func (h pausingHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message != "fetch issued" {
		return nil
	}
	h.st.mu.Lock()
	armed := h.st.armed
	h.st.armed = false
	h.st.mu.Unlock()
	if armed {
		close(h.st.paused)
		<-h.st.release
	}
	return nil
}

func TestFetch_PausedPageFetchLosesToLaterFilter(t *testing.T) {
	tr := &fakeTransport{respond: func(req Request) (*Response, error) {
		if req.Payload["status.eq"] == "active" {
			return okResponse("users", []any{map[string]any{"id": "filtered"}}, nil), nil
		}
		return okResponse("users", []any{map[string]any{"id": "unfiltered"}}, "c2"), nil
	}}
	st := &pauseState{paused: make(chan struct{}), release: make(chan struct{})}
	e, err := New(Options{
		Config:    usersConfig(),
		Transport: tr,
		Notifier:  &fakeNotifier{},
		Logger:    slog.New(pausingHandler{st: st}),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()
	e.Mount(ctx)

	st.mu.Lock()
	st.armed = true
	st.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Pages.GoTo(ctx, 2)
	}()
	<-st.paused

	e.Filters.Apply(ctx, filter.Filters{"status": {"eq": "active"}})
	close(st.release)
	<-done

	s := e.State()
	if s.Filters["status"]["eq"] != "active" {
		t.Fatalf("filters = %v, want status eq active", s.Filters)
	}
	if len(s.Records) != 1 || s.Records[0]["id"] != "filtered" {
		t.Errorf("records = %v, want the filtered result", s.Records)
	}
	if s.CurrentPage != 1 {
		t.Errorf("CurrentPage = %d, want 1", s.CurrentPage)
	}
}

func TestFetch_ConcurrentFilterChangesSettleOnLatest(t *testing.T) {
	tr := &fakeTransport{respond: func(req Request) (*Response, error) {
		runtime.Gosched()
		rec := map[string]any{"id": 1, "status": req.Payload["status.eq"]}
		return okResponse("users", []any{rec}, nil), nil
	}}
	e, _ := newTestEngine(t, usersConfig(), tr)
	ctx := context.Background()
	e.Mount(ctx)

	for round := 0; round < 20; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(2)
			go func(v string) {
				defer wg.Done()
				e.Filters.Set(ctx, "status", "eq", v)
			}(strconv.Itoa(round*8 + i))
			go func() {
				defer wg.Done()
				e.Pages.GoTo(ctx, 1)
			}()
		}
		wg.Wait()

		s := e.State()
		want := s.Filters["status"]["eq"]
		if len(s.Records) != 1 {
			t.Fatalf("round %d: records = %v, want 1", round, s.Records)
		}
		if got := s.Records[0]["status"]; got != want {
			t.Fatalf("round %d: records show status %v, filters say %v", round, got, want)
		}
		if s.Loading {
			t.Fatalf("round %d: Loading = true after all fetches resolved", round)
		}
	}
}

func TestReload_BypassesDedup(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, usersConfig(), tr)
	ctx := context.Background()

	e.Mount(ctx)
	e.Reload(ctx)

	calls := tr.Calls()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[1].Payload["cursor"] != "" {
		t.Errorf("reload cursor = %v, want empty", calls[1].Payload["cursor"])
	}
}

func TestRouteParams(t *testing.T) {
	cfg := usersConfig()
	cfg.Api.URL = "/orgs/:org/users/:team"
	tr := &fakeTransport{}
	e, err := New(Options{
		Config:      cfg,
		RouteParams: map[string]string{"org": "acme"},
		Transport:   tr,
		Notifier:    &fakeNotifier{},
		Logger:      quietLogger(),
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	e.Mount(context.Background())

	if got := tr.Calls()[0].URL; got != "/orgs/acme/users/:team" {
		t.Errorf("URL = %q, want /orgs/acme/users/:team", got)
	}
}

func TestClose_StopsFetchesAndNotifications(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, usersConfig(), tr)

	var published int
	e.Subscribe(func(State) { published++ })
	e.Close()
	e.Mount(context.Background())
	e.Fetch(context.Background(), 1, "")

	if n := len(tr.Calls()); n != 0 {
		t.Errorf("calls = %d, want 0", n)
	}
	if published != 0 {
		t.Errorf("published = %d, want 0", published)
	}
}

func TestSubscribe(t *testing.T) {
	tr := &fakeTransport{}
	e, _ := newTestEngine(t, usersConfig(), tr)

	var statuses []Status
	cancel := e.Subscribe(func(s State) { statuses = append(statuses, s.Status) })

	e.Mount(context.Background())

	if len(statuses) != 2 || statuses[0] != StatusLoading || statuses[1] != StatusReady {
		t.Errorf("statuses = %v, want [loading ready]", statuses)
	}

	cancel()
	e.Reload(context.Background())
	if len(statuses) != 2 {
		t.Errorf("statuses after cancel = %v, want unchanged", statuses)
	}
}
