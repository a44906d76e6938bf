// Package table is the runtime of a configuration-driven record table.
//
// An Engine is built from a schema.TableConfig and two collaborators: a
// Transport that calls the record API and a Notifier that shows errors to the
// user. It owns the table state (records, loading flag, current page, cursor
// map, last-page flag, applied filters) and moves it through an explicit
// state machine (see Reduce):
//
//	idle → loading → ready | error → loading → ...
//
// # Fetching
//
// Fetch resolves the API URL against route parameters, encodes the applied
// filters for the API method, drops the call if it is identical to the last
// one issued, and otherwise calls the transport with
// {cursor, limit, ...filters}. Successful pages are formatted and tagged with
// a record identity before they replace the current records.
//
// Fetches may overlap. Every issued fetch gets a larger token, and a response
// is applied only if its token is still the latest, so a slow earlier request
// can never overwrite a newer one.
//
// # Failures
//
// Failures never reach the caller. Application errors (non-200 responses)
// are passed to the Notifier verbatim; transport errors are logged and the
// Notifier gets FetchFailedMessage. Records are left untouched in both cases.
package table

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/JonMunkholm/tablekit/internal/dedup"
	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/format"
	"github.com/JonMunkholm/tablekit/internal/schema"
)

// Options configures an Engine.
type Options struct {
	Config      schema.TableConfig
	RouteParams map[string]string
	Transport   Transport
	Notifier    Notifier
	Formatter   *format.Formatter // format.Default() when nil
	PageSize    int               // DefaultPageSize when zero

	// RefetchOnClear makes clearing every filter refetch page 1. By default
	// only a non-empty filter set triggers a refetch.
	RefetchOnClear bool

	Logger *slog.Logger
}

// Engine runs one mounted table. All methods are safe for concurrent use.
type Engine struct {
	cfg            schema.TableConfig
	route          map[string]string
	transport      Transport
	notifier       Notifier
	formatter      *format.Formatter
	pageSize       int
	refetchOnClear bool
	logger         *slog.Logger

	// Derived once from the immutable configuration.
	identifierCols []string
	formatCols     []schema.PropertyDescriptor
	columns        []Column

	dedup dedup.Deduplicator

	mu          sync.Mutex
	state       State
	mounted     bool
	closed      bool
	subscribers map[int]func(State)
	nextSubID   int

	Pages   *PaginationController
	Filters *FilterController
}

// New builds an engine. It does not fetch; call Mount.
func New(opts Options) (*Engine, error) {
	if opts.Transport == nil {
		return nil, errors.New("table: transport is required")
	}
	if opts.Notifier == nil {
		return nil, errors.New("table: notifier is required")
	}

	e := &Engine{
		cfg:            opts.Config,
		route:          make(map[string]string, len(opts.RouteParams)),
		transport:      opts.Transport,
		notifier:       opts.Notifier,
		formatter:      opts.Formatter,
		pageSize:       opts.PageSize,
		refetchOnClear: opts.RefetchOnClear,
		logger:         opts.Logger,
		subscribers:    make(map[int]func(State)),
	}
	for k, v := range opts.RouteParams {
		e.route[k] = v
	}
	if e.formatter == nil {
		e.formatter = format.Default()
	}
	if e.pageSize <= 0 {
		e.pageSize = DefaultPageSize
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = e.logger.With("table", opts.Config.Name)

	for _, p := range opts.Config.Properties {
		if p.IsIdentifier {
			e.identifierCols = append(e.identifierCols, p.DataIndex)
		}
		if format.NeedsFormatting(p.FieldType) {
			e.formatCols = append(e.formatCols, p)
		}
	}

	e.Pages = &PaginationController{e: e}
	e.Filters = &FilterController{e: e}
	e.columns = buildColumns(opts.Config, e.RunAction, e.Filters)

	return e, nil
}

// Config returns the table configuration.
func (e *Engine) Config() schema.TableConfig {
	return e.cfg
}

// Columns returns the augmented column set. It is computed once per engine.
func (e *Engine) Columns() []Column {
	return e.columns
}

// State returns the current state snapshot.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Mounted reports whether the initial fetch has been triggered.
func (e *Engine) Mounted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mounted
}

// Subscribe registers fn to receive every new state. The returned function
// removes the subscription. fn runs on the goroutine that changed the state
// and must not call back into the engine synchronously.
func (e *Engine) Subscribe(fn func(State)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSubID
	e.nextSubID++
	if e.subscribers != nil {
		e.subscribers[id] = fn
	}

	return func() {
		e.mu.Lock()
		delete(e.subscribers, id)
		e.mu.Unlock()
	}
}

// Mount issues the initial page-1 fetch. Only the first call has any effect,
// and nothing happens when the API URL is empty.
func (e *Engine) Mount(ctx context.Context) {
	e.mu.Lock()
	if e.mounted || e.closed || e.cfg.Api.URL == "" {
		e.mu.Unlock()
		return
	}
	e.mounted = true
	e.mu.Unlock()

	e.Fetch(ctx, 1, "")
}

// Close unmounts the table. Subscribers are dropped and later fetches are
// ignored. In-flight fetches still resolve but notify nobody.
func (e *Engine) Close() {
	e.mu.Lock()
	e.closed = true
	e.subscribers = nil
	e.mu.Unlock()
}

// Reload refetches the current page even if the request is identical to the
// last one issued. Used after row actions change the underlying data.
func (e *Engine) Reload(ctx context.Context) {
	s := e.State()
	page := s.CurrentPage
	if page < 1 {
		page = 1
	}
	cursor := ""
	if page > 1 {
		cursor = s.Cursors[page]
	}

	e.dedup.Reset()
	e.Fetch(ctx, page, cursor)
}

// Fetch loads page using cursor. It blocks until the transport returns and
// never reports failure to the caller; observe State or subscribe instead.
func (e *Engine) Fetch(ctx context.Context, page int, cursor string) {
	if page < 1 {
		page = 1
	}

	apiURL := ResolveURL(e.cfg.Api.URL, e.route)
	method := e.cfg.Api.HTTPMethod()
	log := e.logger.With("url", apiURL, "page", page)

	token, payload, ok := e.begin(log, apiURL, method, page, cursor)
	if !ok {
		return
	}
	log.Debug("fetch issued", "token", token)

	resp, err := e.transport.Call(ctx, Request{
		Method:  method,
		URL:     apiURL,
		Payload: payload,
	})
	e.complete(log, token, page, resp, err)
}

// begin snapshots the filters, admits the request and allocates its token in
// one critical section, so tokens are ordered the same way as the filter
// snapshots they carry. It moves the state to loading and returns the
// payload to send; ok is false when nothing should be sent.
func (e *Engine) begin(log *slog.Logger, apiURL, method string, page int, cursor string) (token uint64, payload map[string]any, ok bool) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, nil, false
	}
	filters := e.state.Filters.Clone()

	encoded, err := filter.Encode(filters, method)
	if err != nil {
		e.mu.Unlock()
		log.Warn("rejecting filters", "error", err)
		e.notifier.NotifyError(fmt.Sprintf("Invalid filters: %v", err))
		return 0, nil, false
	}

	admitted, err := e.dedup.Admit(dedup.Signature{
		URL:     apiURL,
		Filters: filters,
		Page:    page,
		Cursor:  cursor,
	})
	if err != nil {
		e.mu.Unlock()
		log.Error("building request signature", "error", err)
		e.notifier.NotifyError(FetchFailedMessage)
		return 0, nil, false
	}
	if !admitted {
		e.mu.Unlock()
		log.Debug("duplicate fetch suppressed")
		return 0, nil, false
	}

	payload = make(map[string]any, len(encoded)+2)
	payload[filter.KeyCursor] = cursor
	payload[filter.KeyLimit] = e.pageSize
	for k, v := range encoded {
		payload[k] = v
	}

	token = e.state.Token + 1
	e.state = Reduce(e.state, FetchStarted{Token: token})
	s, subs := e.state, e.subscriberList()
	e.mu.Unlock()

	publish(subs, s)
	return token, payload, true
}

// complete turns a transport outcome into an event and applies it.
func (e *Engine) complete(log *slog.Logger, token uint64, page int, resp *Response, callErr error) {
	var (
		ev     Event
		notify string
	)

	switch {
	case callErr != nil:
		log.Error("fetching records", "token", token, "error", callErr)
		ev, notify = FetchFailed{Token: token, Message: FetchFailedMessage}, FetchFailedMessage

	case resp == nil:
		log.Error("fetching records", "token", token, "error", "transport returned no response")
		ev, notify = FetchFailed{Token: token, Message: FetchFailedMessage}, FetchFailedMessage

	case resp.Status != http.StatusOK:
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("Request failed with status %d", resp.Status)
		}
		log.Warn("record API returned an error", "token", token, "status", resp.Status, "error", resp.Error)
		ev, notify = FetchFailed{Token: token, Message: msg}, msg

	default:
		records, err := e.decode(resp)
		if err != nil {
			log.Error("reading records", "token", token, "error", err)
			ev, notify = FetchFailed{Token: token, Message: FetchFailedMessage}, FetchFailedMessage
			break
		}
		ev = FetchSucceeded{
			Token:   token,
			Page:    page,
			Records: records,
			Cursor:  responseCursor(resp.Data),
		}
	}

	if _, applied := e.dispatch(ev); !applied {
		log.Debug("discarding stale response", "token", token)
		return
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if notify != "" && !closed {
		e.notifier.NotifyError(notify)
	}
}

func (e *Engine) decode(resp *Response) ([]Record, error) {
	list, err := responseRecords(resp.Data, e.cfg.Api.ResponseKey)
	if err != nil {
		return nil, err
	}
	return transformRecords(list, e.formatCols, e.identifierCols, e.formatter)
}

// dispatch applies ev and publishes the new state. The boolean is false when
// ev was a stale fetch result and nothing changed.
func (e *Engine) dispatch(ev Event) (State, bool) {
	e.mu.Lock()
	if Stale(e.state, ev) {
		s := e.state
		e.mu.Unlock()
		return s, false
	}
	e.state = Reduce(e.state, ev)
	s, subs := e.state, e.subscriberList()
	e.mu.Unlock()

	publish(subs, s)
	return s, true
}

// subscriberList copies the subscriber set. Caller holds e.mu.
func (e *Engine) subscriberList() []func(State) {
	if len(e.subscribers) == 0 {
		return nil
	}
	subs := make([]func(State), 0, len(e.subscribers))
	for _, fn := range e.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func publish(subs []func(State), s State) {
	for _, fn := range subs {
		fn(s)
	}
}

// columnTitle maps a data index to its display title.
func (e *Engine) columnTitle(dataIndex string) string {
	if p, ok := e.cfg.Property(dataIndex); ok {
		return p.DisplayTitle()
	}
	return ""
}
