package table

import "github.com/JonMunkholm/tablekit/internal/filter"

// Status is the coarse lifecycle of a table.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// State is a snapshot of a table. Values handed out by the engine share
// Records, Cursors and Filters with later snapshots; treat them as read-only.
type State struct {
	Status      Status
	Records     []Record
	Loading     bool
	CurrentPage int
	Cursors     map[int]string // page number → cursor that fetches it
	IsLastPage  bool
	Filters     filter.Filters
	Token       uint64 // latest issued fetch
	Message     string // last error surfaced, cleared on success
}

// Event is an input to Reduce.
type Event interface {
	event()
}

// FetchStarted marks a fetch as issued with a new, larger token.
type FetchStarted struct {
	Token uint64
}

// FetchSucceeded carries a page of processed records. Cursor is nil when the
// server reported no further pages.
type FetchSucceeded struct {
	Token   uint64
	Page    int
	Records []Record
	Cursor  *string
}

// FetchFailed reports an application or transport failure.
type FetchFailed struct {
	Token   uint64
	Message string
}

// FiltersApplied replaces the applied filters wholesale.
type FiltersApplied struct {
	Filters filter.Filters
}

func (FetchStarted) event()   {}
func (FetchSucceeded) event() {}
func (FetchFailed) event()    {}
func (FiltersApplied) event() {}

// Stale reports whether ev resolves a fetch that is no longer the latest issued.
func Stale(s State, ev Event) bool {
	switch e := ev.(type) {
	case FetchSucceeded:
		return e.Token != s.Token
	case FetchFailed:
		return e.Token != s.Token
	}
	return false
}

// Reduce returns the state after ev. It never modifies s or anything s
// references. Stale fetch results leave the state unchanged.
func Reduce(s State, ev Event) State {
	if Stale(s, ev) {
		return s
	}

	switch e := ev.(type) {
	case FetchStarted:
		s.Token = e.Token
		s.Loading = true
		s.Status = StatusLoading

	case FetchSucceeded:
		cursors := make(map[int]string, len(s.Cursors)+1)
		for page, c := range s.Cursors {
			cursors[page] = c
		}
		if e.Cursor != nil {
			cursors[e.Page+1] = *e.Cursor
		}
		s.Cursors = cursors
		s.Records = e.Records
		s.CurrentPage = e.Page
		s.IsLastPage = e.Cursor == nil
		s.Loading = false
		s.Status = StatusReady
		s.Message = ""

	case FetchFailed:
		s.Loading = false
		s.Status = StatusError
		s.Message = e.Message

	case FiltersApplied:
		s.Filters = e.Filters.Clone()
	}

	return s
}
