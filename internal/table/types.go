package table

import "context"

// DefaultPageSize is the number of records requested per page.
const DefaultPageSize = 10

// FetchFailedMessage is shown when the transport fails or returns a body the
// engine cannot read. The underlying error is logged, never shown.
const FetchFailedMessage = "Failed to fetch records"

// Record is one row as key/value pairs.
type Record map[string]any

// Request describes one call to the record API.
type Request struct {
	Method  string
	URL     string
	Payload map[string]any
}

// Response is the transport's view of an API response. Data is the decoded
// body; for record fetches it holds the record array under the table's
// response key and the next-page cursor under "cursor".
type Response struct {
	Status int
	Data   map[string]any
	Error  string
}

// Transport calls the record API. Implementations own timeouts and retries.
type Transport interface {
	Call(ctx context.Context, req Request) (*Response, error)
}

// Notifier surfaces user-facing error messages. Fire and forget.
type Notifier interface {
	NotifyError(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

// NotifyError calls f(message).
func (f NotifierFunc) NotifyError(message string) { f(message) }
