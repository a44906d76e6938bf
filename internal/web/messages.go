package web

// messages.go maps technical errors to user-facing messages with codes for
// support reference.
//
// # Table Errors (TBL001-TBL099)
//
//	TBL001 - Table not found: The specified table is not configured
//	TBL002 - Table has no record source: The table is served by an external API
//	TBL003 - Unknown row action: The table does not define this action
//
// # Query Errors (QRY001-QRY099)
//
//	QRY001 - Bad query: A filter, cursor or limit could not be interpreted
//	QRY002 - Filter collision: Two filters encode to the same parameter
//	QRY003 - Query busy: Too many record queries are running
//	QRY004 - Not filterable: The column has no filter
//
// # Session Errors (SES001-SES099)
//
//	SES001 - Session not found: The table session expired or never existed
//	SES002 - Session limit: Too many open table sessions
//	SES003 - Page unknown: The requested page has not been reached yet
//
// # Database Errors (DB001-DB099)
//
//	DB004 - Connection refused: Unable to connect to database
//	DB005 - Connection reset: Database connection was interrupted
//	DB006 - Timeout: Operation timed out
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled
//	REQ002 - Request timeout
//	REQ003 - Invalid request body
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//
// # Default Error (ERR000)
//
// Sentinel errors are matched first with errors.Is. Anything else falls back
// to case-insensitive substring patterns; the first match wins.

import (
	"context"
	"errors"
	"strings"

	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/schema"
	"github.com/JonMunkholm/tablekit/internal/source"
	"github.com/JonMunkholm/tablekit/internal/table"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// Request-level errors raised by the handlers.
var (
	ErrSessionNotFound = errors.New("table session not found")
	ErrTooManySessions = errors.New("too many table sessions")
	ErrPageUnknown     = errors.New("page not reached yet")
	ErrInvalidBody     = errors.New("invalid request body")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{schema.ErrTableNotFound, UserMessage{"Table not found", "Verify the table name is correct", "TBL001"}},
	{source.ErrNoSource, UserMessage{"This table has no record source", "Point the table at a record API", "TBL002"}},
	{table.ErrUnknownAction, UserMessage{"Unknown row action", "Refresh the table and try again", "TBL003"}},
	{filter.ErrKeyCollision, UserMessage{"Two filters conflict with each other", "Remove one of the conflicting filters", "QRY002"}},
	{source.ErrBadQuery, UserMessage{"The filters or page request could not be read", "Check the filter values and try again", "QRY001"}},
	{source.ErrBusy, UserMessage{"The record source is busy", "Please wait a moment and try again", "QRY003"}},
	{ErrColumnNotFilterable, UserMessage{"This column cannot be filtered", "Pick a column with a filter", "QRY004"}},
	{ErrSessionNotFound, UserMessage{"Table session not found", "The table may have expired. Reload the page", "SES001"}},
	{ErrTooManySessions, UserMessage{"Too many open tables", "Close some tables or try again later", "SES002"}},
	{ErrPageUnknown, UserMessage{"That page is not available yet", "Page forward from the current page", "SES003"}},
	{ErrInvalidBody, UserMessage{"The request could not be read", "Check the request format", "REQ003"}},
	{ErrRateLimited, UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
	{context.Canceled, UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{context.DeadlineExceeded, UserMessage{"Request timed out", "Narrow the filters or try again later", "REQ002"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns catches driver errors that carry no sentinel. Order matters:
// more specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Narrow the filters or try again later", "DB006"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check the logs for the original error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// IsUserFacing reports whether err maps to a specific message rather than
// the ERR000 fallback.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
