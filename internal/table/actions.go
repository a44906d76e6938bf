package table

import (
	"context"
	"errors"
	"fmt"

	"github.com/JonMunkholm/tablekit/internal/filter"
	"github.com/JonMunkholm/tablekit/internal/identity"
)

// ErrUnknownAction is returned by RunAction for a name the table does not define.
var ErrUnknownAction = errors.New("unknown row action")

// ActionFailedMessage is shown when a row action cannot reach its API.
const ActionFailedMessage = "Failed to run action"

// RunAction runs the named row action against the record carrying tag and
// reloads the current page on success.
//
// The action URL is resolved from the route parameters plus the identifier
// values, so "/users/:id" addresses the row directly. The identifier values
// are also sent as the payload. Failures are reported to the notifier and
// returned.
func (e *Engine) RunAction(ctx context.Context, name, tag string) error {
	action, ok := e.cfg.Action(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}

	pairs, err := identity.Parse(tag)
	if err != nil {
		return err
	}

	params := make(map[string]string, len(e.route)+len(pairs))
	for k, v := range e.route {
		params[k] = v
	}
	payload := make(map[string]any, len(pairs))
	for _, p := range pairs {
		params[p.Column] = filter.Stringify(p.Value)
		payload[p.Column] = p.Value
	}

	req := Request{
		Method:  action.Api.HTTPMethod(),
		URL:     ResolveURL(action.Api.URL, params),
		Payload: payload,
	}
	log := e.logger.With("action", name, "url", req.URL)

	resp, err := e.transport.Call(ctx, req)
	switch {
	case err != nil:
		log.Error("running row action", "error", err)
		e.notifier.NotifyError(ActionFailedMessage)
		return fmt.Errorf("action %s: %w", name, err)

	case resp == nil:
		log.Error("running row action", "error", "transport returned no response")
		e.notifier.NotifyError(ActionFailedMessage)
		return fmt.Errorf("action %s: no response", name)

	case resp.Status < 200 || resp.Status > 299:
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("Request failed with status %d", resp.Status)
		}
		log.Warn("row action rejected", "status", resp.Status, "error", resp.Error)
		e.notifier.NotifyError(msg)
		return fmt.Errorf("action %s: %s", name, msg)
	}

	log.Info("row action completed", "status", resp.Status)
	e.Reload(ctx)
	return nil
}
