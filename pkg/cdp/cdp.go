// Package cdp implements the instrumentation channel bound to one monitored
// page: a Chrome DevTools Protocol connection carrying request/response
// commands and asynchronous event deliveries.
package cdp

import (
	"context"
	"encoding/json"
)

// EventHandler receives the raw params payload of one event delivery.
// Handlers run on the connection's read loop and must not issue Calls
// synchronously; spawn a goroutine for anything that needs a round-trip.
type EventHandler func(params json.RawMessage)

// Channel is the command/event surface of a DevTools connection.
// Implementations must be safe for concurrent use.
type Channel interface {
	// Call issues a protocol command and decodes the response into result.
	// result may be nil when the caller ignores the response payload.
	Call(ctx context.Context, method string, params, result any) error

	// Subscribe registers a handler for the named event and returns a
	// disposer handle. Multiple handlers per event are allowed.
	Subscribe(method string, handler EventHandler) (Subscription, error)
}

// Subscription is an active event registration that can be released.
type Subscription interface {
	// Unsubscribe stops delivery and releases the registration.
	Unsubscribe() error
}
