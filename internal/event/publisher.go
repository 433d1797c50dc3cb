// Package event publishes attempt lifecycle events to the live monitor, the
// audit queue and the message broker.
package event

import (
	"context"
	"errors"
	"strings"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// Publisher delivers attempt events. Publishing is best effort: callers log
// failures and never undo a committed transition because of one.
type Publisher interface {
	Publish(ctx context.Context, evt model.AttemptEvent) error
}

// RoutingKey maps an event type to its broker routing key, e.g. attempt.submitted.
func RoutingKey(t model.AttemptEventType) string {
	return "attempt." + strings.ToLower(string(t))
}

// Fanout publishes every event to all of its publishers.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, evt model.AttemptEvent) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, model.AttemptEvent) error { return nil }
