package bus

import (
	"context"

	"github.com/pkg/errors"
)

var (
	ErrClosed              = errors.New("bus is closed")
	ErrUnknownSubscription = errors.New("unknown subscription")
)

// Handler receives one message delivered on a subscribed topic. Handlers run on the bus
// delivery path and must not block on work belonging to other callers.
type Handler func(ctx context.Context, topic string, payload []byte)

// Subscription is the handle returned by Subscribe and consumed by Unsubscribe.
type Subscription struct {
	id    uint64
	topic string
}

func (s *Subscription) Topic() string {
	return s.topic
}

// Bus is a publish/subscribe transport with at-least-once delivery per topic and no
// request/response pairing. Subscribe returns only once the subscription is active, so a
// message published afterwards is guaranteed to reach the handler.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler Handler) (*Subscription, error)
	Unsubscribe(ctx context.Context, sub *Subscription) error
	Close() error
}
