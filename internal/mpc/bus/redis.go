package bus

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-retry"
)

// RedisBus implements Bus on top of Redis PUBLISH/SUBSCRIBE. Each subscription holds its
// own pub/sub connection and delivers messages to the handler from one goroutine.
type RedisBus struct {
	client *redis.Client

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*redisSubscription
	closed bool
}

type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedisBus creates a bus on an already configured client. The client is owned by the caller.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{
		client: client,
		subs:   make(map[uint64]*redisSubscription),
	}
}

// Publish 发布消息
func (b *RedisBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if b.isClosed() {
		return ErrClosed
	}

	if err := b.client.Publish(ctx, topic, payload).Err(); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", topic)
	}

	return nil
}

// Subscribe 订阅消息，在 Redis 确认订阅后返回
func (b *RedisBus) Subscribe(ctx context.Context, topic string, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}
	if b.isClosed() {
		return nil, ErrClosed
	}

	pubsub := b.client.Subscribe(ctx, topic)

	// 等待确认订阅
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrapf(err, "failed to subscribe to %s", topic)
	}

	deliverCtx, cancel := context.WithCancel(context.Background())
	rs := &redisSubscription{
		pubsub: pubsub,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		_ = pubsub.Close()
		return nil, ErrClosed
	}
	b.nextID++
	sub := &Subscription{id: b.nextID, topic: topic}
	b.subs[sub.id] = rs
	b.mu.Unlock()

	ch := pubsub.Channel()
	go func() {
		defer close(rs.done)
		for msg := range ch {
			if deliverCtx.Err() != nil {
				return
			}
			handler(deliverCtx, msg.Channel, []byte(msg.Payload))
		}
	}()

	return sub, nil
}

// Unsubscribe 取消订阅并等待消费协程退出
func (b *RedisBus) Unsubscribe(_ context.Context, sub *Subscription) error {
	if sub == nil {
		return ErrUnknownSubscription
	}

	b.mu.Lock()
	rs, ok := b.subs[sub.id]
	delete(b.subs, sub.id)
	b.mu.Unlock()

	if !ok {
		return ErrUnknownSubscription
	}

	return rs.close()
}

// Close releases every open subscription. The underlying client is left open.
func (b *RedisBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[uint64]*redisSubscription)
	b.mu.Unlock()

	var firstErr error
	for _, rs := range subs {
		if err := rs.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (b *RedisBus) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (rs *redisSubscription) close() error {
	rs.cancel()
	err := rs.pubsub.Close()
	<-rs.done
	if err != nil {
		return errors.Wrap(err, "failed to close subscription")
	}
	return nil
}

// Ping checks the Redis connection, retrying with exponential backoff. It is used only while
// starting up; rounds themselves are never retried.
func Ping(ctx context.Context, client *redis.Client, maxRetries int, backoff time.Duration) error {
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	expRetry, err := retry.NewExponential(backoff)
	if err != nil {
		return errors.Wrap(err, "failed to create retry mechanism")
	}

	attempt := 0
	return retry.Do(ctx, retry.WithMaxRetries(uint64(maxRetries), expRetry), func(ctx context.Context) error {
		attempt++
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Redis not reachable, retrying")
			return retry.RetryableError(errors.Wrap(err, "failed to ping redis"))
		}
		return nil
	})
}
