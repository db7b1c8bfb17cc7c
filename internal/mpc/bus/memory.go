package bus

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryBus is an in-process Bus. Every subscription owns a mailbox drained by its own
// goroutine, so a slow handler delays only its own subscription.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[string]map[uint64]*mailbox
	closed bool
}

// NewMemoryBus 创建进程内消息总线
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]map[uint64]*mailbox),
	}
}

// Publish 同步投递给当前订阅者
func (b *MemoryBus) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	for _, mb := range b.topics[topic] {
		msg := make([]byte, len(payload))
		copy(msg, payload)
		mb.push(msg)
	}

	return nil
}

// Subscribe 订阅主题
func (b *MemoryBus) Subscribe(_ context.Context, topic string, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, errors.New("handler is nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	b.nextID++
	sub := &Subscription{id: b.nextID, topic: topic}

	mb := newMailbox(topic, handler)
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[uint64]*mailbox)
	}
	b.topics[topic][sub.id] = mb
	go mb.run()

	return sub, nil
}

// Unsubscribe 取消订阅
func (b *MemoryBus) Unsubscribe(_ context.Context, sub *Subscription) error {
	if sub == nil {
		return ErrUnknownSubscription
	}

	b.mu.Lock()
	mb, ok := b.topics[sub.topic][sub.id]
	if ok {
		delete(b.topics[sub.topic], sub.id)
		if len(b.topics[sub.topic]) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	b.mu.Unlock()

	if !ok {
		return ErrUnknownSubscription
	}

	mb.stop()
	return nil
}

// SubscriberCount returns the number of active subscriptions on topic.
func (b *MemoryBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.topics[topic])
}

// Close 关闭总线并移除全部订阅
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	topics := b.topics
	b.topics = make(map[string]map[uint64]*mailbox)
	b.mu.Unlock()

	for _, subs := range topics {
		for _, mb := range subs {
			mb.stop()
		}
	}

	return nil
}

// mailbox is an unbounded FIFO queue in front of one handler.
type mailbox struct {
	topic   string
	handler Handler

	mu      sync.Mutex
	queue   [][]byte
	stopped bool
	signal  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

func newMailbox(topic string, handler Handler) *mailbox {
	ctx, cancel := context.WithCancel(context.Background())
	return &mailbox{
		topic:   topic,
		handler: handler,
		signal:  make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (m *mailbox) push(msg []byte) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, msg)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) stop() {
	m.mu.Lock()
	m.stopped = true
	m.queue = nil
	m.mu.Unlock()
	m.cancel()
}

func (m *mailbox) run() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.signal:
		}

		for {
			m.mu.Lock()
			if m.stopped || len(m.queue) == 0 {
				m.mu.Unlock()
				break
			}
			msg := m.queue[0]
			m.queue[0] = nil
			m.queue = m.queue[1:]
			m.mu.Unlock()

			m.handler(m.ctx, m.topic, msg)
		}
	}
}
