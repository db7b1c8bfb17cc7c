package round

import (
	"context"
	"sync"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/aggregation"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/bus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.uber.org/atomic"
)

const (
	DefaultExpectedParticipants = 2
	DefaultRoundTimeout         = 5 * time.Second
)

// discard reasons reported to metrics and logs
const (
	DiscardUnknownRound = "unknown_round"
	DiscardKindMismatch = "kind_mismatch"
	DiscardDuplicate    = "duplicate"
	DiscardRoundFull    = "round_full"
	DiscardClosed       = "closed"
	DiscardDecode       = "decode"
)

// Topics names the start and result topic of each round kind.
type Topics struct {
	DKGStart   string
	DKGResult  string
	SignStart  string
	SignResult string
}

// DefaultTopics 返回默认的 start/result 主题
func DefaultTopics() Topics {
	return Topics{
		DKGStart:   "dkg-start",
		DKGResult:  "dkg-result",
		SignStart:  "sign-start",
		SignResult: "sign-result",
	}
}

// Start 返回该类型轮次的 start 主题
func (t Topics) Start(kind Kind) string {
	if kind == KindSigning {
		return t.SignStart
	}
	return t.DKGStart
}

// Result 返回该类型轮次的 result 主题
func (t Topics) Result(kind Kind) string {
	if kind == KindSigning {
		return t.SignResult
	}
	return t.DKGResult
}

// Metrics receives round lifecycle events. metrics.Service implements it.
type Metrics interface {
	RoundStarted(kind string)
	RoundFinished(kind string, outcome string, duration time.Duration)
	ResultReceived(kind string, resultType string)
	MessageDiscarded(kind string, reason string)
}

type noopMetrics struct{}

func (noopMetrics) RoundStarted(string)                         {}
func (noopMetrics) RoundFinished(string, string, time.Duration) {}
func (noopMetrics) ResultReceived(string, string)               {}
func (noopMetrics) MessageDiscarded(string, string)             {}

// Config 协调器配置
type Config struct {
	ExpectedParticipants int
	RoundTimeout         time.Duration
	Topics               Topics
	// KeyGeneration defaults to aggregation.KeyGenerationPolicy.
	KeyGeneration aggregation.Policy
	// Signing defaults to a signing policy over aggregation.IdenticalCombiner.
	Signing aggregation.Policy
}

// topicSubscription is one shared result subscription. sub and err are set before ready is
// closed; rounds that join while the subscribe call is in flight wait on ready.
type topicSubscription struct {
	sub   *bus.Subscription
	err   error
	refs  int
	ready chan struct{}
}

// Coordinator 轮次协调器. It drives RunRound calls over a Bus, sharing one result subscription
// per kind between all in-flight rounds of that kind.
type Coordinator struct {
	bus     bus.Bus
	ledger  *Ledger
	metrics Metrics
	cfg     Config

	// stateMu orders admission against Close; subMu guards subs and is never held across bus calls.
	stateMu  sync.RWMutex
	inflight sync.WaitGroup
	subMu    sync.Mutex
	subs     map[Kind]*topicSubscription

	closed    *atomic.Bool
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewCoordinator 创建轮次协调器. A nil metrics sink records nothing.
func NewCoordinator(b bus.Bus, ledger *Ledger, metrics Metrics, cfg Config) *Coordinator {
	if ledger == nil {
		ledger = NewLedger()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if cfg.ExpectedParticipants <= 0 {
		cfg.ExpectedParticipants = DefaultExpectedParticipants
	}
	if cfg.RoundTimeout <= 0 {
		cfg.RoundTimeout = DefaultRoundTimeout
	}
	defaults := DefaultTopics()
	if cfg.Topics.DKGStart == "" {
		cfg.Topics.DKGStart = defaults.DKGStart
	}
	if cfg.Topics.DKGResult == "" {
		cfg.Topics.DKGResult = defaults.DKGResult
	}
	if cfg.Topics.SignStart == "" {
		cfg.Topics.SignStart = defaults.SignStart
	}
	if cfg.Topics.SignResult == "" {
		cfg.Topics.SignResult = defaults.SignResult
	}
	if cfg.KeyGeneration == nil {
		cfg.KeyGeneration = aggregation.KeyGenerationPolicy{}
	}
	if cfg.Signing == nil {
		cfg.Signing = aggregation.NewSigningPolicy(aggregation.IdenticalCombiner{})
	}

	return &Coordinator{
		bus:     b,
		ledger:  ledger,
		metrics: metrics,
		cfg:     cfg,
		subs:    make(map[Kind]*topicSubscription),
		closed:  atomic.NewBool(false),
		closeCh: make(chan struct{}),
	}
}

// Ledger 返回轮次账本
func (c *Coordinator) Ledger() *Ledger {
	return c.ledger
}

// Config 返回协调器配置
func (c *Coordinator) Config() Config {
	return c.cfg
}

// RunRound publishes a start message for a new round and blocks until the round reaches a
// terminal state. A non-positive expected or timeout selects the configured default.
// Cancelling ctx or closing the coordinator ends the round with a Timeout outcome.
func (c *Coordinator) RunRound(ctx context.Context, kind Kind, payload []byte, expected int, timeout time.Duration, opts ...RoundOption) *Outcome {
	start := time.Now()
	if expected <= 0 {
		expected = c.cfg.ExpectedParticipants
	}
	if timeout <= 0 {
		timeout = c.cfg.RoundTimeout
	}

	if !c.enter() {
		return c.rejected(kind, ErrCoordinatorClosed, start)
	}
	defer c.inflight.Done()

	id, err := c.ledger.Create(kind, expected, payload, timeout, opts...)
	if err != nil {
		return c.rejected(kind, err, start)
	}
	defer c.ledger.Remove(id)

	e := c.ledger.lookup(id)
	snapshot, _ := c.ledger.Get(id)

	logger := log.With().
		Str("correlation_id", id).
		Str("kind", kind.String()).
		Logger()
	logger.Info().
		Int("expected_participants", expected).
		Dur("timeout", timeout).
		Str("session", snapshot.Session).
		Msg("Starting round")
	c.metrics.RoundStarted(kind.String())

	if err := c.acquire(ctx, kind); err != nil {
		_, _ = c.ledger.Finish(id, StatusFailed, func(r Round) *Outcome {
			return transportOutcome(r, err)
		})
	} else {
		defer c.release(kind)
		c.publishStart(ctx, id, snapshot)
	}

	// the deadline was fixed at creation; subscribe and publish time counts against it
	timer := time.AfterFunc(c.ledger.Remaining(snapshot), func() {
		c.expire(id, ErrDeadlineExceeded)
	})
	defer timer.Stop()

	select {
	case <-e.Done():
	case <-ctx.Done():
		c.expire(id, ctx.Err())
	case <-c.closeCh:
		c.expire(id, ErrCoordinatorClosed)
	}
	<-e.Done()

	outcome := e.Outcome()
	outcome.Duration = time.Since(start)

	event := logger.Info()
	if !outcome.Aggregated() {
		event = logger.Warn().AnErr("cause", outcome.Err())
	}
	if outcome.Type == OutcomeTimeout {
		event = event.Strs("responded", outcome.PartialIDs())
	}
	event.
		Str("outcome", outcome.Type.String()).
		Dur("duration", outcome.Duration).
		Msg("Round finished")
	c.metrics.RoundFinished(kind.String(), outcome.Type.String(), outcome.Duration)

	return outcome
}

func (c *Coordinator) publishStart(ctx context.Context, id string, snapshot Round) {
	msg, err := EncodeStartMessage(snapshot)
	if err == nil {
		err = c.bus.Publish(ctx, c.cfg.Topics.Start(snapshot.Kind), msg)
	}
	if err != nil {
		_, _ = c.ledger.Finish(id, StatusFailed, func(r Round) *Outcome {
			return transportOutcome(r, errors.Wrap(err, "failed to publish start message"))
		})
		return
	}

	// A participant may already have failed the round.
	if err := c.ledger.MarkCollecting(id); err != nil {
		log.Debug().Err(err).Str("correlation_id", id).Msg("Round finished before collecting")
	}
}

func (c *Coordinator) expire(id string, cause error) {
	_, _ = c.ledger.Finish(id, StatusTimedOut, func(r Round) *Outcome {
		return timeoutOutcome(r, cause)
	})
}

func (c *Coordinator) rejected(kind Kind, cause error, start time.Time) *Outcome {
	log.Warn().Err(cause).Str("kind", kind.String()).Msg("Round rejected")
	o := &Outcome{
		Type:     OutcomeRejected,
		Kind:     kind,
		Cause:    cause,
		Duration: time.Since(start),
	}
	c.metrics.RoundFinished(kind.String(), o.Type.String(), o.Duration)
	return o
}

func (c *Coordinator) enter() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.closed.Load() {
		return false
	}
	c.inflight.Add(1)
	return true
}

// acquire subscribes to the result topic of kind, or takes another reference on the existing
// subscription. It returns only once the subscription is active. A failed subscribe is reported
// to every round that joined it and the next round retries.
func (c *Coordinator) acquire(ctx context.Context, kind Kind) error {
	c.subMu.Lock()
	if ts, ok := c.subs[kind]; ok {
		ts.refs++
		c.subMu.Unlock()
		<-ts.ready
		return ts.err
	}
	ts := &topicSubscription{refs: 1, ready: make(chan struct{})}
	c.subs[kind] = ts
	c.subMu.Unlock()

	topic := c.cfg.Topics.Result(kind)
	sub, err := c.bus.Subscribe(ctx, topic, c.handler(kind))
	if err != nil {
		err = errors.Wrapf(err, "failed to subscribe to %s", topic)
		c.subMu.Lock()
		if c.subs[kind] == ts {
			delete(c.subs, kind)
		}
		c.subMu.Unlock()
	} else {
		log.Debug().Str("topic", topic).Msg("Subscribed to result topic")
	}

	ts.sub, ts.err = sub, err
	close(ts.ready)
	return err
}

// release drops one reference taken by a successful acquire and unsubscribes with the last one.
func (c *Coordinator) release(kind Kind) {
	c.subMu.Lock()
	ts, ok := c.subs[kind]
	if !ok {
		c.subMu.Unlock()
		return
	}
	ts.refs--
	if ts.refs > 0 {
		c.subMu.Unlock()
		return
	}
	delete(c.subs, kind)
	c.subMu.Unlock()

	if err := c.bus.Unsubscribe(context.Background(), ts.sub); err != nil {
		log.Warn().Err(err).Str("topic", ts.sub.Topic()).Msg("Failed to unsubscribe from result topic")
		return
	}
	log.Debug().Str("topic", ts.sub.Topic()).Msg("Unsubscribed from result topic")
}

func (c *Coordinator) handler(kind Kind) bus.Handler {
	return func(_ context.Context, topic string, payload []byte) {
		msg, err := DecodeResultMessage(payload)
		if err != nil {
			log.Debug().Err(err).Str("topic", topic).Msg("Discarding undecodable participant message")
			c.metrics.MessageDiscarded(kind.String(), DiscardDecode)
			return
		}
		c.Deliver(kind, msg)
	}
}

// Deliver feeds one participant message into the round it is addressed to. It never blocks on
// the caller of RunRound; aggregation runs here, outside the round lock, and its result is
// dropped if the round reached a terminal state in the meantime.
func (c *Coordinator) Deliver(kind Kind, msg *ParticipantMessage) {
	logger := log.With().
		Str("correlation_id", msg.CorrelationID).
		Str("participant_id", string(msg.ParticipantID)).
		Str("kind", kind.String()).
		Logger()

	e := c.ledger.lookup(msg.CorrelationID)
	if e == nil {
		logger.Debug().Msg("Discarding message for unknown round")
		c.metrics.MessageDiscarded(kind.String(), DiscardUnknownRound)
		return
	}
	if e.round.Kind != kind {
		logger.Warn().Msg("Discarding message delivered on the wrong result topic")
		c.metrics.MessageDiscarded(kind.String(), DiscardKindMismatch)
		return
	}

	snapshot, complete, err := c.ledger.RecordResult(msg.CorrelationID, msg.ParticipantID, Result{
		Type:   msg.ResultType,
		Value:  msg.Value,
		Detail: msg.ErrorDetail,
	})
	if err != nil {
		reason := DiscardClosed
		switch errors.Cause(err) {
		case ErrRoundNotFound:
			reason = DiscardUnknownRound
		case ErrDuplicateResult:
			reason = DiscardDuplicate
		case ErrRoundFull:
			reason = DiscardRoundFull
		}
		logger.Debug().Err(err).Str("reason", reason).Msg("Discarding participant message")
		c.metrics.MessageDiscarded(kind.String(), reason)
		return
	}

	logger.Info().
		Str("result_type", msg.ResultType.String()).
		Int("received", len(snapshot.Results)).
		Int("expected", snapshot.ExpectedParticipants).
		Msg("Participant result received")
	c.metrics.ResultReceived(kind.String(), msg.ResultType.String())

	// RecordResult has already failed the round on an Error result.
	if !complete {
		return
	}

	verdict := c.policy(kind).Aggregate(snapshot.SuccessValues(), snapshot.ExpectedParticipants)
	switch {
	case verdict.Agreed():
		c.finish(&logger, msg.CorrelationID, StatusResolved, func(r Round) *Outcome {
			o := newOutcome(OutcomeAggregated, r)
			o.Value = verdict.Value
			return o
		})
	case verdict.Mismatched():
		c.finish(&logger, msg.CorrelationID, StatusFailed, func(r Round) *Outcome {
			o := newOutcome(OutcomeMismatch, r)
			o.Observed = verdict.Distinct
			return o
		})
	default:
		cause := verdict.Err
		if cause == nil {
			cause = aggregation.ErrEmptyAggregate
		}
		c.finish(&logger, msg.CorrelationID, StatusFailed, func(r Round) *Outcome {
			o := newOutcome(OutcomeAggregationFailed, r)
			o.Cause = cause
			return o
		})
	}
}

func (c *Coordinator) finish(logger *zerolog.Logger, id string, status Status, build func(r Round) *Outcome) {
	won, err := c.ledger.Finish(id, status, build)
	if err != nil || !won {
		logger.Debug().Err(err).Str("status", status.String()).Msg("Round already terminal, discarding result")
	}
}

func (c *Coordinator) policy(kind Kind) aggregation.Policy {
	if kind == KindSigning {
		return c.cfg.Signing
	}
	return c.cfg.KeyGeneration
}

// Close ends every in-flight round with a Timeout outcome, waits for their callers to return and
// releases remaining subscriptions. New RunRound calls are rejected.
func (c *Coordinator) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.stateMu.Lock()
		c.closed.Store(true)
		c.stateMu.Unlock()
		close(c.closeCh)
	})

	waited := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "timed out waiting for in-flight rounds")
	}

	c.subMu.Lock()
	remaining := make([]*topicSubscription, 0, len(c.subs))
	for kind, ts := range c.subs {
		delete(c.subs, kind)
		remaining = append(remaining, ts)
	}
	c.subMu.Unlock()

	for _, ts := range remaining {
		if ts.sub == nil {
			continue
		}
		if err := c.bus.Unsubscribe(ctx, ts.sub); err != nil {
			log.Warn().Err(err).Str("topic", ts.sub.Topic()).Msg("Failed to release subscription on close")
		}
	}
	return nil
}
