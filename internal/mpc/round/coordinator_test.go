package round_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/aggregation"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/bus"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/round"
	"github.com/akash-R-A-J/idmap-gateway/internal/test"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var nodes = []string{"1", "2"}

type recordingMetrics struct {
	mu        sync.Mutex
	started   int
	finished  map[string]int
	received  map[string]int
	discarded map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		finished:  make(map[string]int),
		received:  make(map[string]int),
		discarded: make(map[string]int),
	}
}

func (m *recordingMetrics) RoundStarted(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *recordingMetrics) RoundFinished(_ string, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[outcome]++
}

func (m *recordingMetrics) ResultReceived(_ string, resultType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received[resultType]++
}

func (m *recordingMetrics) MessageDiscarded(_ string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discarded[reason]++
}

func (m *recordingMetrics) discards(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discarded[reason]
}

func newCoordinator(t *testing.T, b bus.Bus, cfg round.Config) (*round.Coordinator, *recordingMetrics) {
	t.Helper()

	metrics := newRecordingMetrics()
	c := round.NewCoordinator(b, round.NewLedger(), metrics, cfg)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})

	return c, metrics
}

func assertReleased(t *testing.T, c *round.Coordinator, b *bus.MemoryBus) {
	t.Helper()

	topics := round.DefaultTopics()
	assert.Equal(t, 0, c.Ledger().Len(), "ledger entries left behind")
	assert.Equal(t, 0, b.SubscriberCount(topics.DKGResult), "dkg result subscription left behind")
	assert.Equal(t, 0, b.SubscriberCount(topics.SignResult), "sign result subscription left behind")
}

func TestRunRound_KeyGenerationAgreement(t *testing.T) {
	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), nodes, test.Agree("8Yx7pubkey"))
	c, metrics := newCoordinator(t, b, round.Config{})

	outcome := c.RunRound(context.Background(), round.KindKeyGeneration, []byte("user-1"), 2, 2*time.Second, round.WithSession("session-abc"))

	require.Equal(t, round.OutcomeAggregated, outcome.Type, "cause: %v", outcome.Cause)
	assert.True(t, outcome.Aggregated())
	assert.NoError(t, outcome.Err())
	assert.Equal(t, []byte("8Yx7pubkey"), outcome.Value)
	assert.Equal(t, round.KindKeyGeneration, outcome.Kind)
	assert.Equal(t, "session-abc", outcome.Session)
	assert.NotEmpty(t, outcome.CorrelationID)
	assert.Equal(t, round.StatusResolved, outcome.Status())

	assertReleased(t, c, b)
	assert.Equal(t, 1, metrics.started)
	assert.Equal(t, 1, metrics.finished["aggregated"])
	assert.Equal(t, 2, metrics.received["result"])
}

func TestRunRound_KeyGenerationMismatch(t *testing.T) {
	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), nodes, test.PerNode(map[string]test.Response{
		"1": {Value: "keyB"},
		"2": {Value: "keyA"},
	}))
	c, _ := newCoordinator(t, b, round.Config{})

	outcome := c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, 2*time.Second)

	require.Equal(t, round.OutcomeMismatch, outcome.Type)
	assert.Equal(t, [][]byte{[]byte("keyA"), []byte("keyB")}, outcome.Observed)
	assert.Nil(t, outcome.Value)
	assert.True(t, round.IsErrorType(outcome.Err(), round.ErrTypeMismatch))
	assert.Equal(t, round.StatusFailed, outcome.Status())
	assertReleased(t, c, b)
}

func TestRunRound_TimeoutKeepsPartialResults(t *testing.T) {
	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), nodes, test.PerNode(map[string]test.Response{
		"1": {Value: "value1"},
	}))
	c, _ := newCoordinator(t, b, round.Config{})

	outcome := c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, 150*time.Millisecond)

	require.Equal(t, round.OutcomeTimeout, outcome.Type)
	assert.Equal(t, map[round.ParticipantID][]byte{"1": []byte("value1")}, outcome.Partial)
	assert.ErrorIs(t, outcome.Cause, round.ErrDeadlineExceeded)
	assert.True(t, round.IsErrorType(outcome.Err(), round.ErrTypeTimeout))
	assert.GreaterOrEqual(t, outcome.Duration, 150*time.Millisecond)
	assertReleased(t, c, b)
}

func TestRunRound_ParticipantErrorFailsFast(t *testing.T) {
	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), nodes, test.PerNode(map[string]test.Response{
		"1": {Error: "share not found"},
		"2": {Value: "sig", Delay: 200 * time.Millisecond},
	}))
	c, metrics := newCoordinator(t, b, round.Config{})

	outcome := c.RunRound(context.Background(), round.KindSigning, []byte("msg"), 2, 5*time.Second)

	require.Equal(t, round.OutcomeParticipantError, outcome.Type)
	assert.Equal(t, round.ParticipantID("1"), outcome.ParticipantID)
	assert.Equal(t, "share not found", outcome.Detail)
	assert.Less(t, outcome.Duration, 200*time.Millisecond, "round waited for the second participant")

	var roundErr *round.Error
	require.True(t, errors.As(outcome.Err(), &roundErr))
	assert.Equal(t, round.ErrTypeParticipant, roundErr.Type)
	assert.Equal(t, []string{"1"}, roundErr.Culprits)

	// the late success must not touch anything
	time.Sleep(300 * time.Millisecond)
	assertReleased(t, c, b)
	assert.Equal(t, 1, metrics.finished["participant_error"])
}

// gatedMetrics parks the delivery of an Error result after it was recorded.
type gatedMetrics struct {
	*recordingMetrics
	reached chan struct{}
	release chan struct{}
}

func (m *gatedMetrics) ResultReceived(kind string, resultType string) {
	if resultType == round.ResultError.String() {
		close(m.reached)
		<-m.release
	}
	m.recordingMetrics.ResultReceived(kind, resultType)
}

func TestCoordinator_ConcurrentErrorWinsOverCompletingResult(t *testing.T) {
	b := test.NewTestBus(t)
	started := make(chan string, 1)
	test.StartSignerFleet(t, b, round.DefaultTopics(), []string{"1"}, func(_ string, start *round.StartMessage) test.Response {
		started <- start.CorrelationID
		return test.Response{Silent: true}
	})

	metrics := &gatedMetrics{
		recordingMetrics: newRecordingMetrics(),
		reached:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	c := round.NewCoordinator(b, round.NewLedger(), metrics, round.Config{})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Close(ctx)
	})

	done := make(chan *round.Outcome, 1)
	go func() {
		done <- c.RunRound(context.Background(), round.KindSigning, []byte("msg"), 2, 5*time.Second)
	}()
	id := <-started

	var g errgroup.Group
	g.Go(func() error {
		c.Deliver(round.KindSigning, &round.ParticipantMessage{
			CorrelationID: id, ParticipantID: "1", ResultType: round.ResultError, ErrorDetail: "share not found",
		})
		return nil
	})
	<-metrics.reached

	c.Deliver(round.KindSigning, &round.ParticipantMessage{
		CorrelationID: id, ParticipantID: "2", ResultType: round.ResultSuccess, Value: []byte("sig"),
	})
	close(metrics.release)
	require.NoError(t, g.Wait())

	outcome := <-done
	require.Equal(t, round.OutcomeParticipantError, outcome.Type, "cause: %v", outcome.Cause)
	assert.Equal(t, round.ParticipantID("1"), outcome.ParticipantID)
	assert.Equal(t, "share not found", outcome.Detail)
	assert.Equal(t, 1, metrics.discards(round.DiscardClosed))
}

func TestRunRound_DuplicatesDoNotComplete(t *testing.T) {
	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), nodes, test.PerNode(map[string]test.Response{
		"1": {Value: "pk", Duplicates: 3},
	}))
	c, metrics := newCoordinator(t, b, round.Config{})

	outcome := c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, 200*time.Millisecond)

	require.Equal(t, round.OutcomeTimeout, outcome.Type)
	assert.Len(t, outcome.Partial, 1)
	assert.Equal(t, 3, metrics.discards(round.DiscardDuplicate))
	assertReleased(t, c, b)
}

func TestRunRound_WaitsForGenuineSecondParticipant(t *testing.T) {
	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), nodes, test.PerNode(map[string]test.Response{
		"1": {Value: "pk", Duplicates: 2},
		"2": {Value: "pk", Delay: 100 * time.Millisecond},
	}))
	c, _ := newCoordinator(t, b, round.Config{})

	outcome := c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, 2*time.Second)

	require.Equal(t, round.OutcomeAggregated, outcome.Type)
	assert.GreaterOrEqual(t, outcome.Duration, 100*time.Millisecond)
	assertReleased(t, c, b)
}

func TestRunRound_SigningCallsCombinerOnceWithAllValues(t *testing.T) {
	var (
		mu    sync.Mutex
		calls [][][]byte
	)
	combiner := aggregation.CombinerFunc(func(values [][]byte) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, values)
		return []byte("combined"), nil
	})

	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), []string{"1", "2", "3"}, func(id string, _ *round.StartMessage) test.Response {
		return test.Response{Value: "partial-" + id}
	})
	c, _ := newCoordinator(t, b, round.Config{Signing: aggregation.NewSigningPolicy(combiner)})

	outcome := c.RunRound(context.Background(), round.KindSigning, []byte("tx"), 3, 2*time.Second)

	require.Equal(t, round.OutcomeAggregated, outcome.Type, "cause: %v", outcome.Cause)
	assert.Equal(t, []byte("combined"), outcome.Value)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.ElementsMatch(t, [][]byte{[]byte("partial-1"), []byte("partial-2"), []byte("partial-3")}, calls[0])
}

func TestRunRound_CombinerFailure(t *testing.T) {
	combiner := aggregation.CombinerFunc(func([][]byte) ([]byte, error) {
		return nil, errors.New("bad share")
	})

	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), nodes, test.Agree("s"))
	c, _ := newCoordinator(t, b, round.Config{Signing: aggregation.NewSigningPolicy(combiner)})

	outcome := c.RunRound(context.Background(), round.KindSigning, nil, 2, 2*time.Second)

	require.Equal(t, round.OutcomeAggregationFailed, outcome.Type)
	assert.EqualError(t, outcome.Cause, "failed to combine partial signatures: bad share")
	assert.True(t, round.IsErrorType(outcome.Err(), round.ErrTypeAggregation))
}

func TestRunRound_UsesConfiguredDefaults(t *testing.T) {
	b := test.NewTestBus(t)
	fleet := test.StartSignerFleet(t, b, round.DefaultTopics(), []string{"1", "2", "3"}, test.PerNode(map[string]test.Response{
		"1": {Value: "pk"},
		"2": {Value: "pk"},
	}))
	c, _ := newCoordinator(t, b, round.Config{ExpectedParticipants: 3, RoundTimeout: 100 * time.Millisecond})

	outcome := c.RunRound(context.Background(), round.KindKeyGeneration, nil, 0, 0)

	require.Equal(t, round.OutcomeTimeout, outcome.Type)
	assert.Len(t, outcome.Partial, 2)
	assert.Equal(t, 1, fleet.Starts(round.KindKeyGeneration, "3"))
	assert.Equal(t, 0, fleet.Starts(round.KindSigning, "3"))
}

func TestRunRound_ContextCancellation(t *testing.T) {
	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), nodes, test.PerNode(nil))
	c, _ := newCoordinator(t, b, round.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcome := c.RunRound(ctx, round.KindKeyGeneration, nil, 2, 10*time.Second)

	require.Equal(t, round.OutcomeTimeout, outcome.Type)
	assert.ErrorIs(t, outcome.Cause, context.DeadlineExceeded)
	assertReleased(t, c, b)
}

func TestRunRound_RejectsInvalidKind(t *testing.T) {
	b := test.NewTestBus(t)
	c, _ := newCoordinator(t, b, round.Config{})

	outcome := c.RunRound(context.Background(), round.Kind(42), nil, 2, time.Second)

	require.Equal(t, round.OutcomeRejected, outcome.Type)
	assert.ErrorIs(t, outcome.Cause, round.ErrInvalidRound)
	assert.True(t, round.IsErrorType(outcome.Err(), round.ErrTypeRejected))
	assertReleased(t, c, b)
}

func TestCoordinator_CloseEndsInFlightRounds(t *testing.T) {
	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), nodes, test.PerNode(map[string]test.Response{
		"1": {Value: "pk"},
	}))
	c := round.NewCoordinator(b, round.NewLedger(), nil, round.Config{})

	const inFlight = 10
	outcomes := make(chan *round.Outcome, inFlight)
	for i := 0; i < inFlight; i++ {
		go func() {
			outcomes <- c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, time.Minute)
		}()
	}

	require.Eventually(t, func() bool {
		return c.Ledger().Len() == inFlight
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Close(ctx))

	for i := 0; i < inFlight; i++ {
		o := <-outcomes
		assert.Equal(t, round.OutcomeTimeout, o.Type)
		assert.ErrorIs(t, o.Cause, round.ErrCoordinatorClosed)
	}
	assertReleased(t, c, b)

	rejected := c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, time.Second)
	assert.Equal(t, round.OutcomeRejected, rejected.Type)
	assert.ErrorIs(t, rejected.Cause, round.ErrCoordinatorClosed)
}

func TestCoordinator_SharesOneSubscriptionPerTopic(t *testing.T) {
	b := test.NewTestBus(t)
	topics := round.DefaultTopics()
	test.StartSignerFleet(t, b, topics, nodes, test.PerNode(map[string]test.Response{
		"1": {Value: "pk"},
	}))
	c, _ := newCoordinator(t, b, round.Config{})

	var g errgroup.Group
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, 300*time.Millisecond)
			return nil
		})
	}

	require.Eventually(t, func() bool {
		return c.Ledger().Len() == 5
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, b.SubscriberCount(topics.DKGResult))

	require.NoError(t, g.Wait())
	assertReleased(t, c, b)
}

// gatedSubscribeBus holds subscribe calls for one topic until gate is closed.
type gatedSubscribeBus struct {
	bus.Bus
	topic   string
	entered chan struct{}
	gate    chan struct{}

	mu    sync.Mutex
	calls int
}

func (g *gatedSubscribeBus) Subscribe(ctx context.Context, topic string, handler bus.Handler) (*bus.Subscription, error) {
	if topic == g.topic {
		g.mu.Lock()
		g.calls++
		first := g.calls == 1
		g.mu.Unlock()
		if first {
			close(g.entered)
		}
		<-g.gate
	}
	return g.Bus.Subscribe(ctx, topic, handler)
}

func TestCoordinator_PendingSubscribeDoesNotStallOtherKinds(t *testing.T) {
	mem := test.NewTestBus(t)
	topics := round.DefaultTopics()
	test.StartSignerFleet(t, mem, topics, nodes, test.Agree("value"))
	gated := &gatedSubscribeBus{Bus: mem, topic: topics.DKGResult, entered: make(chan struct{}), gate: make(chan struct{})}
	c, _ := newCoordinator(t, gated, round.Config{})

	dkg := make(chan *round.Outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			dkg <- c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, 5*time.Second)
		}()
	}
	<-gated.entered
	require.Eventually(t, func() bool {
		return c.Ledger().Len() == 2
	}, time.Second, 5*time.Millisecond)

	signing := c.RunRound(context.Background(), round.KindSigning, []byte("msg"), 2, 2*time.Second)
	require.Equal(t, round.OutcomeAggregated, signing.Type, "cause: %v", signing.Cause)

	close(gated.gate)
	for i := 0; i < 2; i++ {
		outcome := <-dkg
		assert.Equal(t, round.OutcomeAggregated, outcome.Type, "cause: %v", outcome.Cause)
	}

	gated.mu.Lock()
	assert.Equal(t, 1, gated.calls, "rounds joining a pending subscription subscribed again")
	gated.mu.Unlock()
	assertReleased(t, c, mem)
}

func TestCoordinator_FailedSubscribeIsRetried(t *testing.T) {
	mem := test.NewTestBus(t)
	test.StartSignerFleet(t, mem, round.DefaultTopics(), nodes, test.Agree("pk"))
	flaky := &failingBus{Bus: mem, subscribeErr: errors.New("no route")}
	c, _ := newCoordinator(t, flaky, round.Config{})

	outcome := c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, time.Second)
	require.Equal(t, round.OutcomeTransportError, outcome.Type)

	flaky.subscribeErr = nil
	outcome = c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, time.Second)
	require.Equal(t, round.OutcomeAggregated, outcome.Type, "cause: %v", outcome.Cause)
	assertReleased(t, c, mem)
}

func TestCoordinator_DiscardsForeignAndMisroutedMessages(t *testing.T) {
	b := test.NewTestBus(t)
	started := make(chan string, 1)
	test.StartSignerFleet(t, b, round.DefaultTopics(), []string{"1"}, func(_ string, start *round.StartMessage) test.Response {
		started <- start.CorrelationID
		return test.Response{Silent: true}
	})
	c, metrics := newCoordinator(t, b, round.Config{})

	done := make(chan *round.Outcome, 1)
	go func() {
		done <- c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, 300*time.Millisecond)
	}()
	id := <-started

	c.Deliver(round.KindKeyGeneration, &round.ParticipantMessage{
		CorrelationID: "not-a-round", ParticipantID: "1", ResultType: round.ResultSuccess, Value: []byte("pk"),
	})
	c.Deliver(round.KindSigning, &round.ParticipantMessage{
		CorrelationID: id, ParticipantID: "1", ResultType: round.ResultSuccess, Value: []byte("pk"),
	})

	r, ok := c.Ledger().Get(id)
	require.True(t, ok)
	assert.Empty(t, r.Results)
	assert.Equal(t, 1, metrics.discards(round.DiscardUnknownRound))
	assert.Equal(t, 1, metrics.discards(round.DiscardKindMismatch))

	// undecodable payloads on the result topic are dropped too
	require.NoError(t, b.Publish(context.Background(), round.DefaultTopics().DKGResult, []byte("{")))

	outcome := <-done
	assert.Equal(t, round.OutcomeTimeout, outcome.Type)
	assert.Empty(t, outcome.Partial)
	assert.Equal(t, 1, metrics.discards(round.DiscardDecode))
}

func TestCoordinator_AcceptsLegacyResultFields(t *testing.T) {
	b := test.NewTestBus(t)
	topics := round.DefaultTopics()

	sub, err := b.Subscribe(context.Background(), topics.DKGStart, func(ctx context.Context, _ string, payload []byte) {
		start, err := round.DecodeStartMessage(payload)
		if err != nil {
			return
		}
		for _, server := range []string{"1", "2"} {
			legacy := `{"id":"` + start.CorrelationID + `","server_id":` + server + `,"result_type":"dkg-result","data":"legacy-pk"}`
			_ = b.Publish(ctx, topics.DKGResult, []byte(legacy))
		}
	})
	require.NoError(t, err)
	defer b.Unsubscribe(context.Background(), sub) //nolint:errcheck

	c, _ := newCoordinator(t, b, round.Config{})
	outcome := c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, 2*time.Second)

	require.Equal(t, round.OutcomeAggregated, outcome.Type)
	assert.Equal(t, []byte("legacy-pk"), outcome.Value)
}

type failingBus struct {
	bus.Bus
	publishErr   error
	subscribeErr error
}

func (f *failingBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	return f.Bus.Publish(ctx, topic, payload)
}

func (f *failingBus) Subscribe(ctx context.Context, topic string, handler bus.Handler) (*bus.Subscription, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return f.Bus.Subscribe(ctx, topic, handler)
}

type slowSubscribeBus struct {
	bus.Bus
	delay time.Duration
}

func (s *slowSubscribeBus) Subscribe(ctx context.Context, topic string, handler bus.Handler) (*bus.Subscription, error) {
	time.Sleep(s.delay)
	return s.Bus.Subscribe(ctx, topic, handler)
}

func TestRunRound_DeadlineIncludesSubscribeTime(t *testing.T) {
	mem := test.NewTestBus(t)
	c, _ := newCoordinator(t, &slowSubscribeBus{Bus: mem, delay: 300 * time.Millisecond}, round.Config{})

	outcome := c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, 500*time.Millisecond)

	require.Equal(t, round.OutcomeTimeout, outcome.Type)
	assert.Less(t, outcome.Duration, 700*time.Millisecond, "deadline was re-armed after subscribing")
	assertReleased(t, c, mem)
}

func TestRunRound_TransportErrors(t *testing.T) {
	t.Run("publish", func(t *testing.T) {
		mem := test.NewTestBus(t)
		c, metrics := newCoordinator(t, &failingBus{Bus: mem, publishErr: errors.New("connection reset")}, round.Config{})

		outcome := c.RunRound(context.Background(), round.KindSigning, nil, 2, time.Second)

		require.Equal(t, round.OutcomeTransportError, outcome.Type)
		metrics.mu.Lock()
		assert.Equal(t, 1, metrics.started)
		assert.Equal(t, 1, metrics.finished["transport_error"])
		metrics.mu.Unlock()
		assert.Contains(t, outcome.Cause.Error(), "connection reset")
		assert.Less(t, outcome.Duration, time.Second)
		assert.True(t, round.IsErrorType(outcome.Err(), round.ErrTypeTransport))
		assertReleased(t, c, mem)
	})

	t.Run("subscribe", func(t *testing.T) {
		mem := test.NewTestBus(t)
		c, _ := newCoordinator(t, &failingBus{Bus: mem, subscribeErr: errors.New("no route")}, round.Config{})

		outcome := c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, time.Second)

		require.Equal(t, round.OutcomeTransportError, outcome.Type)
		assert.Contains(t, outcome.Cause.Error(), "no route")
		assertReleased(t, c, mem)
	})
}

func TestRunRound_RacingDeadlineProducesOneOutcome(t *testing.T) {
	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), nodes, test.PerNode(map[string]test.Response{
		"1": {Value: "pk", Duplicates: 2},
		"2": {Value: "pk", Delay: 20 * time.Millisecond, Duplicates: 2},
	}))
	c, metrics := newCoordinator(t, b, round.Config{})

	const rounds = 200
	var g errgroup.Group
	for i := 0; i < rounds; i++ {
		g.Go(func() error {
			o := c.RunRound(context.Background(), round.KindKeyGeneration, nil, 2, 20*time.Millisecond)
			switch o.Type {
			case round.OutcomeAggregated, round.OutcomeTimeout:
				return nil
			default:
				return errors.Errorf("unexpected outcome %s", o.Type)
			}
		})
	}
	require.NoError(t, g.Wait())

	metrics.mu.Lock()
	total := metrics.finished["aggregated"] + metrics.finished["timeout"]
	metrics.mu.Unlock()
	assert.Equal(t, rounds, total)

	time.Sleep(50 * time.Millisecond)
	assertReleased(t, c, b)
}

func TestRunRound_BurstReleasesAllResources(t *testing.T) {
	b := test.NewTestBus(t)
	test.StartSignerFleet(t, b, round.DefaultTopics(), nodes, func(id string, start *round.StartMessage) test.Response {
		return test.Response{Value: "v-" + start.CorrelationID}
	})
	c, _ := newCoordinator(t, b, round.Config{})

	const rounds = 1000
	var g errgroup.Group
	for i := 0; i < rounds; i++ {
		kind := round.KindKeyGeneration
		if i%2 == 1 {
			kind = round.KindSigning
		}
		g.Go(func() error {
			o := c.RunRound(context.Background(), kind, nil, 2, 10*time.Second)
			if o.Type != round.OutcomeAggregated {
				return errors.Errorf("round %s: %s (%v)", o.CorrelationID, o.Type, o.Cause)
			}
			if string(o.Value) != "v-"+o.CorrelationID {
				return errors.Errorf("round %s received a foreign value %q", o.CorrelationID, o.Value)
			}
			return nil
		})
	}

	require.NoError(t, g.Wait())
	assertReleased(t, c, b)
}
