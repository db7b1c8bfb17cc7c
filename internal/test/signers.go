package test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/bus"
	"github.com/akash-R-A-J/idmap-gateway/internal/mpc/round"
)

// Response is what one fake signer node does with a start message.
type Response struct {
	Value string
	Error string
	// Delay before the first report is published.
	Delay time.Duration
	// Duplicates publishes the same report this many extra times.
	Duplicates int
	// Silent nodes never answer.
	Silent bool
}

// Behavior decides the response of participant id to a start message.
type Behavior func(id string, start *round.StartMessage) Response

// Agree makes every node report the same value.
func Agree(value string) Behavior {
	return func(string, *round.StartMessage) Response {
		return Response{Value: value}
	}
}

// PerNode looks up the response by participant id; unknown nodes stay silent.
func PerNode(responses map[string]Response) Behavior {
	return func(id string, _ *round.StartMessage) Response {
		r, ok := responses[id]
		if !ok {
			return Response{Silent: true}
		}
		return r
	}
}

// SignerFleet simulates signer nodes listening on the start topics of a bus.
type SignerFleet struct {
	t        *testing.T
	bus      bus.Bus
	topics   round.Topics
	behavior Behavior

	mu      sync.Mutex
	starts  map[round.Kind]map[string]int
	stopped bool
	subs    []*bus.Subscription
	wg      sync.WaitGroup
}

// StartSignerFleet subscribes one fake node per id to both start topics. Nodes answer on the
// result topic of the round kind. Everything is torn down when the test ends.
func StartSignerFleet(t *testing.T, b bus.Bus, topics round.Topics, ids []string, behavior Behavior) *SignerFleet {
	t.Helper()

	f := &SignerFleet{
		t:        t,
		bus:      b,
		topics:   topics,
		behavior: behavior,
		starts:   make(map[round.Kind]map[string]int),
	}

	for _, kind := range []round.Kind{round.KindKeyGeneration, round.KindSigning} {
		for _, id := range ids {
			sub, err := b.Subscribe(context.Background(), topics.Start(kind), f.handler(kind, id))
			if err != nil {
				t.Fatalf("failed to subscribe signer %s: %v", id, err)
			}
			f.subs = append(f.subs, sub)
		}
	}

	t.Cleanup(f.stop)
	return f
}

// Starts returns how many start messages of kind node id has seen.
func (f *SignerFleet) Starts(kind round.Kind, id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts[kind][id]
}

func (f *SignerFleet) handler(kind round.Kind, id string) bus.Handler {
	return func(_ context.Context, _ string, payload []byte) {
		start, err := round.DecodeStartMessage(payload)
		if err != nil {
			f.t.Errorf("signer %s received invalid start message: %v", id, err)
			return
		}

		f.mu.Lock()
		if f.starts[kind] == nil {
			f.starts[kind] = make(map[string]int)
		}
		f.starts[kind][id]++
		f.mu.Unlock()

		resp := f.behavior(id, start)
		if resp.Silent {
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.stopped {
			return
		}
		f.wg.Add(1)
		go func() {
			defer f.wg.Done()
			if resp.Delay > 0 {
				time.Sleep(resp.Delay)
			}
			f.reply(kind, id, start.CorrelationID, resp)
		}()
	}
}

func (f *SignerFleet) reply(kind round.Kind, id string, correlationID string, resp Response) {
	msg := round.ResultMessage{
		CorrelationID: correlationID,
		ParticipantID: round.ParticipantID(id),
		ResultType:    round.WireResultTypeResult,
		Value:         resp.Value,
	}
	if resp.Error != "" {
		msg.ResultType = round.WireResultTypeError
		msg.Value = ""
		msg.Error = resp.Error
	}

	data, err := round.EncodeResultMessage(msg)
	if err != nil {
		f.t.Errorf("signer %s failed to encode result: %v", id, err)
		return
	}

	for i := 0; i <= resp.Duplicates; i++ {
		// the bus may already be closed when a delayed node answers
		_ = f.bus.Publish(context.Background(), f.topics.Result(kind), data)
	}
}

func (f *SignerFleet) stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()

	for _, sub := range f.subs {
		_ = f.bus.Unsubscribe(context.Background(), sub)
	}
	f.wg.Wait()
}
