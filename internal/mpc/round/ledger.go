package round

import (
	"sync"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

const maxIDAttempts = 8

// ErrRoundRemoved 轮次在终态之前被移除
var ErrRoundRemoved = errors.New("round removed before reaching a terminal state")

// RoundOption customises a round at creation.
type RoundOption func(r *Round)

// WithSession binds the round to a DKG session. Signer nodes use it to select key shares.
func WithSession(session string) RoundOption {
	return func(r *Round) {
		r.Session = session
	}
}

// LedgerOption customises a Ledger.
type LedgerOption func(l *Ledger)

// WithClock sets the clock used for creation timestamps, deadlines and receipt times.
func WithClock(clock time2.Clock) LedgerOption {
	return func(l *Ledger) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// withIDGenerator is used by tests to force correlation id collisions.
func withIDGenerator(gen func() string) LedgerOption {
	return func(l *Ledger) {
		l.newID = gen
	}
}

// entry owns one round. All mutation happens under mu; status is additionally atomic so the
// first terminal transition is a single test-and-set.
type entry struct {
	mu      sync.Mutex
	round   Round
	status  *atomic.Uint32
	order   uint64
	outcome *Outcome
	done    chan struct{}
}

func (e *entry) snapshotLocked() Round {
	r := e.round
	r.Status = Status(e.status.Load())
	r.Results = make(map[ParticipantID]Result, len(e.round.Results))
	for id, res := range e.round.Results {
		r.Results[id] = res
	}
	return r
}

// Done is closed once the round has reached a terminal state.
func (e *entry) Done() <-chan struct{} {
	return e.done
}

// Outcome is only meaningful after Done is closed.
func (e *entry) Outcome() *Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.outcome
}

// Ledger 轮次账本. The map lock only guards membership; round state is serialised per entry.
type Ledger struct {
	mu     sync.RWMutex
	rounds map[string]*entry
	clock  time2.Clock
	newID  func() string
}

// NewLedger 创建轮次账本
func NewLedger(opts ...LedgerOption) *Ledger {
	l := &Ledger{
		rounds: make(map[string]*entry),
		clock:  time2.DefaultClock,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Create inserts a Pending round and returns its correlation id.
func (l *Ledger) Create(kind Kind, expected int, payload []byte, timeout time.Duration, opts ...RoundOption) (string, error) {
	if !kind.Valid() {
		return "", errors.Wrapf(ErrInvalidRound, "unknown kind %d", kind)
	}
	if expected <= 0 {
		return "", errors.Wrapf(ErrInvalidRound, "expected participants must be positive, got %d", expected)
	}
	if timeout <= 0 {
		return "", errors.Wrapf(ErrInvalidRound, "timeout must be positive, got %s", timeout)
	}

	now := l.clock.Now()
	r := Round{
		Kind:                 kind,
		ExpectedParticipants: expected,
		Payload:              append([]byte(nil), payload...),
		Status:               StatusPending,
		Results:              make(map[ParticipantID]Result, expected),
		CreatedAt:            now,
		Deadline:             now.Add(timeout),
	}
	for _, opt := range opts {
		opt(&r)
	}

	e := &entry{
		round:  r,
		status: atomic.NewUint32(uint32(StatusPending)),
		done:   make(chan struct{}),
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := l.newID()
		if _, taken := l.rounds[id]; taken || id == "" {
			continue
		}
		e.round.CorrelationID = id
		l.rounds[id] = e
		return id, nil
	}

	return "", ErrIDExhausted
}

func (l *Ledger) lookup(id string) *entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.rounds[id]
}

// RecordResult stores the first result of a participant. It reports whether the round now holds
// exactly the expected number of results. Results are accepted while Pending as well, because the
// result subscription is live before the start message is published.
// An Error result fails the round in the same critical section, so no later result can complete
// it; the returned snapshot is then Failed and complete is false.
func (l *Ledger) RecordResult(id string, participant ParticipantID, result Result) (Round, bool, error) {
	e := l.lookup(id)
	if e == nil {
		return Round{}, false, errors.Wrap(ErrRoundNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if Status(e.status.Load()).Terminal() {
		return Round{}, false, errors.Wrap(ErrRoundClosed, id)
	}
	if _, seen := e.round.Results[participant]; seen {
		return Round{}, false, errors.Wrapf(ErrDuplicateResult, "participant %s", participant)
	}
	if len(e.round.Results) >= e.round.ExpectedParticipants {
		return Round{}, false, errors.Wrapf(ErrRoundFull, "participant %s", participant)
	}

	e.order++
	result.Order = e.order
	if result.ReceivedAt.IsZero() {
		result.ReceivedAt = l.clock.Now()
	}
	if result.Value != nil {
		result.Value = append([]byte(nil), result.Value...)
	}
	e.round.Results[participant] = result

	if result.Type == ResultError {
		e.finishLocked(StatusFailed, func(r Round) *Outcome {
			return participantErrorOutcome(r, participant, result.Detail)
		})
		return e.snapshotLocked(), false, nil
	}

	snapshot := e.snapshotLocked()
	return snapshot, len(e.round.Results) == e.round.ExpectedParticipants, nil
}

// MarkCollecting moves a Pending round to Collecting once its start message is out.
func (l *Ledger) MarkCollecting(id string) error {
	e := l.lookup(id)
	if e == nil {
		return errors.Wrap(ErrRoundNotFound, id)
	}
	if !e.status.CompareAndSwap(uint32(StatusPending), uint32(StatusCollecting)) {
		return errors.Wrapf(ErrRoundClosed, "%s is %s", id, Status(e.status.Load()))
	}
	return nil
}

// Finish performs the terminal transition of a round. Only the first call for a round wins;
// build is invoked with the final snapshot by the winner only, and later callers get false.
func (l *Ledger) Finish(id string, status Status, build func(r Round) *Outcome) (bool, error) {
	if !status.Terminal() {
		return false, errors.Wrapf(ErrInvalidRound, "%s is not a terminal status", status)
	}

	e := l.lookup(id)
	if e == nil {
		return false, errors.Wrap(ErrRoundNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finishLocked(status, build), nil
}

func (e *entry) finishLocked(status Status, build func(r Round) *Outcome) bool {
	for {
		current := Status(e.status.Load())
		if !canTransition(current, status) {
			return false
		}
		if e.status.CompareAndSwap(uint32(current), uint32(status)) {
			break
		}
	}

	snapshot := e.snapshotLocked()
	if build != nil {
		e.outcome = build(snapshot)
	}
	if e.outcome == nil {
		e.outcome = defaultOutcome(snapshot)
	}
	close(e.done)
	return true
}

// MarkTerminal transitions the round to a terminal status. It is a no-op returning false if the
// round is already terminal.
func (l *Ledger) MarkTerminal(id string, status Status) (bool, error) {
	if status == StatusResolved {
		return false, errors.Wrap(ErrInvalidRound, "resolved rounds need an aggregated outcome, use Finish")
	}
	return l.Finish(id, status, nil)
}

// Remove deletes a round. A round that is still live is timed out first so that anyone waiting
// on it is released.
func (l *Ledger) Remove(id string) {
	l.mu.Lock()
	e, ok := l.rounds[id]
	delete(l.rounds, id)
	l.mu.Unlock()

	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.finishLocked(StatusTimedOut, func(r Round) *Outcome {
		return timeoutOutcome(r, ErrRoundRemoved)
	})
}

// Remaining returns the time left until the deadline of r on the ledger clock.
func (l *Ledger) Remaining(r Round) time.Duration {
	return r.Deadline.Sub(l.clock.Now())
}

// Get returns a snapshot of the round.
func (l *Ledger) Get(id string) (Round, bool) {
	e := l.lookup(id)
	if e == nil {
		return Round{}, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(), true
}

// Len returns the number of live rounds.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rounds)
}

func defaultOutcome(r Round) *Outcome {
	switch r.Status {
	case StatusTimedOut:
		return timeoutOutcome(r, ErrDeadlineExceeded)
	default:
		o := newOutcome(OutcomeAggregationFailed, r)
		o.Cause = errors.Errorf("round marked %s", r.Status)
		return o
	}
}
