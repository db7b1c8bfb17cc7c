package round

import (
	"fmt"
	"sort"
	"time"
)

// OutcomeType 轮次结果类型
type OutcomeType int

const (
	OutcomeAggregated OutcomeType = iota + 1
	OutcomeMismatch
	OutcomeParticipantError
	OutcomeTimeout
	OutcomeTransportError
	OutcomeAggregationFailed
	// OutcomeRejected means the round never started because the request was invalid
	// or the coordinator was already closed.
	OutcomeRejected
)

func (t OutcomeType) String() string {
	switch t {
	case OutcomeAggregated:
		return "aggregated"
	case OutcomeMismatch:
		return "mismatch"
	case OutcomeParticipantError:
		return "participant_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransportError:
		return "transport_error"
	case OutcomeAggregationFailed:
		return "aggregation_failed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the single result handed back for one RunRound call.
type Outcome struct {
	Type          OutcomeType
	CorrelationID string
	Kind          Kind
	Session       string

	// Aggregated
	Value []byte
	// Mismatch: every distinct value observed, sorted
	Observed [][]byte
	// ParticipantError
	ParticipantID ParticipantID
	Detail        string
	// Timeout: successful values received before the deadline
	Partial map[ParticipantID][]byte

	Cause    error
	Duration time.Duration
}

// Aggregated 轮次是否成功聚合
func (o *Outcome) Aggregated() bool {
	return o != nil && o.Type == OutcomeAggregated
}

// Status is the terminal ledger status corresponding to the outcome.
func (o *Outcome) Status() Status {
	switch o.Type {
	case OutcomeAggregated:
		return StatusResolved
	case OutcomeTimeout:
		return StatusTimedOut
	default:
		return StatusFailed
	}
}

// Err converts a non-aggregated outcome into a *Error. It returns nil for Aggregated.
func (o *Outcome) Err() error {
	if o == nil {
		return &Error{Type: ErrTypeUnknown, Message: "no outcome"}
	}

	e := &Error{CorrelationID: o.CorrelationID, Original: o.Cause}
	switch o.Type {
	case OutcomeAggregated:
		return nil
	case OutcomeMismatch:
		e.Type = ErrTypeMismatch
		e.Message = fmt.Sprintf("participants reported %d distinct values", len(o.Observed))
	case OutcomeParticipantError:
		e.Type = ErrTypeParticipant
		e.Message = o.Detail
		e.Culprits = []string{string(o.ParticipantID)}
	case OutcomeTimeout:
		e.Type = ErrTypeTimeout
		e.Message = fmt.Sprintf("round timed out with %d partial results", len(o.Partial))
	case OutcomeTransportError:
		e.Type = ErrTypeTransport
		e.Message = "message bus failure"
	case OutcomeAggregationFailed:
		e.Type = ErrTypeAggregation
		e.Message = "could not aggregate participant results"
	case OutcomeRejected:
		e.Type = ErrTypeRejected
		e.Message = "round rejected"
	default:
		e.Type = ErrTypeUnknown
		e.Message = "unknown outcome"
	}
	return e
}

// OutcomeView is the JSON form of an Outcome. Participant values are reported as the text the
// nodes published.
type OutcomeView struct {
	Outcome       string            `json:"outcome"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Kind          string            `json:"kind"`
	Session       string            `json:"session,omitempty"`
	Value         string            `json:"value,omitempty"`
	Observed      []string          `json:"observed,omitempty"`
	ParticipantID string            `json:"participantId,omitempty"`
	Detail        string            `json:"detail,omitempty"`
	Partial       map[string]string `json:"partial,omitempty"`
	Error         string            `json:"error,omitempty"`
	DurationMs    int64             `json:"durationMs"`
}

// View 返回可序列化的结果视图
func (o *Outcome) View() OutcomeView {
	v := OutcomeView{
		Outcome:       o.Type.String(),
		CorrelationID: o.CorrelationID,
		Kind:          o.Kind.String(),
		Session:       o.Session,
		Value:         string(o.Value),
		ParticipantID: string(o.ParticipantID),
		Detail:        o.Detail,
		DurationMs:    o.Duration.Milliseconds(),
	}
	for _, obs := range o.Observed {
		v.Observed = append(v.Observed, string(obs))
	}
	if len(o.Partial) > 0 {
		v.Partial = make(map[string]string, len(o.Partial))
		for id, val := range o.Partial {
			v.Partial[string(id)] = string(val)
		}
	}
	if o.Cause != nil {
		v.Error = o.Cause.Error()
	}
	return v
}

// PartialIDs returns the participants that contributed to a partial outcome, sorted.
func (o *Outcome) PartialIDs() []string {
	ids := make([]string, 0, len(o.Partial))
	for id := range o.Partial {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)
	return ids
}

func newOutcome(t OutcomeType, r Round) *Outcome {
	return &Outcome{
		Type:          t,
		CorrelationID: r.CorrelationID,
		Kind:          r.Kind,
		Session:       r.Session,
	}
}

func timeoutOutcome(r Round, cause error) *Outcome {
	o := newOutcome(OutcomeTimeout, r)
	o.Partial = r.Partial()
	o.Cause = cause
	return o
}

func participantErrorOutcome(r Round, id ParticipantID, detail string) *Outcome {
	o := newOutcome(OutcomeParticipantError, r)
	o.ParticipantID = id
	o.Detail = detail
	return o
}

func transportOutcome(r Round, cause error) *Outcome {
	o := newOutcome(OutcomeTransportError, r)
	o.Cause = cause
	return o
}
