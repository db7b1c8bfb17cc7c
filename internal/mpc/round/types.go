package round

import (
	"sort"
	"time"
)

// Kind 轮次类型
type Kind int

const (
	KindKeyGeneration Kind = iota + 1
	KindSigning
)

func (k Kind) String() string {
	switch k {
	case KindKeyGeneration:
		return "keygen"
	case KindSigning:
		return "signing"
	default:
		return "unknown"
	}
}

// Action is the start-message verb signer nodes dispatch on.
func (k Kind) Action() string {
	switch k {
	case KindKeyGeneration:
		return ActionStartDKG
	case KindSigning:
		return ActionSign
	default:
		return ""
	}
}

// Valid 是否为已知的轮次类型
func (k Kind) Valid() bool {
	return k == KindKeyGeneration || k == KindSigning
}

// ParseKind accepts the names used on the command line and in start messages.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "keygen", "dkg", ActionStartDKG:
		return KindKeyGeneration, true
	case "signing", "sign":
		return KindSigning, true
	default:
		return 0, false
	}
}

// Status 轮次状态
type Status uint32

const (
	StatusPending Status = iota
	StatusCollecting
	StatusResolved
	StatusFailed
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCollecting:
		return "collecting"
	case StatusResolved:
		return "resolved"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Terminal 是否为终态
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusFailed || s == StatusTimedOut
}

func canTransition(current, next Status) bool {
	switch current {
	case StatusPending:
		return next == StatusCollecting || next.Terminal()
	case StatusCollecting:
		return next.Terminal()
	default:
		// terminal states are final
		return false
	}
}

// ParticipantID identifies one signer node. Nodes may report it as a JSON number or string.
type ParticipantID string

// ResultType 节点上报结果类型
type ResultType int

const (
	ResultSuccess ResultType = iota + 1
	ResultError
)

func (t ResultType) String() string {
	switch t {
	case ResultSuccess:
		return WireResultTypeResult
	case ResultError:
		return WireResultTypeError
	default:
		return "unknown"
	}
}

// Result is one participant's contribution as stored in the ledger.
type Result struct {
	Type       ResultType
	Value      []byte
	Detail     string
	Order      uint64
	ReceivedAt time.Time
}

// ParticipantMessage is one inbound report from a signer node.
type ParticipantMessage struct {
	CorrelationID string
	ParticipantID ParticipantID
	ResultType    ResultType
	Value         []byte
	ErrorDetail   string
}

// Round is a point-in-time copy of one in-flight multi-party operation.
type Round struct {
	CorrelationID        string
	Kind                 Kind
	ExpectedParticipants int
	Payload              []byte
	Session              string
	Status               Status
	Results              map[ParticipantID]Result
	CreatedAt            time.Time
	Deadline             time.Time
}

// SuccessValues returns the successful values in receipt order.
func (r Round) SuccessValues() [][]byte {
	type ordered struct {
		order uint64
		value []byte
	}

	list := make([]ordered, 0, len(r.Results))
	for _, res := range r.Results {
		if res.Type == ResultSuccess {
			list = append(list, ordered{order: res.Order, value: res.Value})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].order < list[j].order })

	values := make([][]byte, len(list))
	for i, o := range list {
		values[i] = o.value
	}
	return values
}

// Partial returns the successful values keyed by participant.
func (r Round) Partial() map[ParticipantID][]byte {
	partial := make(map[ParticipantID][]byte, len(r.Results))
	for id, res := range r.Results {
		if res.Type == ResultSuccess {
			partial[id] = res.Value
		}
	}
	return partial
}
