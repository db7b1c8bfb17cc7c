package round

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

const (
	ActionStartDKG = "startdkg"
	ActionSign     = "sign"

	WireResultTypeResult = "result"
	WireResultTypeError  = "error"

	// result types emitted by the first generation of signer nodes
	legacyResultDKG   = "dkg-result"
	legacyResultSign  = "sign-result"
	legacyErrorDKG    = "dkg-error"
	legacyErrorSign   = "sign-error"
	unspecifiedDetail = "unspecified participant error"
)

// ErrMalformedMessage 参与方消息无法解析
var ErrMalformedMessage = errors.New("malformed participant message")

// StartMessage is published to the start topic of a round's kind.
type StartMessage struct {
	CorrelationID string `json:"correlationId"`
	Action        string `json:"action"`
	Payload       []byte `json:"payload"`
	Session       string `json:"session,omitempty"`
}

// ResultMessage is the wire shape of a participant report.
type ResultMessage struct {
	CorrelationID string        `json:"correlationId"`
	ParticipantID ParticipantID `json:"participantId"`
	ResultType    string        `json:"resultType"`
	Value         string        `json:"value,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// UnmarshalJSON accepts both JSON strings and numbers.
func (p *ParticipantID) UnmarshalJSON(data []byte) error {
	s, err := flexibleString(data)
	if err != nil {
		return errors.Wrap(err, "participant id")
	}
	*p = ParticipantID(s)
	return nil
}

func flexibleString(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", errors.Errorf("expected string or number, got %s", string(data))
	}
	return n.String(), nil
}

type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	s, err := flexibleString(data)
	if err != nil {
		return err
	}
	*f = flexString(s)
	return nil
}

// wireResult carries both the current field names and the ones used by legacy nodes
// ({id, server_id, result_type, data, error}).
type wireResult struct {
	CorrelationID flexString `json:"correlationId"`
	ParticipantID flexString `json:"participantId"`
	ResultType    string     `json:"resultType"`
	Value         *string    `json:"value"`
	Error         string     `json:"error"`

	LegacyID         flexString `json:"id"`
	LegacyServerID   flexString `json:"server_id"`
	LegacyResultType string     `json:"result_type"`
	LegacyData       *string    `json:"data"`
}

// EncodeStartMessage builds the start message for a round.
func EncodeStartMessage(r Round) ([]byte, error) {
	msg := StartMessage{
		CorrelationID: r.CorrelationID,
		Action:        r.Kind.Action(),
		Payload:       r.Payload,
		Session:       r.Session,
	}
	if msg.Payload == nil {
		msg.Payload = []byte{}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal start message")
	}
	return data, nil
}

// DecodeStartMessage is used by tooling and test signers.
func DecodeStartMessage(data []byte) (*StartMessage, error) {
	var msg StartMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal start message")
	}
	if msg.CorrelationID == "" {
		return nil, errors.New("start message without correlation id")
	}
	return &msg, nil
}

// EncodeResultMessage marshals a participant report in the current wire shape.
func EncodeResultMessage(msg ResultMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal result message")
	}
	return data, nil
}

// DecodeResultMessage validates and converts a wire report into a ParticipantMessage.
func DecodeResultMessage(data []byte) (*ParticipantMessage, error) {
	var w wireResult
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}

	correlationID := string(w.CorrelationID)
	if correlationID == "" {
		correlationID = string(w.LegacyID)
	}
	participantID := string(w.ParticipantID)
	if participantID == "" {
		participantID = string(w.LegacyServerID)
	}
	resultType := w.ResultType
	if resultType == "" {
		resultType = w.LegacyResultType
	}
	value := w.Value
	if value == nil {
		value = w.LegacyData
	}

	if correlationID == "" {
		return nil, errors.Wrap(ErrMalformedMessage, "missing correlation id")
	}
	if participantID == "" {
		return nil, errors.Wrap(ErrMalformedMessage, "missing participant id")
	}

	msg := &ParticipantMessage{
		CorrelationID: correlationID,
		ParticipantID: ParticipantID(participantID),
	}

	switch strings.ToLower(resultType) {
	case WireResultTypeResult, legacyResultDKG, legacyResultSign:
		if value == nil || *value == "" {
			return nil, errors.Wrap(ErrMalformedMessage, "result without value")
		}
		msg.ResultType = ResultSuccess
		msg.Value = []byte(*value)
	case WireResultTypeError, legacyErrorDKG, legacyErrorSign:
		msg.ResultType = ResultError
		msg.ErrorDetail = w.Error
		if msg.ErrorDetail == "" {
			msg.ErrorDetail = unspecifiedDetail
		}
	default:
		return nil, errors.Wrapf(ErrMalformedMessage, "unknown result type %q", resultType)
	}

	return msg, nil
}
