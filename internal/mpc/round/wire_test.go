package round

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeStartMessage(t *testing.T) {
	data, err := EncodeStartMessage(Round{
		CorrelationID: "c1",
		Kind:          KindSigning,
		Payload:       []byte("hello"),
		Session:       "session-1",
	})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "c1", raw["correlationId"])
	assert.Equal(t, "sign", raw["action"])
	assert.Equal(t, "aGVsbG8=", raw["payload"])
	assert.Equal(t, "session-1", raw["session"])

	msg, err := DecodeStartMessage(data)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), msg.Payload)

	data, err = EncodeStartMessage(Round{CorrelationID: "c2", Kind: KindKeyGeneration})
	require.NoError(t, err)
	assert.JSONEq(t, `{"correlationId":"c2","action":"startdkg","payload":""}`, string(data))

	_, err = DecodeStartMessage([]byte(`{"action":"sign"}`))
	assert.Error(t, err)
}

func TestDecodeResultMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ParticipantMessage
	}{
		{
			name: "string participant",
			in:   `{"correlationId":"c1","participantId":"node-a","resultType":"result","value":"pk"}`,
			want: ParticipantMessage{CorrelationID: "c1", ParticipantID: "node-a", ResultType: ResultSuccess, Value: []byte("pk")},
		},
		{
			name: "numeric participant",
			in:   `{"correlationId":"c1","participantId":2,"resultType":"result","value":"pk"}`,
			want: ParticipantMessage{CorrelationID: "c1", ParticipantID: "2", ResultType: ResultSuccess, Value: []byte("pk")},
		},
		{
			name: "error",
			in:   `{"correlationId":"c1","participantId":1,"resultType":"error","error":"share missing"}`,
			want: ParticipantMessage{CorrelationID: "c1", ParticipantID: "1", ResultType: ResultError, ErrorDetail: "share missing"},
		},
		{
			name: "error without detail",
			in:   `{"correlationId":"c1","participantId":1,"resultType":"error"}`,
			want: ParticipantMessage{CorrelationID: "c1", ParticipantID: "1", ResultType: ResultError, ErrorDetail: unspecifiedDetail},
		},
		{
			name: "legacy dkg result",
			in:   `{"id":"c1","server_id":1,"result_type":"dkg-result","data":"pk"}`,
			want: ParticipantMessage{CorrelationID: "c1", ParticipantID: "1", ResultType: ResultSuccess, Value: []byte("pk")},
		},
		{
			name: "legacy sign error",
			in:   `{"id":"c1","server_id":"2","result_type":"sign-error","error":"boom"}`,
			want: ParticipantMessage{CorrelationID: "c1", ParticipantID: "2", ResultType: ResultError, ErrorDetail: "boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeResultMessage([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestDecodeResultMessage_Malformed(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`{"participantId":1,"resultType":"result","value":"pk"}`,
		`{"correlationId":"c1","resultType":"result","value":"pk"}`,
		`{"correlationId":"c1","participantId":1,"resultType":"result"}`,
		`{"correlationId":"c1","participantId":1,"resultType":"result","value":""}`,
		`{"correlationId":"c1","participantId":1,"resultType":"progress","value":"x"}`,
		`{"correlationId":"c1","participantId":true,"resultType":"result","value":"x"}`,
	} {
		_, err := DecodeResultMessage([]byte(in))
		assert.ErrorIs(t, err, ErrMalformedMessage, in)
	}
}

func TestEncodeResultMessageRoundTrip(t *testing.T) {
	data, err := EncodeResultMessage(ResultMessage{
		CorrelationID: "c1",
		ParticipantID: "1",
		ResultType:    WireResultTypeResult,
		Value:         "sig",
	})
	require.NoError(t, err)

	msg, err := DecodeResultMessage(data)
	require.NoError(t, err)
	assert.Equal(t, ParticipantID("1"), msg.ParticipantID)
	assert.Equal(t, []byte("sig"), msg.Value)
}
