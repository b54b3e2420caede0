package protocol

import (
	"encoding/json"
	"testing"
)

func TestNewServerMessage_RoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		msgType string
		payload interface{}
	}{
		{"queue_joined", TypeQueueJoined, QueueJoinedMsg{}},
		{"partner_found", TypePartnerFound, PartnerFoundMsg{RoomID: "room-1"}},
		{"banned", TypeBanned, BannedMsg{}},
		{"error", TypeError, ErrorMsg{Message: "bad state"}},
		{"rate_limited", TypeRateLimited, RateLimitedMsg{Message: "slow down"}},
		{"message_flagged", TypeMessageFlagged, MessageFlaggedMsg{Message: "flagged"}},
		{
			"message_received",
			TypeMessageReceived,
			MessageReceivedMsg{Message: Message{
				ID: "m1", Content: "hi", SenderID: "s1", Timestamp: 1000, Type: MessageTypeUser,
			}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, err := NewServerMessage(tc.msgType, tc.payload)
			if err != nil {
				t.Fatalf("NewServerMessage: %v", err)
			}

			env, err := ParseEnvelope(raw)
			if err != nil {
				t.Fatalf("ParseEnvelope: %v", err)
			}
			if env.Type != tc.msgType {
				t.Fatalf("type = %q, want %q", env.Type, tc.msgType)
			}
		})
	}
}

func TestParseEnvelope_MissingType(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"data":{}}`))
	if err == nil {
		t.Fatal("expected error for missing type")
	}
}

func TestParseEnvelope_MalformedJSON(t *testing.T) {
	_, err := ParseEnvelope([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestDecodeClientPayload_AllTypes(t *testing.T) {
	cases := []struct {
		msgType string
		data    string
		wantErr bool
	}{
		{TypeJoinQueue, `{}`, false},
		{TypeJoinQueue, `{"interests":["music","movies"]}`, false},
		{TypeLeaveQueue, `{}`, false},
		{TypeTyping, `{}`, false},
		{TypeStopTyping, `{}`, false},
		{TypeDisconnectChat, `{}`, false},
		{TypeSendMessage, `{"content":"hello"}`, false},
		{TypeSendMessage, `{}`, true}, // missing required content
		{TypeSendMedia, `{"url":"https://example.com/a.png","kind":"image"}`, false},
		{TypeSendMedia, `{"url":"https://example.com/a.png","kind":"audio"}`, true}, // not in oneof
		{TypeReportPartner, `{"reason":"spam"}`, false},
		{"bogus_type", `{}`, true},
	}

	for _, tc := range cases {
		t.Run(tc.msgType, func(t *testing.T) {
			_, err := DecodeClientPayload(tc.msgType, json.RawMessage(tc.data))
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDecodeClientPayload_UnknownTypeSentinel(t *testing.T) {
	_, err := DecodeClientPayload("not_a_real_event", json.RawMessage(`{}`))
	if err != ErrUnknownType {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeClientPayload_JoinQueueDefaultsToNilInterests(t *testing.T) {
	payload, err := DecodeClientPayload(TypeJoinQueue, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := payload.(JoinQueueMsg)
	if !ok {
		t.Fatalf("wrong type: %T", payload)
	}
	if len(m.Interests) != 0 {
		t.Fatalf("expected no interests, got %v", m.Interests)
	}
}
