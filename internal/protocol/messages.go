// Package protocol defines the wire format exchanged between clients and the
// wsserver: a JSON envelope carrying a type tag and a nested data object, the
// concrete payload shapes for every client and server message, and the
// decode/validate step that turns a raw frame into a typed Go value.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Envelope is the shape of every frame exchanged over /ws:
// {"type": <string>, "data": <object>}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client → server event types.
const (
	TypeJoinQueue      = "join_queue"
	TypeLeaveQueue     = "leave_queue"
	TypeSendMessage    = "send_message"
	TypeTyping         = "typing"
	TypeStopTyping     = "stop_typing"
	TypeDisconnectChat = "disconnect_chat"
	TypeSendMedia      = "send_media"
	TypeReportPartner  = "report_partner" // additive, see SPEC_FULL.md §14
)

// Server → client event types.
const (
	TypeSessionCreated       = "session_created" // additive bootstrap frame, precedes queue_joined
	TypeQueueJoined          = "queue_joined"
	TypePartnerFound         = "partner_found"
	TypeMessageReceived      = "message_received"
	TypeMediaReceived        = "media_received"
	TypePartnerTyping        = "partner_typing"
	TypePartnerStoppedTyping = "partner_stopped_typing"
	TypePartnerDisconnected  = "partner_disconnected"
	TypeBanned               = "banned"
	TypeError                = "error"
	TypeRateLimited          = "rate_limited"
	TypeMessageFlagged       = "message_flagged"
)

// JoinQueueMsg optionally carries client-supplied routing hints (see
// SPEC_FULL.md §4.2.1); absent entirely, matching falls back to strict FIFO.
type JoinQueueMsg struct {
	Interests []string `json:"interests,omitempty" validate:"omitempty,max=8,dive,max=32"`
}

// SendMessageMsg is the payload of a send_message frame.
type SendMessageMsg struct {
	Content string `json:"content" validate:"required"`
}

// SendMediaMsg is the payload of a send_media frame.
type SendMediaMsg struct {
	URL  string `json:"url" validate:"required"`
	Kind string `json:"kind" validate:"required,oneof=image video"`
	Name string `json:"name,omitempty"`
	Size int64  `json:"size,omitempty" validate:"gte=0"`
}

// ReportPartnerMsg is the payload of a report_partner frame.
type ReportPartnerMsg struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Message is the shared shape relayed in message_received / media_received.
type Message struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	SenderID  string `json:"senderId"`
	Timestamp int64  `json:"timestamp"`
	Type      string `json:"type"` // user | system
	MediaURL  string `json:"mediaUrl,omitempty"`
	MediaKind string `json:"mediaKind,omitempty"`
	FileName  string `json:"fileName,omitempty"`
	FileSize  int64  `json:"fileSize,omitempty"`
}

const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"
)

type SessionCreatedMsg struct {
	SessionID string `json:"sessionId"`
}

type PartnerFoundMsg struct {
	RoomID string `json:"roomId"`
}

type MessageReceivedMsg struct {
	Message Message `json:"message"`
}

type MediaReceivedMsg struct {
	Message Message `json:"message"`
}

type ErrorMsg struct {
	Message string `json:"message"`
}

type RateLimitedMsg struct {
	Message string `json:"message"`
}

type MessageFlaggedMsg struct {
	Message string `json:"message"`
}

type BannedMsg struct{}
type QueueJoinedMsg struct{}
type PartnerTypingMsg struct{}
type PartnerStoppedTypingMsg struct{}
type PartnerDisconnectedMsg struct{}

// NewServerMessage marshals a typed payload into a full envelope frame ready
// to write to a connection.
func NewServerMessage(msgType string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s payload: %w", msgType, err)
	}
	env := Envelope{Type: msgType, Data: data}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal envelope %s: %w", msgType, err)
	}
	return out, nil
}

// ParseEnvelope decodes the outer {"type","data"} shape. It does not
// validate the inner payload — callers should follow with DecodeClientPayload.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("protocol: malformed envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("protocol: envelope missing type")
	}
	return &env, nil
}

// DecodeClientPayload decodes and validates the data object for a known
// client event type. The returned value's concrete type matches the msgType
// (e.g. TypeSendMessage → SendMessageMsg). ErrUnknownType is returned for any
// type not in the client vocabulary — callers should treat this as "ignore
// silently, log a warning" per SPEC_FULL.md §4.3, not as an ERROR frame.
func DecodeClientPayload(msgType string, data json.RawMessage) (interface{}, error) {
	var payload interface{}

	switch msgType {
	case TypeJoinQueue:
		var m JoinQueueMsg
		if len(data) > 0 {
			if err := json.Unmarshal(data, &m); err != nil {
				return nil, fmt.Errorf("protocol: decode join_queue: %w", err)
			}
		}
		payload = m
	case TypeLeaveQueue, TypeStopTyping, TypeTyping, TypeDisconnectChat:
		// No payload fields required for these.
		payload = struct{}{}
	case TypeSendMessage:
		var m SendMessageMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode send_message: %w", err)
		}
		payload = m
	case TypeSendMedia:
		var m SendMediaMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode send_media: %w", err)
		}
		payload = m
	case TypeReportPartner:
		var m ReportPartnerMsg
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("protocol: decode report_partner: %w", err)
		}
		payload = m
	default:
		return nil, ErrUnknownType
	}

	if err := validate.Struct(payload); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); !ok {
			return nil, fmt.Errorf("protocol: validate %s: %w", msgType, err)
		}
	}

	return payload, nil
}

// ErrUnknownType marks a frame whose type is not part of the client
// vocabulary — distinct from a recognized type used in a disallowed state.
var ErrUnknownType = fmt.Errorf("protocol: unknown message type")
