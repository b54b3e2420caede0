package ws

import (
	"errors"
	"log"

	"github.com/haven-chat/signalroom/internal/protocol"
)

// MessageHandler is the callback signature for handling a parsed client
// message. msg is the concrete payload struct returned by
// protocol.DecodeClientPayload (e.g. protocol.SendMessageMsg).
type MessageHandler func(conn *Connection, msg interface{})

// MessageDispatcher routes incoming WebSocket frames to registered handlers
// based on the envelope's type tag. Malformed frames and unrecognized types
// are logged and dropped silently (spec.md §4.3); a recognized type used in
// a state that forbids it is the handler's responsibility to reject with an
// ERROR frame — the dispatcher only handles parsing and routing.
type MessageDispatcher struct {
	handlers map[string]MessageHandler
	server   *Server
}

// NewMessageDispatcher creates a MessageDispatcher bound to the given server.
// The server reference is used to send responses back to clients.
func NewMessageDispatcher(server *Server) *MessageDispatcher {
	return &MessageDispatcher{
		handlers: make(map[string]MessageHandler),
		server:   server,
	}
}

// SetServer assigns the Server reference on the dispatcher. This supports the
// initialization pattern where the dispatcher is created before the server
// (since NewServer requires the Dispatch callback).
func (d *MessageDispatcher) SetServer(server *Server) {
	d.server = server
}

// Register associates a MessageHandler with a message type. If a handler was
// already registered for the given type, it is silently replaced.
func (d *MessageDispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the onMessage callback implementation. It parses the envelope,
// decodes and validates the payload for the declared type, and routes it to
// the registered handler. Malformed JSON, a missing type, a type outside the
// client vocabulary, or a payload that fails validation are all logged and
// dropped — the connection stays open, per spec.md §4.3.
func (d *MessageDispatcher) Dispatch(conn *Connection, data []byte) {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		log.Printf("ws: malformed frame session=%s: %v", conn.ID, err)
		return
	}

	payload, err := protocol.DecodeClientPayload(env.Type, env.Data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			log.Printf("ws: unrecognized frame type=%q session=%s", env.Type, conn.ID)
		} else {
			log.Printf("ws: invalid payload type=%q session=%s: %v", env.Type, conn.ID, err)
		}
		return
	}

	handler, ok := d.handlers[env.Type]
	if !ok {
		log.Printf("ws: no handler registered for type=%q session=%s", env.Type, conn.ID)
		return
	}

	handler(conn, payload)
}

// SendError sends a structured ERROR frame back to the client (spec.md §4.3:
// "anything else -> emit ERROR{message}; do not drop the connection").
// Handlers call this when a recognized message type arrives in a state that
// forbids it.
func (d *MessageDispatcher) SendError(conn *Connection, message string) {
	data, err := protocol.NewServerMessage(protocol.TypeError, protocol.ErrorMsg{Message: message})
	if err != nil {
		log.Printf("ws: failed to build error message session=%s: %v", conn.ID, err)
		return
	}

	if err := conn.WriteMessage(data); err != nil {
		log.Printf("ws: failed to send error message session=%s: %v", conn.ID, err)
	}
}
