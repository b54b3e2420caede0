package chat

// ChatEvent is the payload published to NATS chat.<chat_id> subjects
// for real-time communication between paired users.
type ChatEvent struct {
	Type      string `json:"type"`                 // "message", "media", "typing", "partner_left"
	From      string `json:"from"`                 // sender's session ID
	Text      string `json:"text,omitempty"`        // message content, or media URL for media events
	MediaKind string `json:"media_kind,omitempty"`  // "image" | "video", for media events
	FileName  string `json:"file_name,omitempty"`   // for media events
	FileSize  int64  `json:"file_size,omitempty"`   // for media events
	IsTyping  bool   `json:"is_typing,omitempty"`   // for typing events
	Ts        int64  `json:"ts,omitempty"`          // unix timestamp for messages/media
}
