package models

// Realtime event types exchanged over the session socket.
const (
	EventJoin        = "thread:join"
	EventLeave       = "thread:leave"
	EventSend        = "message:send"
	EventPing        = "ping"
	EventJoined      = "thread:joined"
	EventLeft        = "thread:left"
	EventMessageNew  = "message:new"
	EventMessageSent = "message:sent"
	EventPong        = "pong"
	EventError       = "error"
)

// Inbound is a client to server frame.
type Inbound struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	ThreadID  string `json:"threadId,omitempty"`
	Content   string `json:"content,omitempty"`
}

// Outbound is a server to client frame.
type Outbound struct {
	Type      string   `json:"type"`
	RequestID string   `json:"requestId,omitempty"`
	ThreadID  string   `json:"threadId,omitempty"`
	Message   *Message `json:"message,omitempty"`
	Kind      string   `json:"kind,omitempty"`
	Error     string   `json:"error,omitempty"`
}
