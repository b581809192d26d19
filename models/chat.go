package models

import (
	"encoding/json"
	"time"
)

type ThreadType string

const (
	ThreadDirect    ThreadType = "direct"
	ThreadGroup     ThreadType = "group"
	ThreadAssistant ThreadType = "system_assistant"
)

type ParticipantRole string

const (
	RoleOwner  ParticipantRole = "owner"
	RoleMember ParticipantRole = "member"
)

type MessageSource string

const (
	SourceManual    MessageSource = "manual"
	SourceAutomated MessageSource = "automated"
	SourceSystem    MessageSource = "system"
)

type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
	KindFile  MessageKind = "file"
)

func (k MessageKind) IsAttachment() bool {
	return k == KindImage || k == KindFile
}

type Thread struct {
	ID        string     `json:"id"`
	Type      ThreadType `json:"type"`
	Title     *string    `json:"title,omitempty"`
	DMKey     *string    `json:"-"`
	Archived  bool       `json:"archived"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ThreadSummary is one row of a user's thread list.
type ThreadSummary struct {
	ID        string          `json:"id"`
	Type      ThreadType      `json:"type"`
	Title     *string         `json:"title,omitempty"`
	Role      ParticipantRole `json:"role"`
	Archived  bool            `json:"archived"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type Participant struct {
	ThreadID string          `json:"thread_id"`
	UserID   string          `json:"user_id"`
	Role     ParticipantRole `json:"role"`
	JoinedAt time.Time       `json:"joined_at"`
}

type Attachment struct {
	URL  string          `json:"url"`
	Name *string         `json:"name,omitempty"`
	Size *int64          `json:"size,omitempty"`
	Meta json.RawMessage `json:"meta,omitempty"`
}

type Message struct {
	ID         string        `json:"id"`
	ThreadID   string        `json:"thread_id"`
	SenderID   string        `json:"sender_id"`
	Source     MessageSource `json:"source"`
	Kind       MessageKind   `json:"kind"`
	Content    *string       `json:"content,omitempty"`
	Attachment *Attachment   `json:"attachment,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// Text returns the message content or "" for attachments.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}
