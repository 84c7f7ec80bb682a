package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const DefaultTitle = "New Chat"

// Backend selects which inference provider serves a request.
type Backend string

const (
	BackendLocal  Backend = "local"
	BackendRouted Backend = "routed"
)

func (b Backend) Valid() bool {
	return b == BackendLocal || b == BackendRouted
}

// Role is the closed set of message authors.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

type Conversation struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Owner     string    `gorm:"column:user_id;not null;index" json:"user_id"`
	Title     string    `gorm:"not null" json:"title"`
	TitleFold string    `gorm:"not null;default:''" json:"-"`
	Model     string    `gorm:"not null" json:"model"`
	Backend   Backend   `gorm:"column:llm;not null" json:"llm"`
	Messages  []Message `gorm:"constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime:false" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;index" json:"updated_at"`
}

// Fold is the case-folded form stored next to searchable text. Folding
// happens in Go because SQLite's LOWER only maps ASCII.
func Fold(s string) string {
	return strings.ToLower(s)
}

// Message is one immutable turn. ID and CreatedAt are assigned by the store;
// client-side optimistic copies leave them zero.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id,omitempty"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index:idx_messages_conversation,priority:1" json:"conversation_id,omitempty"`
	Role           Role           `gorm:"not null" json:"role"`
	Content        string         `gorm:"type:text;not null" json:"content"`
	ContentFold    string         `gorm:"type:text;not null;default:''" json:"-"`
	Model          string         `json:"model,omitempty"`
	Backend        Backend        `gorm:"column:llm" json:"llm,omitempty"`
	Metadata       datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt      time.Time      `gorm:"autoCreateTime:false;index:idx_messages_conversation,priority:2" json:"created_at,omitempty"`
}

// ConversationDetail is a conversation with its full transcript.
type ConversationDetail struct {
	Conversation Conversation `json:"conversation"`
	Messages     []Message    `json:"messages"`
}

// ChatMessage is the provenance-free shape forwarded to backends.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatMessages strips provenance fields from a transcript.
func ChatMessages(msgs []Message) []ChatMessage {
	out := make([]ChatMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ChatMessage{Role: m.Role, Content: m.Content}
	}
	return out
}
