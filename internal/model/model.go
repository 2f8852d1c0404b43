package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ErrorModelTag marks entries that carry an error text instead of a real answer.
const ErrorModelTag = "error"

// DefaultThreadTitle is the title of a thread before its first user message.
const DefaultThreadTitle = "New conversation"

// Message stores a single message in a chat thread.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model,omitempty"` // Empty for user messages.
}

// IsError reports whether the message is an error placeholder.
func (m Message) IsError() bool { return m.Model == ErrorModelTag }

// ChatThread is a multi-turn conversation. It owns its messages.
type ChatThread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
}

// QnAItem is one single-turn question/answer pair.
type QnAItem struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Model     string    `json:"model"`
	Timestamp time.Time `json:"timestamp"`
}

// IsError reports whether the item is an error placeholder.
func (q QnAItem) IsError() bool { return q.Model == ErrorModelTag }

// ModelDescriptor is one entry of the model catalog.
type ModelDescriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
}

// FallbackCatalog is used when the catalog cannot be fetched.
var FallbackCatalog = []ModelDescriptor{
	{ID: "llama3.2:1b", DisplayName: "Llama 3.2 1B"},
	{ID: "llama3.2:3b", DisplayName: "Llama 3.2 3B"},
}

// NewID returns a time-ordered unique identifier.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewUserMessage builds a user message stamped with the current time.
func NewUserMessage(content string) Message {
	return Message{ID: NewID(), Role: RoleUser, Content: content, Timestamp: time.Now()}
}

// NewAssistantMessage builds an assistant message produced by modelID.
func NewAssistantMessage(content, modelID string) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Content: content, Timestamp: time.Now(), Model: modelID}
}
