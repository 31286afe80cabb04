package domain

import "time"

// Role is the author of a conversational turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// IsValid checks if the role is one of the persisted roles
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Citation is a legal identifier referenced by an answer, with its provenance.
type Citation struct {
	Identifier string `json:"identifier"`
	Source     string `json:"source,omitempty"`
	Verified   bool   `json:"verified"`
}

// Message is a persisted conversational turn.
type Message struct {
	ID                 string
	ConversationID     string
	Role               Role
	Content            string
	Citations          []Citation
	UsedExternalSearch bool
	Model              string
	CreatedAt          time.Time
}

// NewMessage creates a new Message instance
func NewMessage(id, conversationID string, role Role, content string, createdAt time.Time) *Message {
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      createdAt,
	}
}

// ValidateMessage validates a Message instance
func ValidateMessage(m *Message) error {
	if m == nil {
		return nilEntity("message")
	}
	if err := checkRequired("message",
		required{"ID", m.ID},
		required{"ConversationID", m.ConversationID},
	); err != nil {
		return err
	}
	if !m.Role.IsValid() {
		return ErrInvalidRole
	}
	return nil
}
