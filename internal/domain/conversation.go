package domain

import (
	"strings"
	"time"
)

const conversationTitleMaxRunes = 60

// Conversation is a thread of messages owned by one user, optionally shared through a project.
type Conversation struct {
	ID        string
	OrgID     string
	OwnerID   string
	ProjectID string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewConversation creates a new Conversation instance
func NewConversation(id, orgID, ownerID, projectID, title string, createdAt time.Time) *Conversation {
	return &Conversation{
		ID:        id,
		OrgID:     orgID,
		OwnerID:   ownerID,
		ProjectID: projectID,
		Title:     title,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// ValidateConversation validates a Conversation instance
func ValidateConversation(c *Conversation) error {
	if c == nil {
		return nilEntity("conversation")
	}
	return checkRequired("conversation",
		required{"ID", c.ID},
		required{"OrgID", c.OrgID},
		required{"OwnerID", c.OwnerID},
	)
}

// IsOwnedBy reports whether the identity created the conversation.
func (c *Conversation) IsOwnedBy(identity Identity) bool {
	return c.OrgID == identity.OrgID && c.OwnerID == identity.UserID
}

// TitleFromMessage derives a conversation title from the first user message,
// cutting at a word boundary when the text is long.
func TitleFromMessage(message string) string {
	message = strings.Join(strings.Fields(message), " ")
	runes := []rune(message)
	if len(runes) <= conversationTitleMaxRunes {
		return message
	}
	truncated := string(runes[:conversationTitleMaxRunes])
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > len(truncated)/2 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}
