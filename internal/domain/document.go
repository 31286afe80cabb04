package domain

import (
	"strings"
	"time"
)

// Document is a file a user attached to a conversation
type Document struct {
	ID             string
	OrgID          string
	ConversationID string
	Filename       string
	MimeType       string
	SizeBytes      int64
	SHA256         string
	StorageKey     string
	ExtractedText  string
	CreatedAt      time.Time
}

// NewDocument creates a new Document instance
func NewDocument(
	id, orgID, conversationID string,
	filename, mimeType, sha256, storageKey string,
	sizeBytes int64,
	createdAt time.Time,
) *Document {
	return &Document{
		ID:             id,
		OrgID:          orgID,
		ConversationID: conversationID,
		Filename:       filename,
		MimeType:       mimeType,
		SizeBytes:      sizeBytes,
		SHA256:         sha256,
		StorageKey:     storageKey,
		CreatedAt:      createdAt,
	}
}

// IsImage reports whether the document is sent to the model as an image.
func (d *Document) IsImage() bool {
	return strings.HasPrefix(d.MimeType, "image/")
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return nilEntity("document")
	}
	return checkRequired("document",
		required{"ID", d.ID},
		required{"OrgID", d.OrgID},
		required{"Filename", d.Filename},
		required{"MimeType", d.MimeType},
		required{"StorageKey", d.StorageKey},
	)
}
