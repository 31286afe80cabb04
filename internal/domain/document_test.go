package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocument(t *testing.T) {
	now := time.Now()
	doc := NewDocument("d1", "org1", "c1", "vertrag.pdf", "application/pdf", "abc", "org1/d1", 2048, now)

	assert.Equal(t, "d1", doc.ID)
	assert.Equal(t, "c1", doc.ConversationID)
	assert.Equal(t, int64(2048), doc.SizeBytes)
	assert.False(t, doc.IsImage())

	doc.MimeType = "image/png"
	assert.True(t, doc.IsImage())
}

func TestValidateDocument(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		doc     *Document
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid document",
			doc:  &Document{ID: "d1", OrgID: "org1", Filename: "a.pdf", MimeType: "application/pdf", StorageKey: "k", CreatedAt: now},
		},
		{
			name:    "missing StorageKey",
			doc:     &Document{ID: "d1", OrgID: "org1", Filename: "a.pdf", MimeType: "application/pdf"},
			wantErr: true,
			errMsg:  "StorageKey",
		},
		{
			name:    "missing MimeType",
			doc:     &Document{ID: "d1", OrgID: "org1", Filename: "a.pdf", StorageKey: "k"},
			wantErr: true,
			errMsg:  "MimeType",
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: true,
			errMsg:  "nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
