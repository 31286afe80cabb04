//go:build integration

package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/counsel/internal/domain"
)

func TestTemplateRepository_ListByOrg(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewTemplateRepository(pool)

	org := createOrg(t, pool, "Kanzlei Weber")
	other := createOrg(t, pool, "Andere")
	for _, tpl := range []*domain.Template{
		{ID: uuid.NewString(), OrgID: org.ID, Name: "Mahnung", Category: "Forderung", CreatedAt: now()},
		{ID: uuid.NewString(), OrgID: org.ID, Name: "Abmahnung", Category: "Arbeitsrecht", Description: "Arbeitnehmer", CreatedAt: now()},
		{ID: uuid.NewString(), OrgID: org.ID, Name: "Kündigung", Category: "Arbeitsrecht", CreatedAt: now()},
		{ID: uuid.NewString(), OrgID: other.ID, Name: "Fremd", CreatedAt: now()},
	} {
		require.NoError(t, repo.Create(ctx, tpl))
	}

	got, err := repo.ListByOrg(ctx, org.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Abmahnung", "Kündigung", "Mahnung"}, []string{got[0].Name, got[1].Name, got[2].Name})
	assert.Equal(t, "Arbeitnehmer", got[0].Description)

	err = repo.Create(ctx, &domain.Template{ID: uuid.NewString(), OrgID: uuid.NewString(), Name: "x", CreatedAt: now()})
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
}

func TestDocumentRepository_GetByIDs(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewDocumentRepository(pool)

	org := createOrg(t, pool, "Kanzlei Weber")
	other := createOrg(t, pool, "Andere")
	conv := createConversation(t, pool, org.ID, "anna", "", now())

	newDoc := func(orgID, convID, name, text string) *domain.Document {
		d := &domain.Document{
			ID: uuid.NewString(), OrgID: orgID, ConversationID: convID,
			Filename: name, MimeType: "application/pdf", SizeBytes: 1024,
			StorageKey: "documents/" + name, ExtractedText: text, CreatedAt: now(),
		}
		require.NoError(t, repo.Create(ctx, d))
		return d
	}

	contract := newDoc(org.ID, conv.ID, "mietvertrag.pdf", "§ 1 Mietsache")
	letter := newDoc(org.ID, "", "schreiben.pdf", "")
	foreign := newDoc(other.ID, "", "fremd.pdf", "geheim")

	got, err := repo.GetByIDs(ctx, org.ID, []string{letter.ID, "junk", foreign.ID, contract.ID, letter.ID, uuid.NewString()})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, letter.ID, got[0].ID)
	assert.Empty(t, got[0].ConversationID)
	assert.Empty(t, got[0].ExtractedText)

	assert.Equal(t, contract.ID, got[1].ID)
	assert.Equal(t, conv.ID, got[1].ConversationID)
	assert.Equal(t, "§ 1 Mietsache", got[1].ExtractedText)

	none, err := repo.GetByIDs(ctx, org.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}
