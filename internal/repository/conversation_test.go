//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/pagination"
	"github.com/cloo-solutions/counsel/internal/service"
)

func conversationIDs(cs []*domain.Conversation) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
	}
	return ids
}

func TestConversationRepository(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewConversationRepository(pool)
	base := now().Add(-24 * time.Hour)

	t.Run("create and get", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")
		p := createProject(t, pool, org.ID, "Mandat Müller")
		c := createConversation(t, pool, org.ID, "anna", p.ID, base)
		solo := createConversation(t, pool, org.ID, "anna", "", base)

		got, err := repo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ProjectID)
		assert.Equal(t, "anna", got.OwnerID)
		assert.True(t, base.Equal(got.UpdatedAt))

		got, err = repo.GetByID(ctx, solo.ID)
		require.NoError(t, err)
		assert.Empty(t, got.ProjectID)
	})

	t.Run("unknown project", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")
		err := repo.Create(ctx, &domain.Conversation{
			ID: uuid.NewString(), OrgID: org.ID, OwnerID: "anna", ProjectID: uuid.NewString(),
			CreatedAt: base, UpdatedAt: base,
		})
		assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	})

	t.Run("not found", func(t *testing.T) {
		resetDB(t, pool)
		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)
		_, err = repo.GetByID(ctx, "abc")
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	})

	t.Run("list accessible covers owned and project conversations", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")
		other := createOrg(t, pool, "Andere")
		shared := createProject(t, pool, org.ID, "Mandat Müller", "anna", "ben")
		private := createProject(t, pool, org.ID, "Mandat Schulz", "ben")

		own := createConversation(t, pool, org.ID, "anna", "", base.Add(1*time.Minute))
		viaProject := createConversation(t, pool, org.ID, "ben", shared.ID, base.Add(3*time.Minute))
		createConversation(t, pool, org.ID, "ben", private.ID, base.Add(4*time.Minute))
		createConversation(t, pool, org.ID, "ben", "", base.Add(5*time.Minute))
		createConversation(t, pool, other.ID, "anna", "", base.Add(6*time.Minute))

		got, err := repo.ListAccessible(ctx, org.ID, "anna", nil, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{viaProject.ID, own.ID}, conversationIDs(got))
	})

	t.Run("cursor pagination", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")
		var created []*domain.Conversation
		for i := range 5 {
			created = append(created, createConversation(t, pool, org.ID, "anna", "", base.Add(time.Duration(i)*time.Minute)))
		}

		page1, err := repo.ListAccessible(ctx, org.ID, "anna", nil, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{created[4].ID, created[3].ID}, conversationIDs(page1))

		last := page1[len(page1)-1]
		page2, err := repo.ListAccessible(ctx, org.ID, "anna", &pagination.Cursor{LastID: last.ID, Timestamp: last.UpdatedAt}, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{created[2].ID, created[1].ID}, conversationIDs(page2))

		_, err = repo.ListAccessible(ctx, org.ID, "anna", &pagination.Cursor{LastID: "x", Timestamp: base}, 2)
		assert.ErrorIs(t, err, domain.ErrInvalidCursor)
	})

	t.Run("touch only moves forward", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")
		c := createConversation(t, pool, org.ID, "anna", "", base)

		later := base.Add(time.Hour)
		require.NoError(t, repo.Touch(ctx, c.ID, later))
		require.NoError(t, repo.Touch(ctx, c.ID, base))

		got, err := repo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, later.Equal(got.UpdatedAt))
	})
}

func TestMessageRepository(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewMessageRepository(pool)
	base := now().Add(-time.Hour)

	addMessage := func(t *testing.T, convID string, role domain.Role, content string, at time.Time) *domain.Message {
		t.Helper()
		m := &domain.Message{ID: uuid.NewString(), ConversationID: convID, Role: role, Content: content, CreatedAt: at}
		require.NoError(t, repo.Create(ctx, m))
		return m
	}

	t.Run("citations round trip", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")
		c := createConversation(t, pool, org.ID, "anna", "", base)

		m := &domain.Message{
			ID:                 uuid.NewString(),
			ConversationID:     c.ID,
			Role:               domain.RoleAssistant,
			Content:            "Siehe BGH VIII ZR 277/16.",
			Citations:          []domain.Citation{{Identifier: "VIII ZR 277/16", Source: "tool", Verified: true}},
			UsedExternalSearch: true,
			Model:              "gpt-4o",
			CreatedAt:          base,
		}
		require.NoError(t, repo.Create(ctx, m))
		addMessage(t, c.ID, domain.RoleUser, "Danke", base.Add(time.Second))

		msgs, err := repo.ListByConversation(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, m.Citations, msgs[0].Citations)
		assert.True(t, msgs[0].UsedExternalSearch)
		assert.Equal(t, "gpt-4o", msgs[0].Model)
		assert.Equal(t, domain.RoleUser, msgs[1].Role)
		assert.NotNil(t, msgs[1].Citations)
		assert.Empty(t, msgs[1].Citations)
	})

	t.Run("list recent keeps creation order", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")
		c := createConversation(t, pool, org.ID, "anna", "", base)
		var ids []string
		for i := range 5 {
			ids = append(ids, addMessage(t, c.ID, domain.RoleUser, "m", base.Add(time.Duration(i)*time.Second)).ID)
		}

		recent, err := repo.ListRecent(ctx, c.ID, 3)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		assert.Equal(t, ids[2:], []string{recent[0].ID, recent[1].ID, recent[2].ID})

		empty, err := repo.ListByConversation(ctx, uuid.NewString())
		require.NoError(t, err)
		assert.NotNil(t, empty)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		resetDB(t, pool)
		err := repo.Create(ctx, &domain.Message{ID: uuid.NewString(), ConversationID: uuid.NewString(), Role: domain.RoleUser, Content: "x", CreatedAt: base})
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	})
}

func TestTxRunner(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	runner := NewTxRunner(pool)
	conversations := NewConversationRepository(pool)

	org := createOrg(t, pool, "Kanzlei Weber")
	newConversation := func() *domain.Conversation {
		at := now()
		return &domain.Conversation{ID: uuid.NewString(), OrgID: org.ID, OwnerID: "anna", Title: "t", CreatedAt: at, UpdatedAt: at}
	}

	t.Run("commit", func(t *testing.T) {
		c := newConversation()
		err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
			if err := repos.Conversations().Create(ctx, c); err != nil {
				return err
			}
			return repos.Messages().Create(ctx, &domain.Message{
				ID: uuid.NewString(), ConversationID: c.ID, Role: domain.RoleUser, Content: "Frage", CreatedAt: c.CreatedAt,
			})
		})
		require.NoError(t, err)

		_, err = conversations.GetByID(ctx, c.ID)
		assert.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		c := newConversation()
		boom := errors.New("boom")
		err := runner.WithTx(ctx, func(repos service.TxRepositories) error {
			if err := repos.Conversations().Create(ctx, c); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = conversations.GetByID(ctx, c.ID)
		assert.ErrorIs(t, err, domain.ErrConversationNotFound)
	})
}
