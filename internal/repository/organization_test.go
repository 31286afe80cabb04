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

func TestOrgRepository(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewOrgRepository(pool)

	t.Run("create and look up by id and name", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")

		byID, err := repo.GetByID(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, org.Name, byID.Name)
		assert.True(t, org.CreatedAt.Equal(byID.CreatedAt))

		byName, err := repo.GetByName(ctx, "Kanzlei Weber")
		require.NoError(t, err)
		assert.Equal(t, org.ID, byName.ID)
	})

	t.Run("duplicate name", func(t *testing.T) {
		resetDB(t, pool)
		createOrg(t, pool, "Kanzlei Weber")

		err := repo.Create(ctx, domain.NewOrganization(uuid.NewString(), "Kanzlei Weber", now()))
		assert.ErrorIs(t, err, domain.ErrOrganizationAlreadyExists)
	})

	t.Run("not found", func(t *testing.T) {
		resetDB(t, pool)

		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

		_, err = repo.GetByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)

		_, err = repo.GetByName(ctx, "Unbekannt")
		assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		resetDB(t, pool)
		first := createOrg(t, pool, "Erste")
		second := createOrg(t, pool, "Zweite")

		orgs, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, orgs, 2)
		assert.Equal(t, second.ID, orgs[0].ID)
		assert.Equal(t, first.ID, orgs[1].ID)
	})
}
