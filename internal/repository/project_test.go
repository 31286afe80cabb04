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

func TestProjectRepository(t *testing.T) {
	ctx := context.Background()
	pool := newTestPool(t)
	repo := NewProjectRepository(pool)

	t.Run("create and get", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")
		p := createProject(t, pool, org.ID, "Mandat Müller")

		got, err := repo.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "Mandat Müller", got.Name)
		assert.Equal(t, org.ID, got.OrgID)
	})

	t.Run("create errors", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")
		createProject(t, pool, org.ID, "Mandat Müller")

		err := repo.Create(ctx, domain.NewProject(uuid.NewString(), org.ID, "Mandat Müller", now()))
		assert.ErrorIs(t, err, domain.ErrProjectAlreadyExists)

		err = repo.Create(ctx, domain.NewProject(uuid.NewString(), uuid.NewString(), "Waise", now()))
		assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
	})

	t.Run("not found", func(t *testing.T) {
		resetDB(t, pool)
		_, err := repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, domain.ErrProjectNotFound)
		_, err = repo.GetByID(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrProjectNotFound)
	})

	t.Run("membership", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")
		p := createProject(t, pool, org.ID, "Mandat Müller", "anna")

		// adding twice is a no-op
		require.NoError(t, repo.AddMember(ctx, p.ID, "anna"))
		require.NoError(t, repo.AddMember(ctx, p.ID, "ben"))

		ok, err := repo.IsMember(ctx, p.ID, "anna")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.IsMember(ctx, p.ID, "carla")
		require.NoError(t, err)
		assert.False(t, ok)

		members, err := repo.ListMembers(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, members, 2)

		require.NoError(t, repo.RemoveMember(ctx, p.ID, "ben"))
		ok, err = repo.IsMember(ctx, p.ID, "ben")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, repo.AddMember(ctx, uuid.NewString(), "anna"), domain.ErrProjectNotFound)
		assert.ErrorIs(t, repo.AddMember(ctx, "nope", "anna"), domain.ErrProjectNotFound)

		ok, err = repo.IsMember(ctx, "nope", "anna")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list by org and by member", func(t *testing.T) {
		resetDB(t, pool)
		org := createOrg(t, pool, "Kanzlei Weber")
		other := createOrg(t, pool, "Andere")
		b := createProject(t, pool, org.ID, "B-Mandat", "anna")
		a := createProject(t, pool, org.ID, "A-Mandat", "anna", "ben")
		createProject(t, pool, org.ID, "C-Mandat", "ben")
		createProject(t, pool, other.ID, "Fremd", "anna")

		all, err := repo.ListByOrg(ctx, org.ID)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		mine, err := repo.ListByMember(ctx, org.ID, "anna")
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, a.ID, mine[0].ID)
		assert.Equal(t, b.ID, mine[1].ID)

		none, err := repo.ListByMember(ctx, org.ID, "carla")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})
}
