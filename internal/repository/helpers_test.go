//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/counsel/internal/domain"
	"github.com/cloo-solutions/counsel/internal/testutil"
)

// newTestPool starts a pgvector container with the schema applied. The
// container lives for the duration of the calling test.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return pool
}

// resetDB empties every table between subtests sharing one container.
func resetDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	require.NoError(t, testutil.TruncateAll(context.Background(), pool))
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func createOrg(t *testing.T, pool *pgxpool.Pool, name string) *domain.Organization {
	t.Helper()
	org := domain.NewOrganization(uuid.NewString(), name, now())
	require.NoError(t, NewOrgRepository(pool).Create(context.Background(), org))
	return org
}

func createProject(t *testing.T, pool *pgxpool.Pool, orgID, name string, members ...string) *domain.Project {
	t.Helper()
	ctx := context.Background()
	repo := NewProjectRepository(pool)

	p := domain.NewProject(uuid.NewString(), orgID, name, now())
	require.NoError(t, repo.Create(ctx, p))
	for _, m := range members {
		require.NoError(t, repo.AddMember(ctx, p.ID, m))
	}
	return p
}

func createConversation(t *testing.T, pool *pgxpool.Pool, orgID, ownerID, projectID string, updatedAt time.Time) *domain.Conversation {
	t.Helper()
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		OwnerID:   ownerID,
		ProjectID: projectID,
		Title:     "Mietminderung wegen Schimmel",
		CreatedAt: updatedAt,
		UpdatedAt: updatedAt,
	}
	require.NoError(t, NewConversationRepository(pool).Create(context.Background(), c))
	return c
}
