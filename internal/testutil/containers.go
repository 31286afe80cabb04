// Package testutil starts throwaway Postgres and S3 containers for
// integration and end-to-end tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/cloo-solutions/counsel/internal/database"
)

const (
	pgImage    = "pgvector/pgvector:0.8.1-pg18"
	pgUser     = "counsel"
	pgPassword = "counsel"
	pgDatabase = "counsel"

	rustfsImage  = "rustfs/rustfs:latest"
	RustFSKey    = "rustfsadmin"
	RustFSSecret = "rustfsadmin"
)

// containerAddr is the host side of one exposed container port.
type containerAddr struct {
	Container testcontainers.Container
	Host      string
	Port      string
}

func (c *containerAddr) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(c.Container)
}

func startContainer(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port nat.Port) containerAddr {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get host of %s: %v", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("failed to get port of %s: %v", req.Image, err)
	}
	return containerAddr{Container: container, Host: host, Port: mapped.Port()}
}

// PostgresContainer runs Postgres with the pgvector extension available.
type PostgresContainer struct {
	containerAddr
}

func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	addr := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        pgImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     pgUser,
			"POSTGRES_PASSWORD": pgPassword,
			"POSTGRES_DB":       pgDatabase,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "5432")
	return &PostgresContainer{containerAddr: addr}
}

func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", pgUser, pgPassword, pc.Host, pc.Port, pgDatabase)
}

// RustFSContainer is an S3-compatible object store for document tests.
type RustFSContainer struct {
	containerAddr
}

func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	addr := startContainer(ctx, t, testcontainers.ContainerRequest{
		Image:        rustfsImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSKey,
			"RUSTFS_SECRET_KEY": RustFSSecret,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")
	return &RustFSContainer{containerAddr: addr}
}

func (rc *RustFSContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", rc.Host, rc.Port)
}

// NewTestPool connects to the container and applies the migrations in
// migrationsDir with the same migrator counseld uses at startup.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	var pool *pgxpool.Pool
	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = pgxpool.New(ctx, pc.ConnectionString())
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				break
			}
			pool.Close()
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	if err := RunMigrations(pc.ConnectionString(), migrationsDir); err != nil {
		pool.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	return pool
}

// RunMigrations applies every pending up migration in dir.
func RunMigrations(databaseURL, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	_, err = database.Migrate(databaseURL, "file://"+filepath.ToSlash(abs))
	return err
}

// appTables lists every application table. schema_migrations is left alone.
var appTables = []string{
	"messages",
	"conversations",
	"project_members",
	"projects",
	"documents",
	"templates",
	"source_chunks",
	"knowledge_sources",
	"api_keys",
	"organizations",
}

// TruncateAll empties the application tables between tests sharing a container.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, "TRUNCATE TABLE "+strings.Join(appTables, ", ")+" CASCADE")
	if err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}
