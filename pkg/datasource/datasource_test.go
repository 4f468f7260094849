package datasource_test

import (
	"context"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/dukex/taskflow/pkg/datasource"
	"github.com/dukex/taskflow/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func exercise(ctx context.Context, t *testing.T, db *datasource.DB) {
	t.Helper()

	_, err := db.Exec(ctx, "CREATE TABLE services (name TEXT NOT NULL, url TEXT NOT NULL)")
	require.NoError(t, err)

	insert, args, err := squirrel.Insert("services").
		Columns("name", "url").
		Values("api", "https://api.example.test").
		Values("web", "https://www.example.test").
		PlaceholderFormat(db.Placeholder()).
		ToSql()
	require.NoError(t, err)

	affected, err := db.Exec(ctx, insert, args...)
	require.NoError(t, err)
	assert.Equal(t, int64(2), affected)

	query, args, err := squirrel.Select("name", "url").
		From("services").
		Where(squirrel.Eq{"name": "web"}).
		PlaceholderFormat(db.Placeholder()).
		ToSql()
	require.NoError(t, err)

	rows, err := db.Query(ctx, query, args...)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "web", rows[0]["name"])
	assert.Equal(t, "https://www.example.test", rows[0]["url"])

	rows, err = db.Query(ctx, "SELECT name FROM services WHERE name = 'missing'")
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = db.Query(ctx, "SELECT * FROM missing_table")
	assert.Error(t, err)
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()

	db, err := datasource.Open(ctx, log.Discard(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	assert.Equal(t, "sqlite", db.Driver())
	require.NoError(t, db.HealthCheck(ctx))

	exercise(ctx, t, db)
}

func TestOpen_UnsupportedURL(t *testing.T) {
	for _, url := range []string{"mysql://localhost/db", "sqlite://", ""} {
		_, err := datasource.Open(context.Background(), log.Discard(), url)
		require.ErrorIs(t, err, datasource.ErrUnsupportedURL, url)
	}
}

func TestOpen_Postgres(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("taskflow_test"),
		postgres.WithUsername("taskflow"),
		postgres.WithPassword("taskflow"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := datasource.Open(ctx, log.Discard(), databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	assert.Equal(t, "postgres", db.Driver())

	exercise(ctx, t, db)
}
