package settings

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE settings (
    key         TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    description TEXT,
    updated_at  INTEGER NOT NULL DEFAULT 0
);
`

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return NewRepository(db, zerolog.Nop())
}

func TestSetAndGet(t *testing.T) {
	repo := setupTestRepo(t)

	desc := "dollar tolerance for paid-in-full detection"
	require.NoError(t, repo.Set(KeyPaymentMatchTolerance, "7.5", &desc))

	value, err := repo.Get(KeyPaymentMatchTolerance)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "7.5", *value)
}

func TestGetMissingReturnsNil(t *testing.T) {
	repo := setupTestRepo(t)

	value, err := repo.Get("does_not_exist")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestSetOverwrites(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Set(KeyDueGraceDays, "25", nil))
	require.NoError(t, repo.Set(KeyDueGraceDays, "21", nil))

	value, err := repo.Get(KeyDueGraceDays)
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "21", *value)
}

func TestGetFloat(t *testing.T) {
	repo := setupTestRepo(t)

	got, err := repo.GetFloat(KeyPaymentMatchTolerance, 5.0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)

	require.NoError(t, repo.SetFloat(KeyPaymentMatchTolerance, 7.5))
	got, err = repo.GetFloat(KeyPaymentMatchTolerance, 5.0)
	require.NoError(t, err)
	assert.Equal(t, 7.5, got)

	// Garbage falls back to the default instead of erroring
	require.NoError(t, repo.Set(KeyPaymentMatchTolerance, "not a number", nil))
	got, err = repo.GetFloat(KeyPaymentMatchTolerance, 5.0)
	require.NoError(t, err)
	assert.Equal(t, 5.0, got)
}

func TestGetIntHandlesFloatStrings(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.Set(KeyDueGraceDays, "21.0", nil))

	got, err := repo.GetInt(KeyDueGraceDays, 25)
	require.NoError(t, err)
	assert.Equal(t, 21, got)

	got, err = repo.GetInt("missing", 25)
	require.NoError(t, err)
	assert.Equal(t, 25, got)
}

func TestGetAll(t *testing.T) {
	repo := setupTestRepo(t)

	require.NoError(t, repo.SetFloat(KeyPaymentMatchTolerance, 5.0))
	require.NoError(t, repo.SetInt(KeyDueGraceDays, 25))

	all, err := repo.GetAll()
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Contains(t, all, KeyPaymentMatchTolerance)
	assert.Contains(t, all, KeyDueGraceDays)
}
