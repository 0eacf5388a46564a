package provider

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvasko/cardsentry/internal/clientdata"
	"github.com/nvasko/cardsentry/internal/domain"
)

const testCacheSchema = `
CREATE TABLE statement_periods (
    account_id TEXT PRIMARY KEY,
    data       BLOB NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE institution_status (
    institution_id TEXT PRIMARY KEY,
    data           BLOB NOT NULL,
    expires_at     INTEGER NOT NULL
);
`

func setupCacheRepo(t *testing.T) *clientdata.Repository {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testCacheSchema)
	require.NoError(t, err)

	return clientdata.NewRepository(db)
}

const periodsBody = `{
	"periods": [
		{"start_date": "2024-02-10", "end_date": "2024-03-09", "confidence": "high"},
		{"end_date": "2024-04-09", "confidence": "medium"}
	]
}`

func TestGetStatementPeriodsFetchesAndCaches(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/accounts/acc_1/statement-periods", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(periodsBody))
	}))
	defer srv.Close()

	cache := setupCacheRepo(t)
	client := NewClient(srv.URL, "test-token", cache, zerolog.Nop())

	periods, err := client.GetStatementPeriods(context.Background(), "acc_1")
	require.NoError(t, err)
	require.Len(t, periods, 2)

	assert.Equal(t, time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC), periods[0].EndDate)
	require.NotNil(t, periods[0].StartDate)
	assert.Equal(t, time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC), *periods[0].StartDate)
	assert.Equal(t, domain.ConfidenceHigh, periods[0].Confidence)
	assert.Nil(t, periods[1].StartDate)
	assert.Equal(t, domain.ConfidenceMedium, periods[1].Confidence)

	// Second call is served from cache
	_, err = client.GetStatementPeriods(context.Background(), "acc_1")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestGetStatementPeriodsStaleFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cache := setupCacheRepo(t)

	// Seed expired cache content
	stale := []domain.StatementPeriod{
		{EndDate: time.Date(2024, time.March, 9, 0, 0, 0, 0, time.UTC), Confidence: domain.ConfidenceHigh},
	}
	require.NoError(t, cache.Store("statement_periods", "acc_1", stale, -time.Hour))

	client := NewClient(srv.URL, "test-token", cache, zerolog.Nop())

	periods, err := client.GetStatementPeriods(context.Background(), "acc_1")
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.True(t, periods[0].EndDate.Equal(stale[0].EndDate))
}

func TestGetStatementPeriodsTransientErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", setupCacheRepo(t), zerolog.Nop())

	_, err := client.GetStatementPeriods(context.Background(), "acc_1")
	require.Error(t, err)

	var transient *TransientError
	assert.True(t, errors.As(err, &transient))
}

func TestGetStatementPeriodsBadDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"periods": [{"end_date": "03/09/2024", "confidence": "high"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", nil, zerolog.Nop())

	_, err := client.GetStatementPeriods(context.Background(), "acc_1")
	assert.Error(t, err)
}

func TestStatementPeriodTTLOverride(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(periodsBody))
	}))
	defer srv.Close()

	cache := setupCacheRepo(t)
	client := NewClient(srv.URL, "test-token", cache, zerolog.Nop())

	// An already-expired TTL means every call goes upstream
	client.SetStatementPeriodTTL(-time.Hour)
	_, err := client.GetStatementPeriods(context.Background(), "acc_1")
	require.NoError(t, err)
	_, err = client.GetStatementPeriods(context.Background(), "acc_1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	// Restoring a real TTL makes the next fetch cacheable again
	client.SetStatementPeriodTTL(24 * time.Hour)
	_, err = client.GetStatementPeriods(context.Background(), "acc_1")
	require.NoError(t, err)
	_, err = client.GetStatementPeriods(context.Background(), "acc_1")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestGetInstitutionStatusCaches(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/institutions/ins_citi/status", r.URL.Path)
		w.Write([]byte(`{"institution_id": "ins_citi", "healthy": true, "last_update": "2024-03-15T12:00:00Z"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token", setupCacheRepo(t), zerolog.Nop())

	status, err := client.GetInstitutionStatus(context.Background(), "ins_citi")
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Equal(t, "ins_citi", status.InstitutionID)

	_, err = client.GetInstitutionStatus(context.Background(), "ins_citi")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
