package db

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/scorekeeper/internal/types"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "scorekeeper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, MigrateUp(database))
	return database
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantSource string
		wantErr    bool
	}{
		{"sqlite:///var/lib/sk.db", "sqlite3", "file:/var/lib/sk.db?_busy_timeout=5000", false},
		{"sqlite://sk.db", "sqlite3", "file:sk.db?_busy_timeout=5000", false},
		{"sqlite://sk.db?_busy_timeout=10", "sqlite3", "file:sk.db?_busy_timeout=10", false},
		{"postgres://u:p@localhost/sk?sslmode=disable", "postgres", "postgres://u:p@localhost/sk?sslmode=disable", false},
		{"mysql://localhost/sk", "", "", true},
		{"sqlite://", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, source, err := parseURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantSource, source)
		})
	}
}

func TestMigrations(t *testing.T) {
	database := openTestDB(t)

	statuses, err := MigrateStatus(database)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "001_runs.sql", statuses[0].ID)
	for _, s := range statuses {
		assert.True(t, s.Applied, s.ID)
		assert.NotNil(t, s.AppliedAt, s.ID)
	}

	// Second run is a no-op.
	require.NoError(t, MigrateUp(database))
	require.NoError(t, RequireMigrated(database))
}

func TestMigrations_ChecksumMismatch(t *testing.T) {
	database := openTestDB(t)
	_, err := database.Exec("UPDATE migrations SET checksum = 'tampered' WHERE migration_id = '001_runs.sql'")
	require.NoError(t, err)

	err = MigrateUp(database)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch for migration 001_runs.sql")
}

func TestRequireMigrated_Pending(t *testing.T) {
	database, err := Open("sqlite://" + filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer database.Close()

	err = RequireMigrated(database)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_runs.sql not applied")
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("-- header; with semicolon\nCREATE TABLE a (x INT);\n\n-- note\nCREATE INDEX i ON a (x);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, got)
}

func TestRunStore(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	q, err := LoadQueries(database)
	require.NoError(t, err)
	store := NewRunStore(q)

	out := types.NewContext()
	out.Set("income", int64(5000))
	out.Set("grade", "A")
	ok, err := NewRun("client-1", "abc123", types.Inputs{"income": 5000}, out, nil, 3*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, store.RecordRun(ctx, ok))

	failed, err := NewRun("", "abc123", types.Inputs{}, nil, errors.New("formula \"dti\" (expression) failed"), time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, store.RecordRun(ctx, failed))

	got, err := store.GetRun(ctx, ok.RunID)
	require.NoError(t, err)
	assert.Equal(t, "client-1", got.ClientID)
	assert.Equal(t, `{"income":5000,"grade":"A"}`, got.Output.String)
	assert.False(t, got.Error.Valid)
	assert.Equal(t, int64(3), got.DurationMs)
	assert.WithinDuration(t, ok.CreatedAt, got.CreatedAt, time.Second)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, failed.RunID, runs[0].RunID, "newest first")
	assert.True(t, runs[0].Error.Valid)
	assert.False(t, runs[0].Output.Valid)

	_, err = store.GetRun(ctx, types.NewRunID())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestRun_MarshalJSON(t *testing.T) {
	out := types.NewContext()
	out.Set("z", 1.5)
	out.Set("a", true)
	run, err := NewRun("", "sum", types.Inputs{"z": 1.5}, out, nil, 0)
	require.NoError(t, err)

	data, err := json.Marshal(run)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.JSONEq(t, `{"z":1.5}`, string(decoded["inputs"]))
	assert.Equal(t, `{"z":1.5,"a":true}`, string(decoded["output"]))
	assert.NotContains(t, decoded, "error")
	assert.Equal(t, `"sum"`, string(decoded["config_checksum"]))
}

func TestAPIKeys(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	q, err := LoadQueries(database)
	require.NoError(t, err)

	id, err := CreateAPIKey(ctx, q, "client-1", "0123456789abcdef0123456789abcdef", []byte{1, 2, 3})
	require.NoError(t, err)

	var row struct {
		APIKeyID string     `db:"api_key_id"`
		ClientID string     `db:"client_id"`
		Revoked  *time.Time `db:"revoked_at"`
		LastUsed *time.Time `db:"last_used_at"`
	}
	require.NoError(t, q.Get(ctx, "get-api-key-by-hash", &row, []byte{1, 2, 3}))
	assert.Equal(t, id, row.APIKeyID)
	assert.Equal(t, "client-1", row.ClientID)
	assert.Nil(t, row.Revoked)

	require.NoError(t, RevokeAPIKey(ctx, q, id))
	assert.Error(t, RevokeAPIKey(ctx, q, id), "second revoke")

	_, err = CreateAPIKey(ctx, q, "client-2", "0123456789abcdef0123456789abcdef", []byte{1, 2, 3})
	assert.Error(t, err, "duplicate hash")
}
