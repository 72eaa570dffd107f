package auth

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/solatis/scorekeeper/internal/core/db"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

var testSecret = []byte("0123456789abcdef0123456789abcdef-secret")

func setupStore(t *testing.T) *db.Queries {
	t.Helper()
	database, err := db.Open("sqlite://" + filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.MigrateUp(database))
	q, err := db.LoadQueries(database)
	require.NoError(t, err)
	return q
}

func issueKey(t *testing.T, q *db.Queries, clientID string) (key, id string) {
	t.Helper()
	key, hash, err := GenerateAPIKey(testSecretID, testSecret)
	require.NoError(t, err)
	id, err = db.CreateAPIKey(context.Background(), q, clientID, testSecretID, hash)
	require.NoError(t, err)
	return key, id
}

func TestParseAPIKey(t *testing.T) {
	random := strings.Repeat("ab", 32)
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", FormatAPIKey(testSecretID, random), false},
		{"wrong prefix", "tk-v1-" + testSecretID + "-" + random, true},
		{"wrong version", "sk-v2-" + testSecretID + "-" + random, true},
		{"short secret id", "sk-v1-0123-" + random, true},
		{"short random", "sk-v1-" + testSecretID + "-abcd", true},
		{"uppercase hex", "sk-v1-" + strings.ToUpper(testSecretID) + "-" + random, true},
		{"extra segment", FormatAPIKey(testSecretID, random) + "-x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secretID, randomData, err := ParseAPIKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKeyFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testSecretID, secretID)
			assert.Equal(t, random, randomData)
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	k1, h1, err := GenerateAPIKey(testSecretID, testSecret)
	require.NoError(t, err)
	k2, _, err := GenerateAPIKey(testSecretID, testSecret)
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.Equal(t, ComputeHMAC(testSecret, k1), h1)

	_, _, err = GenerateAPIKey("not-hex", testSecret)
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	q := setupStore(t)
	a := NewAuthenticator(map[string][]byte{testSecretID: testSecret}, q, zerolog.Nop())

	key, id := issueKey(t, q, "client-1")

	clientID, err := a.Authenticate(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "client-1", clientID)

	_, err = a.Authenticate(ctx, "garbage")
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)

	_, err = a.Authenticate(ctx, FormatAPIKey(strings.Repeat("f", 32), strings.Repeat("0", 64)))
	assert.ErrorIs(t, err, ErrUnknownKey)

	_, err = a.Authenticate(ctx, FormatAPIKey(testSecretID, strings.Repeat("0", 64)))
	assert.ErrorIs(t, err, ErrInvalidKey)

	require.NoError(t, db.RevokeAPIKey(ctx, q, id))
	_, err = a.Authenticate(ctx, key)
	assert.ErrorIs(t, err, ErrKeyRevoked)
}

func TestShouldUpdateLastUsed(t *testing.T) {
	now := time.Now()
	assert.True(t, shouldUpdateLastUsed(sql.NullTime{}, now))
	assert.True(t, shouldUpdateLastUsed(sql.NullTime{Time: now.Add(-2 * time.Minute), Valid: true}, now))
	assert.False(t, shouldUpdateLastUsed(sql.NullTime{Time: now.Add(-10 * time.Second), Valid: true}, now))
}

type failingQueries struct{}

func (failingQueries) Get(context.Context, string, any, ...any) error {
	return errors.New("connection refused")
}

func (failingQueries) Exec(context.Context, string, ...any) (sql.Result, error) {
	return nil, errors.New("connection refused")
}

func TestUnaryInterceptor(t *testing.T) {
	q := setupStore(t)
	secrets := map[string][]byte{testSecretID: testSecret}
	a := NewAuthenticator(secrets, q, zerolog.Nop())
	key, id := issueKey(t, q, "client-7")

	var seen string
	handler := func(ctx context.Context, req any) (any, error) {
		seen = ClientIDFromContext(ctx)
		return "ok", nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "/scorekeeper.v1.FormulaService/Evaluate"}
	withKey := func(k string) context.Context {
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs(MetadataKey, k))
	}

	_, err := a.UnaryInterceptor()(withKey(key), nil, info, handler)
	require.NoError(t, err)
	assert.Equal(t, "client-7", seen)

	tests := []struct {
		name     string
		ctx      context.Context
		auth     *Authenticator
		method   string
		wantCode codes.Code
	}{
		{"no metadata", context.Background(), a, info.FullMethod, codes.Unauthenticated},
		{"no key", metadata.NewIncomingContext(context.Background(), metadata.MD{}), a, info.FullMethod, codes.Unauthenticated},
		{"bad key", withKey("sk-v1-nope"), a, info.FullMethod, codes.Unauthenticated},
		{"store down", withKey(key), NewAuthenticator(secrets, failingQueries{}, zerolog.Nop()), info.FullMethod, codes.Unavailable},
		{"health bypass", context.Background(), a, "/grpc.health.v1.Health/Check", codes.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.auth.UnaryInterceptor()(tt.ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, handler)
			assert.Equal(t, tt.wantCode, status.Code(err))
		})
	}

	require.NoError(t, db.RevokeAPIKey(context.Background(), q, id))
	_, err = a.UnaryInterceptor()(withKey(key), nil, info, handler)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}
