// Package auth provides HMAC-based API key authentication for the gRPC service.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const clientIDKey = contextKey("client_id")

// MetadataKey is the gRPC metadata header carrying the API key.
const MetadataKey = "x-api-key"

// lastUsedThrottle limits last_used_at writes to one per key per minute.
const lastUsedThrottle = time.Minute

// Queries is the subset of *db.Queries the authenticator needs.
type Queries interface {
	Get(ctx context.Context, name string, dest any, args ...any) error
	Exec(ctx context.Context, name string, args ...any) (sql.Result, error)
}

// Authenticator validates API keys using HMAC-SHA256 signatures.
type Authenticator struct {
	secrets map[string][]byte
	queries Queries
	logger  zerolog.Logger
}

// NewAuthenticator creates an authenticator over secret_id -> secret and the key store.
func NewAuthenticator(secrets map[string][]byte, queries Queries, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		secrets: secrets,
		queries: queries,
		logger:  logger,
	}
}

// Authenticate validates apiKey and returns the owning client_id.
func (a *Authenticator) Authenticate(ctx context.Context, apiKey string) (string, error) {
	secretID, _, err := ParseAPIKey(apiKey)
	if err != nil {
		return "", err
	}

	secret, ok := a.secrets[secretID]
	if !ok {
		return "", ErrUnknownKey
	}

	var row struct {
		APIKeyID   string       `db:"api_key_id"`
		ClientID   string       `db:"client_id"`
		RevokedAt  sql.NullTime `db:"revoked_at"`
		LastUsedAt sql.NullTime `db:"last_used_at"`
	}
	err = a.queries.Get(ctx, "get-api-key-by-hash", &row, ComputeHMAC(secret, apiKey))
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidKey
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStore, err)
	}

	if row.RevokedAt.Valid {
		return "", ErrKeyRevoked
	}

	if shouldUpdateLastUsed(row.LastUsedAt, time.Now()) {
		if _, err := a.queries.Exec(ctx, "update-last-used", time.Now().UTC(), row.APIKeyID); err != nil {
			a.logger.Warn().Err(err).Str("api_key_id", row.APIKeyID).Msg("failed to update last_used_at")
		}
	}
	return row.ClientID, nil
}

func shouldUpdateLastUsed(lastUsed sql.NullTime, now time.Time) bool {
	return !lastUsed.Valid || now.Sub(lastUsed.Time) > lastUsedThrottle
}

// UnaryInterceptor authenticates every unary call except the health service.
func (a *Authenticator) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if isHealthCheck(info.FullMethod) {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}
		keys := md.Get(MetadataKey)
		if len(keys) == 0 {
			return nil, status.Error(codes.Unauthenticated, ErrMissingKey.Error())
		}

		clientID, err := a.Authenticate(ctx, keys[0])
		switch {
		case err == nil:
			return handler(WithClientID(ctx, clientID), req)
		case errors.Is(err, ErrKeyRevoked):
			return nil, status.Error(codes.PermissionDenied, err.Error())
		case errors.Is(err, ErrStore):
			return nil, status.Error(codes.Unavailable, err.Error())
		default:
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
	}
}

func isHealthCheck(method string) bool {
	return method == "/grpc.health.v1.Health/Check" || method == "/grpc.health.v1.Health/List"
}

// WithClientID returns a context carrying an authenticated client id.
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey, clientID)
}

// ClientIDFromContext extracts the client id. Returns "" when unauthenticated.
func ClientIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(clientIDKey).(string); ok {
		return id
	}
	return ""
}
