package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateAPIKey stores the hash of a newly issued key and returns its id.
func CreateAPIKey(ctx context.Context, q *Queries, clientID, secretID string, keyHash []byte) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	_, err := q.Exec(ctx, "insert-api-key", id, clientID, secretID, keyHash, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("create api key for %s: %w", clientID, err)
	}
	return id, nil
}

// RevokeAPIKey marks a key revoked. Revoking twice is an error.
func RevokeAPIKey(ctx context.Context, q *Queries, apiKeyID string) error {
	res, err := q.Exec(ctx, "revoke-api-key", time.Now().UTC(), apiKeyID)
	if err != nil {
		return fmt.Errorf("revoke api key %s: %w", apiKeyID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("api key %s not found or already revoked", apiKeyID)
	}
	return nil
}
