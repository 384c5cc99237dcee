package auth

import (
	"context"
	"fmt"
	"time"
)

// Rotate creates a successor signing key pair and persists it. It is the
// operational trigger behind key rotation: once the new pair is stored it
// becomes current for issuance as caches expire, while the previous pair
// keeps verifying through its grace period. Pairs are never mutated or
// deleted here.
func Rotate(ctx context.Context, store SigningKeyStore, now time.Time) (*SigningKeyPair, error) {
	pair, err := GenerateKeyPair(now)
	if err != nil {
		return nil, err
	}
	if err := store.Create(ctx, pair); err != nil {
		return nil, fmt.Errorf("store signing key: %w", err)
	}
	return pair, nil
}
