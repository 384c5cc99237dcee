package auth

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func seedKey(t *testing.T, store *fakeStore, createdAt time.Time) *SigningKeyPair {
	t.Helper()
	pair, err := GenerateKeyPair(createdAt)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if err := store.Create(context.Background(), pair); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return pair
}

func TestSigningKeyCachedWithinTTL(t *testing.T) {
	store := newFakeStore()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	pair := seedKey(t, store, clock.Now())

	cache := NewKeyCache(store, 5*time.Minute, time.Hour, clock.Now, nil)
	ctx := context.Background()

	first, _, err := cache.SigningKey(ctx)
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	clock.Advance(4 * time.Minute)
	second, _, err := cache.SigningKey(ctx)
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}

	if first.ID != pair.ID || second.ID != pair.ID {
		t.Fatalf("unexpected key ids: %s, %s", first.ID, second.ID)
	}
	if !bytes.Equal(first.PrivateJWK, second.PrivateJWK) {
		t.Fatal("cached key material differs between calls")
	}
	if calls := store.listCalls(); calls != 1 {
		t.Fatalf("expected exactly one store fetch within TTL, got %d", calls)
	}

	clock.Advance(2 * time.Minute)
	if _, _, err := cache.SigningKey(ctx); err != nil {
		t.Fatalf("SigningKey after TTL: %v", err)
	}
	if calls := store.listCalls(); calls != 2 {
		t.Fatalf("expected one refetch after TTL expiry, got %d", calls)
	}
}

func TestNewestKeySignsAfterRotation(t *testing.T) {
	store := newFakeStore()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	seedKey(t, store, clock.Now())

	cache := NewKeyCache(store, 5*time.Minute, time.Hour, clock.Now, nil)
	ctx := context.Background()
	if _, _, err := cache.SigningKey(ctx); err != nil {
		t.Fatalf("SigningKey: %v", err)
	}

	clock.Advance(time.Minute)
	successor := seedKey(t, store, clock.Now())

	// Inside the TTL the cache still signs with the old key.
	current, _, err := cache.SigningKey(ctx)
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	if current.ID == successor.ID {
		t.Fatal("rotation visible before cache TTL lapsed")
	}

	clock.Advance(5 * time.Minute)
	current, _, err = cache.SigningKey(ctx)
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	if current.ID != successor.ID {
		t.Fatalf("expected successor %s to sign, got %s", successor.ID, current.ID)
	}
}

func TestVerificationKeyGracePeriod(t *testing.T) {
	store := newFakeStore()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	grace := time.Hour

	old := seedKey(t, store, clock.Now())
	clock.Advance(10 * time.Minute)
	successorCreated := clock.Now()
	seedKey(t, store, successorCreated)

	cache := NewKeyCache(store, time.Minute, grace, clock.Now, nil)
	ctx := context.Background()

	if _, err := cache.VerificationKey(ctx, old.ID); err != nil {
		t.Fatalf("old key should verify inside grace period: %v", err)
	}

	// The boundary is inclusive: the key is still accepted at the exact
	// instant the grace period lapses.
	clock.Advance(successorCreated.Add(grace).Sub(clock.Now()))
	if _, err := cache.VerificationKey(ctx, old.ID); err != nil {
		t.Fatalf("old key should verify at the grace boundary: %v", err)
	}

	clock.Advance(time.Second)
	if _, err := cache.VerificationKey(ctx, old.ID); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey after grace period, got %v", err)
	}
}

func TestVerificationKeyUnknownKid(t *testing.T) {
	store := newFakeStore()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	seedKey(t, store, clock.Now())

	cache := NewKeyCache(store, time.Minute, time.Hour, clock.Now, nil)
	if _, err := cache.VerificationKey(context.Background(), "never-existed"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
	// The miss must have forced one refetch before the kid was rejected.
	if calls := store.listCalls(); calls != 2 {
		t.Fatalf("expected the miss to refetch once, got %d fetches", calls)
	}
}

func TestVerificationKeySeesOutOfBandRotation(t *testing.T) {
	store := newFakeStore()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	seedKey(t, store, clock.Now())

	// Two caches over one store, as two replicas would hold.
	stale := NewKeyCache(store, 5*time.Minute, time.Hour, clock.Now, nil)
	fresh := NewKeyCache(store, 5*time.Minute, time.Hour, clock.Now, nil)
	ctx := context.Background()

	if _, _, err := stale.SigningKey(ctx); err != nil {
		t.Fatalf("SigningKey: %v", err)
	}

	clock.Advance(time.Minute)
	successor := seedKey(t, store, clock.Now())

	current, _, err := fresh.SigningKey(ctx)
	if err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	if current.ID != successor.ID {
		t.Fatalf("expected successor %s to sign, got %s", successor.ID, current.ID)
	}

	// The replica whose snapshot predates the rotation must still verify
	// tokens the successor signs, without waiting out its own TTL.
	if _, err := stale.VerificationKey(ctx, successor.ID); err != nil {
		t.Fatalf("live key rejected by a cache with an older snapshot: %v", err)
	}
}

func TestVerificationKeyMissWithUnreachableStore(t *testing.T) {
	store := newFakeStore()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	seedKey(t, store, clock.Now())

	cache := NewKeyCache(store, 5*time.Minute, time.Hour, clock.Now, nil)
	ctx := context.Background()
	if _, _, err := cache.SigningKey(ctx); err != nil {
		t.Fatalf("SigningKey: %v", err)
	}

	store.mu.Lock()
	store.failKeys = errors.New("store unreachable")
	store.mu.Unlock()

	// With the store down the cache cannot tell a forged kid from a key
	// it has not seen yet, so the failure is unavailability, not unknown.
	if _, err := cache.VerificationKey(ctx, "never-existed"); !errors.Is(err, ErrSigningKeyUnavailable) {
		t.Fatalf("expected ErrSigningKeyUnavailable, got %v", err)
	}
}

func TestKeyCacheEmptyStoreFails(t *testing.T) {
	store := newFakeStore()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cache := NewKeyCache(store, time.Minute, time.Hour, clock.Now, nil)

	if _, _, err := cache.SigningKey(context.Background()); !errors.Is(err, ErrSigningKeyUnavailable) {
		t.Fatalf("expected ErrSigningKeyUnavailable, got %v", err)
	}
}

func TestKeyCacheNoStaleFallback(t *testing.T) {
	store := newFakeStore()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	seedKey(t, store, clock.Now())

	cache := NewKeyCache(store, time.Minute, time.Hour, clock.Now, nil)
	ctx := context.Background()
	if _, _, err := cache.SigningKey(ctx); err != nil {
		t.Fatalf("SigningKey: %v", err)
	}

	clock.Advance(2 * time.Minute)
	store.mu.Lock()
	store.failKeys = errors.New("store unreachable")
	store.mu.Unlock()

	if _, _, err := cache.SigningKey(ctx); !errors.Is(err, ErrSigningKeyUnavailable) {
		t.Fatalf("expired cache must not fall back to stale keys, got %v", err)
	}
}

func TestKeyCacheRefreshHook(t *testing.T) {
	store := newFakeStore()
	clock := newTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	seedKey(t, store, clock.Now())

	var refreshes int
	cache := NewKeyCache(store, time.Minute, time.Hour, clock.Now, func() { refreshes++ })
	ctx := context.Background()

	if _, _, err := cache.SigningKey(ctx); err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	if _, _, err := cache.SigningKey(ctx); err != nil {
		t.Fatalf("SigningKey: %v", err)
	}
	if refreshes != 1 {
		t.Fatalf("expected one refresh callback, got %d", refreshes)
	}
}
