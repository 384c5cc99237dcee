package auth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync/atomic"
	"time"
)

const (
	// DefaultCacheTTL bounds how stale the in-process key set may be.
	DefaultCacheTTL = 5 * time.Minute
)

// cachedKey is one pair prepared for verification. graceUntil bounds its
// use once a successor pair exists; the zero time means the pair is still
// current and unbounded.
type cachedKey struct {
	public     *ecdsa.PublicKey
	graceUntil time.Time
}

// keySnapshot is one immutable view of the signing key store. Snapshots
// are swapped whole; readers never see a half-built key set.
type keySnapshot struct {
	fetchedAt time.Time
	current   SigningKeyPair
	signer    *ecdsa.PrivateKey
	keys      map[string]cachedKey
}

// KeyCache serves the current signing key for issuance and the active key
// set for verification, refetching from the store once the TTL lapses.
// Refresh is lock-free: concurrent callers that observe an expired
// snapshot may each refetch and race to swap it in. The fetch is an
// idempotent read, so the redundant work is cheaper than serializing
// every caller behind a mutex.
type KeyCache struct {
	store     SigningKeyStore
	ttl       time.Duration
	grace     time.Duration
	now       func() time.Time
	onRefresh func()

	snap atomic.Pointer[keySnapshot]
}

// NewKeyCache constructs a cache over store. grace is how long a pair
// keeps verifying after a successor appears; it must cover the token
// validity window plus the cache staleness window, otherwise a token
// signed by a just-retired key could fail verification while still
// unexpired. onRefresh, if non-nil, is invoked after every store fetch.
func NewKeyCache(store SigningKeyStore, ttl, grace time.Duration, now func() time.Time, onRefresh func()) *KeyCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &KeyCache{store: store, ttl: ttl, grace: grace, now: now, onRefresh: onRefresh}
}

// SigningKey returns the most recently created pair and its decoded
// private key. Used only for issuance.
func (c *KeyCache) SigningKey(ctx context.Context) (SigningKeyPair, *ecdsa.PrivateKey, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return SigningKeyPair{}, nil, err
	}
	return snap.current, snap.signer, nil
}

// VerificationKey resolves the public key a token claims to be signed
// with. A kid outside the active set, or past its grace period, yields
// ErrUnknownKey so rotation problems are distinguishable from forgeries.
// Grace boundaries are inclusive: a key is still accepted at the exact
// instant its grace period lapses.
//
// A kid the snapshot has never seen may be a key created after that
// snapshot was fetched, for example by a rotation on another replica.
// The verification set must cover every key that could still back a
// live token, so a miss forces one synchronous refetch before the kid
// is rejected.
func (c *KeyCache) VerificationKey(ctx context.Context, kid string) (*ecdsa.PublicKey, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	key, ok := snap.keys[kid]
	if !ok {
		snap, err = c.refreshOnMiss(ctx, snap)
		if err != nil {
			return nil, err
		}
		key, ok = snap.keys[kid]
		if !ok {
			return nil, ErrUnknownKey
		}
	}
	if !key.graceUntil.IsZero() && c.now().After(key.graceUntil) {
		return nil, ErrUnknownKey
	}
	return key.public, nil
}

// refreshOnMiss refetches after a kid lookup missed. At most one fetch
// per miss: if another caller already swapped in a snapshot newer than
// the one that missed, that view is returned without touching the store,
// so a burst of forged kids collapses to one fetch per swapped snapshot.
func (c *KeyCache) refreshOnMiss(ctx context.Context, missed *keySnapshot) (*keySnapshot, error) {
	if cur := c.snap.Load(); cur != nil && cur != missed {
		return cur, nil
	}
	snap, err := c.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigningKeyUnavailable, err)
	}
	c.snap.Store(snap)
	if c.onRefresh != nil {
		c.onRefresh()
	}
	return snap, nil
}

func (c *KeyCache) snapshot(ctx context.Context) (*keySnapshot, error) {
	if snap := c.snap.Load(); snap != nil && c.now().Before(snap.fetchedAt.Add(c.ttl)) {
		return snap, nil
	}
	snap, err := c.fetch(ctx)
	if err != nil {
		// No fallback key: a stale set could verify tokens the rotation
		// already moved past, so an unreachable store is fatal here.
		return nil, fmt.Errorf("%w: %w", ErrSigningKeyUnavailable, err)
	}
	c.snap.Store(snap)
	if c.onRefresh != nil {
		c.onRefresh()
	}
	return snap, nil
}

func (c *KeyCache) fetch(ctx context.Context) (*keySnapshot, error) {
	pairs, err := c.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("signing key store is empty")
	}

	snap := &keySnapshot{
		fetchedAt: c.now(),
		current:   pairs[0],
		keys:      make(map[string]cachedKey, len(pairs)),
	}
	signer, err := pairs[0].PrivateKey()
	if err != nil {
		return nil, fmt.Errorf("decode current key %s: %w", pairs[0].ID, err)
	}
	snap.signer = signer

	// pairs are newest first; pairs[i-1] is the successor that retired
	// pairs[i] from issuance and started its grace period.
	for i, pair := range pairs {
		public, err := pair.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("decode key %s: %w", pair.ID, err)
		}
		key := cachedKey{public: public}
		if i > 0 {
			key.graceUntil = pairs[i-1].CreatedAt.Add(c.grace)
		}
		snap.keys[pair.ID] = key
	}
	return snap, nil
}
