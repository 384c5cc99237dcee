package auth

import "context"

// Store describes the persistence operations the token subsystem reads
// through. Implementations must map missing rows to ErrNotFound and never
// panic on storage failures.
type Store interface {
	Users(ctx context.Context) UserStore
	Grants(ctx context.Context) GrantStore
	Subscriptions(ctx context.Context) SubscriptionStore
	SigningKeys(ctx context.Context) SigningKeyStore
}

// UserStore looks up base identity records.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// GrantStore exposes the three entity scopes a user may hold roles in.
// Each lookup returns only live relationships: soft-removed league
// memberships and non-active team memberships are absent from the result,
// not present with a disabled marker.
type GrantStore interface {
	OwnedLocations(ctx context.Context, userID string) ([]EntityRole, error)
	LeagueMemberships(ctx context.Context, userID string) ([]EntityRole, error)
	ActiveTeamMemberships(ctx context.Context, userID string) ([]EntityRole, error)
}

// SubscriptionStore resolves a user's billing status. A user without a
// subscription yields ErrNotFound, which the aggregator treats as
// "no subscription", distinct from a storage failure.
type SubscriptionStore interface {
	Find(ctx context.Context, userID string) (*Subscription, error)
}

// SigningKeyStore is the durable record of signing key pairs.
type SigningKeyStore interface {
	// List returns all pairs ordered by creation time, newest first.
	List(ctx context.Context) ([]SigningKeyPair, error)
	Create(ctx context.Context, pair *SigningKeyPair) error
}
