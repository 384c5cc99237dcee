package auth

import "errors"

var (
	// Issuance-side failures. Safe to retry upstream: aggregation and key
	// lookups are idempotent reads.
	ErrUserNotFound          = errors.New("auth: user not found")
	ErrAggregationFailed     = errors.New("auth: role aggregation failed")
	ErrSigningKeyUnavailable = errors.New("auth: signing key unavailable")

	// Verification-side failures. Deterministic for a given token and key
	// set, so never retried. Each is distinct: a garbage token, a token
	// signed by a key outside the active set, a forged signature and a
	// legitimate-but-old token all need different operator responses.
	ErrMalformedToken   = errors.New("auth: malformed token")
	ErrUnknownKey       = errors.New("auth: token signed with unknown key")
	ErrInvalidSignature = errors.New("auth: invalid token signature")
	ErrTokenExpired     = errors.New("auth: token expired")

	ErrNotFound     = errors.New("auth: not found")
	ErrUnauthorized = errors.New("auth: unauthorized")
)
