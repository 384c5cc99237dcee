package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer = "courtside"

	// DefaultTokenTTL is the token validity window, fixed at issuance.
	// A window is never extended in place; the refresh flow issues a new
	// token instead.
	DefaultTokenTTL = 24 * time.Hour
)

// Service issues, refreshes and verifies entity-scoped tokens. Issuance
// reads storage through the aggregator and key cache; verification uses
// only the token's embedded claims and the cached key set.
type Service struct {
	store    Store
	agg      *Aggregator
	keys     *KeyCache
	issuer   string
	tokenTTL time.Duration
	cacheTTL time.Duration
	grace    time.Duration
	now      func() time.Time

	onKeyRefresh func()
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		issuer = strings.TrimSpace(issuer)
		if issuer == "" {
			return errors.New("auth: issuer must not be empty")
		}
		s.issuer = issuer
		return nil
	}
}

// WithTokenTTL configures the token validity window.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return errors.New("auth: token ttl must be positive")
		}
		s.tokenTTL = ttl
		return nil
	}
}

// WithCacheTTL configures how long the key cache serves one snapshot.
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl <= 0 {
			return errors.New("auth: cache ttl must be positive")
		}
		s.cacheTTL = ttl
		return nil
	}
}

// WithGracePeriod overrides how long a retired key keeps verifying.
// The default is token TTL plus cache TTL, the minimum that keeps every
// still-unexpired token verifiable across a rotation.
func WithGracePeriod(grace time.Duration) ServiceOption {
	return func(s *Service) error {
		if grace <= 0 {
			return errors.New("auth: grace period must be positive")
		}
		s.grace = grace
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithKeyRefreshHook registers a callback invoked after every key cache
// refetch, typically a metrics counter.
func WithKeyRefreshHook(fn func()) ServiceOption {
	return func(s *Service) error {
		s.onKeyRefresh = fn
		return nil
	}
}

// NewService constructs a Service with optional configuration.
func NewService(store Store, opts ...ServiceOption) (*Service, error) {
	svc := &Service{
		store:    store,
		issuer:   defaultIssuer,
		tokenTTL: DefaultTokenTTL,
		cacheTTL: DefaultCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	if svc.grace == 0 {
		svc.grace = svc.tokenTTL + svc.cacheTTL
	}
	ctx := context.Background()
	svc.agg = NewAggregator(store.Grants(ctx), store.Subscriptions(ctx))
	svc.keys = NewKeyCache(store.SigningKeys(ctx), svc.cacheTTL, svc.grace, svc.now, svc.onKeyRefresh)
	return svc, nil
}

// tokenClaims is the wire shape of RichClaims. Scope roles travel as maps
// only here; empty scopes are omitted entirely rather than carried as
// empty objects.
type tokenClaims struct {
	Username           string          `json:"username,omitempty"`
	Email              string          `json:"email,omitempty"`
	PlatformRole       string          `json:"platform_role,omitempty"`
	Locations          map[string]Role `json:"locations,omitempty"`
	Leagues            map[string]Role `json:"leagues,omitempty"`
	Teams              map[string]Role `json:"teams,omitempty"`
	SubscriptionTier   string          `json:"subscription_tier,omitempty"`
	SubscriptionStatus string          `json:"subscription_status,omitempty"`
	jwt.RegisteredClaims
}

func (tc *tokenClaims) rich() *RichClaims {
	claims := &RichClaims{
		SubjectID:          tc.Subject,
		Username:           tc.Username,
		Email:              tc.Email,
		PlatformRole:       PlatformRole(tc.PlatformRole),
		Locations:          tc.Locations,
		Leagues:            tc.Leagues,
		Teams:              tc.Teams,
		SubscriptionTier:   tc.SubscriptionTier,
		SubscriptionStatus: tc.SubscriptionStatus,
	}
	if tc.IssuedAt != nil {
		claims.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		claims.ExpiresAt = tc.ExpiresAt.Time
	}
	return claims
}

// Issue aggregates the user's authorization facts and signs them into a
// token valid for the configured window. It never writes: the signature
// operation is the only side effect. The route layer must have already
// authenticated the caller.
func (s *Service) Issue(ctx context.Context, userID string) (string, *RichClaims, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, ErrUserNotFound
		}
		return "", nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	agg, err := s.agg.Aggregate(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}

	pair, signer, err := s.keys.SigningKey(ctx)
	if err != nil {
		return "", nil, err
	}

	now := s.now().UTC()
	wire := &tokenClaims{
		Username:           user.Username,
		Email:              user.Email,
		PlatformRole:       string(user.PlatformRole),
		Locations:          scopeRolesOrNil(agg, ScopeLocation),
		Leagues:            scopeRolesOrNil(agg, ScopeLeague),
		Teams:              scopeRolesOrNil(agg, ScopeTeam),
		SubscriptionTier:   agg.SubscriptionTier,
		SubscriptionStatus: agg.SubscriptionStatus,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, wire)
	token.Header["kid"] = pair.ID
	signed, err := token.SignedString(signer)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, wire.rich(), nil
}

// Refresh re-issues for an already-authenticated caller whose roles may
// have changed, for example after accepting an invite. The caller's
// previous token stays valid until its own expiry; the system trades
// instant revocation for statelessness.
func (s *Service) Refresh(ctx context.Context, userID string) (string, *RichClaims, error) {
	return s.Issue(ctx, userID)
}

// Verify resolves a token to its claims using only the cached key set:
// no storage query, which is the entire point of the design. Failures are
// typed — a malformed blob, an unknown signing key, a forged signature
// and an expired-but-genuine token are distinct outcomes.
func (s *Service) Verify(ctx context.Context, token string) (*RichClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMalformedToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{AlgorithmES256}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(token, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, ErrMalformedToken
		}
		return s.keys.VerificationKey(ctx, kid)
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSigningKeyUnavailable):
			return nil, err
		case errors.Is(err, ErrUnknownKey):
			return nil, ErrUnknownKey
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrMalformedToken
		}
	}

	wire, ok := parsed.Claims.(*tokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformedToken
	}
	if strings.TrimSpace(wire.Subject) == "" {
		return nil, ErrMalformedToken
	}
	if wire.Issuer != s.issuer {
		return nil, ErrMalformedToken
	}
	return wire.rich(), nil
}

func scopeRolesOrNil(agg RoleAggregate, scope EntityScope) map[string]Role {
	roles := agg.ScopeRoles(scope)
	if len(roles) == 0 {
		return nil
	}
	return roles
}
