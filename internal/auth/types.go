package auth

import "time"

// PlatformRole is the single platform-wide role a user holds, independent
// of any entity-scoped grants.
type PlatformRole string

const (
	PlatformRoleUser  PlatformRole = "user"
	PlatformRoleAdmin PlatformRole = "admin"
)

// EntityScope identifies one of the authorization domains a role can be
// held in.
type EntityScope string

const (
	ScopeLocation EntityScope = "location"
	ScopeLeague   EntityScope = "league"
	ScopeTeam     EntityScope = "team"
)

// Role names what a user may do within a single scoped entity.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleCaptain Role = "captain"
	RolePlayer  Role = "player"
)

// EntityRole grants Role on one entity. Scope roles are carried as triples
// internally and flattened to per-scope maps only when claims are
// serialized; an entity the user has no relationship to simply never
// appears, it is not present with an empty role.
type EntityRole struct {
	Scope    EntityScope
	EntityID string
	Role     Role
}

// User is the base identity record behind a token subject.
type User struct {
	ID           string
	Username     string
	Email        string
	PlatformRole PlatformRole
	PasswordHash string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Subscription is the billing status attached to a user, if any.
type Subscription struct {
	Tier   string
	Status string
}

// RoleAggregate is the merged result of the four scope lookups. Computed
// fresh on every issuance and never persisted. It is all-or-nothing: a
// failed lookup fails the whole aggregate rather than producing a partial
// set that is indistinguishable from "no access".
type RoleAggregate struct {
	Grants             []EntityRole
	SubscriptionTier   string
	SubscriptionStatus string
}

// ScopeRoles flattens the grants of one scope into an id->role map.
func (a RoleAggregate) ScopeRoles(scope EntityScope) map[string]Role {
	out := make(map[string]Role)
	for _, g := range a.Grants {
		if g.Scope == scope {
			out[g.EntityID] = g.Role
		}
	}
	return out
}

// RichClaims is the decoded token payload: everything the authorization
// middleware needs to decide a request without touching storage.
// Immutable for the life of the token; invalidated only by expiry.
type RichClaims struct {
	SubjectID          string
	Username           string
	Email              string
	PlatformRole       PlatformRole
	Locations          map[string]Role
	Leagues            map[string]Role
	Teams              map[string]Role
	SubscriptionTier   string
	SubscriptionStatus string
	IssuedAt           time.Time
	ExpiresAt          time.Time
}

// OwnsLocation reports whether the subject owns the location's parent
// facility.
func (c *RichClaims) OwnsLocation(locationID string) bool {
	return c != nil && c.Locations[locationID] == RoleOwner
}

// LeagueRole returns the subject's role in a league, if any.
func (c *RichClaims) LeagueRole(leagueID string) (Role, bool) {
	if c == nil {
		return "", false
	}
	role, ok := c.Leagues[leagueID]
	return role, ok
}

// TeamRole returns the subject's role on a team, if any.
func (c *RichClaims) TeamRole(teamID string) (Role, bool) {
	if c == nil {
		return "", false
	}
	role, ok := c.Teams[teamID]
	return role, ok
}

// SigningKeyPair is one asymmetric pair in the rotation set. Immutable
// once created; the most recently created pair signs new tokens while
// older pairs keep verifying already-issued ones until their grace period
// lapses.
type SigningKeyPair struct {
	ID         string
	Algorithm  string
	PublicJWK  []byte
	PrivateJWK []byte
	CreatedAt  time.Time
}
