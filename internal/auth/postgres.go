package auth

import (
	"context"
	"database/sql"
	"errors"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore       { return &userStore{db: s.db} }
func (s *PGStore) Grants(context.Context) GrantStore     { return &grantStore{db: s.db} }
func (s *PGStore) Subscriptions(context.Context) SubscriptionStore {
	return &subscriptionStore{db: s.db}
}
func (s *PGStore) SigningKeys(context.Context) SigningKeyStore {
	return &signingKeyStore{db: s.db}
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, email, platform_role, password_hash, status, created_at, updated_at
		 from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, email, platform_role, password_hash, status, created_at, updated_at
		 from users where email=$1`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PlatformRole, &u.PasswordHash,
		&u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Grant store --------------------------------------------------------------
type grantStore struct{ db *sql.DB }

// OwnedLocations grants "owner" on every location whose parent facility
// the user owns.
func (s *grantStore) OwnedLocations(ctx context.Context, userID string) ([]EntityRole, error) {
	rows, err := s.db.QueryContext(ctx,
		`select l.id from locations l
		 join facilities f on f.id = l.facility_id
		 where f.owner_user_id=$1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []EntityRole
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		grants = append(grants, EntityRole{Scope: ScopeLocation, EntityID: id, Role: RoleOwner})
	}
	return grants, rows.Err()
}

// LeagueMemberships returns only live memberships; soft-removed rows are
// filtered out, never returned with a disabled marker.
func (s *grantStore) LeagueMemberships(ctx context.Context, userID string) ([]EntityRole, error) {
	rows, err := s.db.QueryContext(ctx,
		`select league_id, role from league_members
		 where user_id=$1 and removed_at is null`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScopeRoles(rows, ScopeLeague)
}

func (s *grantStore) ActiveTeamMemberships(ctx context.Context, userID string) ([]EntityRole, error) {
	rows, err := s.db.QueryContext(ctx,
		`select team_id, role from team_members
		 where user_id=$1 and status='active'`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScopeRoles(rows, ScopeTeam)
}

func scanScopeRoles(rows *sql.Rows, scope EntityScope) ([]EntityRole, error) {
	var grants []EntityRole
	for rows.Next() {
		var (
			id   string
			role Role
		)
		if err := rows.Scan(&id, &role); err != nil {
			return nil, err
		}
		grants = append(grants, EntityRole{Scope: scope, EntityID: id, Role: role})
	}
	return grants, rows.Err()
}

// Subscription store -------------------------------------------------------
type subscriptionStore struct{ db *sql.DB }

func (s *subscriptionStore) Find(ctx context.Context, userID string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`select tier, status from subscriptions where user_id=$1`, userID)
	var sub Subscription
	if err := row.Scan(&sub.Tier, &sub.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// Signing key store --------------------------------------------------------
type signingKeyStore struct{ db *sql.DB }

func (s *signingKeyStore) List(ctx context.Context) ([]SigningKeyPair, error) {
	rows, err := s.db.QueryContext(ctx,
		`select id, algorithm, public_jwk, private_jwk, created_at
		 from signing_keys order by created_at desc, id desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pairs []SigningKeyPair
	for rows.Next() {
		var pair SigningKeyPair
		if err := rows.Scan(&pair.ID, &pair.Algorithm, &pair.PublicJWK, &pair.PrivateJWK, &pair.CreatedAt); err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

func (s *signingKeyStore) Create(ctx context.Context, pair *SigningKeyPair) error {
	_, err := s.db.ExecContext(ctx,
		`insert into signing_keys(id, algorithm, public_jwk, private_jwk, created_at)
		 values($1,$2,$3,$4,$5)`,
		pair.ID, pair.Algorithm, pair.PublicJWK, pair.PrivateJWK, pair.CreatedAt,
	)
	return err
}
