package httpapi

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"courtside.org/internal/auth"
)

// memStore is an in-memory auth.Store for handler tests.
type memStore struct {
	mu     sync.Mutex
	users  map[string]*auth.User
	grants map[string][]auth.EntityRole
	subs   map[string]*auth.Subscription
	pairs  []auth.SigningKeyPair
}

func newMemStore() *memStore {
	return &memStore{
		users:  make(map[string]*auth.User),
		grants: make(map[string][]auth.EntityRole),
		subs:   make(map[string]*auth.Subscription),
	}
}

func (s *memStore) Users(context.Context) auth.UserStore                 { return memUsers{s} }
func (s *memStore) Grants(context.Context) auth.GrantStore               { return memGrants{s} }
func (s *memStore) Subscriptions(context.Context) auth.SubscriptionStore { return memSubs{s} }
func (s *memStore) SigningKeys(context.Context) auth.SigningKeyStore     { return memKeys{s} }

type memUsers struct{ s *memStore }

func (m memUsers) Find(_ context.Context, id string) (*auth.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	user, ok := m.s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *user
	return &clone, nil
}

func (m memUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, user := range m.s.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, auth.ErrNotFound
}

type memGrants struct{ s *memStore }

func (m memGrants) scoped(userID string, scope auth.EntityScope) ([]auth.EntityRole, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	var out []auth.EntityRole
	for _, g := range m.s.grants[userID] {
		if g.Scope == scope {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m memGrants) OwnedLocations(_ context.Context, userID string) ([]auth.EntityRole, error) {
	return m.scoped(userID, auth.ScopeLocation)
}

func (m memGrants) LeagueMemberships(_ context.Context, userID string) ([]auth.EntityRole, error) {
	return m.scoped(userID, auth.ScopeLeague)
}

func (m memGrants) ActiveTeamMemberships(_ context.Context, userID string) ([]auth.EntityRole, error) {
	return m.scoped(userID, auth.ScopeTeam)
}

type memSubs struct{ s *memStore }

func (m memSubs) Find(_ context.Context, userID string) (*auth.Subscription, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	sub, ok := m.s.subs[userID]
	if !ok {
		return nil, auth.ErrNotFound
	}
	clone := *sub
	return &clone, nil
}

type memKeys struct{ s *memStore }

func (m memKeys) List(context.Context) ([]auth.SigningKeyPair, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	pairs := make([]auth.SigningKeyPair, len(m.s.pairs))
	copy(pairs, m.s.pairs)
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].CreatedAt.After(pairs[j].CreatedAt)
	})
	return pairs, nil
}

func (m memKeys) Create(_ context.Context, pair *auth.SigningKeyPair) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.pairs = append(m.s.pairs, *pair)
	return nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// newTestAPI builds an API over an in-memory store seeded with one active
// user (casey@example.com / "open sesame") and one signing key.
func newTestAPI(t *testing.T) (*API, *auth.Service, *memStore, *testClock) {
	t.Helper()

	clk := &testClock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	store := newMemStore()

	hash, err := auth.HashPassword("open sesame")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	store.users["u1"] = &auth.User{
		ID:           "u1",
		Username:     "casey",
		Email:        "casey@example.com",
		PlatformRole: auth.PlatformRoleUser,
		PasswordHash: hash,
		Status:       auth.UserStatusActive,
		CreatedAt:    clk.Now(),
		UpdatedAt:    clk.Now(),
	}
	store.grants["u1"] = []auth.EntityRole{
		{Scope: auth.ScopeLeague, EntityID: "lg-1", Role: auth.RoleManager},
	}

	pair, err := auth.GenerateKeyPair(clk.Now())
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	store.pairs = append(store.pairs, *pair)

	svc, err := auth.NewService(store, auth.WithClock(clk.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return New(ReadyProbe{}, svc, store, "test"), svc, store, clk
}
