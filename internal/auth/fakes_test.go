package auth

import (
	"context"
	"sort"
	"sync"
	"time"
)

// fakeStore is an in-memory Store with per-lookup error injection, used
// across the package tests.
type fakeStore struct {
	mu sync.Mutex

	users     map[string]*User
	locations map[string][]EntityRole
	leagues   map[string][]EntityRole
	teams     map[string][]EntityRole
	subs      map[string]*Subscription
	pairs     []SigningKeyPair

	failLocations error
	failLeagues   error
	failTeams     error
	failSubs      error
	failKeys      error

	keyListCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     make(map[string]*User),
		locations: make(map[string][]EntityRole),
		leagues:   make(map[string][]EntityRole),
		teams:     make(map[string][]EntityRole),
		subs:      make(map[string]*Subscription),
	}
}

var _ Store = (*fakeStore)(nil)

func (f *fakeStore) Users(context.Context) UserStore                 { return f }
func (f *fakeStore) Grants(context.Context) GrantStore               { return f }
func (f *fakeStore) Subscriptions(context.Context) SubscriptionStore { return fakeSubs{f} }
func (f *fakeStore) SigningKeys(context.Context) SigningKeyStore     { return f }

// fakeSubs adapts fakeStore to SubscriptionStore; Find would otherwise
// collide with the UserStore method of the same name.
type fakeSubs struct{ f *fakeStore }

func (s fakeSubs) Find(_ context.Context, userID string) (*Subscription, error) {
	return s.f.findSubscription(userID)
}

func (f *fakeStore) Find(_ context.Context, id string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *u
	return &copied, nil
}

func (f *fakeStore) FindByEmail(_ context.Context, email string) (*User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) OwnedLocations(_ context.Context, userID string) ([]EntityRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLocations != nil {
		return nil, f.failLocations
	}
	return append([]EntityRole(nil), f.locations[userID]...), nil
}

func (f *fakeStore) LeagueMemberships(_ context.Context, userID string) ([]EntityRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLeagues != nil {
		return nil, f.failLeagues
	}
	return append([]EntityRole(nil), f.leagues[userID]...), nil
}

func (f *fakeStore) ActiveTeamMemberships(_ context.Context, userID string) ([]EntityRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTeams != nil {
		return nil, f.failTeams
	}
	return append([]EntityRole(nil), f.teams[userID]...), nil
}

func (f *fakeStore) findSubscription(userID string) (*Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubs != nil {
		return nil, f.failSubs
	}
	sub, ok := f.subs[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeStore) List(context.Context) ([]SigningKeyPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keyListCalls++
	if f.failKeys != nil {
		return nil, f.failKeys
	}
	pairs := append([]SigningKeyPair(nil), f.pairs...)
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].CreatedAt.After(pairs[j].CreatedAt)
	})
	return pairs, nil
}

func (f *fakeStore) Create(_ context.Context, pair *SigningKeyPair) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairs = append(f.pairs, *pair)
	return nil
}

func (f *fakeStore) listCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keyListCalls
}

// testClock is a manually advanced time source.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{t: start}
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
