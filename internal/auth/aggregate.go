package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Aggregator gathers a user's authorization facts from the three entity
// scopes plus the subscription record. It has no state of its own and no
// side effects; aggregating twice at the same instant yields the same
// result.
type Aggregator struct {
	grants GrantStore
	subs   SubscriptionStore
}

// NewAggregator constructs an Aggregator over the given stores.
func NewAggregator(grants GrantStore, subs SubscriptionStore) *Aggregator {
	return &Aggregator{grants: grants, subs: subs}
}

// Aggregate runs the four scope lookups concurrently and joins them.
// Fail-fast: if any lookup errors, the whole call returns
// ErrAggregationFailed and no partial aggregate — a partial claims set is
// indistinguishable from "no access" and must not masquerade as success.
func (a *Aggregator) Aggregate(ctx context.Context, userID string) (RoleAggregate, error) {
	var (
		locations []EntityRole
		leagues   []EntityRole
		teams     []EntityRole
		sub       *Subscription
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		locations, err = a.grants.OwnedLocations(ctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		leagues, err = a.grants.LeagueMemberships(ctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		teams, err = a.grants.ActiveTeamMemberships(ctx, userID)
		return err
	})
	g.Go(func() error {
		s, err := a.subs.Find(ctx, userID)
		if errors.Is(err, ErrNotFound) {
			// No subscription row is a valid state, not a lookup failure.
			return nil
		}
		if err != nil {
			return err
		}
		sub = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return RoleAggregate{}, fmt.Errorf("%w: %w", ErrAggregationFailed, err)
	}

	agg := RoleAggregate{
		Grants: make([]EntityRole, 0, len(locations)+len(leagues)+len(teams)),
	}
	agg.Grants = append(agg.Grants, locations...)
	agg.Grants = append(agg.Grants, leagues...)
	agg.Grants = append(agg.Grants, teams...)
	if sub != nil {
		agg.SubscriptionTier = sub.Tier
		agg.SubscriptionStatus = sub.Status
	}
	return agg, nil
}
