package app

import (
	"context"
	"sort"
	"time"

	"github.com/cimillas/adboard/internal/domain"
)

// fakeGrantStore backs both the ledger and listing-attribute interfaces with
// maps. WithTx snapshots state and restores it on error so all-or-nothing
// behavior can be asserted.
type fakeGrantStore struct {
	listings  map[string]domain.Listing
	quotas    map[string]*domain.SubscriptionQuota
	purchases map[string]*domain.TierPurchase
	wallets   map[string]int
	credits   map[string]*domain.PromotionCredit
	ptypes    map[string]domain.PromotionType

	// conflicts makes the next n transactions fail with ErrTxConflict.
	conflicts        int
	failSetPromotion error
}

func newFakeGrantStore() *fakeGrantStore {
	return &fakeGrantStore{
		listings:  make(map[string]domain.Listing),
		quotas:    make(map[string]*domain.SubscriptionQuota),
		purchases: make(map[string]*domain.TierPurchase),
		wallets:   make(map[string]int),
		credits:   make(map[string]*domain.PromotionCredit),
		ptypes:    make(map[string]domain.PromotionType),
	}
}

type grantStoreSnapshot struct {
	listings  map[string]domain.Listing
	quotas    map[string]*domain.SubscriptionQuota
	purchases map[string]*domain.TierPurchase
	wallets   map[string]int
	credits   map[string]*domain.PromotionCredit
}

func (s *fakeGrantStore) snapshot() grantStoreSnapshot {
	snap := grantStoreSnapshot{
		listings:  make(map[string]domain.Listing, len(s.listings)),
		quotas:    make(map[string]*domain.SubscriptionQuota, len(s.quotas)),
		purchases: make(map[string]*domain.TierPurchase, len(s.purchases)),
		wallets:   make(map[string]int, len(s.wallets)),
		credits:   make(map[string]*domain.PromotionCredit, len(s.credits)),
	}
	for k, v := range s.listings {
		snap.listings[k] = v
	}
	for k, v := range s.quotas {
		q := *v
		snap.quotas[k] = &q
	}
	for k, v := range s.purchases {
		p := *v
		snap.purchases[k] = &p
	}
	for k, v := range s.wallets {
		snap.wallets[k] = v
	}
	for k, v := range s.credits {
		c := *v
		snap.credits[k] = &c
	}
	return snap
}

func (s *fakeGrantStore) restore(snap grantStoreSnapshot) {
	s.listings = snap.listings
	s.quotas = snap.quotas
	s.purchases = snap.purchases
	s.wallets = snap.wallets
	s.credits = snap.credits
}

func (s *fakeGrantStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.conflicts > 0 {
		s.conflicts--
		return domain.ErrTxConflict
	}
	snap := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *fakeGrantStore) ReserveSubscriptionAd(_ context.Context, sellerID string, now time.Time) error {
	q, ok := s.quotas[sellerID]
	if !ok {
		return domain.ErrGrantExhausted
	}
	if !q.ExpiresAt.After(now) {
		return domain.ErrGrantExpired
	}
	if q.AdsUsed >= q.MaxAds {
		return domain.ErrGrantExhausted
	}
	q.AdsUsed++
	return nil
}

func (s *fakeGrantStore) ReleaseSubscriptionAd(_ context.Context, sellerID string) error {
	if q, ok := s.quotas[sellerID]; ok && q.AdsUsed > 0 {
		q.AdsUsed--
	}
	return nil
}

func (s *fakeGrantStore) GetTierPurchase(_ context.Context, tierPurchaseID string) (domain.TierPurchase, error) {
	p, ok := s.purchases[tierPurchaseID]
	if !ok {
		return domain.TierPurchase{}, domain.ErrTierPurchaseNotFound
	}
	return *p, nil
}

func (s *fakeGrantStore) ReserveTierSlot(_ context.Context, tierPurchaseID string) error {
	p, ok := s.purchases[tierPurchaseID]
	if !ok {
		return domain.ErrTierPurchaseNotFound
	}
	if p.ConsumedSlots >= p.MaxAds {
		return domain.ErrGrantExhausted
	}
	p.ConsumedSlots++
	return nil
}

func (s *fakeGrantStore) ReleaseTierSlot(_ context.Context, tierPurchaseID string) error {
	if p, ok := s.purchases[tierPurchaseID]; ok && p.ConsumedSlots > 0 {
		p.ConsumedSlots--
	}
	return nil
}

func (s *fakeGrantStore) DebitBump(_ context.Context, sellerID string) error {
	if s.wallets[sellerID] <= 0 {
		return domain.ErrInsufficientBalance
	}
	s.wallets[sellerID]--
	return nil
}

func (s *fakeGrantStore) CreditBump(_ context.Context, sellerID string, amount int) error {
	s.wallets[sellerID] += amount
	return nil
}

func (s *fakeGrantStore) ClaimPromotionCredit(_ context.Context, sellerID, promotionTypeID string, now time.Time) (domain.PromotionCredit, domain.PromotionType, error) {
	ptype, ok := s.ptypes[promotionTypeID]
	if !ok {
		return domain.PromotionCredit{}, domain.PromotionType{}, domain.ErrPromotionTypeNotFound
	}

	ids := make([]string, 0, len(s.credits))
	for id := range s.credits {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sawUnconsumed := false
	for _, id := range ids {
		c := s.credits[id]
		if c.SellerID != sellerID || c.PromotionTypeID != promotionTypeID {
			continue
		}
		if c.ListingID != nil || c.ConsumedAt != nil {
			continue
		}
		sawUnconsumed = true
		if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
			continue
		}
		consumed := now
		c.ConsumedAt = &consumed
		return *c, ptype, nil
	}
	if sawUnconsumed {
		return domain.PromotionCredit{}, domain.PromotionType{}, domain.ErrGrantExpired
	}
	return domain.PromotionCredit{}, domain.PromotionType{}, domain.ErrGrantExhausted
}

func (s *fakeGrantStore) FinalizePromotionCredit(_ context.Context, creditID, listingID string) error {
	c, ok := s.credits[creditID]
	if !ok || c.ConsumedAt == nil {
		return domain.ErrInvalidID
	}
	id := listingID
	c.ListingID = &id
	return nil
}

func (s *fakeGrantStore) ReleasePromotionCredit(_ context.Context, creditID string) error {
	if c, ok := s.credits[creditID]; ok {
		c.ListingID = nil
		c.ConsumedAt = nil
	}
	return nil
}

func (s *fakeGrantStore) GetListingForUpdate(_ context.Context, listingID string) (domain.Listing, error) {
	l, ok := s.listings[listingID]
	if !ok {
		return domain.Listing{}, domain.ErrListingNotFound
	}
	return l, nil
}

func (s *fakeGrantStore) SetPromotion(_ context.Context, listingID, promotionTypeID string, expiresAt *time.Time) error {
	if s.failSetPromotion != nil {
		return s.failSetPromotion
	}
	l, ok := s.listings[listingID]
	if !ok {
		return domain.ErrListingNotFound
	}
	id := promotionTypeID
	l.PromotionTypeID = &id
	l.PromotionExpiresAt = expiresAt
	s.listings[listingID] = l
	return nil
}

func (s *fakeGrantStore) ClearPromotion(_ context.Context, listingID string) error {
	l, ok := s.listings[listingID]
	if !ok {
		return domain.ErrListingNotFound
	}
	l.PromotionTypeID = nil
	l.PromotionExpiresAt = nil
	s.listings[listingID] = l
	return nil
}

func (s *fakeGrantStore) SetFeatured(_ context.Context, listingID string, until *time.Time) error {
	l, ok := s.listings[listingID]
	if !ok {
		return domain.ErrListingNotFound
	}
	l.Featured = true
	l.FeaturedUntil = until
	s.listings[listingID] = l
	return nil
}

func (s *fakeGrantStore) ClearFeatured(_ context.Context, listingID string) error {
	l, ok := s.listings[listingID]
	if !ok {
		return domain.ErrListingNotFound
	}
	l.Featured = false
	l.FeaturedUntil = nil
	s.listings[listingID] = l
	return nil
}

func (s *fakeGrantStore) SetBumped(_ context.Context, listingID string, at time.Time) error {
	l, ok := s.listings[listingID]
	if !ok {
		return domain.ErrListingNotFound
	}
	bumped := at
	l.BumpedAt = &bumped
	s.listings[listingID] = l
	return nil
}

func (s *fakeGrantStore) ClearBumped(_ context.Context, listingID string) error {
	l, ok := s.listings[listingID]
	if !ok {
		return domain.ErrListingNotFound
	}
	l.BumpedAt = nil
	s.listings[listingID] = l
	return nil
}

func (s *fakeGrantStore) AssignTierSlot(_ context.Context, listingID, tierPurchaseID string, priority int) error {
	l, ok := s.listings[listingID]
	if !ok {
		return domain.ErrListingNotFound
	}
	id := tierPurchaseID
	l.TierPurchaseID = &id
	l.TierPriority = priority
	s.listings[listingID] = l
	return nil
}

func (s *fakeGrantStore) ClearTierSlot(_ context.Context, listingID string) error {
	l, ok := s.listings[listingID]
	if !ok {
		return domain.ErrListingNotFound
	}
	l.TierPurchaseID = nil
	l.TierPriority = 0
	s.listings[listingID] = l
	return nil
}
