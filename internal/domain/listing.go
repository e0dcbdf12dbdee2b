package domain

import "time"

type ListingStatus string

const (
	ListingStatusDraft    ListingStatus = "draft"
	ListingStatusPending  ListingStatus = "pending"
	ListingStatusActive   ListingStatus = "active"
	ListingStatusRejected ListingStatus = "rejected"
	ListingStatusExpired  ListingStatus = "expired"
	ListingStatusDeleted  ListingStatus = "deleted"
)

// Listing is a classified ad owned by a seller. Ranking attributes are
// embedded; they only change through a successful ledger reservation.
type Listing struct {
	ID         string
	SellerID   string
	CategoryID string
	Title      string
	Status     ListingStatus
	CreatedAt  time.Time
	// ExpiresAt is nil for listings that never auto-expire.
	ExpiresAt *time.Time

	RankingAttributes
}

// RankingAttributes are the monetization-derived signals the feed ranks on.
// A nil expiry means the effect never expires; a nil BumpedAt means the
// listing was never bumped.
type RankingAttributes struct {
	PromotionTypeID    *string
	PromotionExpiresAt *time.Time
	Featured           bool
	FeaturedUntil      *time.Time
	TierPurchaseID     *string
	TierPriority       int
	BumpedAt           *time.Time
}

// HasActivePromotion reports whether the listing carries a promotion that is
// still valid at now.
func (a RankingAttributes) HasActivePromotion(now time.Time) bool {
	if a.PromotionTypeID == nil {
		return false
	}
	return a.PromotionExpiresAt == nil || a.PromotionExpiresAt.After(now)
}

// IsFeaturedAt reports whether the featured flag is still valid at now.
func (a RankingAttributes) IsFeaturedAt(now time.Time) bool {
	if !a.Featured {
		return false
	}
	return a.FeaturedUntil == nil || a.FeaturedUntil.After(now)
}

// BumpRank returns the instant used for bump-recency ordering. Listings that
// were never bumped rank as the zero instant so they stay comparable on the
// remaining keys.
func (a RankingAttributes) BumpRank() time.Time {
	if a.BumpedAt == nil {
		return time.Time{}
	}
	return *a.BumpedAt
}

// RankingContext carries the per-request inputs to sourcing and ranking.
// PreferredCategoryID is empty when the viewer has no known preference.
type RankingContext struct {
	Now                 time.Time
	PreferredCategoryID string
}
