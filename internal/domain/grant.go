package domain

import "time"

type GrantKind string

const (
	GrantSubscriptionAd GrantKind = "subscription_ad"
	GrantTierSlot       GrantKind = "tier_slot"
	GrantBump           GrantKind = "bump"
	GrantPromotion      GrantKind = "promotion"
)

// SubscriptionQuota caps how many ads a seller may post during a
// subscription period. AdsUsed only moves up in normal operation; an admin
// reversal is the single sanctioned decrement.
type SubscriptionQuota struct {
	SellerID  string
	MaxAds    int
	AdsUsed   int
	ExpiresAt time.Time
}

func (q SubscriptionQuota) Remaining() int {
	return q.MaxAds - q.AdsUsed
}

func (q SubscriptionQuota) ExpiredAt(now time.Time) bool {
	return now.After(q.ExpiresAt)
}

// TierDefinition describes a purchasable ranking-priority package.
type TierDefinition struct {
	ID                   string
	Name                 string
	MaxAds               int
	PriorityWeight       int
	IncludedFeaturedDays int
}

// TierPurchase is a seller's paid tier package. The definition fields are
// snapshotted at purchase time so later catalog edits never change what a
// seller already paid for. ConsumedSlots counts listings currently
// occupying a slot and may never exceed MaxAds.
type TierPurchase struct {
	ID                   string
	SellerID             string
	TierID               string
	MaxAds               int
	PriorityWeight       int
	IncludedFeaturedDays int
	ConsumedSlots        int
	ExpiresAt            *time.Time
	CreatedAt            time.Time
}

func (p TierPurchase) ExpiredAt(now time.Time) bool {
	return p.ExpiresAt != nil && now.After(*p.ExpiresAt)
}

// BumpWallet holds a seller's prepaid bump credits.
type BumpWallet struct {
	SellerID string
	Balance  int
}

// PromotionEffect is what applying a credit of a given promotion type does
// to a listing.
type PromotionEffect string

const (
	PromotionEffectPromote PromotionEffect = "promote"
	PromotionEffectFeature PromotionEffect = "feature"
)

// PromotionType is a purchasable promotion product (e.g. "Top Ad 7 days").
// DurationDays of zero means the applied effect never expires.
type PromotionType struct {
	ID           string
	Name         string
	Effect       PromotionEffect
	DurationDays int
}

// PromotionCredit is one unit of a promotion grant. It is unconsumed while
// ListingID is nil and consumed once a reservation finalizes it against a
// listing.
type PromotionCredit struct {
	ID              string
	SellerID        string
	PromotionTypeID string
	ListingID       *string
	ExpiresAt       *time.Time
	ConsumedAt      *time.Time
	CreatedAt       time.Time
}

// GrantRef identifies a consumed grant so it can be released again by the
// admin-reversal path.
type GrantRef struct {
	Kind              GrantKind
	SellerID          string
	TierPurchaseID    string
	PromotionCreditID string
	// FeaturedGranted records that the reservation also set the featured
	// flag (tier with included featured days), so a release clears it too.
	FeaturedGranted bool
}
