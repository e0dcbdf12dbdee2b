package domain

import "time"

// PaymentEvent is the payment-completed notification delivered by the
// payment collaborator. EventID is the external payment/event id that makes
// grant creation idempotent.
type PaymentEvent struct {
	EventID  string
	SellerID string
	Kind     GrantKind

	// Subscription parameters.
	MaxAds    int
	ExpiresAt *time.Time

	// Tier purchase parameters.
	TierID string

	// Bump and promotion parameters. Quantity defaults to 1.
	Quantity        int
	PromotionTypeID string
}
