package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/cimillas/adboard/internal/clock"
	"github.com/cimillas/adboard/internal/domain"
	"github.com/cimillas/adboard/internal/metrics"
)

// LedgerRepository performs atomic reserve-or-fail operations on grant
// records. Every reservation re-checks its invariant at write time; a
// predicate that no longer holds surfaces as ErrGrantExhausted,
// ErrGrantExpired or ErrInsufficientBalance, never as partial state.
type LedgerRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	ReserveSubscriptionAd(ctx context.Context, sellerID string, now time.Time) error
	ReleaseSubscriptionAd(ctx context.Context, sellerID string) error

	GetTierPurchase(ctx context.Context, tierPurchaseID string) (domain.TierPurchase, error)
	ReserveTierSlot(ctx context.Context, tierPurchaseID string) error
	ReleaseTierSlot(ctx context.Context, tierPurchaseID string) error

	DebitBump(ctx context.Context, sellerID string) error
	CreditBump(ctx context.Context, sellerID string, amount int) error

	ClaimPromotionCredit(ctx context.Context, sellerID, promotionTypeID string, now time.Time) (domain.PromotionCredit, domain.PromotionType, error)
	FinalizePromotionCredit(ctx context.Context, creditID, listingID string) error
	ReleasePromotionCredit(ctx context.Context, creditID string) error
}

// ListingAttributeRepository mutates the ranking attributes a grant pays
// for. Calls participate in the surrounding ledger transaction.
type ListingAttributeRepository interface {
	GetListingForUpdate(ctx context.Context, listingID string) (domain.Listing, error)
	SetPromotion(ctx context.Context, listingID, promotionTypeID string, expiresAt *time.Time) error
	ClearPromotion(ctx context.Context, listingID string) error
	SetFeatured(ctx context.Context, listingID string, until *time.Time) error
	ClearFeatured(ctx context.Context, listingID string) error
	SetBumped(ctx context.Context, listingID string, at time.Time) error
	ClearBumped(ctx context.Context, listingID string) error
	AssignTierSlot(ctx context.Context, listingID, tierPurchaseID string, priority int) error
	ClearTierSlot(ctx context.Context, listingID string) error
}

type GrantService struct {
	ledger      LedgerRepository
	listings    ListingAttributeRepository
	clock       clock.Clock
	logger      zerolog.Logger
	maxAttempts int
}

const defaultMaxAttempts = 3

func NewGrantService(ledger LedgerRepository, listings ListingAttributeRepository, clk clock.Clock, logger zerolog.Logger, opts ...GrantServiceOption) *GrantService {
	svc := &GrantService{
		ledger:      ledger,
		listings:    listings,
		clock:       clk,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type GrantServiceOption func(*GrantService)

// WithMaxAttempts overrides the bound on the conflict-retry loop.
func WithMaxAttempts(n int) GrantServiceOption {
	return func(s *GrantService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

type ApplyGrantInput struct {
	ListingID string
	Kind      domain.GrantKind
	// TierPurchaseID is required for tier-slot grants.
	TierPurchaseID string
	// PromotionTypeID is required for promotion grants.
	PromotionTypeID string
}

func (in ApplyGrantInput) validate() error {
	if in.ListingID == "" {
		return domain.ErrInvalidID
	}
	switch in.Kind {
	case domain.GrantBump:
		return nil
	case domain.GrantTierSlot:
		if in.TierPurchaseID == "" {
			return domain.ErrTierPurchaseIDEmpty
		}
		return nil
	case domain.GrantPromotion:
		if in.PromotionTypeID == "" {
			return domain.ErrPromotionTypeEmpty
		}
		return nil
	default:
		// Subscription quota is consumed by listing submission, not here.
		return domain.ErrUnknownGrantKind
	}
}

type ApplyGrantResult struct {
	Listing domain.Listing
	Ref     domain.GrantRef
}

// ApplyGrant reserves one unit of the requested grant and applies its effect
// to the listing's ranking attributes. Reservation and attribute update
// commit as one transaction: an error on either side leaves the ledger
// untouched. Conflicting concurrent writes are retried a bounded number of
// times before surfacing ErrConflictRetryExceeded.
func (s *GrantService) ApplyGrant(ctx context.Context, in ApplyGrantInput) (ApplyGrantResult, error) {
	if err := in.validate(); err != nil {
		return ApplyGrantResult{}, err
	}

	now := s.clock.Now()

	var result ApplyGrantResult
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		result, err = s.applyOnce(ctx, in, now)
		if !errors.Is(err, domain.ErrTxConflict) {
			break
		}
		s.logger.Debug().
			Str("listing_id", in.ListingID).
			Str("kind", string(in.Kind)).
			Int("attempt", attempt).
			Msg("grant reservation conflict, retrying")
	}
	if errors.Is(err, domain.ErrTxConflict) {
		err = domain.ErrConflictRetryExceeded
	}

	metrics.GrantReservations.WithLabelValues(string(in.Kind), reservationOutcome(err)).Inc()
	return result, err
}

func (s *GrantService) applyOnce(ctx context.Context, in ApplyGrantInput, now time.Time) (ApplyGrantResult, error) {
	var result ApplyGrantResult

	err := s.ledger.WithTx(ctx, func(txCtx context.Context) error {
		listing, err := s.listings.GetListingForUpdate(txCtx, in.ListingID)
		if err != nil {
			return err
		}
		if !grantEligible(listing.Status) {
			return domain.ErrListingNotEligible
		}

		ref := domain.GrantRef{Kind: in.Kind, SellerID: listing.SellerID}

		switch in.Kind {
		case domain.GrantBump:
			if err := s.ledger.DebitBump(txCtx, listing.SellerID); err != nil {
				return err
			}
			if err := s.listings.SetBumped(txCtx, listing.ID, now); err != nil {
				return err
			}
			bumped := now
			listing.BumpedAt = &bumped

		case domain.GrantTierSlot:
			purchase, err := s.ledger.GetTierPurchase(txCtx, in.TierPurchaseID)
			if err != nil {
				return err
			}
			if purchase.SellerID != listing.SellerID {
				return domain.ErrTierPurchaseNotFound
			}
			if purchase.ExpiredAt(now) {
				return domain.ErrGrantExpired
			}
			if err := s.ledger.ReserveTierSlot(txCtx, purchase.ID); err != nil {
				return err
			}
			if err := s.listings.AssignTierSlot(txCtx, listing.ID, purchase.ID, purchase.PriorityWeight); err != nil {
				return err
			}
			listing.TierPurchaseID = &purchase.ID
			listing.TierPriority = purchase.PriorityWeight
			ref.TierPurchaseID = purchase.ID

			if purchase.IncludedFeaturedDays > 0 {
				until := now.AddDate(0, 0, purchase.IncludedFeaturedDays)
				if err := s.listings.SetFeatured(txCtx, listing.ID, &until); err != nil {
					return err
				}
				listing.Featured = true
				listing.FeaturedUntil = &until
				ref.FeaturedGranted = true
			}

		case domain.GrantPromotion:
			credit, ptype, err := s.ledger.ClaimPromotionCredit(txCtx, listing.SellerID, in.PromotionTypeID, now)
			if err != nil {
				return err
			}

			var expires *time.Time
			if ptype.DurationDays > 0 {
				e := now.AddDate(0, 0, ptype.DurationDays)
				expires = &e
			}

			if ptype.Effect == domain.PromotionEffectFeature {
				if err := s.listings.SetFeatured(txCtx, listing.ID, expires); err != nil {
					return err
				}
				listing.Featured = true
				listing.FeaturedUntil = expires
				ref.FeaturedGranted = true
			} else {
				if err := s.listings.SetPromotion(txCtx, listing.ID, ptype.ID, expires); err != nil {
					return err
				}
				typeID := ptype.ID
				listing.PromotionTypeID = &typeID
				listing.PromotionExpiresAt = expires
			}
			if err := s.ledger.FinalizePromotionCredit(txCtx, credit.ID, listing.ID); err != nil {
				return err
			}
			ref.PromotionCreditID = credit.ID
		}

		result = ApplyGrantResult{Listing: listing, Ref: ref}
		return nil
	})
	if err != nil {
		return ApplyGrantResult{}, err
	}
	return result, nil
}

type ReleaseGrantInput struct {
	ListingID string
	Ref       domain.GrantRef
}

// ReleaseGrant is the compensating action for a consumed grant, used by the
// admin-reversal path. It returns the grant unit to the ledger and clears
// the listing attributes the reservation set.
func (s *GrantService) ReleaseGrant(ctx context.Context, in ReleaseGrantInput) error {
	if in.Ref.SellerID == "" {
		return domain.ErrSellerIDRequired
	}

	return s.ledger.WithTx(ctx, func(txCtx context.Context) error {
		switch in.Ref.Kind {
		case domain.GrantSubscriptionAd:
			// The listing itself is handled by moderation; only the quota
			// unit is returned.
			return s.ledger.ReleaseSubscriptionAd(txCtx, in.Ref.SellerID)

		case domain.GrantBump:
			if in.ListingID == "" {
				return domain.ErrInvalidID
			}
			if err := s.ledger.CreditBump(txCtx, in.Ref.SellerID, 1); err != nil {
				return err
			}
			return s.listings.ClearBumped(txCtx, in.ListingID)

		case domain.GrantTierSlot:
			if in.ListingID == "" || in.Ref.TierPurchaseID == "" {
				return domain.ErrInvalidID
			}
			if err := s.ledger.ReleaseTierSlot(txCtx, in.Ref.TierPurchaseID); err != nil {
				return err
			}
			if err := s.listings.ClearTierSlot(txCtx, in.ListingID); err != nil {
				return err
			}
			if in.Ref.FeaturedGranted {
				return s.listings.ClearFeatured(txCtx, in.ListingID)
			}
			return nil

		case domain.GrantPromotion:
			if in.ListingID == "" || in.Ref.PromotionCreditID == "" {
				return domain.ErrInvalidID
			}
			if err := s.ledger.ReleasePromotionCredit(txCtx, in.Ref.PromotionCreditID); err != nil {
				return err
			}
			if in.Ref.FeaturedGranted {
				return s.listings.ClearFeatured(txCtx, in.ListingID)
			}
			return s.listings.ClearPromotion(txCtx, in.ListingID)

		default:
			return domain.ErrUnknownGrantKind
		}
	})
}

func grantEligible(status domain.ListingStatus) bool {
	return status == domain.ListingStatusActive || status == domain.ListingStatusPending
}

func reservationOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrGrantExhausted):
		return "exhausted"
	case errors.Is(err, domain.ErrGrantExpired):
		return "expired"
	case errors.Is(err, domain.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, domain.ErrConflictRetryExceeded):
		return "conflict"
	default:
		return "error"
	}
}
