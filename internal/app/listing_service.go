package app

import (
	"context"
	"time"

	"github.com/cimillas/adboard/internal/clock"
	"github.com/cimillas/adboard/internal/domain"
)

type ListingRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateListing(ctx context.Context, listing domain.Listing) error
	GetListing(ctx context.Context, listingID string) (domain.Listing, error)
	UpdateListingStatus(ctx context.Context, listingID string, status domain.ListingStatus) error
}

// QuotaReserver is the slice of the ledger that listing submission needs.
type QuotaReserver interface {
	ReserveSubscriptionAd(ctx context.Context, sellerID string, now time.Time) error
}

type ListingService struct {
	repo       ListingRepository
	quota      QuotaReserver
	clock      clock.Clock
	listingTTL time.Duration
}

const defaultListingTTL = 60 * 24 * time.Hour

func NewListingService(repo ListingRepository, quota QuotaReserver, clk clock.Clock, opts ...ListingServiceOption) *ListingService {
	svc := &ListingService{
		repo:       repo,
		quota:      quota,
		clock:      clk,
		listingTTL: defaultListingTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type ListingServiceOption func(*ListingService)

// WithListingTTL overrides how long a new listing stays up before expiring.
func WithListingTTL(d time.Duration) ListingServiceOption {
	return func(s *ListingService) {
		if d > 0 {
			s.listingTTL = d
		}
	}
}

type SubmitListingInput struct {
	SellerID   string
	CategoryID string
	Title      string
}

// SubmitListing consumes one subscription ad slot and creates the listing in
// pending status, both in the same transaction. A seller with no remaining
// quota gets ErrGrantExhausted and no listing.
func (s *ListingService) SubmitListing(ctx context.Context, in SubmitListingInput) (domain.Listing, error) {
	if in.SellerID == "" {
		return domain.Listing{}, domain.ErrSellerIDRequired
	}
	if in.CategoryID == "" {
		return domain.Listing{}, domain.ErrCategoryRequired
	}
	if in.Title == "" {
		return domain.Listing{}, domain.ErrTitleRequired
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.listingTTL)

	listing := domain.Listing{
		ID:         newID(),
		SellerID:   in.SellerID,
		CategoryID: in.CategoryID,
		Title:      in.Title,
		Status:     domain.ListingStatusPending,
		CreatedAt:  now,
		ExpiresAt:  &expiresAt,
	}

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.quota.ReserveSubscriptionAd(txCtx, in.SellerID, now); err != nil {
			return err
		}
		return s.repo.CreateListing(txCtx, listing)
	})
	if err != nil {
		return domain.Listing{}, err
	}
	return listing, nil
}

// SetStatus applies a moderation decision (activate, reject, soft-remove).
func (s *ListingService) SetStatus(ctx context.Context, listingID string, status domain.ListingStatus) (domain.Listing, error) {
	if listingID == "" {
		return domain.Listing{}, domain.ErrInvalidID
	}
	switch status {
	case domain.ListingStatusActive, domain.ListingStatusRejected,
		domain.ListingStatusExpired, domain.ListingStatusDeleted,
		domain.ListingStatusPending:
	default:
		return domain.Listing{}, domain.ErrInvalidStatus
	}

	if err := s.repo.UpdateListingStatus(ctx, listingID, status); err != nil {
		return domain.Listing{}, err
	}
	return s.repo.GetListing(ctx, listingID)
}
