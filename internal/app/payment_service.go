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

type PaymentRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// RecordEvent claims the event id; ErrEventAlreadyProcessed means a
	// previous delivery already created the grant.
	RecordEvent(ctx context.Context, eventID string, receivedAt time.Time) error

	UpsertSubscriptionQuota(ctx context.Context, quota domain.SubscriptionQuota) error
	GetTierDefinition(ctx context.Context, tierID string) (domain.TierDefinition, error)
	CreateTierPurchase(ctx context.Context, purchase domain.TierPurchase) error
	CreditBump(ctx context.Context, sellerID string, amount int) error
	GetPromotionType(ctx context.Context, promotionTypeID string) (domain.PromotionType, error)
	CreatePromotionCredits(ctx context.Context, credits []domain.PromotionCredit) error
}

// PaymentService turns payment-completed events into grant records, exactly
// once per event id. Redelivered events are acknowledged without effect.
type PaymentService struct {
	repo   PaymentRepository
	clock  clock.Clock
	logger zerolog.Logger
}

func NewPaymentService(repo PaymentRepository, clk clock.Clock, logger zerolog.Logger) *PaymentService {
	return &PaymentService{
		repo:   repo,
		clock:  clk,
		logger: logger,
	}
}

func (s *PaymentService) HandlePaymentCompleted(ctx context.Context, ev domain.PaymentEvent) error {
	if ev.EventID == "" {
		return domain.ErrEventIDRequired
	}
	if ev.SellerID == "" {
		return domain.ErrSellerIDRequired
	}

	now := s.clock.Now()

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.RecordEvent(txCtx, ev.EventID, now); err != nil {
			return err
		}
		return s.createGrant(txCtx, ev, now)
	})
	if errors.Is(err, domain.ErrEventAlreadyProcessed) {
		s.logger.Debug().
			Str("event_id", ev.EventID).
			Msg("duplicate payment event ignored")
		return nil
	}
	if err != nil {
		return err
	}

	metrics.PaymentEvents.WithLabelValues(string(ev.Kind)).Inc()
	return nil
}

func (s *PaymentService) createGrant(ctx context.Context, ev domain.PaymentEvent, now time.Time) error {
	quantity := ev.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	switch ev.Kind {
	case domain.GrantSubscriptionAd:
		if ev.MaxAds <= 0 || ev.ExpiresAt == nil {
			return domain.ErrInvalidGrantParams
		}
		return s.repo.UpsertSubscriptionQuota(ctx, domain.SubscriptionQuota{
			SellerID:  ev.SellerID,
			MaxAds:    ev.MaxAds,
			AdsUsed:   0,
			ExpiresAt: *ev.ExpiresAt,
		})

	case domain.GrantTierSlot:
		if ev.TierID == "" {
			return domain.ErrInvalidGrantParams
		}
		def, err := s.repo.GetTierDefinition(ctx, ev.TierID)
		if err != nil {
			return err
		}
		// Definition fields are snapshotted so later catalog edits do not
		// change what the seller paid for.
		return s.repo.CreateTierPurchase(ctx, domain.TierPurchase{
			ID:                   newID(),
			SellerID:             ev.SellerID,
			TierID:               def.ID,
			MaxAds:               def.MaxAds,
			PriorityWeight:       def.PriorityWeight,
			IncludedFeaturedDays: def.IncludedFeaturedDays,
			ExpiresAt:            ev.ExpiresAt,
			CreatedAt:            now,
		})

	case domain.GrantBump:
		return s.repo.CreditBump(ctx, ev.SellerID, quantity)

	case domain.GrantPromotion:
		if ev.PromotionTypeID == "" {
			return domain.ErrInvalidGrantParams
		}
		ptype, err := s.repo.GetPromotionType(ctx, ev.PromotionTypeID)
		if err != nil {
			return err
		}
		credits := make([]domain.PromotionCredit, 0, quantity)
		for i := 0; i < quantity; i++ {
			credits = append(credits, domain.PromotionCredit{
				ID:              newID(),
				SellerID:        ev.SellerID,
				PromotionTypeID: ptype.ID,
				ExpiresAt:       ev.ExpiresAt,
				CreatedAt:       now,
			})
		}
		return s.repo.CreatePromotionCredits(ctx, credits)

	default:
		return domain.ErrUnknownGrantKind
	}
}
