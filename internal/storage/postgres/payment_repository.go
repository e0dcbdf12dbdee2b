package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/adboard/internal/domain"
)

// PaymentRepository persists grant records created from payment-completed
// events. The payment_events primary key is what makes event handling
// idempotent.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

func (r *PaymentRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *PaymentRepository) RecordEvent(ctx context.Context, eventID string, receivedAt time.Time) error {
	const stmt = `INSERT INTO payment_events (id, received_at) VALUES ($1, $2)`

	if _, err := r.exec(ctx, stmt, eventID, receivedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEventAlreadyProcessed
		}
		return fmt.Errorf("record payment event: %w", err)
	}
	return nil
}

// UpsertSubscriptionQuota replaces the seller's quota on renewal. Usage
// restarts at zero for the new period.
func (r *PaymentRepository) UpsertSubscriptionQuota(ctx context.Context, q domain.SubscriptionQuota) error {
	const stmt = `
INSERT INTO subscription_quotas (seller_id, max_ads, ads_used, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (seller_id) DO UPDATE
SET max_ads = EXCLUDED.max_ads, ads_used = EXCLUDED.ads_used, expires_at = EXCLUDED.expires_at`

	if _, err := r.exec(ctx, stmt, q.SellerID, q.MaxAds, q.AdsUsed, q.ExpiresAt); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("upsert subscription quota: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetTierDefinition(ctx context.Context, tierID string) (domain.TierDefinition, error) {
	const query = `SELECT id, name, max_ads, priority_weight, included_featured_days FROM tier_definitions WHERE id = $1`

	var d domain.TierDefinition
	err := r.queryRow(ctx, query, tierID).Scan(&d.ID, &d.Name, &d.MaxAds, &d.PriorityWeight, &d.IncludedFeaturedDays)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.TierDefinition{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.TierDefinition{}, domain.ErrTierNotFound
		}
		return domain.TierDefinition{}, fmt.Errorf("get tier definition: %w", err)
	}
	return d, nil
}

func (r *PaymentRepository) CreateTierPurchase(ctx context.Context, p domain.TierPurchase) error {
	const stmt = `
INSERT INTO tier_purchases (id, seller_id, tier_id, max_ads, priority_weight, included_featured_days, consumed_slots, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)`

	_, err := r.exec(ctx, stmt,
		p.ID,
		p.SellerID,
		p.TierID,
		p.MaxAds,
		p.PriorityWeight,
		p.IncludedFeaturedDays,
		p.ExpiresAt,
		p.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create tier purchase: %w", err)
	}
	return nil
}

func (r *PaymentRepository) CreditBump(ctx context.Context, sellerID string, amount int) error {
	const stmt = `
INSERT INTO bump_wallets (seller_id, balance)
VALUES ($1, $2)
ON CONFLICT (seller_id) DO UPDATE SET balance = bump_wallets.balance + EXCLUDED.balance`

	if _, err := r.exec(ctx, stmt, sellerID, amount); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("credit bump wallet: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetPromotionType(ctx context.Context, promotionTypeID string) (domain.PromotionType, error) {
	const query = `SELECT id, name, effect, duration_days FROM promotion_types WHERE id = $1`

	var t domain.PromotionType
	err := r.queryRow(ctx, query, promotionTypeID).Scan(&t.ID, &t.Name, &t.Effect, &t.DurationDays)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.PromotionType{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.PromotionType{}, domain.ErrPromotionTypeNotFound
		}
		return domain.PromotionType{}, fmt.Errorf("get promotion type: %w", err)
	}
	return t, nil
}

func (r *PaymentRepository) CreatePromotionCredits(ctx context.Context, credits []domain.PromotionCredit) error {
	const stmt = `
INSERT INTO promotion_credits (id, seller_id, promotion_type_id, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5)`

	for _, c := range credits {
		if _, err := r.exec(ctx, stmt, c.ID, c.SellerID, c.PromotionTypeID, c.ExpiresAt, c.CreatedAt); err != nil {
			if isInvalidUUID(err) {
				return domain.ErrInvalidID
			}
			return fmt.Errorf("create promotion credit: %w", err)
		}
	}
	return nil
}

func (r *PaymentRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *PaymentRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
