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

// LedgerRepository implements grant reservations as single conditional
// UPDATEs whose predicates re-check the availability invariant at write
// time. Availability is never read first and written second.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

func (r *LedgerRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *LedgerRepository) ReserveSubscriptionAd(ctx context.Context, sellerID string, now time.Time) error {
	const stmt = `
UPDATE subscription_quotas
SET ads_used = ads_used + 1
WHERE seller_id = $1 AND ads_used < max_ads AND expires_at > $2`

	tag, err := r.exec(ctx, stmt, sellerID, now)
	if err != nil {
		return r.reserveErr("reserve subscription ad", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// Predicate failed; read the row once to tell expiry from exhaustion.
	const probe = `SELECT expires_at FROM subscription_quotas WHERE seller_id = $1`
	var expiresAt time.Time
	if err := r.queryRow(ctx, probe, sellerID).Scan(&expiresAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.ErrGrantExhausted
		}
		return fmt.Errorf("probe subscription quota: %w", err)
	}
	if !expiresAt.After(now) {
		return domain.ErrGrantExpired
	}
	return domain.ErrGrantExhausted
}

// ReleaseSubscriptionAd returns one quota unit. It is idempotent: releasing
// an already-empty quota is a no-op so reversal retries stay safe.
func (r *LedgerRepository) ReleaseSubscriptionAd(ctx context.Context, sellerID string) error {
	const stmt = `
UPDATE subscription_quotas
SET ads_used = ads_used - 1
WHERE seller_id = $1 AND ads_used > 0`

	if _, err := r.exec(ctx, stmt, sellerID); err != nil {
		return r.reserveErr("release subscription ad", err)
	}
	return nil
}

func (r *LedgerRepository) GetTierPurchase(ctx context.Context, tierPurchaseID string) (domain.TierPurchase, error) {
	const query = `
SELECT id, seller_id, tier_id, max_ads, priority_weight, included_featured_days, consumed_slots, expires_at, created_at
FROM tier_purchases
WHERE id = $1`

	var p domain.TierPurchase
	err := r.queryRow(ctx, query, tierPurchaseID).Scan(
		&p.ID,
		&p.SellerID,
		&p.TierID,
		&p.MaxAds,
		&p.PriorityWeight,
		&p.IncludedFeaturedDays,
		&p.ConsumedSlots,
		&p.ExpiresAt,
		&p.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.TierPurchase{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.TierPurchase{}, domain.ErrTierPurchaseNotFound
		}
		return domain.TierPurchase{}, fmt.Errorf("get tier purchase: %w", err)
	}
	return p, nil
}

func (r *LedgerRepository) ReserveTierSlot(ctx context.Context, tierPurchaseID string) error {
	const stmt = `
UPDATE tier_purchases
SET consumed_slots = consumed_slots + 1
WHERE id = $1 AND consumed_slots < max_ads`

	tag, err := r.exec(ctx, stmt, tierPurchaseID)
	if err != nil {
		return r.reserveErr("reserve tier slot", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrGrantExhausted
	}
	return nil
}

func (r *LedgerRepository) ReleaseTierSlot(ctx context.Context, tierPurchaseID string) error {
	const stmt = `
UPDATE tier_purchases
SET consumed_slots = consumed_slots - 1
WHERE id = $1 AND consumed_slots > 0`

	if _, err := r.exec(ctx, stmt, tierPurchaseID); err != nil {
		return r.reserveErr("release tier slot", err)
	}
	return nil
}

// DebitBump spends one bump credit. A missing wallet counts as a zero
// balance.
func (r *LedgerRepository) DebitBump(ctx context.Context, sellerID string) error {
	const stmt = `
UPDATE bump_wallets
SET balance = balance - 1
WHERE seller_id = $1 AND balance > 0`

	tag, err := r.exec(ctx, stmt, sellerID)
	if err != nil {
		return r.reserveErr("debit bump", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientBalance
	}
	return nil
}

func (r *LedgerRepository) CreditBump(ctx context.Context, sellerID string, amount int) error {
	const stmt = `
INSERT INTO bump_wallets (seller_id, balance)
VALUES ($1, $2)
ON CONFLICT (seller_id) DO UPDATE SET balance = bump_wallets.balance + EXCLUDED.balance`

	if _, err := r.exec(ctx, stmt, sellerID, amount); err != nil {
		return r.reserveErr("credit bump", err)
	}
	return nil
}

// ClaimPromotionCredit marks one unconsumed, unexpired credit as claimed and
// returns it with its promotion type. SKIP LOCKED keeps concurrent claims on
// the same pool from blocking on each other; each claim takes a distinct
// row or none.
func (r *LedgerRepository) ClaimPromotionCredit(ctx context.Context, sellerID, promotionTypeID string, now time.Time) (domain.PromotionCredit, domain.PromotionType, error) {
	ptype, err := r.getPromotionType(ctx, promotionTypeID)
	if err != nil {
		return domain.PromotionCredit{}, domain.PromotionType{}, err
	}

	const claim = `
UPDATE promotion_credits
SET consumed_at = $3
WHERE id = (
	SELECT id
	FROM promotion_credits
	WHERE seller_id = $1
	  AND promotion_type_id = $2
	  AND listing_id IS NULL
	  AND consumed_at IS NULL
	  AND (expires_at IS NULL OR expires_at > $3)
	ORDER BY created_at
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, seller_id, promotion_type_id, listing_id, expires_at, consumed_at, created_at`

	var c domain.PromotionCredit
	err = r.queryRow(ctx, claim, sellerID, promotionTypeID, now).Scan(
		&c.ID,
		&c.SellerID,
		&c.PromotionTypeID,
		&c.ListingID,
		&c.ExpiresAt,
		&c.ConsumedAt,
		&c.CreatedAt,
	)
	if err == nil {
		return c, ptype, nil
	}
	if err != pgx.ErrNoRows {
		return domain.PromotionCredit{}, domain.PromotionType{}, r.reserveErr("claim promotion credit", err)
	}

	// Nothing claimable. Report expiry only when an expired credit is
	// actually present: an unexpired credit row-locked by a concurrent
	// claim is skipped above but still visible here, and must read as
	// exhausted.
	const probe = `
SELECT EXISTS (
	SELECT 1 FROM promotion_credits
	WHERE seller_id = $1
	  AND promotion_type_id = $2
	  AND listing_id IS NULL
	  AND consumed_at IS NULL
	  AND expires_at IS NOT NULL
	  AND expires_at <= $3
)`
	var hasExpired bool
	if err := r.queryRow(ctx, probe, sellerID, promotionTypeID, now).Scan(&hasExpired); err != nil {
		return domain.PromotionCredit{}, domain.PromotionType{}, fmt.Errorf("probe promotion credits: %w", err)
	}
	if hasExpired {
		return domain.PromotionCredit{}, domain.PromotionType{}, domain.ErrGrantExpired
	}
	return domain.PromotionCredit{}, domain.PromotionType{}, domain.ErrGrantExhausted
}

func (r *LedgerRepository) FinalizePromotionCredit(ctx context.Context, creditID, listingID string) error {
	const stmt = `
UPDATE promotion_credits
SET listing_id = $2
WHERE id = $1 AND consumed_at IS NOT NULL AND listing_id IS NULL`

	tag, err := r.exec(ctx, stmt, creditID, listingID)
	if err != nil {
		return r.reserveErr("finalize promotion credit", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize promotion credit: credit %s is not claimed", creditID)
	}
	return nil
}

func (r *LedgerRepository) ReleasePromotionCredit(ctx context.Context, creditID string) error {
	const stmt = `
UPDATE promotion_credits
SET listing_id = NULL, consumed_at = NULL
WHERE id = $1`

	if _, err := r.exec(ctx, stmt, creditID); err != nil {
		return r.reserveErr("release promotion credit", err)
	}
	return nil
}

func (r *LedgerRepository) getPromotionType(ctx context.Context, promotionTypeID string) (domain.PromotionType, error) {
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

func (r *LedgerRepository) reserveErr(op string, err error) error {
	if isInvalidUUID(err) {
		return domain.ErrInvalidID
	}
	if isSerializationConflict(err) {
		return domain.ErrTxConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *LedgerRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *LedgerRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
