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

const listingColumns = `
id, seller_id, category_id, title, status,
promotion_type_id, promotion_expires_at,
featured, featured_until,
tier_purchase_id, tier_priority,
bumped_at, created_at, expires_at`

// ListingRepository covers listing CRUD and the ranking-attribute writes
// performed under a grant reservation.
type ListingRepository struct {
	pool *pgxpool.Pool
}

func NewListingRepository(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{pool: pool}
}

func (r *ListingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ListingRepository) CreateListing(ctx context.Context, l domain.Listing) error {
	const stmt = `
INSERT INTO listings (id, seller_id, category_id, title, status, tier_priority, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.exec(ctx, stmt,
		l.ID,
		l.SellerID,
		l.CategoryID,
		l.Title,
		l.Status,
		l.TierPriority,
		l.CreatedAt,
		l.ExpiresAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create listing: %w", err)
	}
	return nil
}

func (r *ListingRepository) GetListing(ctx context.Context, listingID string) (domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1`
	return r.scanOne(r.queryRow(ctx, query, listingID))
}

// GetListingForUpdate locks the listing row for the duration of the grant
// transaction so two grants against the same listing serialize.
func (r *ListingRepository) GetListingForUpdate(ctx context.Context, listingID string) (domain.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = $1 FOR UPDATE`
	return r.scanOne(r.queryRow(ctx, query, listingID))
}

func (r *ListingRepository) UpdateListingStatus(ctx context.Context, listingID string, status domain.ListingStatus) error {
	const stmt = `UPDATE listings SET status = $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, listingID, status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update listing status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (r *ListingRepository) SetPromotion(ctx context.Context, listingID, promotionTypeID string, expiresAt *time.Time) error {
	const stmt = `UPDATE listings SET promotion_type_id = $2, promotion_expires_at = $3 WHERE id = $1`
	return r.updateAttributes(ctx, "set promotion", stmt, listingID, promotionTypeID, expiresAt)
}

func (r *ListingRepository) ClearPromotion(ctx context.Context, listingID string) error {
	const stmt = `UPDATE listings SET promotion_type_id = NULL, promotion_expires_at = NULL WHERE id = $1`
	return r.updateAttributes(ctx, "clear promotion", stmt, listingID)
}

func (r *ListingRepository) SetFeatured(ctx context.Context, listingID string, until *time.Time) error {
	const stmt = `UPDATE listings SET featured = TRUE, featured_until = $2 WHERE id = $1`
	return r.updateAttributes(ctx, "set featured", stmt, listingID, until)
}

func (r *ListingRepository) ClearFeatured(ctx context.Context, listingID string) error {
	const stmt = `UPDATE listings SET featured = FALSE, featured_until = NULL WHERE id = $1`
	return r.updateAttributes(ctx, "clear featured", stmt, listingID)
}

func (r *ListingRepository) SetBumped(ctx context.Context, listingID string, at time.Time) error {
	const stmt = `UPDATE listings SET bumped_at = $2 WHERE id = $1`
	return r.updateAttributes(ctx, "set bumped", stmt, listingID, at)
}

func (r *ListingRepository) ClearBumped(ctx context.Context, listingID string) error {
	const stmt = `UPDATE listings SET bumped_at = NULL WHERE id = $1`
	return r.updateAttributes(ctx, "clear bumped", stmt, listingID)
}

func (r *ListingRepository) AssignTierSlot(ctx context.Context, listingID, tierPurchaseID string, priority int) error {
	const stmt = `UPDATE listings SET tier_purchase_id = $2, tier_priority = $3 WHERE id = $1`
	return r.updateAttributes(ctx, "assign tier slot", stmt, listingID, tierPurchaseID, priority)
}

func (r *ListingRepository) ClearTierSlot(ctx context.Context, listingID string) error {
	const stmt = `UPDATE listings SET tier_purchase_id = NULL, tier_priority = 0 WHERE id = $1`
	return r.updateAttributes(ctx, "clear tier slot", stmt, listingID)
}

func (r *ListingRepository) updateAttributes(ctx context.Context, op, stmt string, args ...any) error {
	tag, err := r.exec(ctx, stmt, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isSerializationConflict(err) {
			return domain.ErrTxConflict
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (r *ListingRepository) scanOne(row pgx.Row) (domain.Listing, error) {
	l, err := scanListing(row)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Listing{}, domain.ErrInvalidID
		}
		if isSerializationConflict(err) {
			return domain.Listing{}, domain.ErrTxConflict
		}
		if err == pgx.ErrNoRows {
			return domain.Listing{}, domain.ErrListingNotFound
		}
		return domain.Listing{}, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}

func scanListing(row pgx.Row) (domain.Listing, error) {
	var l domain.Listing
	err := row.Scan(
		&l.ID,
		&l.SellerID,
		&l.CategoryID,
		&l.Title,
		&l.Status,
		&l.PromotionTypeID,
		&l.PromotionExpiresAt,
		&l.Featured,
		&l.FeaturedUntil,
		&l.TierPurchaseID,
		&l.TierPriority,
		&l.BumpedAt,
		&l.CreatedAt,
		&l.ExpiresAt,
	)
	return l, err
}

func (r *ListingRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ListingRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
