package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cimillas/adboard/internal/domain"
)

// feedOrder is the cheap storage-level pre-ordering used by candidate
// sourcing. It only approximates the final order; the ranking engine always
// re-derives it.
const feedOrder = `
ORDER BY tier_priority DESC, bumped_at DESC NULLS LAST, created_at DESC`

// FeedRepository serves the read-only candidate queries behind feed
// assembly.
type FeedRepository struct {
	pool *pgxpool.Pool
}

func NewFeedRepository(pool *pgxpool.Pool) *FeedRepository {
	return &FeedRepository{pool: pool}
}

func (r *FeedRepository) ListActiveInCategory(ctx context.Context, categoryID string, now time.Time, limit int) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + `
FROM listings
WHERE status = 'active'
  AND (expires_at IS NULL OR expires_at > $2)
  AND category_id = $1` + feedOrder + `
LIMIT $3`

	return r.list(ctx, "list active in category", query, categoryID, now, limit)
}

func (r *FeedRepository) ListActiveOutsideCategory(ctx context.Context, categoryID string, excludeIDs []string, now time.Time, limit int) ([]domain.Listing, error) {
	if excludeIDs == nil {
		excludeIDs = []string{}
	}
	query := `SELECT ` + listingColumns + `
FROM listings
WHERE status = 'active'
  AND (expires_at IS NULL OR expires_at > $2)
  AND category_id <> $1
  AND NOT (id = ANY($3::uuid[]))` + feedOrder + `
LIMIT $4`

	return r.list(ctx, "list active outside category", query, categoryID, now, excludeIDs, limit)
}

func (r *FeedRepository) ListActive(ctx context.Context, now time.Time, limit int) ([]domain.Listing, error) {
	query := `SELECT ` + listingColumns + `
FROM listings
WHERE status = 'active'
  AND (expires_at IS NULL OR expires_at > $1)` + feedOrder + `
LIMIT $2`

	return r.list(ctx, "list active", query, now, limit)
}

func (r *FeedRepository) list(ctx context.Context, op, query string, args ...any) ([]domain.Listing, error) {
	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var listings []domain.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		listings = append(listings, l)
	}
	if err := rows.Err(); err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return listings, nil
}

func (r *FeedRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
