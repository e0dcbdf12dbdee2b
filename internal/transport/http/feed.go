package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cimillas/adboard/internal/app"
	"github.com/cimillas/adboard/internal/domain"
)

// FeedBuilder is the minimal interface needed to serve the feed endpoint.
type FeedBuilder interface {
	BuildFeed(ctx context.Context, in app.BuildFeedInput) (app.Feed, error)
}

// HandleFeed returns an HTTP handler serving the ranked listing feed.
// defaultLimit is used when the request carries no limit parameter.
func HandleFeed(svc FeedBuilder, defaultLimit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		limit := defaultLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				writeError(w, http.StatusBadRequest, codeInvalidLimit, domain.ErrInvalidLimit.Error())
				return
			}
			limit = parsed
		}

		feed, err := svc.BuildFeed(r.Context(), app.BuildFeedInput{
			PreferredCategoryID: r.URL.Query().Get("category_id"),
			Limit:               limit,
		})
		if err != nil {
			switch err {
			case domain.ErrInvalidLimit:
				writeError(w, http.StatusBadRequest, codeInvalidLimit, err.Error())
			case domain.ErrInvalidID:
				writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		items := make([]listingResponse, 0, len(feed.Listings))
		for _, l := range feed.Listings {
			items = append(items, toListingResponse(l))
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(feedResponse{
			Listings:     items,
			Personalized: feed.Personalized,
		})
	}
}

type feedResponse struct {
	Listings     []listingResponse `json:"listings"`
	Personalized bool              `json:"personalized"`
}

type listingResponse struct {
	ID                 string     `json:"id"`
	SellerID           string     `json:"seller_id"`
	CategoryID         string     `json:"category_id"`
	Title              string     `json:"title"`
	Status             string     `json:"status"`
	PromotionTypeID    *string    `json:"promotion_type_id,omitempty"`
	PromotionExpiresAt *time.Time `json:"promotion_expires_at,omitempty"`
	Featured           bool       `json:"featured"`
	FeaturedUntil      *time.Time `json:"featured_until,omitempty"`
	TierPurchaseID     *string    `json:"tier_purchase_id,omitempty"`
	TierPriority       int        `json:"tier_priority"`
	BumpedAt           *time.Time `json:"bumped_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
}

func toListingResponse(l domain.Listing) listingResponse {
	return listingResponse{
		ID:                 l.ID,
		SellerID:           l.SellerID,
		CategoryID:         l.CategoryID,
		Title:              l.Title,
		Status:             string(l.Status),
		PromotionTypeID:    l.PromotionTypeID,
		PromotionExpiresAt: l.PromotionExpiresAt,
		Featured:           l.Featured,
		FeaturedUntil:      l.FeaturedUntil,
		TierPurchaseID:     l.TierPurchaseID,
		TierPriority:       l.TierPriority,
		BumpedAt:           l.BumpedAt,
		CreatedAt:          l.CreatedAt,
		ExpiresAt:          l.ExpiresAt,
	}
}
