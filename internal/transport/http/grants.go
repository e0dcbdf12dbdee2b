package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cimillas/adboard/internal/app"
	"github.com/cimillas/adboard/internal/domain"
)

// GrantApplier is the minimal interface needed to apply a monetization grant.
type GrantApplier interface {
	ApplyGrant(ctx context.Context, in app.ApplyGrantInput) (app.ApplyGrantResult, error)
}

// GrantReleaser is the minimal interface needed to reverse a consumed grant.
type GrantReleaser interface {
	ReleaseGrant(ctx context.Context, in app.ReleaseGrantInput) error
}

// HandleApplyGrant returns an HTTP handler that applies a grant (bump, tier
// slot or promotion) to a listing.
func HandleApplyGrant(svc GrantApplier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		listingID, ok := parseListingGrantsPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req applyGrantRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		result, err := svc.ApplyGrant(r.Context(), app.ApplyGrantInput{
			ListingID:       listingID,
			Kind:            domain.GrantKind(req.Kind),
			TierPurchaseID:  req.TierPurchaseID,
			PromotionTypeID: req.PromotionTypeID,
		})
		if err != nil {
			writeGrantError(w, err)
			return
		}

		resp := applyGrantResponse{
			Listing: toListingResponse(result.Listing),
			Ref: grantRef{
				Kind:              string(result.Ref.Kind),
				SellerID:          result.Ref.SellerID,
				TierPurchaseID:    result.Ref.TierPurchaseID,
				PromotionCreditID: result.Ref.PromotionCreditID,
				FeaturedGranted:   result.Ref.FeaturedGranted,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// HandleReleaseGrant returns an HTTP handler for the admin reversal path. The
// caller supplies the grant ref obtained when the grant was applied.
func HandleReleaseGrant(svc GrantReleaser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		listingID, ok := parseListingGrantReleasePath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req releaseGrantRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		err := svc.ReleaseGrant(r.Context(), app.ReleaseGrantInput{
			ListingID: listingID,
			Ref: domain.GrantRef{
				Kind:              domain.GrantKind(req.Kind),
				SellerID:          req.SellerID,
				TierPurchaseID:    req.TierPurchaseID,
				PromotionCreditID: req.PromotionCreditID,
				FeaturedGranted:   req.FeaturedGranted,
			},
		})
		if err != nil {
			writeGrantError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func writeGrantError(w http.ResponseWriter, err error) {
	switch err {
	case domain.ErrInvalidID:
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case domain.ErrSellerIDRequired:
		writeError(w, http.StatusBadRequest, codeSellerIDRequired, err.Error())
	case domain.ErrUnknownGrantKind:
		writeError(w, http.StatusBadRequest, codeUnknownGrantKind, err.Error())
	case domain.ErrTierPurchaseIDEmpty:
		writeError(w, http.StatusBadRequest, codeTierPurchaseIDRequired, err.Error())
	case domain.ErrPromotionTypeEmpty:
		writeError(w, http.StatusBadRequest, codePromotionTypeIDRequired, err.Error())
	case domain.ErrListingNotFound:
		writeError(w, http.StatusNotFound, codeListingNotFound, err.Error())
	case domain.ErrTierPurchaseNotFound:
		writeError(w, http.StatusNotFound, codeTierPurchaseNotFound, err.Error())
	case domain.ErrPromotionTypeNotFound:
		writeError(w, http.StatusNotFound, codePromotionTypeNotFound, err.Error())
	case domain.ErrListingNotEligible:
		writeError(w, http.StatusConflict, codeListingNotEligible, err.Error())
	case domain.ErrGrantExhausted:
		writeError(w, http.StatusConflict, codeGrantExhausted, err.Error())
	case domain.ErrGrantExpired:
		writeError(w, http.StatusConflict, codeGrantExpired, err.Error())
	case domain.ErrInsufficientBalance:
		writeError(w, http.StatusConflict, codeInsufficientBalance, err.Error())
	case domain.ErrConflictRetryExceeded:
		writeError(w, http.StatusConflict, codeConflictRetryExceeded, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

type applyGrantRequest struct {
	Kind            string `json:"kind"`
	TierPurchaseID  string `json:"tier_purchase_id,omitempty"`
	PromotionTypeID string `json:"promotion_type_id,omitempty"`
}

type applyGrantResponse struct {
	Listing listingResponse `json:"listing"`
	Ref     grantRef        `json:"ref"`
}

type grantRef struct {
	Kind              string `json:"kind"`
	SellerID          string `json:"seller_id"`
	TierPurchaseID    string `json:"tier_purchase_id,omitempty"`
	PromotionCreditID string `json:"promotion_credit_id,omitempty"`
	FeaturedGranted   bool   `json:"featured_granted"`
}

type releaseGrantRequest struct {
	Kind              string `json:"kind"`
	SellerID          string `json:"seller_id"`
	TierPurchaseID    string `json:"tier_purchase_id,omitempty"`
	PromotionCreditID string `json:"promotion_credit_id,omitempty"`
	FeaturedGranted   bool   `json:"featured_granted"`
}

func parseListingGrantsPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != "listings" || parts[2] != "grants" {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func parseListingGrantReleasePath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 {
		return "", false
	}
	if parts[0] != "listings" || parts[2] != "grants" || parts[3] != "release" {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
