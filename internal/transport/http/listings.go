package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cimillas/adboard/internal/app"
	"github.com/cimillas/adboard/internal/domain"
)

// ListingSubmitter is the minimal interface needed to submit a listing.
type ListingSubmitter interface {
	SubmitListing(ctx context.Context, in app.SubmitListingInput) (domain.Listing, error)
}

// ListingModerator is the minimal interface needed to change listing status.
type ListingModerator interface {
	SetStatus(ctx context.Context, listingID string, status domain.ListingStatus) (domain.Listing, error)
}

// HandleSubmitListing returns an HTTP handler for listing submission. The
// submission consumes one unit of the seller's subscription quota.
func HandleSubmitListing(svc ListingSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req submitListingRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		listing, err := svc.SubmitListing(r.Context(), app.SubmitListingInput{
			SellerID:   req.SellerID,
			CategoryID: req.CategoryID,
			Title:      req.Title,
		})
		if err != nil {
			switch err {
			case domain.ErrSellerIDRequired:
				writeError(w, http.StatusBadRequest, codeSellerIDRequired, err.Error())
			case domain.ErrCategoryRequired:
				writeError(w, http.StatusBadRequest, codeCategoryRequired, err.Error())
			case domain.ErrTitleRequired:
				writeError(w, http.StatusBadRequest, codeTitleRequired, err.Error())
			case domain.ErrInvalidID:
				writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			case domain.ErrGrantExhausted:
				writeError(w, http.StatusConflict, codeGrantExhausted, err.Error())
			case domain.ErrGrantExpired:
				writeError(w, http.StatusConflict, codeGrantExpired, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(toListingResponse(listing))
	}
}

// HandleListingStatus returns an HTTP handler for moderation status changes.
func HandleListingStatus(svc ListingModerator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		listingID, ok := parseListingStatusPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		var req setStatusRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		listing, err := svc.SetStatus(r.Context(), listingID, domain.ListingStatus(req.Status))
		if err != nil {
			switch err {
			case domain.ErrInvalidStatus:
				writeError(w, http.StatusBadRequest, codeInvalidStatus, err.Error())
			case domain.ErrInvalidID:
				writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
			case domain.ErrListingNotFound:
				writeError(w, http.StatusNotFound, codeListingNotFound, err.Error())
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(toListingResponse(listing))
	}
}

type submitListingRequest struct {
	SellerID   string `json:"seller_id"`
	CategoryID string `json:"category_id"`
	Title      string `json:"title"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func parseListingStatusPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		return "", false
	}
	if parts[0] != "listings" || parts[2] != "status" {
		return "", false
	}
	if parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
