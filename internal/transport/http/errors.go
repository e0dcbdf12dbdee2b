package http

import (
	"encoding/json"
	"net/http"
)

const (
	codeMethodNotAllowed        = "method_not_allowed"
	codeNotFound                = "not_found"
	codeInvalidRequestBody      = "invalid_request_body"
	codeInvalidID               = "invalid_id"
	codeInvalidLimit            = "invalid_limit"
	codeInvalidStatus           = "invalid_status"
	codeSellerIDRequired        = "seller_id_required"
	codeCategoryRequired        = "category_id_required"
	codeTitleRequired           = "title_required"
	codeListingNotFound         = "listing_not_found"
	codeListingNotEligible      = "listing_not_eligible"
	codeGrantExhausted          = "grant_exhausted"
	codeGrantExpired            = "grant_expired"
	codeInsufficientBalance     = "insufficient_balance"
	codeConflictRetryExceeded   = "conflict_retry_exceeded"
	codeTierPurchaseNotFound    = "tier_purchase_not_found"
	codePromotionTypeNotFound   = "promotion_type_not_found"
	codeUnknownGrantKind        = "unknown_grant_kind"
	codeTierPurchaseIDRequired  = "tier_purchase_id_required"
	codePromotionTypeIDRequired = "promotion_type_id_required"
	codeForbidden               = "forbidden"
	codeInternalError           = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}
