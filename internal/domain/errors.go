package domain

import "errors"

var (
	ErrListingNotFound       = errors.New("listing not found")
	ErrListingNotEligible    = errors.New("listing not eligible for grants")
	ErrTierPurchaseNotFound  = errors.New("tier purchase not found")
	ErrPromotionTypeNotFound = errors.New("promotion type not found")
	ErrTierNotFound          = errors.New("tier definition not found")

	// Expected reservation outcomes, surfaced to callers for user-facing
	// messaging. Never treated as fatal.
	ErrGrantExhausted      = errors.New("grant exhausted")
	ErrGrantExpired        = errors.New("grant expired")
	ErrInsufficientBalance = errors.New("insufficient bump balance")

	// ErrTxConflict is returned by storage when a conditional write lost a
	// race (serialization failure, deadlock). Reservations retry it a
	// bounded number of times before giving up.
	ErrTxConflict            = errors.New("transaction conflict")
	ErrConflictRetryExceeded = errors.New("conflict retry exceeded")

	ErrEventAlreadyProcessed = errors.New("payment event already processed")

	ErrInvalidID           = errors.New("invalid id")
	ErrInvalidLimit        = errors.New("invalid limit")
	ErrInvalidStatus       = errors.New("invalid listing status")
	ErrSellerIDRequired    = errors.New("seller id required")
	ErrCategoryRequired    = errors.New("category id required")
	ErrTitleRequired       = errors.New("title required")
	ErrEventIDRequired     = errors.New("event id required")
	ErrUnknownGrantKind    = errors.New("unknown grant kind")
	ErrInvalidGrantParams  = errors.New("invalid grant parameters")
	ErrTierPurchaseIDEmpty = errors.New("tier purchase id required")
	ErrPromotionTypeEmpty  = errors.New("promotion type id required")
)
