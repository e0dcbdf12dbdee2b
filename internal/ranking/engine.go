// Package ranking orders listings by their monetization signals. Compare is
// a pure function over listing attributes and an explicit instant; it never
// reads the wall clock and never fails.
package ranking

import (
	"sort"
	"strings"
	"time"

	"github.com/cimillas/adboard/internal/domain"
)

// Compare reports the relative feed position of two listings at the given
// instant. It returns a negative value when a ranks ahead of b, positive
// when b ranks ahead of a, and never zero for distinct listing ids: the id
// is the final tie-break so the order is a strict total order and paging
// stays stable.
//
// Precedence, each key evaluated against now:
//  1. active promotion
//  2. active featured flag
//  3. tier priority (higher first)
//  4. bump recency (never-bumped ranks as the zero instant)
//  5. creation recency
//  6. listing id, ascending
func Compare(a, b domain.Listing, now time.Time) int {
	if c := compareBool(a.HasActivePromotion(now), b.HasActivePromotion(now)); c != 0 {
		return c
	}
	if c := compareBool(a.IsFeaturedAt(now), b.IsFeaturedAt(now)); c != 0 {
		return c
	}
	if c := tierPriority(b) - tierPriority(a); c != 0 {
		return c
	}
	if c := compareInstantDesc(a.BumpRank(), b.BumpRank()); c != 0 {
		return c
	}
	if c := compareInstantDesc(a.CreatedAt, b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Sort orders listings in place, best first.
func Sort(listings []domain.Listing, now time.Time) {
	sort.SliceStable(listings, func(i, j int) bool {
		return Compare(listings[i], listings[j], now) < 0
	})
}

// tierPriority normalizes malformed negative priorities to zero instead of
// rejecting the listing.
func tierPriority(l domain.Listing) int {
	if l.TierPriority < 0 {
		return 0
	}
	return l.TierPriority
}

// compareBool sorts true before false.
func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return -1
	default:
		return 1
	}
}

// compareInstantDesc sorts the more recent instant first.
func compareInstantDesc(a, b time.Time) int {
	switch {
	case a.Equal(b):
		return 0
	case a.After(b):
		return -1
	default:
		return 1
	}
}
