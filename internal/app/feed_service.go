package app

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/cimillas/adboard/internal/clock"
	"github.com/cimillas/adboard/internal/domain"
	"github.com/cimillas/adboard/internal/metrics"
	"github.com/cimillas/adboard/internal/ranking"
)

// FeedRepository reads active listings with the storage-level pre-ordering
// (tier priority desc, bump time desc nulls last, creation desc). The
// pre-ordering is a hint only; the final order is always re-derived by the
// ranking engine.
type FeedRepository interface {
	ListActiveInCategory(ctx context.Context, categoryID string, now time.Time, limit int) ([]domain.Listing, error)
	ListActiveOutsideCategory(ctx context.Context, categoryID string, excludeIDs []string, now time.Time, limit int) ([]domain.Listing, error)
	ListActive(ctx context.Context, now time.Time, limit int) ([]domain.Listing, error)
}

type FeedService struct {
	repo   FeedRepository
	clock  clock.Clock
	logger zerolog.Logger
}

func NewFeedService(repo FeedRepository, clk clock.Clock, logger zerolog.Logger) *FeedService {
	return &FeedService{
		repo:   repo,
		clock:  clk,
		logger: logger,
	}
}

// SourceResult is the assembled candidate set before final ranking.
type SourceResult struct {
	Candidates   []domain.Listing
	Personalized bool
}

// Feed is an ordered, truncated feed page.
type Feed struct {
	Listings     []domain.Listing
	Personalized bool
}

type BuildFeedInput struct {
	// PreferredCategoryID biases sourcing toward the viewer's category;
	// empty means no preference.
	PreferredCategoryID string
	Limit               int
}

// BuildFeed assembles candidates, ranks them against a single instant and
// truncates to the requested size.
func (s *FeedService) BuildFeed(ctx context.Context, in BuildFeedInput) (Feed, error) {
	if in.Limit <= 0 {
		return Feed{}, domain.ErrInvalidLimit
	}

	rctx := domain.RankingContext{
		Now:                 s.clock.Now(),
		PreferredCategoryID: in.PreferredCategoryID,
	}

	res, err := s.Source(ctx, rctx, in.Limit)
	if err != nil {
		return Feed{}, err
	}

	ranking.Sort(res.Candidates, rctx.Now)
	if len(res.Candidates) > in.Limit {
		res.Candidates = res.Candidates[:in.Limit]
	}

	metrics.FeedBuilds.WithLabelValues(strconv.FormatBool(res.Personalized)).Inc()
	return Feed{Listings: res.Candidates, Personalized: res.Personalized}, nil
}

// Source gathers up to limit active listings, biased toward the viewer's
// preferred category with a backfill from the rest of the catalog. Ids are
// never returned twice. A failed backfill degrades to whatever the primary
// stage already gathered; only a failure that leaves no candidates at all
// is returned as an error.
func (s *FeedService) Source(ctx context.Context, rctx domain.RankingContext, limit int) (SourceResult, error) {
	if limit <= 0 {
		return SourceResult{}, domain.ErrInvalidLimit
	}

	if rctx.PreferredCategoryID == "" {
		return s.sourceGlobal(ctx, rctx.Now, limit)
	}

	primary, err := s.repo.ListActiveInCategory(ctx, rctx.PreferredCategoryID, rctx.Now, limit)
	if err != nil {
		// Degraded: fall back to the global fetch rather than failing the feed.
		s.logger.Warn().Err(err).
			Str("category_id", rctx.PreferredCategoryID).
			Msg("primary sourcing stage failed")
		return s.sourceGlobal(ctx, rctx.Now, limit)
	}
	if len(primary) == 0 {
		return s.sourceGlobal(ctx, rctx.Now, limit)
	}

	candidates := dedupByID(primary)
	if len(candidates) >= limit {
		return SourceResult{Candidates: candidates[:limit], Personalized: true}, nil
	}

	seen := make([]string, 0, len(candidates))
	for _, l := range candidates {
		seen = append(seen, l.ID)
	}

	backfill, err := s.repo.ListActiveOutsideCategory(ctx, rctx.PreferredCategoryID, seen, rctx.Now, limit-len(candidates))
	if err != nil {
		s.logger.Warn().Err(err).Msg("backfill sourcing stage failed")
		return SourceResult{Candidates: candidates, Personalized: true}, nil
	}

	candidates = appendDedup(candidates, backfill, limit)
	return SourceResult{Candidates: candidates, Personalized: true}, nil
}

func (s *FeedService) sourceGlobal(ctx context.Context, now time.Time, limit int) (SourceResult, error) {
	listings, err := s.repo.ListActive(ctx, now, limit)
	if err != nil {
		return SourceResult{}, err
	}
	return SourceResult{Candidates: dedupByID(listings), Personalized: false}, nil
}

func dedupByID(listings []domain.Listing) []domain.Listing {
	out := make([]domain.Listing, 0, len(listings))
	seen := make(map[string]struct{}, len(listings))
	for _, l := range listings {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}

func appendDedup(candidates, extra []domain.Listing, limit int) []domain.Listing {
	seen := make(map[string]struct{}, len(candidates))
	for _, l := range candidates {
		seen[l.ID] = struct{}{}
	}
	for _, l := range extra {
		if len(candidates) >= limit {
			break
		}
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		candidates = append(candidates, l)
	}
	return candidates
}
