package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cimillas/adboard/internal/domain"
	"github.com/cimillas/adboard/internal/testutil"
)

const (
	sellerA      = "11111111-1111-1111-1111-111111111111"
	sellerB      = "22222222-2222-2222-2222-222222222222"
	categoryCars = "33333333-3333-3333-3333-333333333333"
)

func TestLedgerRepository_SubscriptionQuota(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewLedgerRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("reserve increments usage", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()
		testutil.InsertSubscriptionQuota(t, ctx, pool, domain.SubscriptionQuota{
			SellerID: sellerA, MaxAds: 2, AdsUsed: 0, ExpiresAt: now.Add(time.Hour),
		})

		if err := repo.ReserveSubscriptionAd(ctx, sellerA, now); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var used int
		if err := pool.QueryRow(ctx, `SELECT ads_used FROM subscription_quotas WHERE seller_id = $1`, sellerA).Scan(&used); err != nil {
			t.Fatalf("read quota: %v", err)
		}
		if used != 1 {
			t.Fatalf("expected ads_used 1, got %d", used)
		}
	})

	t.Run("exhausted quota", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()
		testutil.InsertSubscriptionQuota(t, ctx, pool, domain.SubscriptionQuota{
			SellerID: sellerA, MaxAds: 1, AdsUsed: 1, ExpiresAt: now.Add(time.Hour),
		})

		if err := repo.ReserveSubscriptionAd(ctx, sellerA, now); !errors.Is(err, domain.ErrGrantExhausted) {
			t.Fatalf("expected ErrGrantExhausted, got %v", err)
		}
	})

	t.Run("expired quota is distinct from exhausted", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()
		testutil.InsertSubscriptionQuota(t, ctx, pool, domain.SubscriptionQuota{
			SellerID: sellerA, MaxAds: 5, AdsUsed: 0, ExpiresAt: now.Add(-time.Minute),
		})

		if err := repo.ReserveSubscriptionAd(ctx, sellerA, now); !errors.Is(err, domain.ErrGrantExpired) {
			t.Fatalf("expected ErrGrantExpired, got %v", err)
		}
	})

	t.Run("missing quota counts as exhausted", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if err := repo.ReserveSubscriptionAd(ctx, sellerA, time.Now().UTC()); !errors.Is(err, domain.ErrGrantExhausted) {
			t.Fatalf("expected ErrGrantExhausted, got %v", err)
		}
	})

	t.Run("release is idempotent at zero", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()
		testutil.InsertSubscriptionQuota(t, ctx, pool, domain.SubscriptionQuota{
			SellerID: sellerA, MaxAds: 2, AdsUsed: 1, ExpiresAt: now.Add(time.Hour),
		})

		if err := repo.ReleaseSubscriptionAd(ctx, sellerA); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := repo.ReleaseSubscriptionAd(ctx, sellerA); err != nil {
			t.Fatalf("expected second release to be a no-op, got %v", err)
		}

		var used int
		if err := pool.QueryRow(ctx, `SELECT ads_used FROM subscription_quotas WHERE seller_id = $1`, sellerA).Scan(&used); err != nil {
			t.Fatalf("read quota: %v", err)
		}
		if used != 0 {
			t.Fatalf("expected ads_used 0, got %d", used)
		}
	})

	t.Run("concurrent reservations never oversubscribe", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()
		const maxAds = 3
		const attempts = 12
		testutil.InsertSubscriptionQuota(t, ctx, pool, domain.SubscriptionQuota{
			SellerID: sellerA, MaxAds: maxAds, AdsUsed: 0, ExpiresAt: now.Add(time.Hour),
		})

		var wg sync.WaitGroup
		results := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- repo.ReserveSubscriptionAd(ctx, sellerA, now)
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrGrantExhausted):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != maxAds {
			t.Fatalf("expected exactly %d successes, got %d", maxAds, succeeded)
		}

		var used int
		if err := pool.QueryRow(ctx, `SELECT ads_used FROM subscription_quotas WHERE seller_id = $1`, sellerA).Scan(&used); err != nil {
			t.Fatalf("read quota: %v", err)
		}
		if used != maxAds {
			t.Fatalf("expected ads_used %d, got %d", maxAds, used)
		}
	})
}

func TestLedgerRepository_TierSlots(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewLedgerRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	setup := func(ctx context.Context, maxAds, consumed int, expiresAt *time.Time) string {
		tierID := testutil.InsertTierDefinition(t, ctx, pool, domain.TierDefinition{
			Name: "Gold", MaxAds: maxAds, PriorityWeight: 5, IncludedFeaturedDays: 7,
		})
		return testutil.InsertTierPurchase(t, ctx, pool, domain.TierPurchase{
			SellerID: sellerA, TierID: tierID, MaxAds: maxAds, PriorityWeight: 5,
			IncludedFeaturedDays: 7, ConsumedSlots: consumed, ExpiresAt: expiresAt,
		})
	}

	t.Run("get returns snapshot fields", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := setup(ctx, 3, 1, nil)

		p, err := repo.GetTierPurchase(ctx, id)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if p.MaxAds != 3 || p.PriorityWeight != 5 || p.IncludedFeaturedDays != 7 || p.ConsumedSlots != 1 {
			t.Fatalf("unexpected purchase: %+v", p)
		}
		if p.ExpiresAt != nil {
			t.Fatalf("expected nil expiry, got %v", p.ExpiresAt)
		}
	})

	t.Run("missing purchase", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		_, err := repo.GetTierPurchase(ctx, "00000000-0000-0000-0000-000000000001")
		if !errors.Is(err, domain.ErrTierPurchaseNotFound) {
			t.Fatalf("expected ErrTierPurchaseNotFound, got %v", err)
		}
		if _, err := repo.GetTierPurchase(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
	})

	t.Run("reserve and release slots", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		id := setup(ctx, 2, 1, nil)

		if err := repo.ReserveTierSlot(ctx, id); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := repo.ReserveTierSlot(ctx, id); !errors.Is(err, domain.ErrGrantExhausted) {
			t.Fatalf("expected ErrGrantExhausted, got %v", err)
		}
		if err := repo.ReleaseTierSlot(ctx, id); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := repo.ReserveTierSlot(ctx, id); err != nil {
			t.Fatalf("expected reserve after release, got %v", err)
		}
	})

	t.Run("concurrent reservations never oversubscribe", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		const maxAds = 3
		const attempts = 12
		id := setup(ctx, maxAds, 0, nil)

		var wg sync.WaitGroup
		results := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- repo.ReserveTierSlot(ctx, id)
			}()
		}
		wg.Wait()
		close(results)

		succeeded := 0
		for err := range results {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrGrantExhausted):
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != maxAds {
			t.Fatalf("expected exactly %d successes, got %d", maxAds, succeeded)
		}

		var consumed int
		if err := pool.QueryRow(ctx, `SELECT consumed_slots FROM tier_purchases WHERE id = $1`, id).Scan(&consumed); err != nil {
			t.Fatalf("read purchase: %v", err)
		}
		if consumed != maxAds {
			t.Fatalf("expected consumed_slots %d, got %d", maxAds, consumed)
		}
	})
}

func TestLedgerRepository_BumpWallet(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewLedgerRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("debit spends one credit", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		testutil.InsertBumpWallet(t, ctx, pool, sellerA, 2)

		if err := repo.DebitBump(ctx, sellerA); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := repo.DebitBump(ctx, sellerA); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := repo.DebitBump(ctx, sellerA); !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}
	})

	t.Run("missing wallet is a zero balance", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if err := repo.DebitBump(ctx, sellerA); !errors.Is(err, domain.ErrInsufficientBalance) {
			t.Fatalf("expected ErrInsufficientBalance, got %v", err)
		}
	})

	t.Run("credit creates the wallet on first top-up", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		if err := repo.CreditBump(ctx, sellerA, 3); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if err := repo.CreditBump(ctx, sellerA, 2); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var balance int
		if err := pool.QueryRow(ctx, `SELECT balance FROM bump_wallets WHERE seller_id = $1`, sellerA).Scan(&balance); err != nil {
			t.Fatalf("read wallet: %v", err)
		}
		if balance != 5 {
			t.Fatalf("expected balance 5, got %d", balance)
		}
	})
}

func TestLedgerRepository_PromotionCredits(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewLedgerRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("claims the oldest unconsumed credit", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()
		ptID := testutil.InsertPromotionType(t, ctx, pool, domain.PromotionType{
			Name: "Top", Effect: domain.PromotionEffectPromote, DurationDays: 7,
		})
		testutil.InsertPromotionCredit(t, ctx, pool, domain.PromotionCredit{SellerID: sellerA, PromotionTypeID: ptID})

		credit, ptype, err := repo.ClaimPromotionCredit(ctx, sellerA, ptID, now)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if credit.ConsumedAt == nil {
			t.Fatal("expected consumed_at set")
		}
		if ptype.Effect != domain.PromotionEffectPromote || ptype.DurationDays != 7 {
			t.Fatalf("unexpected promotion type: %+v", ptype)
		}

		// Pool is now empty for this seller and type.
		_, _, err = repo.ClaimPromotionCredit(ctx, sellerA, ptID, now)
		if !errors.Is(err, domain.ErrGrantExhausted) {
			t.Fatalf("expected ErrGrantExhausted, got %v", err)
		}
	})

	t.Run("expired credits are reported distinctly", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()
		past := now.Add(-time.Minute)
		ptID := testutil.InsertPromotionType(t, ctx, pool, domain.PromotionType{
			Name: "Top", Effect: domain.PromotionEffectPromote,
		})
		testutil.InsertPromotionCredit(t, ctx, pool, domain.PromotionCredit{
			SellerID: sellerA, PromotionTypeID: ptID, ExpiresAt: &past,
		})

		_, _, err := repo.ClaimPromotionCredit(ctx, sellerA, ptID, now)
		if !errors.Is(err, domain.ErrGrantExpired) {
			t.Fatalf("expected ErrGrantExpired, got %v", err)
		}
	})

	t.Run("a credit locked by a competing claim reads as exhausted", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()
		ptID := testutil.InsertPromotionType(t, ctx, pool, domain.PromotionType{
			Name: "Top", Effect: domain.PromotionEffectPromote,
		})
		testutil.InsertPromotionCredit(t, ctx, pool, domain.PromotionCredit{SellerID: sellerA, PromotionTypeID: ptID})

		// Claim the sole credit in a transaction held open so the row stays
		// locked and uncommitted while the loser classifies its miss.
		locked := make(chan struct{})
		release := make(chan struct{})
		winner := make(chan error, 1)
		go func() {
			winner <- repo.WithTx(ctx, func(txCtx context.Context) error {
				if _, _, err := repo.ClaimPromotionCredit(txCtx, sellerA, ptID, now); err != nil {
					return err
				}
				close(locked)
				<-release
				return nil
			})
		}()

		<-locked
		_, _, loserErr := repo.ClaimPromotionCredit(ctx, sellerA, ptID, now)
		close(release)
		if err := <-winner; err != nil {
			t.Fatalf("winning claim: %v", err)
		}
		if !errors.Is(loserErr, domain.ErrGrantExhausted) {
			t.Fatalf("expected ErrGrantExhausted for locked pool, got %v", loserErr)
		}
	})

	t.Run("another seller's credits are not claimable", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()
		ptID := testutil.InsertPromotionType(t, ctx, pool, domain.PromotionType{
			Name: "Top", Effect: domain.PromotionEffectPromote,
		})
		testutil.InsertPromotionCredit(t, ctx, pool, domain.PromotionCredit{SellerID: sellerB, PromotionTypeID: ptID})

		_, _, err := repo.ClaimPromotionCredit(ctx, sellerA, ptID, now)
		if !errors.Is(err, domain.ErrGrantExhausted) {
			t.Fatalf("expected ErrGrantExhausted, got %v", err)
		}
	})

	t.Run("unknown promotion type", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		_, _, err := repo.ClaimPromotionCredit(ctx, sellerA, "00000000-0000-0000-0000-000000000001", time.Now().UTC())
		if !errors.Is(err, domain.ErrPromotionTypeNotFound) {
			t.Fatalf("expected ErrPromotionTypeNotFound, got %v", err)
		}
	})

	t.Run("finalize and release round-trip", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()
		ptID := testutil.InsertPromotionType(t, ctx, pool, domain.PromotionType{
			Name: "Top", Effect: domain.PromotionEffectPromote,
		})
		testutil.InsertPromotionCredit(t, ctx, pool, domain.PromotionCredit{SellerID: sellerA, PromotionTypeID: ptID})
		listingID := testutil.InsertListing(t, ctx, pool, domain.Listing{
			SellerID: sellerA, CategoryID: categoryCars, Title: "Ad", Status: domain.ListingStatusActive, CreatedAt: now,
		})

		credit, _, err := repo.ClaimPromotionCredit(ctx, sellerA, ptID, now)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		if err := repo.FinalizePromotionCredit(ctx, credit.ID, listingID); err != nil {
			t.Fatalf("finalize: %v", err)
		}

		// Finalizing twice must fail: the credit is already bound.
		if err := repo.FinalizePromotionCredit(ctx, credit.ID, listingID); err == nil {
			t.Fatal("expected error on double finalize")
		}

		if err := repo.ReleasePromotionCredit(ctx, credit.ID); err != nil {
			t.Fatalf("release: %v", err)
		}

		var consumed *time.Time
		var boundListing *string
		if err := pool.QueryRow(ctx, `SELECT consumed_at, listing_id FROM promotion_credits WHERE id = $1`, credit.ID).Scan(&consumed, &boundListing); err != nil {
			t.Fatalf("read credit: %v", err)
		}
		if consumed != nil || boundListing != nil {
			t.Fatalf("expected credit returned to pool, got consumed=%v listing=%v", consumed, boundListing)
		}
	})

	t.Run("concurrent claims take distinct credits", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		now := time.Now().UTC()
		ptID := testutil.InsertPromotionType(t, ctx, pool, domain.PromotionType{
			Name: "Top", Effect: domain.PromotionEffectPromote,
		})
		const credits = 2
		const attempts = 6
		for i := 0; i < credits; i++ {
			testutil.InsertPromotionCredit(t, ctx, pool, domain.PromotionCredit{SellerID: sellerA, PromotionTypeID: ptID})
		}

		var wg sync.WaitGroup
		claimed := make(chan string, attempts)
		failed := make(chan error, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c, _, err := repo.ClaimPromotionCredit(ctx, sellerA, ptID, now)
				if err != nil {
					failed <- err
					return
				}
				claimed <- c.ID
			}()
		}
		wg.Wait()
		close(claimed)
		close(failed)

		seen := make(map[string]bool)
		for id := range claimed {
			if seen[id] {
				t.Fatalf("credit %s claimed twice", id)
			}
			seen[id] = true
		}
		if len(seen) != credits {
			t.Fatalf("expected %d distinct claims, got %d", credits, len(seen))
		}
		for err := range failed {
			if !errors.Is(err, domain.ErrGrantExhausted) {
				t.Fatalf("unexpected error: %v", err)
			}
		}
	})
}
