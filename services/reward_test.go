package services_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundabout/models"
	"roundabout/services"
)

func freeCoffee(t *testing.T, env *testEnv, stock *int) *models.Reward {
	t.Helper()
	r, err := env.rewards.CreateReward(context.Background(), services.RewardInput{
		Title:          "Free Coffee",
		Description:    "A coffee on us",
		Emoji:          "☕",
		PointsRequired: 300,
		Category:       models.RewardCategoryGiftCard,
		Stock:          stock,
	})
	require.NoError(t, err)
	return r
}

func TestRedeemWithInsufficientPoints(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	env.fund(t, "ana", 275)
	coffee := freeCoffee(t, env, nil)

	_, err := env.rewards.Redeem(ctx, "ana", coffee.ID)
	require.ErrorIs(t, err, services.ErrInsufficientPoints)

	assert.Len(t, env.ledgerEntries(t, "ana"), 1)
	assert.Equal(t, int64(275), env.assertLedgerConsistent(t, "ana"))

	claims, err := env.rewards.ListClaims(ctx, "ana")
	require.NoError(t, err)
	assert.Empty(t, claims)
}

func TestRedeemDebitsAndClaims(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	env.fund(t, "ben", 350)
	coffee := freeCoffee(t, env, nil)

	redemption, err := env.rewards.Redeem(ctx, "ben", coffee.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), redemption.Posting.Balance)
	assert.Equal(t, redemption.Posting.Transaction.ID, redemption.Claim.TransactionID)

	spent := lo.Filter(env.ledgerEntries(t, "ben"), func(tx models.PointsTransaction, _ int) bool {
		return tx.Type == models.TransactionSpent
	})
	require.Len(t, spent, 1)
	assert.Equal(t, int64(-300), spent[0].Amount)
	assert.Equal(t, int64(50), env.assertLedgerConsistent(t, "ben"))

	views, err := env.rewards.ListRewards(ctx, "ben", "")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Claimed)
	assert.False(t, views[0].Redeemable)

	env.fund(t, "ben", 1000)
	_, err = env.rewards.Redeem(ctx, "ben", coffee.ID)
	assert.ErrorIs(t, err, services.ErrRewardUnavailable)
	assert.Len(t, env.ledgerEntries(t, "ben"), 3)
}

func TestRedeemLastUnitOfStock(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	coffee := freeCoffee(t, env, lo.ToPtr(1))
	env.fund(t, "cat", 300)
	env.fund(t, "dan", 300)

	_, err := env.rewards.Redeem(ctx, "cat", coffee.ID)
	require.NoError(t, err)
	_, err = env.rewards.Redeem(ctx, "dan", coffee.ID)
	require.ErrorIs(t, err, services.ErrRewardUnavailable)

	stored, err := env.rewards.GetReward(ctx, coffee.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Stock)
	assert.Zero(t, *stored.Stock)
	assert.Equal(t, int64(300), env.assertLedgerConsistent(t, "dan"))
}

func TestRedeemInactiveReward(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	coffee := freeCoffee(t, env, nil)
	_, err := env.rewards.UpdateReward(ctx, coffee.ID, services.RewardPatch{Available: lo.ToPtr(false)})
	require.NoError(t, err)
	env.fund(t, "eve", 500)

	_, err = env.rewards.Redeem(ctx, "eve", coffee.ID)
	assert.ErrorIs(t, err, services.ErrRewardUnavailable)

	_, err = env.rewards.Redeem(ctx, "eve", "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Equal(t, int64(500), env.assertLedgerConsistent(t, "eve"))
}

func TestRewardCatalogue(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	first := freeCoffee(t, env, nil)
	second := freeCoffee(t, env, nil)
	assert.Equal(t, "free-coffee", first.Slug)
	assert.Equal(t, "free-coffee-2", second.Slug)

	bySlug, err := env.rewards.GetReward(ctx, "free-coffee-2")
	require.NoError(t, err)
	assert.Equal(t, second.ID, bySlug.ID)

	_, err = env.rewards.CreateReward(ctx, services.RewardInput{Title: "Mug", Category: "spaceship"})
	assert.ErrorIs(t, err, services.ErrInvalidInput)

	hidden, err := env.rewards.CreateReward(ctx, services.RewardInput{Title: "Sticker", PointsRequired: 10, Available: lo.ToPtr(false)})
	require.NoError(t, err)
	assert.False(t, hidden.Available)
	assert.Equal(t, models.RewardCategoryOther, hidden.Category)

	require.NoError(t, env.rewards.DeleteReward(ctx, first.ID))
	assert.ErrorIs(t, env.rewards.DeleteReward(ctx, first.ID), services.ErrNotFound)

	env.fund(t, "gil", 20)
	views, err := env.rewards.ListRewards(ctx, "gil", "")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Sticker", views[0].Title)
	assert.False(t, views[0].Redeemable)
	assert.False(t, views[1].Redeemable)
}

func TestMarkClaimsViewed(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	coffee := freeCoffee(t, env, nil)
	env.fund(t, "hal", 300)
	_, err := env.rewards.Redeem(ctx, "hal", coffee.ID)
	require.NoError(t, err)

	n, err := env.rewards.MarkClaimsViewed(ctx, "hal")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	claims, err := env.rewards.ListClaims(ctx, "hal")
	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.True(t, claims[0].Viewed)
	require.NotNil(t, claims[0].Reward)
	assert.Equal(t, "Free Coffee", claims[0].Reward.Title)
}

func TestConcurrentRedeemOfLastUnit(t *testing.T) {
	t.Parallel()
	env, cleanup := setupTest(t)
	defer cleanup()
	ctx := context.Background()

	coffee := freeCoffee(t, env, lo.ToPtr(1))
	users := make([]string, 6)
	for i := range users {
		users[i] = fmt.Sprintf("fan-%d", i)
		env.fund(t, users[i], 300)
	}

	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, user := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.rewards.Redeem(ctx, user, coffee.ID)
		}()
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		assert.ErrorIs(t, err, services.ErrRewardUnavailable)
	}
	assert.Equal(t, 1, winners)

	var spent int64
	require.NoError(t, env.db.Model(&models.PointsTransaction{}).
		Where("type = ?", models.TransactionSpent).
		Count(&spent).Error)
	assert.Equal(t, int64(1), spent)

	stored, err := env.rewards.GetReward(ctx, coffee.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Stock)
	assert.Zero(t, *stored.Stock)

	total := int64(0)
	for _, user := range users {
		total += env.assertLedgerConsistent(t, user)
	}
	assert.Equal(t, int64(300*len(users)-300), total)
}
