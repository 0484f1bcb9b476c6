package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"app/internal/config"
	"app/internal/model"
)

func testCatalogConfig() *config.Config {
	return &config.Config{
		StripePriceFreePlan:         "price_free",
		StripePriceBYOKPremium:      "price_byok_premium",
		StripePriceBYOKUnlimited:    "price_byok_unlimited",
		StripePriceBYOKLifetime:     "price_byok_lifetime",
		StripePriceManagedMonthly:   "price_managed_monthly",
		StripePriceManagedAnnual:    "price_managed_annual",
		StripePriceStudentPremium:   "price_student_premium",
		StripePriceStudentUnlimited: "price_student_unlimited",
		StripePriceStudentMonthly:   "price_student_monthly",
		StripePriceStudentAnnual:    "price_student_annual",
	}
}

func TestPlanCatalogPriceToTier(t *testing.T) {
	catalog := NewPlanCatalog(testCatalogConfig())

	cases := []struct {
		priceID string
		tier    model.Tier
	}{
		{"price_free", model.TierFree},
		{"price_byok_premium", model.TierPremium},
		{"price_byok_unlimited", model.TierUnlimited},
		{"price_byok_lifetime", model.TierUnlimited},
		{"price_managed_monthly", model.TierManaged},
		{"price_managed_annual", model.TierManaged},
		{"price_student_premium", model.TierPremium},
		{"price_student_unlimited", model.TierUnlimited},
		{"price_student_monthly", model.TierManaged},
		{"price_student_annual", model.TierManaged},
	}
	for _, tc := range cases {
		plan, err := catalog.ByPrice(tc.priceID)
		require.NoError(t, err, tc.priceID)
		assert.Equal(t, tc.tier, plan.Tier, tc.priceID)
	}
}

func TestPlanCatalogUnknownPrice(t *testing.T) {
	catalog := NewPlanCatalog(testCatalogConfig())

	_, err := catalog.ByPrice("price_someone_elses_product")
	assert.ErrorIs(t, err, ErrPlanNotFound)

	_, err = catalog.ByPrice("")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestPlanCatalogEmptyPriceNotRegistered(t *testing.T) {
	cfg := testCatalogConfig()
	cfg.StripePriceFreePlan = ""
	catalog := NewPlanCatalog(cfg)

	_, err := catalog.ByPrice("")
	assert.ErrorIs(t, err, ErrPlanNotFound)

	// Key lookup still works even without a configured price.
	plan, err := catalog.ByKey("free_plan")
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, plan.Tier)
}

func TestPlanCatalogByKey(t *testing.T) {
	catalog := NewPlanCatalog(testCatalogConfig())

	plan, err := catalog.ByKey("byok_lifetime")
	require.NoError(t, err)
	assert.Equal(t, "Lifetime - BYOK", plan.Name)
	assert.True(t, plan.Lifetime)
	assert.True(t, plan.BYOK)
	assert.False(t, plan.Managed)

	_, err = catalog.ByKey("gold_plated_plan")
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestPlanCatalogTrialTerms(t *testing.T) {
	catalog := NewPlanCatalog(testCatalogConfig())

	monthly, err := catalog.ByKey("managed_monthly")
	require.NoError(t, err)
	assert.EqualValues(t, 14, monthly.TrialDays)
	assert.EqualValues(t, 100, monthly.TrialAmountCents)

	// No other plan carries a trial.
	for _, key := range []string{
		"free_plan", "byok_premium_yearly", "byok_unlimited_yearly",
		"byok_lifetime", "managed_annual", "student_premium_byok",
		"student_unlimited_byok", "student_monthly_managed", "student_annual_managed",
	} {
		plan, err := catalog.ByKey(key)
		require.NoError(t, err, key)
		assert.Zero(t, plan.TrialDays, key)
		assert.Zero(t, plan.TrialAmountCents, key)
	}
}

func TestPlanCatalogStudentFlags(t *testing.T) {
	catalog := NewPlanCatalog(testCatalogConfig())

	for key, want := range map[string]bool{
		"byok_premium_yearly":     false,
		"managed_monthly":         false,
		"student_premium_byok":    true,
		"student_unlimited_byok":  true,
		"student_monthly_managed": true,
		"student_annual_managed":  true,
	} {
		plan, err := catalog.ByKey(key)
		require.NoError(t, err, key)
		assert.Equal(t, want, plan.Student, key)
	}
}
