package service

import (
	"app/internal/config"
	"app/internal/model"
)

// Plan describes one sellable Stripe price and how it maps onto an
// access tier. BYOK plans require the buyer's own provider key;
// managed plans include server-side processing. The two sets are
// disjoint per price.
type Plan struct {
	Key      string
	PriceID  string
	Name     string
	Tier     model.Tier
	BYOK     bool
	Managed  bool
	Student  bool
	Lifetime bool

	// Trial terms. Only the managed monthly plan carries a paid trial.
	TrialDays        int64
	TrialAmountCents int64
}

// PlanCatalog maps Stripe price IDs to plans. Built once at startup
// from configuration; lookups against unknown prices return
// ErrPlanNotFound so webhooks for foreign products are rejected loudly
// instead of granting a tier.
type PlanCatalog struct {
	byPrice map[string]Plan
	byKey   map[string]Plan
}

func NewPlanCatalog(cfg *config.Config) *PlanCatalog {
	plans := []Plan{
		{
			Key:     "free_plan",
			PriceID: cfg.StripePriceFreePlan,
			Name:    "Free Plan",
			Tier:    model.TierFree,
		},
		{
			Key:     "byok_premium_yearly",
			PriceID: cfg.StripePriceBYOKPremium,
			Name:    "Premium - BYOK (Annual)",
			Tier:    model.TierPremium,
			BYOK:    true,
		},
		{
			Key:     "byok_unlimited_yearly",
			PriceID: cfg.StripePriceBYOKUnlimited,
			Name:    "Unlimited - BYOK (Annual)",
			Tier:    model.TierUnlimited,
			BYOK:    true,
		},
		{
			Key:      "byok_lifetime",
			PriceID:  cfg.StripePriceBYOKLifetime,
			Name:     "Lifetime - BYOK",
			Tier:     model.TierUnlimited,
			BYOK:     true,
			Lifetime: true,
		},
		{
			Key:              "managed_monthly",
			PriceID:          cfg.StripePriceManagedMonthly,
			Name:             "Monthly - Managed",
			Tier:             model.TierManaged,
			Managed:          true,
			TrialDays:        14,
			TrialAmountCents: 100,
		},
		{
			Key:     "managed_annual",
			PriceID: cfg.StripePriceManagedAnnual,
			Name:    "Annual - Managed",
			Tier:    model.TierManaged,
			Managed: true,
		},
		{
			Key:     "student_premium_byok",
			PriceID: cfg.StripePriceStudentPremium,
			Name:    "Student Premium - BYOK",
			Tier:    model.TierPremium,
			BYOK:    true,
			Student: true,
		},
		{
			Key:     "student_unlimited_byok",
			PriceID: cfg.StripePriceStudentUnlimited,
			Name:    "Student Unlimited - BYOK",
			Tier:    model.TierUnlimited,
			BYOK:    true,
			Student: true,
		},
		{
			Key:     "student_monthly_managed",
			PriceID: cfg.StripePriceStudentMonthly,
			Name:    "Student Monthly - Managed",
			Tier:    model.TierManaged,
			Managed: true,
			Student: true,
		},
		{
			Key:     "student_annual_managed",
			PriceID: cfg.StripePriceStudentAnnual,
			Name:    "Student Annual - Managed",
			Tier:    model.TierManaged,
			Managed: true,
			Student: true,
		},
	}

	c := &PlanCatalog{
		byPrice: make(map[string]Plan, len(plans)),
		byKey:   make(map[string]Plan, len(plans)),
	}
	for _, p := range plans {
		c.byKey[p.Key] = p
		if p.PriceID != "" {
			c.byPrice[p.PriceID] = p
		}
	}
	return c
}

// ByPrice resolves a Stripe price ID to its plan.
func (c *PlanCatalog) ByPrice(priceID string) (Plan, error) {
	p, ok := c.byPrice[priceID]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// ByKey resolves a catalog key such as "managed_monthly".
func (c *PlanCatalog) ByKey(key string) (Plan, error) {
	p, ok := c.byKey[key]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}
