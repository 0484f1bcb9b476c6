package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"app/internal/model"
)

// fakeUserRepo is an in-memory UserRepository keyed by extension user
// id. Returned users are copies so tests can compare snapshots.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
	// modelsByTier backs GetUserConfig's join.
	modelsByTier map[model.Tier]*model.ModelConfig

	getConfigCalls int
	clearedStudent []string
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:        make(map[string]*model.User),
		modelsByTier: make(map[model.Tier]*model.ModelConfig),
	}
}

func (f *fakeUserRepo) put(u *model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.users[u.ExtensionUserID] = &cp
}

func (f *fakeUserRepo) snapshot(extID string) *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[extID]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

func (f *fakeUserRepo) GetByExtensionID(_ context.Context, extID string) (*model.User, error) {
	return f.snapshot(extID), nil
}

func (f *fakeUserRepo) GetByStripeCustomerID(_ context.Context, customerID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) GetByStripeSubscriptionID(_ context.Context, subID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.StripeSubscriptionID != nil && *u.StripeSubscriptionID == subID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepo) GetOrCreate(_ context.Context, extID string, email *string, tier model.Tier, planName *string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[extID]; ok {
		cp := *u
		return &cp, nil
	}
	u := &model.User{ID: int64(len(f.users) + 1), ExtensionUserID: extID, Email: email, Tier: tier, PlanName: planName}
	f.users[extID] = u
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) GetUserConfig(_ context.Context, extID string) (*model.UserModelConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getConfigCalls++
	u, ok := f.users[extID]
	if !ok {
		return nil, nil
	}
	return &model.UserModelConfig{User: *u, Model: f.modelsByTier[u.Tier]}, nil
}

func (f *fakeUserRepo) UpdateTier(_ context.Context, extID string, tier model.Tier, planName, email *string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[extID]
	if !ok {
		return nil, nil
	}
	u.Tier = tier
	u.PlanName = planName
	if email != nil {
		u.Email = email
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserRepo) UpdateStripeCustomerID(_ context.Context, extID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[extID]
	if !ok {
		return errors.New("user not found")
	}
	u.StripeCustomerID = &customerID
	return nil
}

func (f *fakeUserRepo) ClearStudentVerification(_ context.Context, extID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clearedStudent = append(f.clearedStudent, extID)
	if u, ok := f.users[extID]; ok {
		u.StudentVerified = false
		u.StudentVerifiedAt = nil
		u.StudentVerificationExpiresAt = nil
	}
	return nil
}

func (f *fakeUserRepo) ActivateLifetime(_ context.Context, extID string, tier model.Tier, planName, customerID, priceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[extID]
	if !ok {
		return errors.New("user not found")
	}
	status := "active"
	u.Tier = tier
	u.PlanName = &planName
	u.StripeCustomerID = &customerID
	u.StripePriceID = &priceID
	u.StripeSubscriptionID = nil
	u.SubscriptionStatus = &status
	u.SubscriptionEndDate = nil
	return nil
}

func (f *fakeUserRepo) ApplySubscriptionCreated(_ context.Context, extID string, tier model.Tier, planName, customerID, subscriptionID, priceID, status string, startDate time.Time, trialEnd *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[extID]
	if !ok {
		return errors.New("user not found")
	}
	u.Tier = tier
	u.PlanName = &planName
	u.StripeCustomerID = &customerID
	u.StripeSubscriptionID = &subscriptionID
	u.StripePriceID = &priceID
	u.SubscriptionStatus = &status
	u.SubscriptionStartDate = &startDate
	u.TrialEndDate = trialEnd
	return nil
}

func (f *fakeUserRepo) ApplySubscriptionUpdated(_ context.Context, extID string, tier model.Tier, planName, priceID, status string, cancelAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[extID]
	if !ok {
		return errors.New("user not found")
	}
	u.Tier = tier
	u.PlanName = &planName
	u.StripePriceID = &priceID
	u.SubscriptionStatus = &status
	u.SubscriptionCancelAt = cancelAt
	return nil
}

func (f *fakeUserRepo) DowngradeToFree(_ context.Context, extID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[extID]
	if !ok {
		return errors.New("user not found")
	}
	status := "canceled"
	now := time.Now()
	u.Tier = model.TierFree
	u.PlanName = nil
	u.SubscriptionStatus = &status
	u.SubscriptionEndDate = &now
	return nil
}

func (f *fakeUserRepo) ClearBillingState(_ context.Context, extID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[extID]
	if !ok {
		return errors.New("user not found")
	}
	status := "canceled"
	now := time.Now()
	u.Tier = model.TierFree
	u.PlanName = nil
	u.StripeCustomerID = nil
	u.StripeSubscriptionID = nil
	u.StripePriceID = nil
	u.SubscriptionStatus = &status
	u.SubscriptionEndDate = &now
	u.SubscriptionCancelAt = nil
	u.TrialEndDate = nil
	return nil
}

func (f *fakeUserRepo) SetSubscriptionStatus(_ context.Context, subID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.StripeSubscriptionID != nil && *u.StripeSubscriptionID == subID {
			st := status
			u.SubscriptionStatus = &st
		}
	}
	return nil
}

func (f *fakeUserRepo) SetSubscriptionCancelAt(_ context.Context, extID string, cancelAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[extID]
	if !ok {
		return errors.New("user not found")
	}
	u.SubscriptionCancelAt = &cancelAt
	return nil
}

// usageWrite captures one AddUsage call.
type usageWrite struct {
	extID        string
	day          time.Time
	videosDelta  int64
	tokensUsed   int64
	apiCalls     int64
	costIncurred float64
}

type fakeUsageRepo struct {
	mu     sync.Mutex
	writes []usageWrite
	err    error

	stats     *model.UsageStats
	analytics []model.DailyUsage
}

func (f *fakeUsageRepo) AddUsage(_ context.Context, extID string, day time.Time, videosDelta, tokensUsed, apiCalls int64, costIncurred float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, usageWrite{
		extID:        extID,
		day:          day,
		videosDelta:  videosDelta,
		tokensUsed:   tokensUsed,
		apiCalls:     apiCalls,
		costIncurred: costIncurred,
	})
	return nil
}

func (f *fakeUsageRepo) Stats(_ context.Context, _ string) (*model.UsageStats, error) {
	if f.stats == nil {
		return &model.UsageStats{}, nil
	}
	return f.stats, nil
}

func (f *fakeUsageRepo) Analytics(_ context.Context, _ int) ([]model.DailyUsage, error) {
	return f.analytics, nil
}

func (f *fakeUsageRepo) videosTotal() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, w := range f.writes {
		total += w.videosDelta
	}
	return total
}

type fakeSettingRepo struct {
	mu       sync.Mutex
	settings map[string]*model.SystemSetting
	getCalls int
}

func newFakeSettingRepo() *fakeSettingRepo {
	return &fakeSettingRepo{settings: make(map[string]*model.SystemSetting)}
}

func (f *fakeSettingRepo) set(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings[key] = &model.SystemSetting{Key: key, Value: value}
}

func (f *fakeSettingRepo) Get(_ context.Context, key string) (*model.SystemSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	s, ok := f.settings[key]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSettingRepo) List(_ context.Context) ([]model.SystemSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.SystemSetting, 0, len(f.settings))
	for _, s := range f.settings {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeSettingRepo) Update(_ context.Context, key, value, updatedBy string) (*model.SystemSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[key]
	if !ok {
		return nil, nil
	}
	s.Value = value
	s.UpdatedBy = updatedBy
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

type fakeModelConfigRepo struct {
	mu      sync.Mutex
	configs map[model.Tier]*model.ModelConfig
}

func newFakeModelConfigRepo() *fakeModelConfigRepo {
	return &fakeModelConfigRepo{configs: make(map[model.Tier]*model.ModelConfig)}
}

func (f *fakeModelConfigRepo) GetByTier(_ context.Context, tier model.Tier) (*model.ModelConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mc, ok := f.configs[tier]
	if !ok {
		return nil, nil
	}
	cp := *mc
	return &cp, nil
}

func (f *fakeModelConfigRepo) List(_ context.Context) ([]model.ModelConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ModelConfig, 0, len(f.configs))
	for _, mc := range f.configs {
		out = append(out, *mc)
	}
	return out, nil
}

func (f *fakeModelConfigRepo) UpdateForTier(_ context.Context, tier model.Tier, cfg model.ModelConfig, updatedBy string) (*model.ModelConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.configs[tier]; !ok {
		return nil, nil
	}
	cfg.Tier = tier
	cfg.UpdatedBy = updatedBy
	cfg.UpdatedAt = time.Now()
	f.configs[tier] = &cfg
	cp := cfg
	return &cp, nil
}

type fakePaymentEventRepo struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePaymentEventRepo) Insert(_ context.Context, extID string, _ int64, _, status string, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, extID+":"+status)
	return nil
}

type fakeAdminActionRepo struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeAdminActionRepo) Insert(_ context.Context, adminEmail, action, _ string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, adminEmail+":"+action)
	return nil
}

// fakeClock is an adjustable clock for TTL and dedup tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
