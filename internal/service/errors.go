package service

import "errors"

// Sentinel errors handlers map to HTTP statuses. The distinctions
// matter to the extension client: a wrong tier, a provider outage and a
// missing server-side key each call for different remediation.
var (
	ErrUserNotFound = errors.New("user not found")

	// ErrTierNotEligible means the tier must call the AI provider
	// directly with its own credentials instead of going through the
	// managed processing path.
	ErrTierNotEligible = errors.New("tier not eligible for managed processing")

	// ErrNoAPIKey means no provider key was resolvable from the
	// system setting or the environment fallback. Fails closed.
	ErrNoAPIKey = errors.New("no provider API key configured")

	// ErrModelNotFound means the user's tier has no model_configs row.
	// Callers must treat this as a hard stop: substituting a default
	// would corrupt cost accounting.
	ErrModelNotFound = errors.New("no model configured for tier")

	// ErrEmptyCompletion means the provider returned success with no
	// completion content.
	ErrEmptyCompletion = errors.New("provider returned empty completion")

	ErrPlanNotFound           = errors.New("no plan mapped for price id")
	ErrNoSubscription         = errors.New("no active subscription found")
	ErrStudentNotVerified     = errors.New("student verification required")
	ErrSettingNotFound        = errors.New("setting not found")
	ErrModelConfigTierMissing = errors.New("tier not found")
)
