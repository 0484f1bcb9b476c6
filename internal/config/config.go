package config

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port               string `envconfig:"PORT" default:"8080"`
	Environment        string `envconfig:"ENV" default:"development"`
	DBConnectionString string `envconfig:"DATABASE_URL" required:"true"`

	// OpenRouter settings. The shared API key normally lives in
	// system_settings; this is the environment fallback used when the
	// setting is empty.
	OpenRouterAPIKey  string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`

	AdminJWTSecret string `envconfig:"ADMIN_JWT_SECRET" required:"true"`

	// Stripe settings
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	FrontendURL         string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`

	// Stripe price IDs, one per sellable plan
	StripePriceFreePlan         string `envconfig:"STRIPE_PRICE_FREE_PLAN"`
	StripePriceBYOKPremium      string `envconfig:"STRIPE_PRICE_BYOK_PREMIUM"`
	StripePriceBYOKUnlimited    string `envconfig:"STRIPE_PRICE_BYOK_UNLIMITED"`
	StripePriceBYOKLifetime     string `envconfig:"STRIPE_PRICE_BYOK_LIFETIME"`
	StripePriceManagedMonthly   string `envconfig:"STRIPE_PRICE_MANAGED_MONTHLY"`
	StripePriceManagedAnnual    string `envconfig:"STRIPE_PRICE_MANAGED_ANNUAL"`
	StripePriceStudentPremium   string `envconfig:"STRIPE_PRICE_STUDENT_PREMIUM"`
	StripePriceStudentUnlimited string `envconfig:"STRIPE_PRICE_STUDENT_UNLIMITED"`
	StripePriceStudentMonthly   string `envconfig:"STRIPE_PRICE_STUDENT_MONTHLY"`
	StripePriceStudentAnnual    string `envconfig:"STRIPE_PRICE_STUDENT_ANNUAL"`

	// Cache TTLs. The API key changes rarely; a user's tier can change
	// at any moment via billing events, so its window is shorter.
	APIKeyCacheTTLSec     int `envconfig:"API_KEY_CACHE_TTL_SEC" default:"300"`
	UserConfigCacheTTLSec int `envconfig:"USER_CONFIG_CACHE_TTL_SEC" default:"120"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
