package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"app/internal/config"
	"app/internal/metrics"
	"app/internal/model"
	"app/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	customerpkg "github.com/stripe/stripe-go/v82/customer"
	subscriptionpkg "github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// billingEventKind is the closed set of webhook events this service
// acts on. Parsing to a kind up front keeps the dispatch exhaustive:
// adding a kind without a case is a visible gap, not a silent no-op.
type billingEventKind int

const (
	eventUnknown billingEventKind = iota
	eventCheckoutCompleted
	eventSubscriptionCreated
	eventSubscriptionUpdated
	eventSubscriptionDeleted
	eventInvoicePaid
	eventInvoiceFailed
	eventTrialWillEnd
	eventCustomerDeleted
)

func parseBillingEvent(t stripe.EventType) billingEventKind {
	switch t {
	case "checkout.session.completed":
		return eventCheckoutCompleted
	case "customer.subscription.created":
		return eventSubscriptionCreated
	case "customer.subscription.updated":
		return eventSubscriptionUpdated
	case "customer.subscription.deleted":
		return eventSubscriptionDeleted
	case "invoice.payment_succeeded":
		return eventInvoicePaid
	case "invoice.payment_failed":
		return eventInvoiceFailed
	case "customer.subscription.trial_will_end":
		return eventTrialWillEnd
	case "customer.deleted":
		return eventCustomerDeleted
	default:
		return eventUnknown
	}
}

// CancellationResult reports what a cancel operation did.
type CancellationResult struct {
	SubscriptionID string     `json:"subscription_id"`
	Status         string     `json:"status"`
	CancelAt       *time.Time `json:"cancel_at,omitempty"`
}

// SubscriptionStatus is the pull-channel view of a user's billing
// state, refreshed from Stripe when a subscription id is on file.
type SubscriptionStatus struct {
	Tier         model.Tier          `json:"tier"`
	PlanName     *string             `json:"plan_name,omitempty"`
	Subscription *SubscriptionDetail `json:"subscription,omitempty"`
}

type SubscriptionDetail struct {
	ID                string     `json:"id"`
	Status            string     `json:"status"`
	PriceID           string     `json:"price_id,omitempty"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	TrialEnd          *time.Time `json:"trial_end,omitempty"`
}

// StripeService manages Stripe checkout, subscription lifecycle and
// webhook reconciliation.
type StripeService struct {
	cfg      *config.Config
	users    repository.UserRepository
	payments repository.PaymentEventRepository
	catalog  *PlanCatalog
	cache    *ConfigCache
	logger   zerolog.Logger
}

// NewStripeService initializes the Stripe key and returns the service
// with a scoped logger.
func NewStripeService(cfg *config.Config, users repository.UserRepository, payments repository.PaymentEventRepository, catalog *PlanCatalog, cache *ConfigCache, logger zerolog.Logger) *StripeService {
	stripe.Key = cfg.StripeSecretKey
	return &StripeService{
		cfg:      cfg,
		users:    users,
		payments: payments,
		catalog:  catalog,
		cache:    cache,
		logger:   logger.With().Str("service", "StripeService").Logger(),
	}
}

// CheckoutSession is what the extension needs to redirect the user to
// Stripe.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// CreateCheckoutSession starts a checkout for the given price. Student
// plans require a currently valid verification. Lifetime uses one-time
// payment mode; if the user already has a subscription its id rides
// along in metadata so checkout completion can cancel it after the
// payment succeeds, never before.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, extensionUserID string, email *string, priceID, successURL, cancelURL string) (*CheckoutSession, error) {
	plan, err := s.catalog.ByPrice(priceID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByExtensionID(ctx, extensionUserID)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if plan.Student && (user == nil || !user.StudentCurrentlyVerified(time.Now())) {
		return nil, ErrStudentNotVerified
	}
	if user == nil {
		user, err = s.users.GetOrCreate(ctx, extensionUserID, email, model.TierFree, nil)
		if err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	}

	customerID, err := s.ensureCustomer(ctx, user, email)
	if err != nil {
		return nil, err
	}

	if successURL == "" {
		successURL = s.cfg.FrontendURL + "/success?session_id={CHECKOUT_SESSION_ID}"
	}
	if cancelURL == "" {
		cancelURL = s.cfg.FrontendURL + "/pricing"
	}

	metadata := map[string]string{
		"extension_user_id": extensionUserID,
		"price_id":          priceID,
	}
	mode := stripe.CheckoutSessionModeSubscription
	if plan.Lifetime {
		mode = stripe.CheckoutSessionModePayment
		if user.StripeSubscriptionID != nil && *user.StripeSubscriptionID != "" {
			metadata["previous_subscription_id"] = *user.StripeSubscriptionID
		}
	}

	params := &stripe.CheckoutSessionParams{
		Customer:   stripe.String(customerID),
		Mode:       stripe.String(string(mode)),
		LineItems:  []*stripe.CheckoutSessionLineItemParams{{Price: stripe.String(priceID), Quantity: stripe.Int64(1)}},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		Metadata:   metadata,
	}

	if plan.TrialDays > 0 && !plan.Lifetime {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(plan.TrialDays),
			Metadata: map[string]string{
				"extension_user_id": extensionUserID,
				"has_trial":         "true",
			},
		}
		// The trial is paid, not free: a one-off line item charges the
		// trial fee at checkout.
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String("usd"),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String("Trial Period"),
					Description: stripe.String(fmt.Sprintf("%d-day trial access", plan.TrialDays)),
				},
				UnitAmount: stripe.Int64(plan.TrialAmountCents),
			},
			Quantity: stripe.Int64(1),
		})
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("price_id", priceID).Msg("Failed to create checkout session")
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &CheckoutSession{SessionID: sess.ID, URL: sess.URL}, nil
}

func (s *StripeService) ensureCustomer(ctx context.Context, user *model.User, email *string) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}
	params := &stripe.CustomerParams{
		Metadata: map[string]string{"extension_user_id": user.ExtensionUserID},
	}
	if email != nil && *email != "" {
		params.Email = email
	} else if user.Email != nil {
		params.Email = user.Email
	}
	cust, err := customerpkg.New(params)
	if err != nil {
		s.logger.Error().Err(err).Str("extension_user_id", user.ExtensionUserID).Msg("Failed to create Stripe customer")
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := s.users.UpdateStripeCustomerID(ctx, user.ExtensionUserID, cust.ID); err != nil {
		return "", fmt.Errorf("store stripe customer id: %w", err)
	}
	return cust.ID, nil
}

// ChangeSubscription swaps the user's subscription to a new price with
// proration and mirrors the outcome into the user row.
func (s *StripeService) ChangeSubscription(ctx context.Context, extensionUserID, newPriceID string) (*model.User, error) {
	plan, err := s.catalog.ByPrice(newPriceID)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByExtensionID(ctx, extensionUserID)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if plan.Student && !user.StudentCurrentlyVerified(time.Now()) {
		return nil, ErrStudentNotVerified
	}
	if user.StripeSubscriptionID == nil || *user.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}
	subID := *user.StripeSubscriptionID

	sub, err := subscriptionpkg.Get(subID, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", subID).Msg("Failed to fetch subscription for plan change")
		return nil, fmt.Errorf("fetch subscription: %w", err)
	}
	if len(sub.Items.Data) == 0 {
		return nil, fmt.Errorf("subscription %s has no items", subID)
	}

	updated, err := subscriptionpkg.Update(subID, &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{{
			ID:    stripe.String(sub.Items.Data[0].ID),
			Price: stripe.String(newPriceID),
		}},
		ProrationBehavior: stripe.String("create_prorations"),
		Metadata:          map[string]string{"extension_user_id": extensionUserID},
	})
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", subID).Str("price_id", newPriceID).Msg("Failed to change subscription")
		return nil, fmt.Errorf("change subscription: %w", err)
	}

	var cancelAt *time.Time
	if updated.CancelAt > 0 {
		t := time.Unix(updated.CancelAt, 0)
		cancelAt = &t
	}
	if err := s.users.ApplySubscriptionUpdated(ctx, extensionUserID, plan.Tier, plan.Name, newPriceID, string(updated.Status), cancelAt); err != nil {
		return nil, fmt.Errorf("persist subscription change: %w", err)
	}
	s.cache.InvalidateUser(extensionUserID)

	s.logger.Info().
		Str("extension_user_id", extensionUserID).
		Str("price_id", newPriceID).
		Str("tier", string(plan.Tier)).
		Msg("Subscription changed")
	return s.users.GetByExtensionID(ctx, extensionUserID)
}

// CancelSubscription cancels immediately or at period end. At-period-end
// keeps the user's access until the grace date computed from the live
// subscription.
func (s *StripeService) CancelSubscription(ctx context.Context, extensionUserID string, immediate bool) (*CancellationResult, error) {
	user, err := s.users.GetByExtensionID(ctx, extensionUserID)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.StripeSubscriptionID == nil || *user.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}
	subID := *user.StripeSubscriptionID

	if immediate {
		sub, err := subscriptionpkg.Cancel(subID, nil)
		if err != nil {
			s.logger.Error().Err(err).Str("subscription_id", subID).Msg("Failed to cancel subscription")
			return nil, fmt.Errorf("cancel subscription: %w", err)
		}
		if err := s.users.DowngradeToFree(ctx, extensionUserID); err != nil {
			return nil, fmt.Errorf("downgrade user: %w", err)
		}
		s.cache.InvalidateUser(extensionUserID)
		s.logger.Info().Str("extension_user_id", extensionUserID).Msg("Subscription canceled immediately")
		return &CancellationResult{SubscriptionID: subID, Status: string(sub.Status)}, nil
	}

	sub, err := subscriptionpkg.Update(subID, &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", subID).Msg("Failed to schedule cancellation")
		return nil, fmt.Errorf("schedule cancellation: %w", err)
	}
	graceEnd := computeGraceEnd(sub)
	if err := s.users.SetSubscriptionCancelAt(ctx, extensionUserID, graceEnd); err != nil {
		return nil, fmt.Errorf("persist cancel date: %w", err)
	}
	s.logger.Info().
		Str("extension_user_id", extensionUserID).
		Time("cancel_at", graceEnd).
		Msg("Subscription will cancel at period end")
	return &CancellationResult{SubscriptionID: subID, Status: string(sub.Status), CancelAt: &graceEnd}, nil
}

// computeGraceEnd picks the date access runs out for an at-period-end
// cancellation. A trialing subscription has no meaningful current
// period end for this purpose, so its trial end wins.
func computeGraceEnd(sub *stripe.Subscription) time.Time {
	if sub.Status == stripe.SubscriptionStatusTrialing && sub.TrialEnd > 0 {
		return time.Unix(sub.TrialEnd, 0)
	}
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].CurrentPeriodEnd > 0 {
		return time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0)
	}
	if sub.TrialEnd > 0 {
		return time.Unix(sub.TrialEnd, 0)
	}
	return time.Now()
}

// Status reports the user's billing state, re-fetching the subscription
// from Stripe and repairing local drift when possible. Unknown users
// read as free with no subscription.
func (s *StripeService) Status(ctx context.Context, extensionUserID string) (*SubscriptionStatus, error) {
	user, err := s.users.GetByExtensionID(ctx, extensionUserID)
	if err != nil {
		return nil, fmt.Errorf("fetch user: %w", err)
	}
	if user == nil {
		return &SubscriptionStatus{Tier: model.TierFree}, nil
	}
	status := &SubscriptionStatus{Tier: user.Tier, PlanName: user.PlanName}
	if user.StripeSubscriptionID == nil || *user.StripeSubscriptionID == "" {
		return status, nil
	}
	subID := *user.StripeSubscriptionID

	sub, err := subscriptionpkg.Get(subID, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("subscription_id", subID).Msg("Stored subscription not retrievable, attempting relink by email")
		if relinked := s.relinkByEmail(ctx, user); relinked != nil {
			sub = relinked
		} else {
			// Fall back to what the database already holds.
			detail := &SubscriptionDetail{ID: subID}
			if user.SubscriptionStatus != nil {
				detail.Status = *user.SubscriptionStatus
			}
			if user.StripePriceID != nil {
				detail.PriceID = *user.StripePriceID
			}
			detail.TrialEnd = user.TrialEndDate
			status.Subscription = detail
			return status, nil
		}
	}

	// Repair drift from missed webhooks. A price change means a missed
	// subscription.updated and needs the full plan mapping reapplied; a
	// status change alone is a single-column fix.
	if priceDrifted(user, sub) {
		if err := s.applySubscriptionState(ctx, extensionUserID, sub); err != nil {
			s.logger.Error().Err(err).Str("subscription_id", sub.ID).Msg("Failed to repair subscription plan drift")
		}
	} else if user.SubscriptionStatus == nil || *user.SubscriptionStatus != string(sub.Status) {
		if err := s.users.SetSubscriptionStatus(ctx, sub.ID, string(sub.Status)); err != nil {
			s.logger.Error().Err(err).Str("subscription_id", sub.ID).Msg("Failed to repair subscription status")
		} else {
			s.cache.InvalidateUser(extensionUserID)
		}
	}

	detail := &SubscriptionDetail{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if len(sub.Items.Data) > 0 {
		if sub.Items.Data[0].Price != nil {
			detail.PriceID = sub.Items.Data[0].Price.ID
		}
		if sub.Items.Data[0].CurrentPeriodEnd > 0 {
			t := time.Unix(sub.Items.Data[0].CurrentPeriodEnd, 0)
			detail.CurrentPeriodEnd = &t
		}
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0)
		detail.TrialEnd = &t
	}
	status.Subscription = detail
	return status, nil
}

// priceDrifted reports whether the live subscription carries a
// different price than the user row.
func priceDrifted(user *model.User, sub *stripe.Subscription) bool {
	if len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return false
	}
	livePriceID := sub.Items.Data[0].Price.ID
	return user.StripePriceID == nil || *user.StripePriceID != livePriceID
}

// relinkByEmail handles customer identity drift: the stored customer
// was deleted and recreated out-of-band. If a customer with the user's
// email holds an active subscription, adopt it and persist the link.
func (s *StripeService) relinkByEmail(ctx context.Context, user *model.User) *stripe.Subscription {
	if user.Email == nil || *user.Email == "" {
		return nil
	}
	custIter := customerpkg.List(&stripe.CustomerListParams{Email: user.Email})
	for custIter.Next() {
		cust := custIter.Customer()
		subIter := subscriptionpkg.List(&stripe.SubscriptionListParams{
			Customer: stripe.String(cust.ID),
			Status:   stripe.String("active"),
		})
		for subIter.Next() {
			sub := subIter.Subscription()
			if err := s.users.UpdateStripeCustomerID(ctx, user.ExtensionUserID, cust.ID); err != nil {
				s.logger.Error().Err(err).Str("extension_user_id", user.ExtensionUserID).Msg("Failed to relink Stripe customer")
				return nil
			}
			if err := s.applySubscriptionState(ctx, user.ExtensionUserID, sub); err != nil {
				s.logger.Error().Err(err).Str("subscription_id", sub.ID).Msg("Failed to adopt relinked subscription")
				return nil
			}
			s.logger.Info().
				Str("extension_user_id", user.ExtensionUserID).
				Str("stripe_customer_id", cust.ID).
				Str("subscription_id", sub.ID).
				Msg("Relinked user to recreated Stripe customer")
			return sub
		}
	}
	return nil
}

// HandleWebhook verifies and dispatches Stripe webhook events. The
// signature check runs before anything else touches state. Handlers
// are idempotent; Stripe retries on non-2xx.
func (s *StripeService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to read Stripe webhook payload")
		http.Error(w, "failed to read payload", http.StatusBadRequest)
		return
	}
	sig := r.Header.Get("Stripe-Signature")
	event, err := webhook.ConstructEvent(payload, sig, s.cfg.StripeWebhookSecret)
	if err != nil {
		s.logger.Error().Err(err).Msg("Signature verification failed for Stripe webhook")
		metrics.WebhookEvents.WithLabelValues("unverified", "rejected").Inc()
		http.Error(w, "signature verification failed", http.StatusBadRequest)
		return
	}
	s.logger.Info().Str("event_type", string(event.Type)).Msg("Stripe webhook received")

	ctx := r.Context()
	kind := parseBillingEvent(event.Type)
	if kind == eventUnknown {
		s.logger.Warn().Str("event_type", string(event.Type)).Msg("Unhandled Stripe webhook event")
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "ignored").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.dispatch(ctx, kind, event.Data.Raw); err != nil {
		s.logger.Error().Err(err).Str("event_type", string(event.Type)).Msg("Webhook processing failed")
		metrics.WebhookEvents.WithLabelValues(string(event.Type), "error").Inc()
		http.Error(w, "webhook processing failed", http.StatusInternalServerError)
		return
	}
	metrics.WebhookEvents.WithLabelValues(string(event.Type), "ok").Inc()
	w.WriteHeader(http.StatusOK)
}

func (s *StripeService) dispatch(ctx context.Context, kind billingEventKind, raw json.RawMessage) error {
	switch kind {
	case eventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.applyCheckoutCompleted(ctx, &cs)
	case eventSubscriptionCreated:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.applySubscriptionCreated(ctx, &sub)
	case eventSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.applySubscriptionUpdated(ctx, &sub)
	case eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.applySubscriptionDeleted(ctx, &sub)
	case eventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		return s.applyInvoicePaid(ctx, &inv)
	case eventInvoiceFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		return s.applyInvoiceFailed(ctx, &inv)
	case eventTrialWillEnd:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.applyTrialWillEnd(ctx, &sub)
	case eventCustomerDeleted:
		var cust stripe.Customer
		if err := json.Unmarshal(raw, &cust); err != nil {
			return fmt.Errorf("decode customer: %w", err)
		}
		return s.applyCustomerDeleted(ctx, &cust)
	default:
		return fmt.Errorf("unhandled event kind %d", kind)
	}
}

// applyCheckoutCompleted activates the lifetime plan after a one-time
// payment. Subscription-mode checkouts are handled by the
// subscription.created event instead. If the checkout was an upgrade
// from a subscription, the old subscription is canceled only now that
// the payment has succeeded.
func (s *StripeService) applyCheckoutCompleted(ctx context.Context, cs *stripe.CheckoutSession) error {
	extID := cs.Metadata["extension_user_id"]
	if extID == "" {
		s.logger.Error().Str("session_id", cs.ID).Msg("Checkout session has no extension_user_id metadata")
		return nil
	}
	if cs.Mode != stripe.CheckoutSessionModePayment {
		return nil
	}

	priceID := cs.Metadata["price_id"]
	plan, err := s.catalog.ByPrice(priceID)
	if err != nil {
		return fmt.Errorf("price %s: %w", priceID, err)
	}

	if prevSubID := cs.Metadata["previous_subscription_id"]; prevSubID != "" {
		s.cancelPreviousSubscription(prevSubID)
	}

	customerID := ""
	if cs.Customer != nil {
		customerID = cs.Customer.ID
	}
	if err := s.users.ActivateLifetime(ctx, extID, plan.Tier, plan.Name, customerID, priceID); err != nil {
		return fmt.Errorf("activate lifetime: %w", err)
	}
	s.cache.InvalidateUser(extID)
	s.logger.Info().Str("extension_user_id", extID).Msg("Lifetime plan activated")
	return nil
}

// cancelPreviousSubscription cancels an upgrade's prior subscription
// with proration so the remaining time is refunded. Failure here is
// logged but does not roll back the lifetime activation: the user paid.
func (s *StripeService) cancelPreviousSubscription(subID string) {
	sub, err := subscriptionpkg.Get(subID, nil)
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", subID).Msg("Failed to fetch previous subscription for cancellation")
		return
	}
	if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
		s.logger.Warn().Str("subscription_id", subID).Str("status", string(sub.Status)).Msg("Previous subscription not active, skipping cancellation")
		return
	}
	_, err = subscriptionpkg.Cancel(subID, &stripe.SubscriptionCancelParams{
		Prorate:    stripe.Bool(true),
		InvoiceNow: stripe.Bool(true),
	})
	if err != nil {
		s.logger.Error().Err(err).Str("subscription_id", subID).Msg("Failed to cancel previous subscription after lifetime upgrade")
		return
	}
	s.logger.Info().Str("subscription_id", subID).Msg("Previous subscription canceled with prorated refund")
}

func (s *StripeService) applySubscriptionCreated(ctx context.Context, sub *stripe.Subscription) error {
	extID, err := s.resolveUser(ctx, sub)
	if err != nil {
		return err
	}
	if extID == "" {
		return nil
	}
	if len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return fmt.Errorf("subscription %s has no priced items", sub.ID)
	}
	item := sub.Items.Data[0]
	plan, err := s.catalog.ByPrice(item.Price.ID)
	if err != nil {
		// An unmapped price never maps to free. Leave the user as-is
		// and let Stripe retry once the catalog is fixed.
		s.logger.Error().
			Str("subscription_id", sub.ID).
			Str("price_id", item.Price.ID).
			Msg("Subscription price has no plan mapping")
		return fmt.Errorf("price %s: %w", item.Price.ID, err)
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	var trialEnd *time.Time
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0)
		trialEnd = &t
	}
	start := time.Now()
	if item.CurrentPeriodStart > 0 {
		start = time.Unix(item.CurrentPeriodStart, 0)
	}
	if err := s.users.ApplySubscriptionCreated(ctx, extID, plan.Tier, plan.Name, customerID, sub.ID, item.Price.ID, string(sub.Status), start, trialEnd); err != nil {
		return fmt.Errorf("apply subscription created: %w", err)
	}
	s.cache.InvalidateUser(extID)
	s.logger.Info().
		Str("extension_user_id", extID).
		Str("subscription_id", sub.ID).
		Str("status", string(sub.Status)).
		Msg("Subscription created")
	return nil
}

func (s *StripeService) applySubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	extID, err := s.resolveUser(ctx, sub)
	if err != nil {
		return err
	}
	if extID == "" {
		return nil
	}
	if len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return fmt.Errorf("subscription %s has no priced items", sub.ID)
	}
	priceID := sub.Items.Data[0].Price.ID
	plan, err := s.catalog.ByPrice(priceID)
	if err != nil {
		s.logger.Error().
			Str("subscription_id", sub.ID).
			Str("price_id", priceID).
			Msg("Subscription price has no plan mapping")
		return fmt.Errorf("price %s: %w", priceID, err)
	}

	var cancelAt *time.Time
	if sub.CancelAt > 0 {
		t := time.Unix(sub.CancelAt, 0)
		cancelAt = &t
	}
	if err := s.users.ApplySubscriptionUpdated(ctx, extID, plan.Tier, plan.Name, priceID, string(sub.Status), cancelAt); err != nil {
		return fmt.Errorf("apply subscription updated: %w", err)
	}
	s.cache.InvalidateUser(extID)
	s.logger.Info().
		Str("extension_user_id", extID).
		Str("subscription_id", sub.ID).
		Str("status", string(sub.Status)).
		Msg("Subscription updated")
	return nil
}

// applySubscriptionState mirrors a live subscription into the user row.
// Used by pull-channel repair; same mapping rules as the push channel.
func (s *StripeService) applySubscriptionState(ctx context.Context, extID string, sub *stripe.Subscription) error {
	if len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return fmt.Errorf("subscription %s has no priced items", sub.ID)
	}
	item := sub.Items.Data[0]
	plan, err := s.catalog.ByPrice(item.Price.ID)
	if err != nil {
		return fmt.Errorf("price %s: %w", item.Price.ID, err)
	}
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	var trialEnd *time.Time
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0)
		trialEnd = &t
	}
	start := time.Now()
	if item.CurrentPeriodStart > 0 {
		start = time.Unix(item.CurrentPeriodStart, 0)
	}
	if err := s.users.ApplySubscriptionCreated(ctx, extID, plan.Tier, plan.Name, customerID, sub.ID, item.Price.ID, string(sub.Status), start, trialEnd); err != nil {
		return err
	}
	s.cache.InvalidateUser(extID)
	return nil
}

func (s *StripeService) applySubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	user, err := s.users.GetByStripeSubscriptionID(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		s.logger.Warn().Str("subscription_id", sub.ID).Msg("No user for deleted subscription")
		return nil
	}
	if err := s.users.DowngradeToFree(ctx, user.ExtensionUserID); err != nil {
		return fmt.Errorf("downgrade user: %w", err)
	}
	s.cache.InvalidateUser(user.ExtensionUserID)
	s.logger.Info().Str("extension_user_id", user.ExtensionUserID).Msg("User downgraded to free after subscription deletion")
	return nil
}

func (s *StripeService) applyInvoicePaid(ctx context.Context, inv *stripe.Invoice) error {
	subID := invoiceSubscriptionID(inv)
	if subID != "" {
		if err := s.users.SetSubscriptionStatus(ctx, subID, "active"); err != nil {
			return fmt.Errorf("mark active: %w", err)
		}
	}
	s.recordPaymentEvent(ctx, inv, "succeeded", inv.AmountPaid, map[string]any{
		"invoice_id":      inv.ID,
		"subscription_id": subID,
	})
	return nil
}

func (s *StripeService) applyInvoiceFailed(ctx context.Context, inv *stripe.Invoice) error {
	subID := invoiceSubscriptionID(inv)
	if subID != "" {
		if err := s.users.SetSubscriptionStatus(ctx, subID, "past_due"); err != nil {
			return fmt.Errorf("mark past_due: %w", err)
		}
		s.logger.Warn().Str("subscription_id", subID).Msg("Payment failed, subscription marked past_due")
	}
	s.recordPaymentEvent(ctx, inv, "failed", inv.AmountDue, map[string]any{
		"invoice_id":      inv.ID,
		"subscription_id": subID,
		"attempt_count":   inv.AttemptCount,
	})
	return nil
}

func invoiceSubscriptionID(inv *stripe.Invoice) string {
	if inv.Lines == nil {
		return ""
	}
	for _, line := range inv.Lines.Data {
		if line.Subscription != nil && line.Subscription.ID != "" {
			return line.Subscription.ID
		}
	}
	return ""
}

// recordPaymentEvent appends to the payment audit trail. The invoice
// state change already happened; audit failures are logged, not
// propagated, so Stripe does not redeliver the whole event over a
// missing audit row.
func (s *StripeService) recordPaymentEvent(ctx context.Context, inv *stripe.Invoice, status string, amountCents int64, details map[string]any) {
	if inv.Customer == nil {
		return
	}
	user, err := s.users.GetByStripeCustomerID(ctx, inv.Customer.ID)
	if err != nil || user == nil {
		if err != nil {
			s.logger.Error().Err(err).Str("stripe_customer_id", inv.Customer.ID).Msg("Failed to look up user for payment event")
		}
		return
	}
	if err := s.payments.Insert(ctx, user.ExtensionUserID, amountCents, string(inv.Currency), status, details); err != nil {
		s.logger.Error().Err(err).Str("invoice_id", inv.ID).Msg("Failed to record payment event")
	}
}

func (s *StripeService) applyTrialWillEnd(ctx context.Context, sub *stripe.Subscription) error {
	user, err := s.users.GetByStripeSubscriptionID(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil
	}
	email := ""
	if user.Email != nil {
		email = *user.Email
	}
	s.logger.Info().
		Str("extension_user_id", user.ExtensionUserID).
		Str("email", email).
		Msg("Trial ending soon")
	return nil
}

// applyCustomerDeleted is the most destructive transition: a deleted
// customer has no billing state left to reconcile against, so every
// Stripe identifier is wiped and the user drops to free.
func (s *StripeService) applyCustomerDeleted(ctx context.Context, cust *stripe.Customer) error {
	user, err := s.users.GetByStripeCustomerID(ctx, cust.ID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		s.logger.Warn().Str("stripe_customer_id", cust.ID).Msg("No user for deleted customer")
		return nil
	}
	if err := s.users.ClearBillingState(ctx, user.ExtensionUserID); err != nil {
		return fmt.Errorf("clear billing state: %w", err)
	}
	s.cache.InvalidateUser(user.ExtensionUserID)
	s.logger.Info().
		Str("extension_user_id", user.ExtensionUserID).
		Str("stripe_customer_id", cust.ID).
		Msg("Customer deleted, billing state cleared and user downgraded")
	return nil
}

// resolveUser finds the extension user id for a subscription event:
// metadata first, then the subscription id, then the customer id. An
// empty return with nil error means the event has no local user yet;
// the handler acknowledges it rather than erroring forever.
func (s *StripeService) resolveUser(ctx context.Context, sub *stripe.Subscription) (string, error) {
	if extID := sub.Metadata["extension_user_id"]; extID != "" {
		return extID, nil
	}
	user, err := s.users.GetByStripeSubscriptionID(ctx, sub.ID)
	if err != nil {
		return "", fmt.Errorf("lookup by subscription id: %w", err)
	}
	if user != nil {
		return user.ExtensionUserID, nil
	}
	if sub.Customer != nil && sub.Customer.ID != "" {
		user, err = s.users.GetByStripeCustomerID(ctx, sub.Customer.ID)
		if err != nil {
			return "", fmt.Errorf("lookup by customer id: %w", err)
		}
		if user != nil {
			return user.ExtensionUserID, nil
		}
	}
	s.logger.Warn().Str("subscription_id", sub.ID).Msg("Could not resolve user for subscription event")
	return "", nil
}
