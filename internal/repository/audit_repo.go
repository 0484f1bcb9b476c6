package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentEventRepository appends rows to the payment audit trail.
type PaymentEventRepository interface {
	Insert(ctx context.Context, extensionUserID string, amountCents int64, currency, status string, details map[string]any) error
}

// AdminActionRepository appends rows to the administrative audit trail.
type AdminActionRepository interface {
	Insert(ctx context.Context, adminEmail, action, targetEntity string, details any) error
}

type paymentEventRepo struct {
	pool *pgxpool.Pool
}

// NewPaymentEventRepo creates a new PaymentEventRepository.
func NewPaymentEventRepo(pool *pgxpool.Pool) PaymentEventRepository {
	return &paymentEventRepo{pool: pool}
}

func (r *paymentEventRepo) Insert(ctx context.Context, extensionUserID string, amountCents int64, currency, status string, details map[string]any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal payment event details: %w", err)
	}
	const q = `
		INSERT INTO payment_events (extension_user_id, amount, currency, status, provider_data)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.pool.Exec(ctx, q, extensionUserID, amountCents, currency, status, raw); err != nil {
		return fmt.Errorf("insert payment event for user %s: %w", extensionUserID, err)
	}
	return nil
}

type adminActionRepo struct {
	pool *pgxpool.Pool
}

// NewAdminActionRepo creates a new AdminActionRepository.
func NewAdminActionRepo(pool *pgxpool.Pool) AdminActionRepository {
	return &adminActionRepo{pool: pool}
}

func (r *adminActionRepo) Insert(ctx context.Context, adminEmail, action, targetEntity string, details any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal admin action details: %w", err)
	}
	const q = `
		INSERT INTO admin_actions (admin_email, action, target_entity, details)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.pool.Exec(ctx, q, adminEmail, action, targetEntity, raw); err != nil {
		return fmt.Errorf("insert admin action %s: %w", action, err)
	}
	return nil
}
