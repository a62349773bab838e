package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edushare/course-api/internal/models"
)

const paymentColumns = `id, user_id, course_id, enrollment_id, amount, currency, order_code, payment_link_id,
        checkout_url, status, customer_info, metadata, paid_at, expired_at, created_at, updated_at`

// PaymentRepository handles persistence of payment attempts.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// FindByID returns a payment by its identifier.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf("SELECT %s FROM payments WHERE id = $1", paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindOpenByUserAndCourse returns the newest pending or processing payment
// for the pair, or nil when none exists. Callers decide reusability; rows
// past their expiry are simply not reused, their status never changes here.
func (r *PaymentRepository) FindOpenByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE user_id = $1 AND course_id = $2
        AND status IN ($3, $4) ORDER BY created_at DESC LIMIT 1`, paymentColumns)
	var payment models.Payment
	err := r.db.GetContext(ctx, &payment, query, userID, courseID, models.PaymentStatusPending, models.PaymentStatusProcessing)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find open payment: %w", err)
	}
	return &payment, nil
}

// ListOpen returns processing payments older than minAge, newest first.
// The reconciliation worker uses this to catch up on payments whose
// poll from the client never arrived.
func (r *PaymentRepository) ListOpen(ctx context.Context, minAge time.Duration, limit int) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE status = $1 AND updated_at < $2
        ORDER BY updated_at ASC LIMIT $3`, paymentColumns)
	cutoff := time.Now().UTC().Add(-minAge)
	payments := []models.Payment{}
	if err := r.db.SelectContext(ctx, &payments, query, models.PaymentStatusProcessing, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list open payments: %w", err)
	}
	return payments, nil
}

// Create persists a new payment attempt in pending state.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = "payment_" + uuid.NewString()
	}
	if payment.Status == "" {
		payment.Status = models.PaymentStatusPending
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	const query = `INSERT INTO payments (id, user_id, course_id, enrollment_id, amount, currency, order_code,
        payment_link_id, checkout_url, status, customer_info, metadata, paid_at, expired_at, created_at, updated_at)
        VALUES (:id, :user_id, :course_id, :enrollment_id, :amount, :currency, :order_code, :payment_link_id,
        :checkout_url, :status, :customer_info, :metadata, :paid_at, :expired_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// MarkProcessing records the provider's checkout session on the payment
// and advances it to processing.
func (r *PaymentRepository) MarkProcessing(ctx context.Context, id string, orderCode int64, paymentLinkID, checkoutURL string) error {
	const query = `UPDATE payments SET order_code = $2, payment_link_id = $3, checkout_url = $4,
        status = $5, updated_at = $6 WHERE id = $1 AND status = $7`
	if _, err := r.db.ExecContext(ctx, query, id, orderCode, paymentLinkID, checkoutURL,
		models.PaymentStatusProcessing, time.Now().UTC(), models.PaymentStatusPending); err != nil {
		return fmt.Errorf("mark payment processing: %w", err)
	}
	return nil
}

// MarkCompleted transitions the payment to completed and stamps paid_at.
// Completed is terminal: re-running this against a completed row is a no-op.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, id string, paidAt time.Time) error {
	const query = `UPDATE payments SET status = $2, paid_at = $3, updated_at = $4 WHERE id = $1 AND status <> $2`
	if _, err := r.db.ExecContext(ctx, query, id, models.PaymentStatusCompleted, paidAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark payment completed: %w", err)
	}
	return nil
}

// MarkClosed transitions an open payment to a terminal failed or
// cancelled state. Rows already terminal are left untouched.
func (r *PaymentRepository) MarkClosed(ctx context.Context, id string, status models.PaymentStatus) error {
	const query = `UPDATE payments SET status = $2, updated_at = $3 WHERE id = $1 AND status IN ($4, $5)`
	if _, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC(),
		models.PaymentStatusPending, models.PaymentStatusProcessing); err != nil {
		return fmt.Errorf("mark payment %s: %w", status, err)
	}
	return nil
}

// AttachEnrollment sets the enrollment back-reference exactly once. The
// WHERE enrollment_id IS NULL guard makes concurrent attachment attempts
// resolve to a single winner; the boolean reports whether this call won.
func (r *PaymentRepository) AttachEnrollment(ctx context.Context, id, enrollmentID string) (bool, error) {
	const query = `UPDATE payments SET enrollment_id = $2, updated_at = $3 WHERE id = $1 AND enrollment_id IS NULL`
	res, err := r.db.ExecContext(ctx, query, id, enrollmentID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("attach enrollment to payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("attach enrollment rows affected: %w", err)
	}
	return affected == 1, nil
}
