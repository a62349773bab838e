package models

import (
	"database/sql/driver"
	"time"
)

// PaymentStatus is the forward-only payment state machine:
// pending -> processing -> completed, with pending|processing ->
// failed|cancelled. There is no transition out of completed and no
// transition back to pending once processing.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCompleted || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// CustomerInfo is the payer snapshot captured at checkout creation.
type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Value marshals the customer snapshot for persistence.
func (c CustomerInfo) Value() (driver.Value, error) { return jsonValue(c) }

// Scan unmarshals a JSONB payload into the customer snapshot.
func (c *CustomerInfo) Scan(src interface{}) error { return jsonScan(src, c) }

// Metadata carries free-form payment context (course title, instructor).
type Metadata map[string]interface{}

// Value marshals metadata for persistence.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		m = Metadata{}
	}
	return jsonValue(m)
}

// Scan unmarshals a JSONB payload into metadata.
func (m *Metadata) Scan(src interface{}) error { return jsonScan(src, m) }

// Payment is a checkout attempt against the external provider. CourseID is
// always the course's business id so it lines up with Enrollment rows.
type Payment struct {
	ID            string        `db:"id" json:"payment_id"`
	UserID        string        `db:"user_id" json:"user_id"`
	CourseID      string        `db:"course_id" json:"course_id"`
	EnrollmentID  *string       `db:"enrollment_id" json:"enrollment_id,omitempty"`
	Amount        int64         `db:"amount" json:"amount"`
	Currency      string        `db:"currency" json:"currency"`
	OrderCode     *int64        `db:"order_code" json:"order_code,omitempty"`
	PaymentLinkID *string       `db:"payment_link_id" json:"payment_link_id,omitempty"`
	CheckoutURL   *string       `db:"checkout_url" json:"checkout_url,omitempty"`
	Status        PaymentStatus `db:"status" json:"status"`
	CustomerInfo  CustomerInfo  `db:"customer_info" json:"customer_info"`
	Metadata      Metadata      `db:"metadata" json:"metadata,omitempty"`
	PaidAt        *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	ExpiredAt     *time.Time    `db:"expired_at" json:"expired_at,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"-"`
}

// Reusable reports whether this payment's checkout link can be handed back
// to a retrying client instead of creating a new charge. Expiry is a
// read-time "do not reuse" signal only; it never changes the status.
func (p *Payment) Reusable(now time.Time) bool {
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusProcessing {
		return false
	}
	if p.CheckoutURL == nil || *p.CheckoutURL == "" {
		return false
	}
	return p.ExpiredAt == nil || p.ExpiredAt.After(now)
}
