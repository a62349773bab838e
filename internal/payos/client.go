// Package payos is a thin client for the PayOS payment gateway. It covers
// the two calls the platform needs: creating a hosted checkout link and
// reading back the state of an existing payment link.
package payos

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"

	"github.com/edushare/course-api/pkg/config"
)

// Link statuses reported by the provider.
const (
	LinkStatusPending   = "PENDING"
	LinkStatusPaid      = "PAID"
	LinkStatusCompleted = "COMPLETED"
	LinkStatusCancelled = "CANCELLED"
	LinkStatusExpired   = "EXPIRED"
)

const successCode = "00"

// maxDescriptionLen is enforced by the provider; longer descriptions are
// rejected at the gateway, so we truncate before signing.
const maxDescriptionLen = 25

// CheckoutRequest describes a payment link to create.
type CheckoutRequest struct {
	OrderCode   int64
	Amount      int64
	Description string
	ReturnURL   string
	CancelURL   string
}

// CheckoutLink is the provider's view of a created payment link.
type CheckoutLink struct {
	PaymentLinkID string
	CheckoutURL   string
	OrderCode     int64
	QRCode        string
}

// LinkInfo is the state of an existing payment link.
type LinkInfo struct {
	OrderCode     int64
	PaymentLinkID string
	Status        string
	Amount        int64
	AmountPaid    int64
}

// Client talks to the PayOS REST API.
type Client struct {
	http        *resty.Client
	checksumKey string
}

// New builds a client from the payments configuration.
func New(cfg config.PaymentsConfig) *Client {
	http := resty.New().
		SetBaseURL(cfg.ProviderBaseURL).
		SetHeader("x-client-id", cfg.ClientID).
		SetHeader("x-api-key", cfg.APIKey).
		SetHeader("Content-Type", "application/json")
	return &Client{http: http, checksumKey: cfg.ChecksumKey}
}

type createPaymentBody struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	ReturnURL   string `json:"returnUrl"`
	CancelURL   string `json:"cancelUrl"`
	Signature   string `json:"signature"`
}

type apiEnvelope struct {
	Code string   `json:"code"`
	Desc string   `json:"desc"`
	Data linkData `json:"data"`
}

type linkData struct {
	OrderCode     int64  `json:"orderCode"`
	Amount        int64  `json:"amount"`
	AmountPaid    int64  `json:"amountPaid"`
	PaymentLinkID string `json:"paymentLinkId"`
	Status        string `json:"status"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
}

// CreatePaymentLink registers a checkout session with the provider.
// Callers bound the call with the context deadline.
func (c *Client) CreatePaymentLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error) {
	description := truncateDescription(req.Description)

	body := createPaymentBody{
		OrderCode:   req.OrderCode,
		Amount:      req.Amount,
		Description: description,
		ReturnURL:   req.ReturnURL,
		CancelURL:   req.CancelURL,
	}
	body.Signature = c.sign(body)

	var envelope apiEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&envelope).
		Post("/v2/payment-requests")
	if err != nil {
		return nil, fmt.Errorf("create payment link: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create payment link: provider returned %d", resp.StatusCode())
	}
	if envelope.Code != successCode {
		return nil, fmt.Errorf("create payment link: provider code %s: %s", envelope.Code, envelope.Desc)
	}
	if envelope.Data.CheckoutURL == "" {
		return nil, fmt.Errorf("create payment link: provider returned no checkout url")
	}
	return &CheckoutLink{
		PaymentLinkID: envelope.Data.PaymentLinkID,
		CheckoutURL:   envelope.Data.CheckoutURL,
		OrderCode:     envelope.Data.OrderCode,
		QRCode:        envelope.Data.QRCode,
	}, nil
}

// GetPaymentLinkInformation reads the current state of a payment link.
func (c *Client) GetPaymentLinkInformation(ctx context.Context, orderCode int64) (*LinkInfo, error) {
	var envelope apiEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&envelope).
		Get(fmt.Sprintf("/v2/payment-requests/%d", orderCode))
	if err != nil {
		return nil, fmt.Errorf("get payment link %d: %w", orderCode, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get payment link %d: provider returned %d", orderCode, resp.StatusCode())
	}
	if envelope.Code != successCode {
		return nil, fmt.Errorf("get payment link %d: provider code %s: %s", orderCode, envelope.Code, envelope.Desc)
	}
	return &LinkInfo{
		OrderCode:     envelope.Data.OrderCode,
		PaymentLinkID: envelope.Data.PaymentLinkID,
		Status:        envelope.Data.Status,
		Amount:        envelope.Data.Amount,
		AmountPaid:    envelope.Data.AmountPaid,
	}, nil
}

// truncateDescription caps the description at the provider's limit without
// splitting a multi-byte character. A byte-level cut would leave an invalid
// UTF-8 tail that json encodes as U+FFFD, so the signed description and the
// one on the wire would disagree and the checksum would never verify.
func truncateDescription(description string) string {
	if utf8.RuneCountInString(description) <= maxDescriptionLen {
		return description
	}
	runes := []rune(description)
	return string(runes[:maxDescriptionLen])
}

// sign computes the HMAC-SHA256 checksum over the alphabetically ordered
// request fields, as required by the provider.
func (c *Client) sign(body createPaymentBody) string {
	payload := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		body.Amount, body.CancelURL, body.Description, body.OrderCode, body.ReturnURL)
	mac := hmac.New(sha256.New, []byte(c.checksumKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// NewOrderCode derives a provider-unique numeric order code from the
// current time. PayOS requires orderCode to fit in a signed 53-bit range.
func NewOrderCode(now time.Time) int64 {
	return now.UnixMilli()%1_000_000_000_000 + int64(now.Nanosecond()%1000)
}
