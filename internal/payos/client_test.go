package payos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/edushare/course-api/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// resty only unmarshals SetResult targets for JSON responses, and
		// httptest would otherwise sniff the body as text/plain.
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return New(config.PaymentsConfig{
		ProviderBaseURL: srv.URL,
		ClientID:        "client-id",
		APIKey:          "api-key",
		ChecksumKey:     "checksum-key",
	})
}

func TestCreatePaymentLinkSignsAndTruncatesDescription(t *testing.T) {
	var received createPaymentBody
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/payment-requests", r.URL.Path)
		require.Equal(t, "client-id", r.Header.Get("x-client-id"))
		require.Equal(t, "api-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		json.NewEncoder(w).Encode(apiEnvelope{Code: "00", Data: linkData{
			OrderCode:     received.OrderCode,
			PaymentLinkID: "link-1",
			CheckoutURL:   "https://pay.example.com/web/link-1",
			Status:        LinkStatusPending,
		}})
	})

	link, err := client.CreatePaymentLink(context.Background(), CheckoutRequest{
		OrderCode:   123456,
		Amount:      299000,
		Description: "A course title that is far too long for the provider",
		ReturnURL:   "https://app.example.com/return",
		CancelURL:   "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	require.Equal(t, "link-1", link.PaymentLinkID)
	require.Equal(t, "https://pay.example.com/web/link-1", link.CheckoutURL)

	require.LessOrEqual(t, utf8.RuneCountInString(received.Description), maxDescriptionLen)
	require.NotEmpty(t, received.Signature)
	expected := client.sign(createPaymentBody{
		OrderCode:   received.OrderCode,
		Amount:      received.Amount,
		Description: received.Description,
		ReturnURL:   received.ReturnURL,
		CancelURL:   received.CancelURL,
	})
	require.Equal(t, expected, received.Signature)
}

func TestCreatePaymentLinkTruncatesMultiByteTitleByRune(t *testing.T) {
	var received createPaymentBody
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(apiEnvelope{Code: "00", Data: linkData{
			OrderCode:   received.OrderCode,
			CheckoutURL: "https://pay.example.com/web/link-2",
			Status:      LinkStatusPending,
		}})
	})

	_, err := client.CreatePaymentLink(context.Background(), CheckoutRequest{
		OrderCode:   654321,
		Amount:      499000,
		Description: "Khóa học lập trình nâng cao với Go",
		ReturnURL:   "https://app.example.com/return",
		CancelURL:   "https://app.example.com/cancel",
	})
	require.NoError(t, err)

	// The cut must land on a rune boundary so the description that reaches
	// the provider is exactly the bytes that were signed.
	require.True(t, utf8.ValidString(received.Description))
	require.NotContains(t, received.Description, "�")
	require.Equal(t, maxDescriptionLen, utf8.RuneCountInString(received.Description))
	expected := client.sign(createPaymentBody{
		OrderCode:   received.OrderCode,
		Amount:      received.Amount,
		Description: received.Description,
		ReturnURL:   received.ReturnURL,
		CancelURL:   received.CancelURL,
	})
	require.Equal(t, expected, received.Signature)
}

func TestCreatePaymentLinkRejectsProviderErrorCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(apiEnvelope{Code: "231", Desc: "duplicate order code"})
	})

	_, err := client.CreatePaymentLink(context.Background(), CheckoutRequest{OrderCode: 1, Amount: 100})
	require.Error(t, err)
	require.Contains(t, err.Error(), "231")
}

func TestCreatePaymentLinkHonorsContextDeadline(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(apiEnvelope{Code: "00"})
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.CreatePaymentLink(ctx, CheckoutRequest{OrderCode: 1, Amount: 100})
	require.Error(t, err)
	require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestGetPaymentLinkInformation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/v2/payment-requests/123456", r.URL.Path)
		json.NewEncoder(w).Encode(apiEnvelope{Code: "00", Data: linkData{
			OrderCode:     123456,
			PaymentLinkID: "link-1",
			Status:        LinkStatusPaid,
			Amount:        299000,
			AmountPaid:    299000,
		}})
	})

	info, err := client.GetPaymentLinkInformation(context.Background(), 123456)
	require.NoError(t, err)
	require.Equal(t, LinkStatusPaid, info.Status)
	require.Equal(t, int64(299000), info.AmountPaid)
}
