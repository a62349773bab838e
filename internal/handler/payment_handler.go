package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edushare/course-api/internal/service"
	appErrors "github.com/edushare/course-api/pkg/errors"
	"github.com/edushare/course-api/pkg/export"
	"github.com/edushare/course-api/pkg/response"
)

// PaymentHandler exposes checkout, status polling and receipt endpoints.
type PaymentHandler struct {
	payments *service.PaymentService
	exporter *export.ReceiptExporter
}

// NewPaymentHandler constructs PaymentHandler.
func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments, exporter: export.NewReceiptExporter()}
}

// Create godoc
// @Summary Create a payment checkout session for a paid course
// @Tags Payments
// @Accept json
// @Produce json
// @Param payload body service.CreateCheckoutRequest true "Checkout payload"
// @Success 201 {object} response.Envelope
// @Router /payments/create [post]
func (h *PaymentHandler) Create(c *gin.Context) {
	var req service.CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	result, err := h.payments.CreateCheckout(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	if result.Reused {
		response.JSON(c, http.StatusOK, "existing checkout session reused", result, nil)
		return
	}
	response.Created(c, "checkout session created", result)
}

// Status godoc
// @Summary Poll the payment status against the provider
// @Tags Payments
// @Produce json
// @Param payment_id path string true "Payment id"
// @Success 200 {object} response.Envelope
// @Router /payments/{payment_id}/status [get]
func (h *PaymentHandler) Status(c *gin.Context) {
	payment, err := h.payments.PollPaymentStatus(c.Request.Context(), c.Param("payment_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, "payment status retrieved", payment, nil)
}

// Receipt godoc
// @Summary Download the PDF receipt for a completed payment
// @Tags Payments
// @Produce application/pdf
// @Param payment_id path string true "Payment id"
// @Success 200 {file} binary
// @Router /payments/{payment_id}/receipt [get]
func (h *PaymentHandler) Receipt(c *gin.Context) {
	paymentID := c.Param("payment_id")
	receipt, err := h.payments.Receipt(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	pdf, err := h.exporter.Render(*receipt)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to render receipt"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="receipt_%s.pdf"`, paymentID))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
