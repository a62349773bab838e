package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/edushare/course-api/internal/models"
	"github.com/edushare/course-api/internal/payos"
	"github.com/edushare/course-api/internal/repository"
	"github.com/edushare/course-api/pkg/config"
	"github.com/edushare/course-api/pkg/database"
	appErrors "github.com/edushare/course-api/pkg/errors"
	"github.com/edushare/course-api/pkg/export"
)

type paymentRepository interface {
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindOpenByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Payment, error)
	ListOpen(ctx context.Context, minAge time.Duration, limit int) ([]models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) error
	MarkProcessing(ctx context.Context, id string, orderCode int64, paymentLinkID, checkoutURL string) error
	MarkCompleted(ctx context.Context, id string, paidAt time.Time) error
	MarkClosed(ctx context.Context, id string, status models.PaymentStatus) error
	AttachEnrollment(ctx context.Context, id, enrollmentID string) (bool, error)
}

type paymentGateway interface {
	CreatePaymentLink(ctx context.Context, req payos.CheckoutRequest) (*payos.CheckoutLink, error)
	GetPaymentLinkInformation(ctx context.Context, orderCode int64) (*payos.LinkInfo, error)
}

type paymentEnrollmentStore interface {
	FindByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
}

// CreateCheckoutRequest is the paid-checkout payload.
type CreateCheckoutRequest struct {
	CourseRef string              `json:"course_id" validate:"required"`
	UserID    string              `json:"user_id" validate:"required"`
	Customer  models.CustomerInfo `json:"customer_info"`
}

// CheckoutResult is returned to the client to send it to the hosted
// checkout page. Amount, currency and status ride along so clients can
// render price and state without a follow-up status poll.
type CheckoutResult struct {
	PaymentID  string               `json:"payment_id"`
	PaymentURL string               `json:"payment_url"`
	Amount     int64                `json:"amount"`
	Currency   string               `json:"currency"`
	Status     models.PaymentStatus `json:"status"`
	OrderCode  int64                `json:"order_code,omitempty"`
	QRCode     string               `json:"qr_code,omitempty"`
	Reused     bool                 `json:"-"`
}

// PaymentService owns the payment state machine and the reconciliation of
// enrollments with the external payment provider. It is the only writer
// of payment enrollment back-references and of payment-driven enrollment
// creation.
type PaymentService struct {
	repo        paymentRepository
	enrollments paymentEnrollmentStore
	courses     courseResolver
	counter     courseCounter
	gateway     paymentGateway
	cfg         config.PaymentsConfig
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(repo paymentRepository, enrollments paymentEnrollmentStore, courses courseResolver, counter courseCounter, gateway paymentGateway, cfg config.PaymentsConfig, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CheckoutTimeout <= 0 {
		cfg.CheckoutTimeout = 10 * time.Second
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 15 * time.Minute
	}
	return &PaymentService{
		repo:        repo,
		enrollments: enrollments,
		courses:     courses,
		counter:     counter,
		gateway:     gateway,
		cfg:         cfg,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
	}
}

// CreateCheckout opens a checkout session for a paid course. A client
// retry while an unexpired pending or processing payment still has a
// checkout URL returns that URL instead of opening a second session, so
// retries can never double-charge.
func (s *PaymentService) CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (*CheckoutResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "course_id and user_id are required")
	}
	course, err := s.courses.ResolveCourseRef(ctx, req.CourseRef)
	if err != nil {
		return nil, err
	}
	if course.IsFree() {
		return nil, appErrors.Clone(appErrors.ErrFreeCourse, "course is free, enroll directly")
	}

	if _, err := s.enrollments.FindByUserAndCourse(ctx, req.UserID, course.CourseID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "user already enrolled in this course")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	now := time.Now().UTC()
	if open, err := s.repo.FindOpenByUserAndCourse(ctx, req.UserID, course.CourseID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open payments")
	} else if open != nil && open.Reusable(now) {
		s.logger.Info("reusing open checkout session",
			zap.String("payment_id", open.ID), zap.String("user_id", req.UserID))
		result := &CheckoutResult{
			PaymentID:  open.ID,
			PaymentURL: *open.CheckoutURL,
			Amount:     open.Amount,
			Currency:   open.Currency,
			Status:     open.Status,
			Reused:     true,
		}
		if open.OrderCode != nil {
			result.OrderCode = *open.OrderCode
		}
		return result, nil
	}

	expiredAt := now.Add(s.cfg.PendingTTL)
	payment := &models.Payment{
		UserID:   req.UserID,
		CourseID: course.CourseID,
		Amount:   course.Pricing.Price,
		Currency: course.Pricing.Currency,
		Status:   models.PaymentStatusPending,
		CustomerInfo: models.CustomerInfo{
			Name:  req.Customer.Name,
			Email: req.Customer.Email,
			Phone: req.Customer.Phone,
		},
		Metadata:  models.Metadata{"courseTitle": course.Title},
		ExpiredAt: &expiredAt,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create payment")
	}

	orderCode := payos.NewOrderCode(now)
	linkCtx, cancel := context.WithTimeout(ctx, s.cfg.CheckoutTimeout)
	defer cancel()

	start := time.Now()
	link, err := s.gateway.CreatePaymentLink(linkCtx, payos.CheckoutRequest{
		OrderCode:   orderCode,
		Amount:      course.Pricing.Price,
		Description: course.Title,
		ReturnURL:   s.cfg.FrontendURL + "/payment/success",
		CancelURL:   s.cfg.FrontendURL + "/payment/cancel",
	})
	s.metrics.ObserveProviderCall("create_payment_link", err, time.Since(start))
	if err != nil {
		// The pending row is kept so a later retry can supersede it and
		// support can trace the attempt.
		s.logger.Error("payment link creation failed",
			zap.String("payment_id", payment.ID), zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) || linkCtx.Err() == context.DeadlineExceeded {
			return nil, appErrors.Wrap(err, appErrors.ErrUpstreamTimeout.Code, appErrors.ErrUpstreamTimeout.Status, appErrors.ErrUpstreamTimeout.Message)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamFailure.Code, appErrors.ErrUpstreamFailure.Status, appErrors.ErrUpstreamFailure.Message)
	}

	if err := s.repo.MarkProcessing(ctx, payment.ID, link.OrderCode, link.PaymentLinkID, link.CheckoutURL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record checkout session")
	}
	s.metrics.RecordPaymentTransition(string(models.PaymentStatusProcessing))
	s.logger.Info("checkout session created",
		zap.String("payment_id", payment.ID),
		zap.Int64("order_code", link.OrderCode),
		zap.String("course_id", course.CourseID))
	return &CheckoutResult{
		PaymentID:  payment.ID,
		PaymentURL: link.CheckoutURL,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		Status:     models.PaymentStatusProcessing,
		OrderCode:  link.OrderCode,
		QRCode:     link.QRCode,
	}, nil
}

// PollPaymentStatus returns the current payment view, querying the
// provider for live status when the local record is still open. A payment
// already completed is returned unchanged without touching the provider.
func (s *PaymentService) PollPaymentStatus(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status == models.PaymentStatusCompleted {
		return payment, nil
	}
	if payment.OrderCode == nil {
		return payment, nil
	}

	start := time.Now()
	info, err := s.gateway.GetPaymentLinkInformation(ctx, *payment.OrderCode)
	s.metrics.ObserveProviderCall("get_payment_link", err, time.Since(start))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUpstreamFailure.Code, appErrors.ErrUpstreamFailure.Status, appErrors.ErrUpstreamFailure.Message)
	}

	switch strings.ToUpper(info.Status) {
	case payos.LinkStatusPaid, payos.LinkStatusCompleted:
		paidAt := time.Now().UTC()
		if err := s.repo.MarkCompleted(ctx, payment.ID, paidAt); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete payment")
		}
		payment.Status = models.PaymentStatusCompleted
		payment.PaidAt = &paidAt
		s.metrics.RecordPaymentTransition(string(models.PaymentStatusCompleted))
		if payment.EnrollmentID == nil {
			enrollment, err := s.createEnrollmentAfterPayment(ctx, payment)
			if err != nil {
				return nil, err
			}
			payment.EnrollmentID = &enrollment.ID
		}
	case payos.LinkStatusCancelled:
		if err := s.repo.MarkClosed(ctx, payment.ID, models.PaymentStatusCancelled); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel payment")
		}
		payment.Status = models.PaymentStatusCancelled
		s.metrics.RecordPaymentTransition(string(models.PaymentStatusCancelled))
	case payos.LinkStatusExpired:
		if err := s.repo.MarkClosed(ctx, payment.ID, models.PaymentStatusFailed); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close payment")
		}
		payment.Status = models.PaymentStatusFailed
		s.metrics.RecordPaymentTransition(string(models.PaymentStatusFailed))
	}
	return payment, nil
}

// createEnrollmentAfterPayment enrolls the payer once their payment is
// confirmed. An existing enrollment for the pair is adopted rather than
// duplicated, the course counter is bumped at most once, and the
// enrollment id is attached to the payment exactly once. Course matching
// tries the business id first and only then the internal catalog id;
// this order is deliberately the reverse of catalog resolution and must
// stay fixed.
func (s *PaymentService) createEnrollmentAfterPayment(ctx context.Context, payment *models.Payment) (*models.Enrollment, error) {
	existing, err := s.enrollments.FindByUserAndCourse(ctx, payment.UserID, payment.CourseID)
	if err == nil {
		s.attachEnrollment(ctx, payment.ID, existing.ID)
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	enrollment := &models.Enrollment{
		UserID:     payment.UserID,
		CourseID:   payment.CourseID,
		EnrolledAt: time.Now().UTC(),
		Status:     models.EnrollmentStatusActive,
		Progress:   models.Progress{CompletedLessons: []models.CompletedLesson{}},
	}
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		if database.IsUniqueViolation(err, repository.UniqueEnrollmentConstraint) {
			existing, findErr := s.enrollments.FindByUserAndCourse(ctx, payment.UserID, payment.CourseID)
			if findErr != nil {
				return nil, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
			}
			s.attachEnrollment(ctx, payment.ID, existing.ID)
			return existing, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
	}

	affected, err := s.counter.IncrementEnrolledCount(ctx, payment.CourseID)
	if err != nil {
		s.logger.Warn("increment enrolled count", zap.String("course_id", payment.CourseID), zap.Error(err))
	} else if affected == 0 {
		if _, err := s.counter.IncrementEnrolledCountByInternalID(ctx, payment.CourseID); err != nil {
			s.logger.Warn("increment enrolled count by internal id",
				zap.String("course_id", payment.CourseID), zap.Error(err))
		}
	}

	s.metrics.RecordEnrollmentCreated()
	s.attachEnrollment(ctx, payment.ID, enrollment.ID)
	s.logger.Info("enrollment created after payment",
		zap.String("payment_id", payment.ID),
		zap.String("enrollment_id", enrollment.ID),
		zap.String("user_id", payment.UserID))
	return enrollment, nil
}

func (s *PaymentService) attachEnrollment(ctx context.Context, paymentID, enrollmentID string) {
	won, err := s.repo.AttachEnrollment(ctx, paymentID, enrollmentID)
	if err != nil {
		s.logger.Warn("attach enrollment to payment",
			zap.String("payment_id", paymentID), zap.Error(err))
		return
	}
	if !won {
		s.logger.Debug("enrollment already attached to payment",
			zap.String("payment_id", paymentID))
	}
}

// Receipt assembles the printable receipt for a completed payment.
func (s *PaymentService) Receipt(ctx context.Context, paymentID string) (*export.Receipt, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if payment.Status != models.PaymentStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrValidation, "receipt is only available for completed payments")
	}

	receipt := &export.Receipt{
		PaymentID:    payment.ID,
		CustomerName: payment.CustomerInfo.Name,
		Email:        payment.CustomerInfo.Email,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
	}
	if title, ok := payment.Metadata["courseTitle"].(string); ok {
		receipt.CourseTitle = title
	}
	if payment.OrderCode != nil {
		receipt.OrderCode = *payment.OrderCode
	}
	if payment.PaidAt != nil {
		receipt.PaidAt = *payment.PaidAt
	}
	return receipt, nil
}

// ReconcilePending polls the provider for processing payments that have
// not been touched for minAge. It lets payments whose client never came
// back to poll still converge on their final state.
func (s *PaymentService) ReconcilePending(ctx context.Context, minAge time.Duration, limit int) error {
	if limit <= 0 {
		limit = 50
	}
	open, err := s.repo.ListOpen(ctx, minAge, limit)
	if err != nil {
		return fmt.Errorf("list open payments: %w", err)
	}
	for i := range open {
		if _, err := s.PollPaymentStatus(ctx, open[i].ID); err != nil {
			s.logger.Warn("reconcile payment",
				zap.String("payment_id", open[i].ID), zap.Error(err))
		}
	}
	if len(open) > 0 {
		s.logger.Info("payment reconciliation pass finished", zap.Int("checked", len(open)))
	}
	return nil
}
