package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edushare/course-api/internal/models"
	"github.com/edushare/course-api/internal/payos"
	"github.com/edushare/course-api/pkg/config"
	appErrors "github.com/edushare/course-api/pkg/errors"
)

type mockPaymentRepo struct {
	byID        map[string]*models.Payment
	open        *models.Payment
	created     []*models.Payment
	processing  []string
	completed   []string
	closed      map[string]models.PaymentStatus
	attached    map[string]string
	attachCalls int
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	if p, ok := m.byID[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockPaymentRepo) FindOpenByUserAndCourse(ctx context.Context, userID, courseID string) (*models.Payment, error) {
	return m.open, nil
}

func (m *mockPaymentRepo) ListOpen(ctx context.Context, minAge time.Duration, limit int) ([]models.Payment, error) {
	if m.open == nil {
		return nil, nil
	}
	return []models.Payment{*m.open}, nil
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = "payment_1"
	}
	payment.Status = models.PaymentStatusPending
	m.created = append(m.created, payment)
	if m.byID == nil {
		m.byID = map[string]*models.Payment{}
	}
	m.byID[payment.ID] = payment
	return nil
}

func (m *mockPaymentRepo) MarkProcessing(ctx context.Context, id string, orderCode int64, paymentLinkID, checkoutURL string) error {
	m.processing = append(m.processing, id)
	if p, ok := m.byID[id]; ok {
		p.Status = models.PaymentStatusProcessing
		p.OrderCode = &orderCode
		p.PaymentLinkID = &paymentLinkID
		p.CheckoutURL = &checkoutURL
	}
	return nil
}

func (m *mockPaymentRepo) MarkCompleted(ctx context.Context, id string, paidAt time.Time) error {
	m.completed = append(m.completed, id)
	return nil
}

func (m *mockPaymentRepo) MarkClosed(ctx context.Context, id string, status models.PaymentStatus) error {
	if m.closed == nil {
		m.closed = map[string]models.PaymentStatus{}
	}
	m.closed[id] = status
	return nil
}

func (m *mockPaymentRepo) AttachEnrollment(ctx context.Context, id, enrollmentID string) (bool, error) {
	m.attachCalls++
	if m.attached == nil {
		m.attached = map[string]string{}
	}
	if _, ok := m.attached[id]; ok {
		return false, nil
	}
	m.attached[id] = enrollmentID
	return true, nil
}

type mockGateway struct {
	link       *payos.CheckoutLink
	linkErr    error
	linkDelay  time.Duration
	info       *payos.LinkInfo
	infoErr    error
	createCall int
	infoCalls  int
}

func (m *mockGateway) CreatePaymentLink(ctx context.Context, req payos.CheckoutRequest) (*payos.CheckoutLink, error) {
	m.createCall++
	if m.linkDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.linkDelay):
		}
	}
	if m.linkErr != nil {
		return nil, m.linkErr
	}
	return m.link, nil
}

func (m *mockGateway) GetPaymentLinkInformation(ctx context.Context, orderCode int64) (*payos.LinkInfo, error) {
	m.infoCalls++
	if m.infoErr != nil {
		return nil, m.infoErr
	}
	return m.info, nil
}

func paidCourse() *models.Course {
	return &models.Course{
		ID:       "internal-1",
		CourseID: "course_abc",
		Title:    "Intro to Go",
		Pricing:  models.Pricing{Price: 299000, Currency: "VND"},
	}
}

func paymentsConfig() config.PaymentsConfig {
	return config.PaymentsConfig{
		CheckoutTimeout: 50 * time.Millisecond,
		PendingTTL:      15 * time.Minute,
		FrontendURL:     "https://app.example.com",
	}
}

func newPaymentService(repo *mockPaymentRepo, enrollments *mockEnrollmentRepo, gateway *mockGateway, counter *mockCounter, course *models.Course) *PaymentService {
	return NewPaymentService(repo, enrollments, &mockResolver{course: course}, counter, gateway, paymentsConfig(), nil, nil, nil)
}

func TestCreateCheckoutRejectsFreeCourse(t *testing.T) {
	course := paidCourse()
	course.Pricing = models.Pricing{IsFree: true}
	svc := newPaymentService(&mockPaymentRepo{}, &mockEnrollmentRepo{}, &mockGateway{}, &mockCounter{}, course)

	_, err := svc.CreateCheckout(context.Background(), CreateCheckoutRequest{CourseRef: "course_abc", UserID: "user-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFreeCourse.Code, appErrors.FromError(err).Code)
}

func TestCreateCheckoutRejectsExistingEnrollment(t *testing.T) {
	enrollments := &mockEnrollmentRepo{byPair: map[string]*models.Enrollment{
		pairKey("user-1", "course_abc"): {ID: "enrollment_1"},
	}}
	svc := newPaymentService(&mockPaymentRepo{}, enrollments, &mockGateway{}, &mockCounter{}, paidCourse())

	_, err := svc.CreateCheckout(context.Background(), CreateCheckoutRequest{CourseRef: "course_abc", UserID: "user-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateCheckoutReusesOpenSession(t *testing.T) {
	checkoutURL := "https://pay.example.com/web/link-1"
	orderCode := int64(123456)
	repo := &mockPaymentRepo{open: &models.Payment{
		ID:          "payment_open",
		Status:      models.PaymentStatusProcessing,
		Amount:      299000,
		Currency:    "VND",
		CheckoutURL: &checkoutURL,
		OrderCode:   &orderCode,
	}}
	gateway := &mockGateway{}
	svc := newPaymentService(repo, &mockEnrollmentRepo{}, gateway, &mockCounter{}, paidCourse())

	result, err := svc.CreateCheckout(context.Background(), CreateCheckoutRequest{CourseRef: "course_abc", UserID: "user-1"})
	require.NoError(t, err)
	assert.True(t, result.Reused)
	assert.Equal(t, "payment_open", result.PaymentID)
	assert.Equal(t, checkoutURL, result.PaymentURL)
	assert.Equal(t, int64(299000), result.Amount)
	assert.Equal(t, "VND", result.Currency)
	assert.Equal(t, models.PaymentStatusProcessing, result.Status)
	assert.Zero(t, gateway.createCall)
	assert.Empty(t, repo.created)
}

func TestCreateCheckoutIgnoresExpiredOpenSession(t *testing.T) {
	checkoutURL := "https://pay.example.com/web/link-stale"
	expired := time.Now().UTC().Add(-time.Minute)
	repo := &mockPaymentRepo{open: &models.Payment{
		ID:          "payment_stale",
		Status:      models.PaymentStatusProcessing,
		CheckoutURL: &checkoutURL,
		ExpiredAt:   &expired,
	}}
	gateway := &mockGateway{link: &payos.CheckoutLink{
		PaymentLinkID: "link-2",
		CheckoutURL:   "https://pay.example.com/web/link-2",
		OrderCode:     777,
	}}
	svc := newPaymentService(repo, &mockEnrollmentRepo{}, gateway, &mockCounter{}, paidCourse())

	result, err := svc.CreateCheckout(context.Background(), CreateCheckoutRequest{CourseRef: "course_abc", UserID: "user-1"})
	require.NoError(t, err)
	assert.False(t, result.Reused)
	assert.Equal(t, "https://pay.example.com/web/link-2", result.PaymentURL)
	require.Len(t, repo.created, 1)
}

func TestCreateCheckoutTimeoutLeavesPaymentPending(t *testing.T) {
	repo := &mockPaymentRepo{}
	gateway := &mockGateway{linkDelay: 200 * time.Millisecond}
	svc := newPaymentService(repo, &mockEnrollmentRepo{}, gateway, &mockCounter{}, paidCourse())

	_, err := svc.CreateCheckout(context.Background(), CreateCheckoutRequest{CourseRef: "course_abc", UserID: "user-1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUpstreamTimeout.Code, appErrors.FromError(err).Code)

	require.Len(t, repo.created, 1)
	assert.Equal(t, models.PaymentStatusPending, repo.created[0].Status)
	assert.Empty(t, repo.processing)
}

func TestCreateCheckoutSuccessMarksProcessing(t *testing.T) {
	repo := &mockPaymentRepo{}
	gateway := &mockGateway{link: &payos.CheckoutLink{
		PaymentLinkID: "link-1",
		CheckoutURL:   "https://pay.example.com/web/link-1",
		OrderCode:     123456,
		QRCode:        "qr-data",
	}}
	svc := newPaymentService(repo, &mockEnrollmentRepo{}, gateway, &mockCounter{}, paidCourse())

	result, err := svc.CreateCheckout(context.Background(), CreateCheckoutRequest{
		CourseRef: "course_abc",
		UserID:    "user-1",
		Customer:  models.CustomerInfo{Name: "Student", Email: "student@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(123456), result.OrderCode)
	assert.Equal(t, "https://pay.example.com/web/link-1", result.PaymentURL)
	assert.Equal(t, int64(299000), result.Amount)
	assert.Equal(t, "VND", result.Currency)
	assert.Equal(t, models.PaymentStatusProcessing, result.Status)
	require.Len(t, repo.created, 1)
	assert.Equal(t, int64(299000), repo.created[0].Amount)
	assert.Equal(t, "Intro to Go", repo.created[0].Metadata["courseTitle"])
	require.NotNil(t, repo.created[0].ExpiredAt)
	assert.Equal(t, []string{repo.created[0].ID}, repo.processing)
}

func TestPollCompletedPaymentSkipsProvider(t *testing.T) {
	paidAt := time.Now().UTC()
	orderCode := int64(123456)
	repo := &mockPaymentRepo{byID: map[string]*models.Payment{
		"payment_1": {ID: "payment_1", Status: models.PaymentStatusCompleted, PaidAt: &paidAt, OrderCode: &orderCode},
	}}
	gateway := &mockGateway{}
	svc := newPaymentService(repo, &mockEnrollmentRepo{}, gateway, &mockCounter{}, paidCourse())

	payment, err := svc.PollPaymentStatus(context.Background(), "payment_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	assert.Zero(t, gateway.infoCalls)
	assert.Empty(t, repo.completed)
	assert.Zero(t, repo.attachCalls)
}

func TestPollPaidPaymentCompletesAndEnrolls(t *testing.T) {
	orderCode := int64(123456)
	repo := &mockPaymentRepo{byID: map[string]*models.Payment{
		"payment_1": {
			ID:        "payment_1",
			UserID:    "user-1",
			CourseID:  "course_abc",
			Status:    models.PaymentStatusProcessing,
			OrderCode: &orderCode,
		},
	}}
	gateway := &mockGateway{info: &payos.LinkInfo{Status: payos.LinkStatusPaid, OrderCode: orderCode}}
	enrollments := &mockEnrollmentRepo{}
	counter := &mockCounter{businessHits: 1}
	svc := newPaymentService(repo, enrollments, gateway, counter, paidCourse())

	payment, err := svc.PollPaymentStatus(context.Background(), "payment_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.PaidAt)
	require.NotNil(t, payment.EnrollmentID)
	assert.Equal(t, []string{"payment_1"}, repo.completed)
	assert.Equal(t, 1, enrollments.creates)
	assert.Equal(t, *payment.EnrollmentID, repo.attached["payment_1"])
}

func TestPollPaidPaymentAdoptsExistingEnrollment(t *testing.T) {
	orderCode := int64(123456)
	repo := &mockPaymentRepo{byID: map[string]*models.Payment{
		"payment_1": {
			ID:        "payment_1",
			UserID:    "user-1",
			CourseID:  "course_abc",
			Status:    models.PaymentStatusProcessing,
			OrderCode: &orderCode,
		},
	}}
	gateway := &mockGateway{info: &payos.LinkInfo{Status: payos.LinkStatusPaid}}
	enrollments := &mockEnrollmentRepo{byPair: map[string]*models.Enrollment{
		pairKey("user-1", "course_abc"): {ID: "enrollment_existing", UserID: "user-1", CourseID: "course_abc"},
	}}
	counter := &mockCounter{}
	svc := newPaymentService(repo, enrollments, gateway, counter, paidCourse())

	payment, err := svc.PollPaymentStatus(context.Background(), "payment_1")
	require.NoError(t, err)
	assert.Equal(t, 0, enrollments.creates)
	assert.Equal(t, "enrollment_existing", *payment.EnrollmentID)
	assert.Empty(t, counter.businessCalls)
}

func TestEnrollmentAfterPaymentMatchesBusinessIDFirst(t *testing.T) {
	// The payment's stored course reference is matched against the
	// business id first; only a zero-row update falls back to treating it
	// as the internal catalog id. The order is pinned deliberately.
	orderCode := int64(123456)
	repo := &mockPaymentRepo{byID: map[string]*models.Payment{
		"payment_1": {
			ID:        "payment_1",
			UserID:    "user-1",
			CourseID:  "internal-1",
			Status:    models.PaymentStatusProcessing,
			OrderCode: &orderCode,
		},
	}}
	gateway := &mockGateway{info: &payos.LinkInfo{Status: payos.LinkStatusPaid}}
	counter := &mockCounter{businessHits: 0}
	svc := newPaymentService(repo, &mockEnrollmentRepo{}, gateway, counter, paidCourse())

	_, err := svc.PollPaymentStatus(context.Background(), "payment_1")
	require.NoError(t, err)
	require.Equal(t, []string{"internal-1"}, counter.businessCalls)
	require.Equal(t, []string{"internal-1"}, counter.internalCalls)
}

func TestPollCancelledPaymentCloses(t *testing.T) {
	orderCode := int64(123456)
	repo := &mockPaymentRepo{byID: map[string]*models.Payment{
		"payment_1": {ID: "payment_1", Status: models.PaymentStatusProcessing, OrderCode: &orderCode},
	}}
	gateway := &mockGateway{info: &payos.LinkInfo{Status: payos.LinkStatusCancelled}}
	svc := newPaymentService(repo, &mockEnrollmentRepo{}, gateway, &mockCounter{}, paidCourse())

	payment, err := svc.PollPaymentStatus(context.Background(), "payment_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, payment.Status)
	assert.Equal(t, models.PaymentStatusCancelled, repo.closed["payment_1"])
}

func TestPollUnknownPaymentNotFound(t *testing.T) {
	svc := newPaymentService(&mockPaymentRepo{}, &mockEnrollmentRepo{}, &mockGateway{}, &mockCounter{}, paidCourse())

	_, err := svc.PollPaymentStatus(context.Background(), "payment_missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReceiptRequiresCompletedPayment(t *testing.T) {
	repo := &mockPaymentRepo{byID: map[string]*models.Payment{
		"payment_1": {ID: "payment_1", Status: models.PaymentStatusProcessing},
	}}
	svc := newPaymentService(repo, &mockEnrollmentRepo{}, &mockGateway{}, &mockCounter{}, paidCourse())

	_, err := svc.Receipt(context.Background(), "payment_1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestReceiptForCompletedPayment(t *testing.T) {
	paidAt := time.Now().UTC()
	orderCode := int64(123456)
	repo := &mockPaymentRepo{byID: map[string]*models.Payment{
		"payment_1": {
			ID:           "payment_1",
			Status:       models.PaymentStatusCompleted,
			Amount:       299000,
			Currency:     "VND",
			OrderCode:    &orderCode,
			PaidAt:       &paidAt,
			CustomerInfo: models.CustomerInfo{Name: "Student", Email: "student@example.com"},
			Metadata:     models.Metadata{"courseTitle": "Intro to Go"},
		},
	}}
	svc := newPaymentService(repo, &mockEnrollmentRepo{}, &mockGateway{}, &mockCounter{}, paidCourse())

	receipt, err := svc.Receipt(context.Background(), "payment_1")
	require.NoError(t, err)
	assert.Equal(t, "Intro to Go", receipt.CourseTitle)
	assert.Equal(t, int64(123456), receipt.OrderCode)
	assert.Equal(t, "Student", receipt.CustomerName)
}
