package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/middleware"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/Peeyushmeher/cleanswift-web-sub000/pkg/jwt"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRouter(user *middleware.UserContext) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	if user != nil {
		router.Use(func(c *gin.Context) {
			c.Set(middleware.UserContextKey, *user)
			c.Next()
		})
	}
	return router
}

func adminUser() *middleware.UserContext {
	return &middleware.UserContext{UserID: uuid.New(), Email: "ops@example.com", Roles: []string{jwt.RoleAdmin}}
}

func detailerUser() *middleware.UserContext {
	return &middleware.UserContext{UserID: uuid.New(), Email: "sam@example.com", Roles: []string{jwt.RoleDetailer}}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

// ============================================================================
// FAKES
// ============================================================================

type fakeDetailers struct {
	byUser map[uuid.UUID]*models.Detailer
	err    error
}

func (f *fakeDetailers) GetDetailerByUserID(ctx context.Context, userID uuid.UUID) (*models.Detailer, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func (f *fakeDetailers) add(userID uuid.UUID) *models.Detailer {
	if f.byUser == nil {
		f.byUser = map[uuid.UUID]*models.Detailer{}
	}
	d := &models.Detailer{ID: uuid.New(), UserID: userID, FullName: "Sam Rivera", IsActive: true}
	f.byUser[userID] = d
	return d
}

type fakeBookings struct {
	bookings map[uuid.UUID]*models.Booking
	timeline []models.BookingTimelineEntry
	err      error
}

func (f *fakeBookings) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.bookings[id], nil
}

func (f *fakeBookings) ListBookingTimeline(ctx context.Context, bookingID uuid.UUID) ([]models.BookingTimelineEntry, error) {
	return f.timeline, nil
}

type advanceCall struct {
	actor  models.Actor
	id     uuid.UUID
	status models.BookingStatus
}

type fakeMachine struct {
	calls []advanceCall
	err   error
}

func (f *fakeMachine) Advance(ctx context.Context, actor models.Actor, bookingID uuid.UUID, newStatus models.BookingStatus) (*models.Booking, error) {
	f.calls = append(f.calls, advanceCall{actor: actor, id: bookingID, status: newStatus})
	if f.err != nil {
		return nil, f.err
	}
	return &models.Booking{ID: bookingID, Status: newStatus}, nil
}

type fakeAssigner struct {
	autoResult *uuid.UUID
	autoErr    error
	manualErr  error
	manual     []uuid.UUID
	autoCalls  int
}

func (f *fakeAssigner) Assign(ctx context.Context, bookingID uuid.UUID) (*uuid.UUID, error) {
	f.autoCalls++
	return f.autoResult, f.autoErr
}

func (f *fakeAssigner) AssignTo(ctx context.Context, bookingID, detailerID uuid.UUID, actor models.Actor) error {
	f.manual = append(f.manual, detailerID)
	return f.manualErr
}

type fakeReconciler struct {
	events []models.GatewayEvent
	err    error
	ctxErr error
}

func (f *fakeReconciler) Reconcile(ctx context.Context, event models.GatewayEvent) error {
	f.events = append(f.events, event)
	f.ctxErr = ctx.Err()
	return f.err
}

type fakeAudit struct {
	logged    []*models.WebhookEvent
	processed map[string]bool
	failures  []models.WebhookEvent
	logErr    error
}

func (f *fakeAudit) Log(ctx context.Context, event *models.WebhookEvent) error {
	f.logged = append(f.logged, event)
	return f.logErr
}

func (f *fakeAudit) HasProcessed(ctx context.Context, gatewayEventID string) (bool, error) {
	return f.processed[gatewayEventID], nil
}

func (f *fakeAudit) ListRecentFailures(ctx context.Context, hours int, limit int) ([]models.WebhookEvent, error) {
	return f.failures, nil
}

type fakePayouts struct {
	transfers   []models.Transfer
	retried     *models.Transfer
	retryErr    error
	listErr     error
	summary     *models.BatchRunSummary
	batchErr    error
	batchNow    time.Time
	detailerArg uuid.UUID
}

func (f *fakePayouts) ListDetailerTransfers(ctx context.Context, detailerID uuid.UUID, limit int) ([]models.Transfer, error) {
	f.detailerArg = detailerID
	return f.transfers, f.listErr
}

func (f *fakePayouts) ListFailedTransfers(ctx context.Context, limit int) ([]models.Transfer, error) {
	return f.transfers, f.listErr
}

func (f *fakePayouts) RetryTransfer(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	return f.retried, f.retryErr
}

func (f *fakePayouts) RunWeeklyBatch(ctx context.Context, now time.Time) (*models.BatchRunSummary, error) {
	f.batchNow = now
	return f.summary, f.batchErr
}

var errBoom = errors.New("boom")
