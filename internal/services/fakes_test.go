package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/config"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/database"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// memStore is an in-memory stand-in for the repositories with the same
// conditional-write semantics as the SQL.
type memStore struct {
	mu        sync.Mutex
	bookings  map[uuid.UUID]*models.Booking
	timeline  []models.BookingTimelineEntry
	payments  map[uuid.UUID]*models.Payment // keyed by booking
	transfers map[uuid.UUID]*models.Transfer
	batches   map[uuid.UUID]*models.PayoutBatch
	detailers map[uuid.UUID]*models.Detailer
	prefs     map[uuid.UUID]models.NotificationPreferences

	// eligible detailers handed out by AssignEligibleDetailer, in order
	eligible []uuid.UUID
	// assignHook replaces AssignEligibleDetailer when set
	assignHook func(bookingID uuid.UUID) (*models.Assignment, error)

	paymentUpserts int
	failures       map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		bookings:  make(map[uuid.UUID]*models.Booking),
		payments:  make(map[uuid.UUID]*models.Payment),
		transfers: make(map[uuid.UUID]*models.Transfer),
		batches:   make(map[uuid.UUID]*models.PayoutBatch),
		detailers: make(map[uuid.UUID]*models.Detailer),
		prefs:     make(map[uuid.UUID]models.NotificationPreferences),
		failures:  make(map[string]error),
	}
}

func (m *memStore) fail(method string) error {
	return m.failures[method]
}

// ============================================================================
// FIXTURES
// ============================================================================

func (m *memStore) addBooking(status models.BookingStatus, detailerID *uuid.UUID) *models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := "Full Detail"
	b := &models.Booking{
		ID:              uuid.New(),
		ReceiptID:       "CS-1001",
		UserID:          uuid.New(),
		DetailerID:      detailerID,
		ServiceID:       uuid.New(),
		ServiceName:     &name,
		Status:          status,
		PaymentStatus:   models.PaymentStatusRequiresPayment,
		ServicePrice:    models.MustParseAmount("89.00"),
		TaxAmount:       models.MustParseAmount("10.00"),
		TotalAmount:     models.MustParseAmount("99.00"),
		ScheduledDate:   time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		ScheduledTime:   "10:00:00",
		DurationMinutes: 90,
		ServiceAddress:  "1 King St W",
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	m.bookings[b.ID] = b
	return b
}

func (m *memStore) addDetailer(model models.PricingModel, account string) *models.Detailer {
	m.mu.Lock()
	defer m.mu.Unlock()
	email := "sam@example.com"
	phone := "+14165550100"
	d := &models.Detailer{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		FullName:     "Sam Rivera",
		Email:        &email,
		Phone:        &phone,
		IsActive:     true,
		PricingModel: model,
		CreatedAt:    time.Now(),
	}
	if account != "" {
		d.StripeAccountID = &account
	}
	m.detailers[d.ID] = d
	return d
}

func (m *memStore) addTransfer(bookingID, detailerID uuid.UUID, status models.TransferStatus, retryCount int) *models.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &models.Transfer{
		ID:               uuid.New(),
		BookingID:        bookingID,
		DetailerID:       detailerID,
		AmountCents:      8415,
		PlatformFeeCents: 1485,
		Currency:         "cad",
		Status:           status,
		RetryCount:       retryCount,
		CreatedAt:        time.Date(2026, 10, 6, 12, 0, 0, 0, time.UTC),
	}
	m.transfers[t.ID] = t
	return t
}

func (m *memStore) booking(id uuid.UUID) models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.bookings[id]
}

func (m *memStore) transfer(id uuid.UUID) models.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.transfers[id]
}

func (m *memStore) transferForBooking(bookingID uuid.UUID) *models.Transfer {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		if t.BookingID == bookingID {
			cp := *t
			return &cp
		}
	}
	return nil
}

// ============================================================================
// BookingStore
// ============================================================================

func (m *memStore) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	if err := m.fail("GetBookingByID"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (m *memStore) ListBookingTimeline(ctx context.Context, bookingID uuid.UUID) ([]models.BookingTimelineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.BookingTimelineEntry
	for _, e := range m.timeline {
		if e.BookingID == bookingID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) ListBookingsForReminder(ctx context.Context, date time.Time, limit int) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	day := date.Format("2006-01-02")
	var out []models.Booking
	for _, b := range m.bookings {
		if b.ScheduledDate.Format("2006-01-02") == day && b.HasDetailer() && b.ReminderSentAt == nil &&
			(b.Status == models.BookingStatusOffered || b.Status == models.BookingStatusAccepted) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memStore) ListCompletedWithoutTransfer(ctx context.Context, limit int) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	has := make(map[uuid.UUID]bool)
	for _, t := range m.transfers {
		has[t.BookingID] = true
	}
	var out []models.Booking
	for _, b := range m.bookings {
		if b.Status == models.BookingStatusCompleted && b.IsPaid() && b.HasDetailer() && !has[b.ID] {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memStore) ListAssignmentInconsistencies(ctx context.Context, limit int) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.bookings {
		if (b.Status == models.BookingStatusPaid && b.HasDetailer()) ||
			(b.Status == models.BookingStatusOffered && !b.HasDetailer()) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memStore) MarkPaymentSucceeded(ctx context.Context, id uuid.UUID, paymentIntentID string) (bool, error) {
	if err := m.fail("MarkPaymentSucceeded"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return false, nil
	}
	b.PaymentStatus = models.PaymentStatusPaid
	b.StripePaymentIntentID = &paymentIntentID
	return true, nil
}

func (m *memStore) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status models.PaymentStatus, paymentIntentID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return false, nil
	}
	b.PaymentStatus = status
	if paymentIntentID != "" {
		b.StripePaymentIntentID = &paymentIntentID
	}
	return true, nil
}

func (m *memStore) MarkReminderSent(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.bookings[id]; ok && b.ReminderSentAt == nil {
		now := time.Now()
		b.ReminderSentAt = &now
	}
	return nil
}

func (m *memStore) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus, actor models.Actor, note *string) (bool, error) {
	if err := m.fail("UpdateBookingStatus"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	if to.RequiresDetailer() && !b.HasDetailer() {
		return false, nil
	}
	b.Status = to
	m.timeline = append(m.timeline, models.BookingTimelineEntry{
		ID: uuid.New(), BookingID: id, FromStatus: from, ToStatus: to,
		ActorRole: actor.Role, ActorID: actor.AuditID(), Note: note, CreatedAt: time.Now(),
	})
	return true, nil
}

func (m *memStore) ResetUnassignedOffer(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok || b.Status != models.BookingStatusOffered || b.HasDetailer() {
		return false, nil
	}
	b.Status = models.BookingStatusPaid
	m.timeline = append(m.timeline, models.BookingTimelineEntry{
		ID: uuid.New(), BookingID: id, FromStatus: models.BookingStatusOffered,
		ToStatus: models.BookingStatusPaid, ActorRole: models.ActorSystem, CreatedAt: time.Now(),
	})
	return true, nil
}

// forceStatus writes a status without checks, to build inconsistent rows
func (m *memStore) forceStatus(id uuid.UUID, status models.BookingStatus, detailerID *uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bookings[id].Status = status
	m.bookings[id].DetailerID = detailerID
}

// ============================================================================
// AssignmentStore
// ============================================================================

func (m *memStore) AssignEligibleDetailer(ctx context.Context, bookingID uuid.UUID) (*models.Assignment, error) {
	if m.assignHook != nil {
		return m.assignHook(bookingID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", bookingID, database.ErrBookingNotFound)
	}
	if b.Status == models.BookingStatusOffered && b.HasDetailer() {
		return &models.Assignment{DetailerID: *b.DetailerID, AlreadyOffered: true}, nil
	}
	if b.Status != models.BookingStatusPaid || b.HasDetailer() {
		return nil, fmt.Errorf("booking %s is %s: %w", bookingID, b.Status, database.ErrBookingNotAssignable)
	}
	if len(m.eligible) == 0 {
		return nil, nil
	}
	detailerID := m.eligible[0]
	b.DetailerID = &detailerID
	b.Status = models.BookingStatusOffered
	m.timeline = append(m.timeline, models.BookingTimelineEntry{
		ID: uuid.New(), BookingID: bookingID, FromStatus: models.BookingStatusPaid,
		ToStatus: models.BookingStatusOffered, ActorRole: models.ActorSystem, CreatedAt: time.Now(),
	})
	return &models.Assignment{DetailerID: detailerID}, nil
}

func (m *memStore) AssignDetailer(ctx context.Context, bookingID, detailerID uuid.UUID, actor models.Actor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return database.ErrBookingNotFound
	}
	if b.Status != models.BookingStatusPaid && b.Status != models.BookingStatusOffered {
		return database.ErrBookingNotAssignable
	}
	d, ok := m.detailers[detailerID]
	if !ok || !d.IsActive {
		return database.ErrDetailerNotEligible
	}
	from := b.Status
	b.DetailerID = &detailerID
	b.Status = models.BookingStatusOffered
	m.timeline = append(m.timeline, models.BookingTimelineEntry{
		ID: uuid.New(), BookingID: bookingID, FromStatus: from,
		ToStatus: models.BookingStatusOffered, ActorRole: actor.Role, CreatedAt: time.Now(),
	})
	return nil
}

func (m *memStore) ListPaidUnassigned(ctx context.Context, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, b := range m.bookings {
		if b.Status == models.BookingStatusPaid && b.IsPaid() && !b.HasDetailer() {
			ids = append(ids, b.ID)
		}
	}
	return ids, nil
}

// ============================================================================
// PaymentStore
// ============================================================================

func (m *memStore) UpsertPayment(ctx context.Context, p *models.Payment) error {
	if err := m.fail("UpsertPayment"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paymentUpserts++
	if existing, ok := m.payments[p.BookingID]; ok {
		charge := existing.StripeChargeID
		if p.StripeChargeID != nil {
			charge = p.StripeChargeID
		}
		cp := *p
		cp.ID = existing.ID
		cp.StripeChargeID = charge
		m.payments[p.BookingID] = &cp
		return nil
	}
	cp := *p
	cp.ID = uuid.New()
	m.payments[p.BookingID] = &cp
	return nil
}

func (m *memStore) GetPaymentByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[bookingID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

// ============================================================================
// TransferStore
// ============================================================================

// withDestination copies t and fills the joined detailer account
func (m *memStore) withDestination(t *models.Transfer) models.Transfer {
	cp := *t
	if d, ok := m.detailers[t.DetailerID]; ok {
		cp.DestinationAccount = d.StripeAccountID
	}
	return cp
}

func (m *memStore) CreatePendingTransfer(ctx context.Context, t *models.Transfer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.transfers {
		if existing.BookingID == t.BookingID {
			return false, nil
		}
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	cp := *t
	cp.Status = models.TransferStatusPending
	cp.CreatedAt = time.Now()
	m.transfers[cp.ID] = &cp
	return true, nil
}

func (m *memStore) GetTransferByID(ctx context.Context, id uuid.UUID) (*models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return nil, nil
	}
	cp := m.withDestination(t)
	return &cp, nil
}

func (m *memStore) GetTransferByExternalID(ctx context.Context, externalID string) (*models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transfers {
		if t.StripeTransferID != nil && *t.StripeTransferID == externalID {
			cp := m.withDestination(t)
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListTransfersByDetailer(ctx context.Context, detailerID uuid.UUID, limit int) ([]models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transfer
	for _, t := range m.transfers {
		if t.DetailerID == detailerID {
			out = append(out, m.withDestination(t))
		}
	}
	return out, nil
}

func (m *memStore) ListTransfersByStatus(ctx context.Context, statuses []models.TransferStatus, limit int) ([]models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transfer
	for _, t := range m.transfers {
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, m.withDestination(t))
			}
		}
	}
	return out, nil
}

func (m *memStore) ListBatchTransfers(ctx context.Context, batchID uuid.UUID) ([]models.Transfer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Transfer
	for _, t := range m.transfers {
		if t.PayoutBatchID != nil && *t.PayoutBatchID == batchID && t.Status == models.TransferStatusPending {
			out = append(out, m.withDestination(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) MarkTransferProcessing(ctx context.Context, id uuid.UUID, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok {
		return false, nil
	}
	switch t.Status {
	case models.TransferStatusPending, models.TransferStatusRetryPending, models.TransferStatusProcessing:
	default:
		return false, nil
	}
	t.Status = models.TransferStatusProcessing
	if externalID != "" {
		t.StripeTransferID = &externalID
	}
	return true, nil
}

func (m *memStore) MarkTransferSucceeded(ctx context.Context, id uuid.UUID, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok || t.Status == models.TransferStatusSucceeded {
		return false, nil
	}
	t.Status = models.TransferStatusSucceeded
	t.ErrorMessage = nil
	if externalID != "" {
		t.StripeTransferID = &externalID
	}
	return true, nil
}

func (m *memStore) RecordTransferFailure(ctx context.Context, id uuid.UUID, observedRetryCount int, next models.TransferFailureState, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok || t.RetryCount != observedRetryCount || t.Status.IsFinal() {
		return false, nil
	}
	t.Status = next.Status
	t.RetryCount = next.RetryCount
	t.ErrorMessage = &message
	return true, nil
}

func (m *memStore) RecordTransferAttemptError(ctx context.Context, id uuid.UUID, observedRetryCount int, message string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transfers[id]
	if !ok || t.RetryCount != observedRetryCount {
		return false, nil
	}
	if t.Status != models.TransferStatusPending && t.Status != models.TransferStatusRetryPending {
		return false, nil
	}
	t.Status = models.TransferStatusRetryPending
	t.ErrorMessage = &message
	return true, nil
}

// ============================================================================
// PayoutBatchStore
// ============================================================================

func (m *memStore) UpsertWeeklyBatch(ctx context.Context, weekStart, weekEnd time.Time) (*models.PayoutBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.batches {
		if b.WeekStart.Equal(weekStart) {
			cp := *b
			return &cp, nil
		}
	}
	b := &models.PayoutBatch{ID: uuid.New(), WeekStart: weekStart, WeekEnd: weekEnd, Status: models.PayoutBatchPending}
	m.batches[b.ID] = b
	cp := *b
	return &cp, nil
}

func (m *memStore) ClaimPendingTransfers(ctx context.Context, batchID uuid.UUID, cutoff time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	claimed := 0
	for _, t := range m.transfers {
		if claimed >= limit {
			break
		}
		if t.Status == models.TransferStatusPending && t.PayoutBatchID == nil && t.CreatedAt.Before(cutoff) {
			id := batchID
			t.PayoutBatchID = &id
			claimed++
		}
	}
	return claimed, nil
}

func (m *memStore) ListOpenBatches(ctx context.Context) ([]models.PayoutBatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PayoutBatch
	for _, b := range m.batches {
		if b.Status == models.PayoutBatchPending || b.Status == models.PayoutBatchProcessing {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memStore) CountBatchTransfers(ctx context.Context, batchID uuid.UUID) (*database.BatchCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c database.BatchCounts
	for _, t := range m.transfers {
		if t.PayoutBatchID == nil || *t.PayoutBatchID != batchID {
			continue
		}
		c.Total++
		switch t.Status {
		case models.TransferStatusSucceeded:
			c.Succeeded++
		case models.TransferStatusFailed:
			c.Failed++
		}
	}
	return &c, nil
}

func (m *memStore) UpdateBatchStatus(ctx context.Context, batchID uuid.UUID, status models.PayoutBatchStatus, counts database.BatchCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.batches[batchID]
	if !ok {
		return errors.New("batch not found")
	}
	b.Status = status
	b.SucceededCount = counts.Succeeded
	b.FailedCount = counts.Failed
	return nil
}

// ============================================================================
// DetailerStore
// ============================================================================

func (m *memStore) GetDetailerByID(ctx context.Context, id uuid.UUID) (*models.Detailer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.detailers[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) GetDetailerByUserID(ctx context.Context, userID uuid.UUID) (*models.Detailer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.detailers {
		if d.UserID == userID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) GetDetailerBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Detailer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.detailers {
		if d.StripeSubscriptionID != nil && *d.StripeSubscriptionID == subscriptionID {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) SetSubscriptionIfUnset(ctx context.Context, detailerID uuid.UUID, subscriptionID, status string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.detailers[detailerID]
	if !ok {
		return false, nil
	}
	if d.StripeSubscriptionID != nil && *d.StripeSubscriptionID != subscriptionID {
		return false, nil
	}
	d.StripeSubscriptionID = &subscriptionID
	d.SubscriptionStatus = &status
	return true, nil
}

func (m *memStore) ClearSubscription(ctx context.Context, detailerID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.detailers[detailerID]
	if !ok {
		return false, nil
	}
	d.StripeSubscriptionID = nil
	d.SubscriptionStatus = nil
	return true, nil
}

func (m *memStore) GetNotificationProfile(ctx context.Context, detailerID uuid.UUID) (*models.NotificationProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.detailers[detailerID]
	if !ok {
		return nil, nil
	}
	prefs, ok := m.prefs[detailerID]
	if !ok {
		prefs = models.DefaultNotificationPreferences()
	}
	return &models.NotificationProfile{
		DetailerID:  d.ID,
		FullName:    d.FullName,
		Email:       d.Email,
		Phone:       d.Phone,
		Preferences: prefs,
	}, nil
}

// ============================================================================
// COLLABORATORS
// ============================================================================

type recordingNotifier struct {
	mu   sync.Mutex
	reqs []models.NotificationRequest
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, req models.NotificationRequest) (*models.NotificationResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reqs = append(n.reqs, req)
	if n.err != nil {
		return nil, n.err
	}
	return &models.NotificationResult{EmailSent: true}, nil
}

func (n *recordingNotifier) ofType(t models.NotificationType) []models.NotificationRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []models.NotificationRequest
	for _, r := range n.reqs {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	values []any
	err    error
}

func (p *recordingPublisher) PublishJSON(ctx context.Context, key string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.values = append(p.values, v)
	return p.err
}

type fakeGateway struct {
	mu         sync.Mutex
	configured bool
	errs       []error // consumed one per call; nil entries succeed
	calls      []models.Transfer
	keys       []string
}

func (g *fakeGateway) IsConfigured() bool { return g.configured }

func (g *fakeGateway) CreateTransfer(ctx context.Context, t *models.Transfer) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, *t)
	g.keys = append(g.keys, t.IdempotencyKey())
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("tr_%d", len(g.calls)), nil
}

// ============================================================================
// HARNESS
// ============================================================================

type harness struct {
	store      *memStore
	notifier   *recordingNotifier
	publisher  *recordingPublisher
	gateway    *fakeGateway
	fees       *FeeCalculator
	payouts    *PayoutService
	machine    *BookingStateMachine
	assigner   *AutoAssignmentService
	reconciler *WebhookReconciler
}

func newHarness() *harness {
	logger := quietLogger()
	store := newMemStore()
	notifier := &recordingNotifier{}
	publisher := &recordingPublisher{}
	gateway := &fakeGateway{configured: true}

	fees := NewFeeCalculator(store, config.FeeConfig{PlatformFeePercent: 15, SubscriptionProcessingPercent: 3})
	payouts := NewPayoutService(store, store, store, fees, gateway, notifier, config.PayoutConfig{BatchSize: 200, Currency: "cad"}, logger)
	machine := NewBookingStateMachine(store, payouts, notifier, publisher, logger)
	assigner := NewAutoAssignmentService(store, store, machine, 50, logger)
	reconciler := NewWebhookReconciler(store, store, store, machine, assigner, payouts, logger)

	return &harness{
		store:      store,
		notifier:   notifier,
		publisher:  publisher,
		gateway:    gateway,
		fees:       fees,
		payouts:    payouts,
		machine:    machine,
		assigner:   assigner,
		reconciler: reconciler,
	}
}
