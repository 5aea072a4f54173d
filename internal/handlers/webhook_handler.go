package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/services"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v82"
)

// Stripe event payloads are a few KiB; anything near this is not a real delivery
const maxWebhookBodyBytes = 512 << 10

// WebhookVerifier authenticates and parses gateway deliveries (StripeService)
type WebhookVerifier interface {
	IsConfigured() bool
	VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, models.WebhookEndpoint, error)
	ParseEvent(event stripe.Event) (models.GatewayEvent, error)
}

// EventReconciler applies a verified event to local state (WebhookReconciler)
type EventReconciler interface {
	Reconcile(ctx context.Context, event models.GatewayEvent) error
}

// WebhookHandler is the single ingress for payment gateway events
type WebhookHandler struct {
	verifier   WebhookVerifier
	reconciler EventReconciler
	audit      services.WebhookEventStore
	timeout    time.Duration
	storeBody  bool
	logger     *logrus.Logger
}

// NewWebhookHandler creates a new WebhookHandler. reconciler and audit may be nil;
// a nil reconciler makes every delivery fail with 500.
func NewWebhookHandler(
	verifier WebhookVerifier,
	reconciler EventReconciler,
	audit services.WebhookEventStore,
	timeout time.Duration,
	storeBody bool,
	logger *logrus.Logger,
) *WebhookHandler {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		audit:      audit,
		timeout:    timeout,
		storeBody:  storeBody,
		logger:     logger,
	}
}

// HandleStripe handles /api/v1/webhooks/stripe (registered for any method)
func (h *WebhookHandler) HandleStripe(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		c.JSON(http.StatusMethodNotAllowed, ErrorResponse{
			Error:   "method_not_allowed",
			Message: "Webhooks must be delivered with POST",
		})
		return
	}

	if h.verifier == nil || !h.verifier.IsConfigured() || h.reconciler == nil {
		h.logger.Error("Stripe webhook received but server is not configured")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "server_misconfigured",
			Message: "Payment gateway is not configured",
		})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_signature",
			Message: "Stripe-Signature header is required",
		})
		return
	}

	// Verification needs the body byte-for-byte, so read it before any binding
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.WithField("limit_bytes", tooLarge.Limit).Warn("Webhook body exceeds size limit")
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "body_too_large",
				Message: "Request body exceeds the webhook size limit",
			})
			return
		}
		h.logger.WithError(err).Error("Failed to read webhook body")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_body",
			Message: "Failed to read request body",
		})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_body",
			Message: "Request body is empty",
		})
		return
	}

	startTime := time.Now()
	ip := utils.GetRealIP(c)

	event, endpoint, err := h.verifier.VerifyWebhook(body, sigHeader)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"ip":              ip,
			"secrets_missing": errors.Is(err, services.ErrWebhookSecretsMissing),
		}).WithError(err).Warn("Stripe webhook verification failed")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_signature",
			Message: "Webhook signature verification failed",
		})
		return
	}

	log := h.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"endpoint":   endpoint,
	})

	parsed, err := h.verifier.ParseEvent(event)
	if err != nil {
		// Signed by Stripe but unreadable; redelivery would fail the same way
		log.WithError(err).Error("Failed to parse verified webhook event")
		entry := models.NewWebhookEvent(event.ID, string(event.Type), endpoint).SetError(err)
		h.record(c, entry, body, startTime)
		c.JSON(http.StatusOK, gin.H{"received": true, "error": err.Error()})
		return
	}

	// Unhandled types are acknowledged without touching the database
	if _, unknown := parsed.(*models.UnknownEvent); unknown {
		log.Debug("Ignoring unhandled webhook event type")
		c.JSON(http.StatusOK, gin.H{"received": true, "event_type": parsed.EventType()})
		return
	}

	entry := models.NewWebhookEvent(parsed.EventID(), parsed.EventType(), endpoint).
		SetObject(models.ObjectID(parsed), models.BookingIDOf(parsed))

	if h.audit != nil {
		seen, err := h.audit.HasProcessed(c.Request.Context(), parsed.EventID())
		if err != nil {
			log.WithError(err).Warn("Failed to check webhook delivery history")
		} else if seen {
			log.Info("Redelivered webhook event, processing again")
			entry.MarkAsDuplicate()
		}
	}

	// The gateway may drop the connection; finish the work regardless
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), h.timeout)
	defer cancel()

	reconcileErr := h.reconciler.Reconcile(ctx, parsed)
	entry.SetError(reconcileErr)
	h.record(c, entry, body, startTime)

	if reconcileErr != nil {
		log.WithError(reconcileErr).Error("Webhook event handled with errors")
		c.JSON(http.StatusOK, gin.H{"received": true, "error": reconcileErr.Error()})
		return
	}

	log.WithField("processing_time_ms", time.Since(startTime).Milliseconds()).Info("Webhook event processed")
	c.JSON(http.StatusOK, gin.H{"received": true, "event_type": parsed.EventType()})
}

// record writes the audit row; failures are logged and never change the response
func (h *WebhookHandler) record(c *gin.Context, entry *models.WebhookEvent, body []byte, startTime time.Time) {
	if h.audit == nil {
		return
	}

	userAgent := utils.GetUserAgent(c)
	client := utils.ParseUserAgent(userAgent)
	entry.SetClient(utils.GetRealIP(c), userAgent, client.IsBot).
		SetDetails(client.Fields()).
		SetProcessingTime(startTime)
	if h.storeBody {
		entry.SetRawBody(string(body))
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 5*time.Second)
	defer cancel()
	if err := h.audit.Log(ctx, entry); err != nil {
		h.logger.WithFields(logrus.Fields{
			"event_id":   entry.GatewayEventID,
			"event_type": entry.EventType,
		}).WithError(err).Warn("Failed to write webhook audit row")
	}
}

// ListFailures handles GET /api/v1/admin/webhooks/failures?hours=24&limit=100
func (h *WebhookHandler) ListFailures(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusOK, gin.H{"events": []models.WebhookEvent{}, "total": 0})
		return
	}

	hours := queryInt(c, "hours", 24, 1, 24*30)
	limit := queryInt(c, "limit", 100, 1, 500)

	events, err := h.audit.ListRecentFailures(c.Request.Context(), hours, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list webhook failures")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve webhook failures",
		})
		return
	}
	if events == nil {
		events = []models.WebhookEvent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"hours":  hours,
		"total":  len(events),
	})
}

// queryInt reads an integer query parameter clamped to [lo, hi]
func queryInt(c *gin.Context, name string, def, lo, hi int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
