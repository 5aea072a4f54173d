package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PayoutOperator is the payout ledger as seen by HTTP callers (PayoutService)
type PayoutOperator interface {
	ListDetailerTransfers(ctx context.Context, detailerID uuid.UUID, limit int) ([]models.Transfer, error)
	ListFailedTransfers(ctx context.Context, limit int) ([]models.Transfer, error)
	RetryTransfer(ctx context.Context, id uuid.UUID) (*models.Transfer, error)
	RunWeeklyBatch(ctx context.Context, now time.Time) (*models.BatchRunSummary, error)
}

// TransferView is a transfer with the label shown to detailers
type TransferView struct {
	models.Transfer
	DisplayStatus string `json:"display_status"`
}

func transferViews(list []models.Transfer) []TransferView {
	views := make([]TransferView, 0, len(list))
	for i := range list {
		views = append(views, TransferView{Transfer: list[i], DisplayStatus: list[i].DisplayStatus()})
	}
	return views
}

// PayoutHandler handles payout ledger HTTP requests
type PayoutHandler struct {
	payouts   PayoutOperator
	detailers detailerForUser
	logger    *logrus.Logger
	now       func() time.Time
}

// NewPayoutHandler creates a new PayoutHandler
func NewPayoutHandler(payouts PayoutOperator, detailers detailerForUser, logger *logrus.Logger) *PayoutHandler {
	return &PayoutHandler{
		payouts:   payouts,
		detailers: detailers,
		logger:    logger,
		now:       time.Now,
	}
}

// ============================================================================
// DETAILER
// ============================================================================

// GetMyTransfers handles GET /api/v1/detailer/transfers
func (h *PayoutHandler) GetMyTransfers(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	detailer, err := h.detailers.GetDetailerByUserID(c.Request.Context(), user.UserID)
	if err != nil {
		h.logger.WithField("user_id", user.UserID).WithError(err).Error("Failed to resolve detailer")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to resolve detailer",
		})
		return
	}
	if detailer == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "not_found",
			Message: "Detailer profile not found",
		})
		return
	}

	limit := queryInt(c, "limit", 50, 1, 200)
	list, err := h.payouts.ListDetailerTransfers(c.Request.Context(), detailer.ID, limit)
	if err != nil {
		h.logger.WithField("detailer_id", detailer.ID).WithError(err).Error("Failed to list transfers")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve transfers",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transfers": transferViews(list),
		"total":     len(list),
	})
}

// ============================================================================
// ADMIN
// ============================================================================

// GetFailedTransfers handles GET /api/v1/admin/transfers/failed
func (h *PayoutHandler) GetFailedTransfers(c *gin.Context) {
	limit := queryInt(c, "limit", 100, 1, 500)
	list, err := h.payouts.ListFailedTransfers(c.Request.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list failed transfers")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to retrieve failed transfers",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transfers": transferViews(list),
		"total":     len(list),
	})
}

// RetryTransfer handles POST /api/v1/admin/transfers/:id/retry
func (h *PayoutHandler) RetryTransfer(c *gin.Context) {
	transferID, ok := parseIDParam(c, "id", "transfer")
	if !ok {
		return
	}

	user, ok := requireUser(c)
	if !ok {
		return
	}
	log := h.logger.WithFields(logrus.Fields{
		"transfer_id": transferID,
		"admin_id":    user.UserID,
	})

	transfer, err := h.payouts.RetryTransfer(c.Request.Context(), transferID)
	switch {
	case errors.Is(err, services.ErrTransferNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "Transfer not found"})
		return
	case errors.Is(err, services.ErrTransferNotRetryable):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "conflict", Message: err.Error(), Code: "TRANSFER_NOT_RETRYABLE"})
		return
	case errors.Is(err, services.ErrGatewayNotConfigured):
		log.Error("Transfer retry requested but payment gateway is not configured")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "gateway_unavailable", Message: "Payment gateway is not configured"})
		return
	case err != nil && transfer != nil:
		// Submitted and rejected; the failure is already recorded on the transfer
		log.WithError(err).Warn("Transfer resubmission failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "gateway_error",
			"message":  err.Error(),
			"transfer": TransferView{Transfer: *transfer, DisplayStatus: transfer.DisplayStatus()},
		})
		return
	case err != nil:
		log.WithError(err).Error("Transfer retry failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Failed to retry transfer"})
		return
	}

	log.Info("Transfer resubmitted by operator")
	c.JSON(http.StatusOK, gin.H{
		"message":  "Transfer resubmitted",
		"transfer": TransferView{Transfer: *transfer, DisplayStatus: transfer.DisplayStatus()},
	})
}

// RunWeeklyBatch handles POST /api/v1/admin/payouts/run-batch
func (h *PayoutHandler) RunWeeklyBatch(c *gin.Context) {
	summary, err := h.payouts.RunWeeklyBatch(c.Request.Context(), h.now())
	if errors.Is(err, services.ErrGatewayNotConfigured) {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "gateway_unavailable", Message: "Payment gateway is not configured"})
		return
	}
	if err != nil {
		h.logger.WithError(err).Error("Manual payout batch run failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "Failed to run payout batch"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Payout batch run complete",
		"summary": summary,
	})
}
