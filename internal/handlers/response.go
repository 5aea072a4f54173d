package handlers

import (
	"context"
	"net/http"

	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/middleware"
	"github.com/Peeyushmeher/cleanswift-web-sub000/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// parseIDParam reads a UUID path parameter, answering 400 when it is malformed
func parseIDParam(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid " + label + " ID format",
		})
		return uuid.Nil, false
	}
	return id, true
}

// requireUser returns the authenticated caller or answers 401
func requireUser(c *gin.Context) (middleware.UserContext, bool) {
	user, ok := middleware.GetUserContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "User not authenticated",
		})
		return middleware.UserContext{}, false
	}
	return user, true
}

// detailerForUser is implemented by the detailer repository
type detailerForUser interface {
	GetDetailerByUserID(ctx context.Context, userID uuid.UUID) (*models.Detailer, error)
}
