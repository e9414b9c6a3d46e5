package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-systems/enroll-api/internal/service"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
	"github.com/campus-systems/enroll-api/pkg/response"
)

// EnrollmentHandler handles the enrollment lifecycle endpoints.
type EnrollmentHandler struct {
	service *service.EnrollmentService
}

// NewEnrollmentHandler constructs an enrollment handler.
func NewEnrollmentHandler(svc *service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc}
}

// Enroll godoc
// @Summary Enroll in a subject
// @Description Attempt to take a seat in a subject. Conflicting concurrent attempts return a retryable 409.
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	enrollment, err := h.service.Enroll(c.Request.Context(), claims.UserID, req)
	if err != nil {
		writeEnrollmentError(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Withdraw godoc
// @Summary Withdraw from a subject
// @Description Drop an active enrollment and release the seat. The subject cannot be retaken afterwards.
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	enrollment, err := h.service.Withdraw(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		writeEnrollmentError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// ListMine godoc
// @Summary List my enrollments
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/me [get]
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	enrollments, err := h.service.ListMine(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}

// History godoc
// @Summary My completed courses
// @Tags Enrollments
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /enrollments/history [get]
func (h *EnrollmentHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	records, err := h.service.History(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// writeEnrollmentError adds a Retry-After hint on retryable conflicts so
// clients know the rejection is transient.
func writeEnrollmentError(c *gin.Context, err error) {
	if appErrors.IsRetryable(err) {
		c.Header("Retry-After", "1")
	}
	response.Error(c, err)
}
