package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campus-systems/enroll-api/internal/models"
	"github.com/campus-systems/enroll-api/internal/service"
	appErrors "github.com/campus-systems/enroll-api/pkg/errors"
	"github.com/campus-systems/enroll-api/pkg/response"
)

// SemesterHandler handles semester endpoints.
type SemesterHandler struct {
	service *service.SemesterService
}

// NewSemesterHandler constructs a semester handler.
func NewSemesterHandler(svc *service.SemesterService) *SemesterHandler {
	return &SemesterHandler{service: svc}
}

// List godoc
// @Summary List semesters
// @Tags Semesters
// @Produce json
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /semesters [get]
func (h *SemesterHandler) List(c *gin.Context) {
	var filter models.SemesterFilter
	if raw := c.Query("active"); raw != "" {
		if active, err := strconv.ParseBool(raw); err == nil {
			filter.IsActive = &active
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = limit
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	semesters, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semesters, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get semester by id
// @Tags Semesters
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id} [get]
func (h *SemesterHandler) Get(c *gin.Context) {
	semester, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}

// Create godoc
// @Summary Create semester
// @Tags Semesters
// @Accept json
// @Produce json
// @Param payload body service.CreateSemesterRequest true "Semester payload"
// @Success 201 {object} response.Envelope
// @Router /semesters [post]
func (h *SemesterHandler) Create(c *gin.Context) {
	var req service.CreateSemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	semester, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, semester)
}

// Update godoc
// @Summary Update semester
// @Tags Semesters
// @Accept json
// @Produce json
// @Param id path string true "Semester ID"
// @Param payload body service.UpdateSemesterRequest true "Semester payload"
// @Success 200 {object} response.Envelope
// @Router /semesters/{id} [put]
func (h *SemesterHandler) Update(c *gin.Context) {
	var req service.UpdateSemesterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	semester, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, semester, nil)
}
