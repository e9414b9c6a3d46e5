package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-systems/enroll-api/internal/service"
	"github.com/campus-systems/enroll-api/pkg/response"
)

// StatsHandler serves the teacher dashboard aggregate.
type StatsHandler struct {
	service *service.StatsService
}

// NewStatsHandler constructs a stats handler.
func NewStatsHandler(svc *service.StatsService) *StatsHandler {
	return &StatsHandler{service: svc}
}

// Statistics godoc
// @Summary Platform statistics
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats [get]
func (h *StatsHandler) Statistics(c *gin.Context) {
	stats, err := h.service.Statistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}
