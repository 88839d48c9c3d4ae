package availability

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/handler"
	"github.com/esante/rdv-service/internal/middleware"
	"github.com/esante/rdv-service/internal/model"
	"github.com/esante/rdv-service/internal/service/calendar"
)

type Handler struct {
	service *calendar.Service
}

func NewHandler(service *calendar.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	availability := r.Group("/availability", auth.Authenticate(), auth.RequireRole(model.ActorDoctor))
	{
		availability.PUT("", h.SetAvailability)
		availability.POST("/bulk", h.BulkSetAvailability)
		availability.GET("", h.GetOwnAvailability)
	}

	// Public projection for the booking page, free slots only.
	r.GET("/doctors/:id/availability", h.GetDoctorAvailability)
}

func (h *Handler) SetAvailability(c *gin.Context) {
	callerID, _ := handler.CallerID(c)

	var req model.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	day, err := h.service.SetAvailability(c.Request.Context(), callerID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(day))
}

// BulkSetAvailability publishes several days in one call. Per-date
// failures are reported in the result, not as a request failure.
func (h *Handler) BulkSetAvailability(c *gin.Context) {
	callerID, _ := handler.CallerID(c)

	var req model.BulkSetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result, err := h.service.BulkSetAvailability(c.Request.Context(), callerID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

// GetOwnAvailability returns the doctor's raw calendar, booked slots
// included.
func (h *Handler) GetOwnAvailability(c *gin.Context) {
	callerID, _ := handler.CallerID(c)

	days, err := h.service.GetDoctorAvailability(c.Request.Context(), callerID, c.Query("from"), c.Query("to"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(days))
}

// GetDoctorAvailability is the public, cached projection: per day, the
// free slot times only. Fully booked days are omitted.
func (h *Handler) GetDoctorAvailability(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}

	days, err := h.service.GetPublicAvailability(c.Request.Context(), doctorID, c.Query("from"), c.Query("to"))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(days))
}
