package review

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/handler"
	"github.com/esante/rdv-service/internal/middleware"
	"github.com/esante/rdv-service/internal/model"
	"github.com/esante/rdv-service/internal/service/review"
)

type Handler struct {
	service *review.Service
}

func NewHandler(service *review.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	reviews := r.Group("/reviews", auth.Authenticate())
	{
		reviews.POST("/appointments/:id", auth.RequireRole(model.ActorPatient), h.SubmitReview)
		reviews.GET("/appointments/:id", h.GetAppointmentReview)
		reviews.PUT("/:id", auth.RequireRole(model.ActorPatient), h.UpdateReview)
		reviews.DELETE("/:id", auth.RequireRole(model.ActorPatient), h.DeleteReview)
	}

	// Public listing for the doctor profile page.
	r.GET("/doctors/:id/reviews", h.GetDoctorReviews)
}

func (h *Handler) SubmitReview(c *gin.Context) {
	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	callerID, _ := handler.CallerID(c)

	var req model.SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	rev, stats, err := h.service.SubmitReview(c.Request.Context(), appointmentID, callerID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(gin.H{
		"review":       rev,
		"doctor_stats": stats,
	}))
}

func (h *Handler) GetAppointmentReview(c *gin.Context) {
	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	callerID, _ := handler.CallerID(c)

	result, err := h.service.GetAppointmentReview(c.Request.Context(), appointmentID, callerID, handler.CallerRole(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) GetDoctorReviews(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}

	page := atoiDefault(c.Query("page"), 1)
	limit := atoiDefault(c.Query("limit"), 10)

	reviews, pagination, stats, err := h.service.GetDoctorReviews(c.Request.Context(), doctorID, page, limit)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"reviews":    reviews,
		"pagination": pagination,
		"stats":      stats,
	}))
}

func (h *Handler) UpdateReview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid review ID"))
		return
	}
	callerID, _ := handler.CallerID(c)

	var req model.UpdateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	rev, stats, err := h.service.UpdateReview(c.Request.Context(), id, callerID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"review":       rev,
		"doctor_stats": stats,
	}))
}

func (h *Handler) DeleteReview(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid review ID"))
		return
	}
	callerID, _ := handler.CallerID(c)

	stats, err := h.service.DeleteReview(c.Request.Context(), id, callerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"doctor_stats": stats}))
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
