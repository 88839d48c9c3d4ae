package appointment

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/esante/rdv-service/internal/handler"
	"github.com/esante/rdv-service/internal/middleware"
	"github.com/esante/rdv-service/internal/model"
	"github.com/esante/rdv-service/internal/service/appointment"
	"github.com/esante/rdv-service/internal/service/calendar"
)

type Handler struct {
	service *appointment.Service
}

func NewHandler(service *appointment.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	appointments := r.Group("/appointments", auth.Authenticate())
	{
		appointments.POST("", auth.RequireRole(model.ActorPatient), h.RequestAppointment)
		appointments.GET("", h.ListAppointments)
		appointments.GET("/statistics", auth.RequireRole(model.ActorDoctor), h.GetStatistics)
		appointments.GET("/relationship", h.CheckRelationship)
		appointments.POST("/referral", auth.RequireRole(model.ActorDoctor), h.BookReferral)
		appointments.GET("/:id", h.GetAppointment)
		appointments.PATCH("/:id/confirm", auth.RequireRole(model.ActorDoctor), h.ConfirmAppointment)
		appointments.PATCH("/:id/reject", auth.RequireRole(model.ActorDoctor), h.RejectAppointment)
		appointments.PATCH("/:id/cancel", auth.RequireRole(model.ActorPatient, model.ActorAdmin), h.CancelAppointment)
		appointments.PATCH("/:id/complete", auth.RequireRole(model.ActorDoctor), h.CompleteAppointment)
		appointments.PATCH("/:id/no-show", auth.RequireRole(model.ActorAdmin), h.MarkNoShow)
		appointments.PATCH("/:id/reschedule", h.RescheduleAppointment)
		appointments.PATCH("/:id/reschedule/approve", auth.RequireRole(model.ActorDoctor), h.ApproveReschedule)
		appointments.PATCH("/:id/reschedule/reject", auth.RequireRole(model.ActorDoctor), h.RejectReschedule)
	}
}

func (h *Handler) RequestAppointment(c *gin.Context) {
	callerID, _ := handler.CallerID(c)

	var req model.RequestAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	apt, err := h.service.RequestAppointment(c.Request.Context(), callerID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(apt))
}

func (h *Handler) GetAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	callerID, _ := handler.CallerID(c)

	apt, err := h.service.GetAppointment(c.Request.Context(), id, callerID, handler.CallerRole(c))
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

// ListAppointments scopes results to the caller: patients see their own
// bookings, doctors their own calendar, admins everything (optionally
// narrowed by query params).
func (h *Handler) ListAppointments(c *gin.Context) {
	callerID, _ := handler.CallerID(c)

	filters := &model.AppointmentFilters{
		TimeFilter: c.Query("time"),
	}

	switch handler.CallerRole(c) {
	case model.ActorPatient:
		filters.PatientID = &callerID
	case model.ActorDoctor:
		filters.DoctorID = &callerID
	case model.ActorAdmin:
		if id := c.Query("patient_id"); id != "" {
			patientID, err := uuid.Parse(id)
			if err != nil {
				c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
				return
			}
			filters.PatientID = &patientID
		}
		if id := c.Query("doctor_id"); id != "" {
			doctorID, err := uuid.Parse(id)
			if err != nil {
				c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
				return
			}
			filters.DoctorID = &doctorID
		}
	}

	if status := c.Query("status"); status != "" {
		s := model.AppointmentStatus(status)
		filters.Status = &s
	}
	if date := c.Query("date"); date != "" {
		d, err := calendar.ParseDate(date)
		if err != nil {
			c.Error(err)
			return
		}
		filters.Date = &d
	}
	if page := c.Query("page"); page != "" {
		filters.Page = atoiDefault(page, 1)
	}
	if limit := c.Query("limit"); limit != "" {
		filters.Limit = atoiDefault(limit, 20)
	}

	apts, pagination, err := h.service.ListAppointments(c.Request.Context(), filters)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewPaginatedResponse(apts, pagination))
}

func (h *Handler) ConfirmAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	callerID, _ := handler.CallerID(c)

	var req model.ConfirmAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	apt, err := h.service.ConfirmAppointment(c.Request.Context(), id, callerID, req.Notes)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) RejectAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	callerID, _ := handler.CallerID(c)

	var req model.RejectAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	apt, err := h.service.RejectAppointment(c.Request.Context(), id, callerID, req.RejectionReason)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) CancelAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	callerID, _ := handler.CallerID(c)

	var req model.CancelAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	apt, err := h.service.CancelAppointment(c.Request.Context(), id, callerID, handler.CallerRole(c), req.CancellationReason)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) CompleteAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	callerID, _ := handler.CallerID(c)

	apt, err := h.service.CompleteAppointment(c.Request.Context(), id, callerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) MarkNoShow(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}

	apt, err := h.service.MarkNoShow(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

// RescheduleAppointment dispatches on the caller's role: doctors and
// admins reschedule directly, patients file a request for the doctor to
// approve.
func (h *Handler) RescheduleAppointment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	callerID, _ := handler.CallerID(c)
	role := handler.CallerRole(c)

	var req model.RescheduleAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	var apt *model.Appointment
	if role == model.ActorPatient {
		apt, err = h.service.RequestReschedule(c.Request.Context(), id, callerID, &req)
	} else {
		apt, err = h.service.RescheduleAppointment(c.Request.Context(), id, callerID, role, &req)
	}
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) ApproveReschedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	callerID, _ := handler.CallerID(c)

	apt, err := h.service.ApproveReschedule(c.Request.Context(), id, callerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) RejectReschedule(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid appointment ID"))
		return
	}
	callerID, _ := handler.CallerID(c)

	apt, err := h.service.RejectReschedule(c.Request.Context(), id, callerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(apt))
}

func (h *Handler) BookReferral(c *gin.Context) {
	callerID, _ := handler.CallerID(c)

	var req model.ReferralBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	apt, err := h.service.BookReferral(c.Request.Context(), callerID, &req)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, handler.NewSuccessResponse(apt))
}

func (h *Handler) GetStatistics(c *gin.Context) {
	callerID, _ := handler.CallerID(c)

	stats, err := h.service.GetStatistics(c.Request.Context(), callerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

// CheckRelationship is consumed by the messaging service to decide
// whether two users may exchange direct messages.
func (h *Handler) CheckRelationship(c *gin.Context) {
	patientID, err := uuid.Parse(c.Query("patient_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid patient ID"))
		return
	}
	doctorID, err := uuid.Parse(c.Query("doctor_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}

	has, err := h.service.CheckRelationship(c.Request.Context(), patientID, doctorID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"has_relationship": has}))
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
