package patient

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-desk/internal/handler"
	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/service/registration"
)

type Handler struct {
	service registration.RegistrationService
}

func NewHandler(service registration.RegistrationService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/registrations", h.Register)

	patients := r.Group("/patients")
	{
		patients.GET("", h.SearchPatients)
		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)
		patients.PUT("/:id/tier", h.AssignTier)
		patients.POST("/:id/queue", h.AddToQueue)
	}
}

// Register handles the walk-in form. A returning patient is reused and
// answered with 200 rather than 201.
func (h *Handler) Register(c *gin.Context) {
	var req model.RegistrationRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Register(c.Request.Context(), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	status := http.StatusOK
	if result.NewPatient {
		status = http.StatusCreated
	}
	c.JSON(status, handler.NewSuccessResponse(result))
}

func (h *Handler) SearchPatients(c *gin.Context) {
	filters := &model.PatientFilters{
		SearchTerm: c.Query("q"),
		Phone:      c.Query("phone"),
	}
	filters.Page, _ = strconv.Atoi(c.Query("page"))
	filters.PageSize, _ = strconv.Atoi(c.Query("page_size"))

	patients, err := h.service.SearchPatients(c.Request.Context(), filters)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if patients == nil {
		patients = []*model.Patient{}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(patients))
}

func (h *Handler) GetPatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}

	patient, err := h.service.GetPatient(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(patient))
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdatePatientRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	patient, err := h.service.UpdatePatient(c.Request.Context(), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(patient))
}

// AssignTier sets or, with a null tier_id, clears the patient's tier.
func (h *Handler) AssignTier(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.AssignTierRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	patient, err := h.service.AssignTier(c.Request.Context(), id, req.TierID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(patient))
}

func (h *Handler) AddToQueue(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.VisitRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	entry, err := h.service.AddToQueue(c.Request.Context(), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(entry))
}
