package consultation

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-desk/internal/handler"
	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/service/consultation"
)

type Handler struct {
	service consultation.ConsultationService
}

func NewHandler(service consultation.ConsultationService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	cs := r.Group("/consultations")
	{
		cs.POST("", h.Start)
		cs.GET("/:id", h.Get)
		cs.PUT("/:id/notes", h.UpdateNotes)
		cs.POST("/:id/items", h.AddItem)
		cs.POST("/:id/complete", h.Complete)
		cs.PATCH("/items/:itemId", h.UpdateItem)
		cs.DELETE("/items/:itemId", h.RemoveItem)
	}
}

func (h *Handler) Start(c *gin.Context) {
	var req model.StartConsultationRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	session, err := h.service.Start(c.Request.Context(), &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(session))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	detail, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(detail))
}

func (h *Handler) UpdateNotes(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.NotesRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	session, err := h.service.UpdateNotes(c.Request.Context(), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(session))
}

func (h *Handler) AddItem(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.ItemInput
	if !handler.BindJSON(c, &req) {
		return
	}
	item, err := h.service.AddItem(c.Request.Context(), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(item))
}

func (h *Handler) UpdateItem(c *gin.Context) {
	id, ok := handler.ParamID(c, "itemId")
	if !ok {
		return
	}
	var req model.ItemPatch
	if !handler.BindJSON(c, &req) {
		return
	}
	item, err := h.service.UpdateItem(c.Request.Context(), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(item))
}

func (h *Handler) RemoveItem(c *gin.Context) {
	id, ok := handler.ParamID(c, "itemId")
	if !ok {
		return
	}
	if err := h.service.RemoveItem(c.Request.Context(), id); err != nil {
		handler.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Complete accepts final notes in the body; an empty body keeps the
// notes already saved.
func (h *Handler) Complete(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req *model.NotesRequest
	if c.Request.ContentLength > 0 {
		req = &model.NotesRequest{}
		if !handler.BindJSON(c, req) {
			return
		}
	}
	session, err := h.service.Complete(c.Request.Context(), id, req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(session))
}
