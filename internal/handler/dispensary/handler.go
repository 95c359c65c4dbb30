package dispensary

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-desk/internal/handler"
	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/service/dispensary"
)

type Handler struct {
	service dispensary.DispensaryService
}

func NewHandler(service dispensary.DispensaryService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	d := r.Group("/dispensary")
	{
		d.GET("/:sessionId/invoice", h.GetInvoice)
		d.GET("/:sessionId/invoice/print", h.PrintInvoice)
		d.POST("/:sessionId/payments", h.RecordPayment)
		d.POST("/:sessionId/complete", h.Complete)
		d.POST("/:sessionId/items", h.AddItem)
		d.PATCH("/items/:itemId", h.UpdateItem)
		d.DELETE("/items/:itemId", h.RemoveItem)
		d.GET("/items/:itemId/label", h.PrintLabel)
	}
}

func (h *Handler) GetInvoice(c *gin.Context) {
	id, ok := handler.ParamID(c, "sessionId")
	if !ok {
		return
	}
	inv, err := h.service.GetInvoice(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(inv))
}

func (h *Handler) RecordPayment(c *gin.Context) {
	id, ok := handler.ParamID(c, "sessionId")
	if !ok {
		return
	}
	var req model.PaymentRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	inv, err := h.service.RecordPayment(c.Request.Context(), id, &req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(inv))
}

func (h *Handler) Complete(c *gin.Context) {
	id, ok := handler.ParamID(c, "sessionId")
	if !ok {
		return
	}
	inv, err := h.service.Complete(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(inv))
}

func (h *Handler) AddItem(c *gin.Context) {
	id, ok := handler.ParamID(c, "sessionId")
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

// PrintInvoice renders into a buffer first so a failure can still be
// answered with a JSON error.
func (h *Handler) PrintInvoice(c *gin.Context) {
	id, ok := handler.ParamID(c, "sessionId")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.service.RenderInvoice(c.Request.Context(), id, &buf); err != nil {
		handler.Fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (h *Handler) PrintLabel(c *gin.Context) {
	id, ok := handler.ParamID(c, "itemId")
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := h.service.RenderLabel(c.Request.Context(), id, &buf); err != nil {
		handler.Fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}
