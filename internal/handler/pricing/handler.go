package pricing

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/handler"
	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/service/pricing"
	apperrors "github.com/jwalitptl/clinic-desk/pkg/errors"
)

type Handler struct {
	service pricing.PricingService
}

func NewHandler(service pricing.PricingService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	p := r.Group("/pricing")
	{
		p.GET("/tiers", h.ListTiers)
		p.GET("/resolve", h.Resolve)
		p.PUT("/:type/:itemId/tiers/:tierId", h.SetOverride)
		p.DELETE("/:type/:itemId/tiers/:tierId", h.RemoveOverride)
	}
}

func (h *Handler) ListTiers(c *gin.Context) {
	tiers, err := h.service.ListTiers(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if tiers == nil {
		tiers = []*model.PriceTier{}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(tiers))
}

// Resolve answers ?item_type=&item_id=&tier_id= with the price a patient
// on that tier would pay. tier_id is optional.
func (h *Handler) Resolve(c *gin.Context) {
	itemID, err := uuid.Parse(c.Query("item_id"))
	if err != nil {
		handler.Fail(c, apperrors.BadRequest("invalid item_id", err))
		return
	}
	var tierID *uuid.UUID
	if raw := c.Query("tier_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.Fail(c, apperrors.BadRequest("invalid tier_id", err))
			return
		}
		tierID = &id
	}

	res, err := h.service.ResolvePrice(c.Request.Context(), model.ItemType(c.Query("item_type")), itemID, tierID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(res))
}

func (h *Handler) SetOverride(c *gin.Context) {
	itemType, itemID, tierID, ok := overrideKey(c)
	if !ok {
		return
	}
	var req model.SetOverrideRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if err := h.service.SetOverride(c.Request.Context(), itemType, itemID, tierID, req.Price); err != nil {
		handler.Fail(c, err)
		return
	}
	res, err := h.service.ResolvePrice(c.Request.Context(), itemType, itemID, &tierID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(res))
}

func (h *Handler) RemoveOverride(c *gin.Context) {
	itemType, itemID, tierID, ok := overrideKey(c)
	if !ok {
		return
	}
	if err := h.service.RemoveOverride(c.Request.Context(), itemType, itemID, tierID); err != nil {
		handler.Fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func overrideKey(c *gin.Context) (model.ItemType, uuid.UUID, uuid.UUID, bool) {
	itemType := model.ItemType(c.Param("type"))
	if !itemType.Valid() {
		handler.Fail(c, apperrors.BadRequest("item type must be medication or service", nil))
		return "", uuid.Nil, uuid.Nil, false
	}
	itemID, ok := handler.ParamID(c, "itemId")
	if !ok {
		return "", uuid.Nil, uuid.Nil, false
	}
	tierID, ok := handler.ParamID(c, "tierId")
	if !ok {
		return "", uuid.Nil, uuid.Nil, false
	}
	return itemType, itemID, tierID, true
}
