package queue

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-desk/internal/handler"
	"github.com/jwalitptl/clinic-desk/internal/model"
	"github.com/jwalitptl/clinic-desk/internal/service/queue"
	apperrors "github.com/jwalitptl/clinic-desk/pkg/errors"
)

const keepAliveInterval = 15 * time.Second

type Handler struct {
	service queue.QueueService
}

func NewHandler(service queue.QueueService) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	q := r.Group("/queue")
	{
		q.GET("", h.ListToday)
		q.GET("/stats", h.Stats)
		q.POST("/next", h.CallNext)
		q.GET("/view", h.GetView)
		q.PUT("/view", h.UpdateView)
		q.GET("/events", h.Events)
		q.GET("/:id", h.Get)
		q.POST("/:id/transitions", h.Transition)
		q.DELETE("/:id", h.Cancel)
	}
}

// ListToday returns today's entries. Without an explicit status the
// terminal's saved filter applies.
func (h *Handler) ListToday(c *gin.Context) {
	filter := model.QueueFilter{Status: model.QueueStatus(c.Query("status"))}
	if filter.Status == "" {
		filter.Status = h.service.GetView(handler.TerminalID(c)).StatusFilter
	}
	if raw := c.Query("doctor_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			handler.Fail(c, apperrors.BadRequest("invalid doctor_id", err))
			return
		}
		filter.DoctorID = &id
	}

	entries, err := h.service.ListToday(c.Request.Context(), filter)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if entries == nil {
		entries = []*model.QueueEntryView{}
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entries))
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(stats))
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	entry, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

// CallNext takes an optional body naming the calling doctor.
func (h *Handler) CallNext(c *gin.Context) {
	var req model.CallNextRequest
	if c.Request.ContentLength > 0 && !handler.BindJSON(c, &req) {
		return
	}

	entry, err := h.service.CallNext(c.Request.Context(), handler.TerminalID(c), req.DoctorID)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) Transition(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.TransitionRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	entry, err := h.service.Transition(c.Request.Context(), id, req.Action, req.ExpectedVersion)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := handler.ParamID(c, "id")
	if !ok {
		return
	}
	entry, err := h.service.Cancel(c.Request.Context(), id)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(entry))
}

func (h *Handler) GetView(c *gin.Context) {
	c.JSON(http.StatusOK, handler.NewSuccessResponse(h.service.GetView(handler.TerminalID(c))))
}

func (h *Handler) UpdateView(c *gin.Context) {
	var req model.UpdateViewRequest
	if !handler.BindJSON(c, &req) {
		return
	}
	view, err := h.service.UpdateView(handler.TerminalID(c), req)
	if err != nil {
		handler.Fail(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(view))
}

// Events streams broker events as server-sent events until the client
// goes away.
func (h *Handler) Events(c *gin.Context) {
	ctx := c.Request.Context()
	events, err := h.service.Subscribe(ctx)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
