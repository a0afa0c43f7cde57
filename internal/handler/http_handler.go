package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/huijing/sgtechonline/internal/domain"
	"github.com/huijing/sgtechonline/internal/service"
	"github.com/huijing/sgtechonline/pkg/log"
	"github.com/huijing/sgtechonline/pkg/response"
)

// Handler handles HTTP requests for the broadcast API.
type Handler struct {
	coordinator service.BroadcastCoordinator
}

// NewHandler creates a new HTTP handler.
func NewHandler(coordinator service.BroadcastCoordinator) *Handler {
	return &Handler{coordinator: coordinator}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	broadcast := r.Group("/broadcast")
	{
		broadcast.POST("/start", h.StartBroadcast)
		broadcast.POST("/layout", h.UpdateLayout)
		broadcast.POST("/end", h.EndBroadcast)
		broadcast.GET("/status", h.GetStatus)
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// StartBroadcast starts the broadcast for a binding session, or returns the
// live one when it already runs for that session.
func (h *Handler) StartBroadcast(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.StartBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind start broadcast request")
		response.BadRequest(c, err.Error())
		return
	}
	c.Set(log.FieldSessionID, req.SessionID)

	if err := req.RTMP.Validate(); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeValidation, err.Error())
		return
	}

	session, err := h.coordinator.Start(ctx, req.SessionID, req.Streams, req.RTMP)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Set(log.FieldBroadcastID, session.ID)
	response.Success(c, session)
}

// UpdateLayout pushes the layout for a new stream count.
func (h *Handler) UpdateLayout(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.UpdateLayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind update layout request")
		response.BadRequest(c, err.Error())
		return
	}

	update, err := h.coordinator.UpdateLayout(ctx, req.Streams)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Set(log.FieldBroadcastID, update.ID)
	response.Success(c, update)
}

// EndBroadcast stops the active broadcast.
func (h *Handler) EndBroadcast(c *gin.Context) {
	ctx := c.Request.Context()

	current := h.coordinator.Current()
	c.Set(log.FieldSessionID, current.BindingSessionID)

	resp, err := h.coordinator.End(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Set(log.FieldBroadcastID, resp.ID)
	response.Success(c, resp)
}

// GetStatus returns a copy of the broadcast slot, including the HLS url
// and availableAt once live.
func (h *Handler) GetStatus(c *gin.Context) {
	response.Success(c, h.coordinator.Current())
}

func (h *Handler) writeError(c *gin.Context, err error) {
	l := log.Ctx(c.Request.Context())

	var verr *domain.ValidationError
	var berr *domain.BackendRequestError

	switch {
	case errors.As(err, &verr):
		response.Error(c, http.StatusBadRequest, response.CodeValidation, err.Error())
	case errors.Is(err, domain.ErrBroadcastInProgress):
		response.Conflict(c, response.CodeBroadcastInProgress, err.Error())
	case errors.Is(err, domain.ErrNoActiveBroadcast):
		response.InternalError(c, response.CodeNoActiveBroadcast, err.Error())
	case errors.As(err, &berr):
		l.Error().Err(err).Msg("broadcast backend request failed")
		response.InternalError(c, response.CodeBackend, err.Error())
	default:
		l.Error().Err(err).Msg("broadcast request failed")
		response.InternalError(c, response.CodeInternal, err.Error())
	}
}
