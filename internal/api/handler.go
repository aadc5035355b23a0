// Package api exposes the session management surface and the client
// WebSocket over gin.
package api

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/contoso-voice/backend/internal/voicelive"
	"github.com/contoso-voice/backend/pkg/response"
)

// Handler handles the REST session management endpoints.
type Handler struct {
	registry *voicelive.Registry
	logger   *zap.Logger
}

// NewHandler creates the session API handler.
func NewHandler(registry *voicelive.Registry, logger *zap.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

// AvatarOfferRequest carries the browser's SDP offer.
type AvatarOfferRequest struct {
	SDP string `json:"sdp" binding:"required"`
}

// TextMessageRequest carries one user text turn.
type TextMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	response.OK(c, gin.H{"status": "healthy", "service": "voice-live-avatar-backend"})
}

// CreateSession handles POST /sessions: creates a session and connects it
// upstream.
func (h *Handler) CreateSession(c *gin.Context) {
	session, err := h.registry.Create(c.Request.Context())
	if err != nil {
		h.logger.Error("create session", zap.Error(err))
		response.ServiceUnavailable(c, "failed to connect to voice live service")
		return
	}
	response.OK(c, gin.H{"session_id": session.ID})
}

// ListSessions handles GET /sessions.
func (h *Handler) ListSessions(c *gin.Context) {
	response.OK(c, gin.H{"session_ids": h.registry.List()})
}

// RemoveSession handles DELETE /sessions/:id. Removal is idempotent.
func (h *Handler) RemoveSession(c *gin.Context) {
	h.registry.Remove(c.Param("id"))
	response.NoContent(c)
}

// AvatarOffer handles POST /sessions/:id/avatar-offer: runs the avatar SDP
// negotiation and returns the answer.
func (h *Handler) AvatarOffer(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var req AvatarOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "sdp required")
		return
	}
	answer, err := session.ConnectAvatar(c.Request.Context(), req.SDP)
	switch {
	case err == nil:
		response.OK(c, gin.H{"sdp": answer})
	case errors.Is(err, voicelive.ErrNegotiationPending):
		response.Conflict(c, "avatar negotiation already in progress")
	case errors.Is(err, voicelive.ErrNegotiationTimeout),
		errors.Is(err, voicelive.ErrNegotiationDecode),
		errors.Is(err, voicelive.ErrConnectionUnavailable):
		h.logger.Warn("avatar negotiation failed", zap.String("session_id", session.ID), zap.Error(err))
		response.ServiceUnavailable(c, err.Error())
	default:
		h.logger.Error("avatar negotiation", zap.String("session_id", session.ID), zap.Error(err))
		response.Internal(c, "avatar negotiation failed")
	}
}

// SendText handles POST /sessions/:id/text.
func (h *Handler) SendText(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	var req TextMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "text required")
		return
	}
	if err := session.SendUserMessage(c.Request.Context(), req.Text); err != nil {
		h.logger.Error("send text", zap.String("session_id", session.ID), zap.Error(err))
		response.ServiceUnavailable(c, "failed to send message upstream")
		return
	}
	response.OK(c, gin.H{"status": "queued"})
}

// CommitAudio handles POST /sessions/:id/commit-audio.
func (h *Handler) CommitAudio(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.CommitAudio(c.Request.Context()); err != nil {
		h.logger.Error("commit audio", zap.String("session_id", session.ID), zap.Error(err))
		response.ServiceUnavailable(c, "failed to commit audio")
		return
	}
	response.OK(c, gin.H{"status": "committed"})
}

// ClearAudio handles POST /sessions/:id/clear-audio.
func (h *Handler) ClearAudio(c *gin.Context) {
	session, ok := h.session(c)
	if !ok {
		return
	}
	if err := session.ClearAudio(c.Request.Context()); err != nil {
		h.logger.Error("clear audio", zap.String("session_id", session.ID), zap.Error(err))
		response.ServiceUnavailable(c, "failed to clear audio")
		return
	}
	response.OK(c, gin.H{"status": "cleared"})
}

func (h *Handler) session(c *gin.Context) (*voicelive.Session, bool) {
	session, err := h.registry.Get(c.Param("id"))
	if err != nil {
		response.NotFound(c, "session not found")
		return nil, false
	}
	return session, true
}
