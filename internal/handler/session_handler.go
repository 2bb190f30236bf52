package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shinoburc/driving-report-go/internal/models"
	"github.com/shinoburc/driving-report-go/internal/positioning"
	"github.com/shinoburc/driving-report-go/internal/session"
	"github.com/shinoburc/driving-report-go/pkg/response"
)

// SessionHandler exposes the recording command surface over HTTP.
type SessionHandler struct {
	engine *session.Engine
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(engine *session.Engine) *SessionHandler {
	return &SessionHandler{engine: engine}
}

// startRequest optionally carries a manual start location used when
// positioning is unavailable.
type startRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// addWaypointRequest names the kind and optional label/note of an
// explicit waypoint.
type addWaypointRequest struct {
	Kind  string  `json:"kind" binding:"required"`
	Label *string `json:"label"`
	Note  *string `json:"note"`
}

// Start handles POST /api/v1/session/start
func (h *SessionHandler) Start(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
	}

	var manual *models.Coordinate
	if req.Latitude != nil && req.Longitude != nil {
		manual = &models.Coordinate{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	snap, err := h.engine.Start(c.Request.Context(), manual)
	if err != nil {
		engineError(c, err)
		return
	}
	response.Success(c, snap)
}

// Pause handles POST /api/v1/session/pause
func (h *SessionHandler) Pause(c *gin.Context) {
	snap, err := h.engine.Pause()
	if err != nil {
		engineError(c, err)
		return
	}
	response.Success(c, snap)
}

// Resume handles POST /api/v1/session/resume
func (h *SessionHandler) Resume(c *gin.Context) {
	snap, err := h.engine.Resume()
	if err != nil {
		engineError(c, err)
		return
	}
	response.Success(c, snap)
}

// Complete handles POST /api/v1/session/complete. The finalized trip
// record in the response is the hand-off artifact for export.
func (h *SessionHandler) Complete(c *gin.Context) {
	trip, err := h.engine.Complete(c.Request.Context())
	if err != nil {
		engineError(c, err)
		return
	}
	response.Success(c, trip)
}

// Cancel handles POST /api/v1/session/cancel
func (h *SessionHandler) Cancel(c *gin.Context) {
	snap, err := h.engine.Cancel()
	if err != nil {
		engineError(c, err)
		return
	}
	response.Success(c, snap)
}

// AddWaypoint handles POST /api/v1/session/waypoints
func (h *SessionHandler) AddWaypoint(c *gin.Context) {
	var req addWaypointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	snap, err := h.engine.AddWaypoint(models.WaypointKind(req.Kind), req.Label, req.Note)
	if err != nil {
		engineError(c, err)
		return
	}
	response.Success(c, snap)
}

// DismissError handles DELETE /api/v1/session/errors/:index
func (h *SessionHandler) DismissError(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.BadRequest(c, "Invalid error index")
		return
	}
	if err := h.engine.DismissError(index); err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.Success(c, h.engine.Snapshot())
}

// State handles GET /api/v1/session
func (h *SessionHandler) State(c *gin.Context) {
	response.Success(c, h.engine.Snapshot())
}

// Recoverable handles GET /api/v1/session/recoverable
func (h *SessionHandler) Recoverable(c *gin.Context) {
	trip := h.engine.Recoverable()
	if trip == nil {
		response.NotFound(c, "No interrupted trip")
		return
	}
	response.Success(c, trip)
}

// recoverRequest chooses what to do with an interrupted trip.
type recoverRequest struct {
	Resume   bool `json:"resume"`
	Complete bool `json:"complete"` // close out as completed instead of discarding
}

// Recover handles POST /api/v1/session/recover
func (h *SessionHandler) Recover(c *gin.Context) {
	var req recoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}

	if req.Resume {
		snap, err := h.engine.Recover()
		if err != nil {
			engineError(c, err)
			return
		}
		response.Success(c, snap)
		return
	}

	if err := h.engine.DiscardRecoverable(req.Complete); err != nil {
		engineError(c, err)
		return
	}
	response.Success(c, h.engine.Snapshot())
}

// engineError maps session errors onto HTTP statuses: rejected
// transitions conflict with the current state, positioning failures are
// retryable service unavailability, storage failures are a bad gateway
// to durable storage.
func engineError(c *gin.Context, err error) {
	switch {
	case session.IsInvariantViolation(err):
		response.EngineError(c, http.StatusConflict, err.Error(),
			string(session.CodeInvariantViolation), false)
	case errors.Is(err, positioning.ErrTimeout):
		response.EngineError(c, http.StatusServiceUnavailable, err.Error(),
			string(session.CodePositioningTimeout), true)
	case errors.Is(err, positioning.ErrUnavailable):
		response.EngineError(c, http.StatusServiceUnavailable, err.Error(),
			string(session.CodePositioningUnavailable), true)
	case session.IsStorageError(err):
		response.EngineError(c, http.StatusBadGateway, err.Error(),
			string(session.CodeStorageUnavailable), true)
	default:
		response.InternalError(c, err.Error())
	}
}
