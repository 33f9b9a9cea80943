package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tdimeji/mmsgate/internal/logging"
	"github.com/tdimeji/mmsgate/internal/mms"
	"github.com/tdimeji/mmsgate/internal/mmserror"
	"github.com/tdimeji/mmsgate/pkg/codes"
)

// Handler serves the gateway's REST surface.
type Handler struct {
	svc      *mms.Service
	statuses *StatusStore
}

func NewHandler(svc *mms.Service, statuses *StatusStore) *Handler {
	return &Handler{svc: svc, statuses: statuses}
}

type sendRequestDTO struct {
	SubID         int            `json:"sub_id"`
	PayloadHandle string         `json:"payload_handle" binding:"required"`
	LocationURL   string         `json:"location_url"`
	Overrides     map[string]any `json:"config_overrides"`
}

type downloadRequestDTO struct {
	SubID         int            `json:"sub_id"`
	LocationURL   string         `json:"location_url" binding:"required"`
	PayloadHandle string         `json:"payload_handle" binding:"required"`
	Overrides     map[string]any `json:"config_overrides"`
}

type submitResponseDTO struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
}

// Send accepts an outbound MMS and returns 202 with the request id; the
// transfer itself completes asynchronously.
func (h *Handler) Send(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "SendMMS")
	var req sendRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	id, err := h.svc.SubmitSend(logCtx, req.SubID, req.PayloadHandle, req.LocationURL, req.Overrides, h.statuses.Sink(nil))
	if err != nil {
		h.submitError(c, err)
		return
	}
	h.statuses.Track(id, req.SubID, codes.KindSend)
	slog.InfoContext(logCtx, "Send accepted", slog.String("req_id", id), slog.Int("sub_id", req.SubID))
	c.JSON(http.StatusAccepted, submitResponseDTO{RequestID: id, Status: codes.ReqStatusPending})
}

// Download accepts an MMS retrieval and returns 202 with the request id.
func (h *Handler) Download(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "DownloadMMS")
	var req downloadRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	id, err := h.svc.SubmitDownload(logCtx, req.SubID, req.LocationURL, req.PayloadHandle, req.Overrides, h.statuses.Sink(nil))
	if err != nil {
		h.submitError(c, err)
		return
	}
	h.statuses.Track(id, req.SubID, codes.KindDownload)
	slog.InfoContext(logCtx, "Download accepted", slog.String("req_id", id), slog.Int("sub_id", req.SubID))
	c.JSON(http.StatusAccepted, submitResponseDTO{RequestID: id, Status: codes.ReqStatusPending})
}

// GetRequest reports the tracked status of a submitted request.
func (h *Handler) GetRequest(c *gin.Context) {
	id := c.Param("id")
	entry, ok := h.statuses.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown request id"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// GetConfig returns the cached protocol configuration for a subscription.
func (h *Handler) GetConfig(c *gin.Context) {
	logCtx := logging.ContextWithHandler(c.Request.Context(), "GetConfig")
	subID, err := strconv.Atoi(c.Param("subID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid subscription id"})
		return
	}

	cfg, err := h.svc.GetConfig(subID)
	if err != nil {
		if errors.Is(err, mmserror.ErrNoConfig) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No configuration for subscription"})
			return
		}
		slog.WarnContext(logCtx, "Config lookup failed", slog.Any("error", err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) submitError(c *gin.Context, err error) {
	var malformed *mmserror.MalformedRequestError
	if errors.As(err, &malformed) {
		c.JSON(http.StatusBadRequest, gin.H{"error": malformed.Reason})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
}
