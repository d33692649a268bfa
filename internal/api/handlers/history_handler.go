package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/linguacall/linguacall/internal/services"
	"github.com/linguacall/linguacall/internal/utils"
)

type HistoryHandler struct {
	captions services.CaptionHistoryService // nil when Redis is not configured
}

func NewHistoryHandler(captions services.CaptionHistoryService) *HistoryHandler {
	return &HistoryHandler{captions: captions}
}

// Captions returns the most recent final captions of a call so a late
// joiner can backfill its transcript view.
func (h *HistoryHandler) Captions(c *gin.Context) {
	if _, ok := requireUserID(c); !ok {
		return
	}

	if h.captions == nil {
		writeError(c, utils.E(utils.CodeUnavailable, "HistoryHandler.Captions", "caption history is not enabled", nil))
		return
	}

	callID := c.Param("call_id")
	if callID == "" {
		writeError(c, utils.E(utils.CodeInvalidArgument, "HistoryHandler.Captions", "call_id is required", nil))
		return
	}

	limit := 0
	if v := c.Query("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	recs, err := h.captions.Recent(c.Request.Context(), callID, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"call_id":  callID,
		"captions": recs,
	})
}
