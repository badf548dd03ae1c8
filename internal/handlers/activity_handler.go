package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/school-admin/backend/internal/models"
	"github.com/school-admin/backend/internal/services"
)

type ActivityHandler struct {
	activity *services.ActivityService
}

func NewActivityHandler(activity *services.ActivityService) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

func (h *ActivityHandler) GetRecentActivity(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		limit = 50
	}

	entries, err := h.activity.RecentActivity(c.Request.Context(), c.Query("actorUid"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *ActivityHandler) GetEntityHistory(c *gin.Context) {
	entries, err := h.activity.EntityHistory(c.Request.Context(), c.Param("entityType"), c.Param("entityId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

type RevertRequest struct {
	Snapshot models.JSONB `json:"snapshot" binding:"required"`
}

func (h *ActivityHandler) Revert(c *gin.Context) {
	var req RevertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.activity.RevertToSnapshot(c.Request.Context(), c.Param("entityType"), c.Param("entityId"),
		req.Snapshot, c.GetString("user_id"), c.GetString("user_name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Reverted"})
}
