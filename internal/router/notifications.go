package router

import (
	"net/http"

	"github.com/ryanfigueredo/mercadito-sub000/internal/middleware"
	"github.com/ryanfigueredo/mercadito-sub000/internal/validation"

	"github.com/gin-gonic/gin"
)

func (h *handler) listNotifications(c *gin.Context) {
	unread := c.Query("unread") == "true"
	list, err := h.Notifications.ListByUser(c.Request.Context(), middleware.UserID(c), unread)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (h *handler) markNotification(c *gin.Context) {
	id, valid := parseUintParam(c, "id")
	if !valid {
		return
	}
	var req validation.MarkReadRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	n, err := h.Notifications.SetRead(c.Request.Context(), middleware.UserID(c), id, *req.Read)
	if err != nil {
		writeError(c, err)
		return
	}
	ok(c, http.StatusOK, n)
}

func (h *handler) deleteNotification(c *gin.Context) {
	id, valid := parseUintParam(c, "id")
	if !valid {
		return
	}
	if err := h.Notifications.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
