package notification

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/regulacao-api/internal/handler"
	"github.com/jwalitptl/regulacao-api/internal/model"
	notificationsvc "github.com/jwalitptl/regulacao-api/internal/service/notification"
	"github.com/jwalitptl/regulacao-api/pkg/httputil"
)

type Handler struct {
	*handler.BaseHandler
	service *notificationsvc.Service
}

func NewHandler(base *handler.BaseHandler, service *notificationsvc.Service) *Handler {
	return &Handler{BaseHandler: base, service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)
		notifications.POST("", h.CreateNotification)
		notifications.PUT("/:id", h.UpdateNotification)
		notifications.DELETE("/:id", h.DeactivateNotification)
	}
}

// ListNotifications returns the caller's banners; admins may pass ?all=true
// to include inactive ones.
func (h *Handler) ListNotifications(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}

	var (
		list []*model.Notification
		err  error
	)
	if all, _ := strconv.ParseBool(c.Query("all")); all {
		list, err = h.service.ListAll(c.Request.Context(), actor)
	} else {
		list, err = h.service.ListForRole(c.Request.Context(), actor)
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if list == nil {
		list = []*model.Notification{}
	}
	httputil.RespondWithSuccess(c, list)
}

func (h *Handler) CreateNotification(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req model.NotificationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	n, err := h.service.Create(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondCreated(c, n)
}

func (h *Handler) UpdateNotification(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.NotificationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	n, err := h.service.Update(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, n)
}

func (h *Handler) DeactivateNotification(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Deactivate(c.Request.Context(), actor, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
