package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/regulacao-api/internal/handler"
	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/service/auth"
	"github.com/jwalitptl/regulacao-api/pkg/httputil"
)

type Handler struct {
	*handler.BaseHandler
	svc *auth.Service
}

func NewHandler(base *handler.BaseHandler, svc *auth.Service) *Handler {
	return &Handler{BaseHandler: base, svc: svc}
}

// RegisterPublicRoutes mounts the routes reachable without a token.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/auth/login", h.Login)
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/auth/me", h.Me)

	staff := r.Group("/staff")
	{
		staff.GET("", h.ListStaff)
		staff.POST("", h.CreateStaff)
		staff.GET("/:id", h.GetStaff)
		staff.PATCH("/:id", h.UpdateStaff)
	}
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if !h.BindJSON(c, &req) {
		return
	}

	tokens, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, tokens)
}

func (h *Handler) Me(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	staff, err := h.svc.GetStaff(c.Request.Context(), actor, actor.UserID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, staff)
}

func (h *Handler) ListStaff(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	staff, err := h.svc.ListStaff(c.Request.Context(), actor)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, staff)
}

func (h *Handler) CreateStaff(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req model.CreateStaffRequest
	if !h.BindJSON(c, &req) {
		return
	}

	staff, err := h.svc.CreateStaff(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondCreated(c, staff)
}

func (h *Handler) GetStaff(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	staff, err := h.svc.GetStaff(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, staff)
}

func (h *Handler) UpdateStaff(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdateStaffRequest
	if !h.BindJSON(c, &req) {
		return
	}

	staff, err := h.svc.UpdateStaff(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, staff)
}
