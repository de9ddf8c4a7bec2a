package catalog

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/regulacao-api/internal/handler"
	"github.com/jwalitptl/regulacao-api/internal/model"
	catalogsvc "github.com/jwalitptl/regulacao-api/internal/service/catalog"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
	"github.com/jwalitptl/regulacao-api/pkg/httputil"
)

// Handler serves the exam and consultation catalogs, quota usage and
// health units.
type Handler struct {
	*handler.BaseHandler
	service *catalogsvc.Service
	now     func() time.Time
}

func NewHandler(base *handler.BaseHandler, service *catalogsvc.Service) *Handler {
	return &Handler{BaseHandler: base, service: service, now: time.Now}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	catalog := r.Group("/catalog/:kind")
	{
		catalog.GET("", h.ListItems)
		catalog.POST("", h.CreateItem)
		catalog.GET("/:id", h.GetItem)
		catalog.PUT("/:id", h.UpdateItem)
	}

	r.GET("/quotas", h.Quotas)

	units := r.Group("/health-units")
	{
		units.GET("", h.ListUnits)
		units.POST("", h.CreateUnit)
		units.GET("/:id", h.GetUnit)
	}
}

func (h *Handler) kind(c *gin.Context) (model.ServiceKind, bool) {
	kind, err := model.ParseServiceKind(c.Param("kind"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.NotFound("catalog", err))
		return "", false
	}
	return kind, true
}

func (h *Handler) ref(c *gin.Context) (model.ServiceRef, bool) {
	kind, ok := h.kind(c)
	if !ok {
		return model.ServiceRef{}, false
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return model.ServiceRef{}, false
	}
	return model.ServiceRef{Kind: kind, ID: id}, true
}

// ListItems returns the catalog; ?active=true hides deactivated items.
func (h *Handler) ListItems(c *gin.Context) {
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	activeOnly, _ := strconv.ParseBool(c.Query("active"))

	items, err := h.service.List(c.Request.Context(), kind, activeOnly)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if items == nil {
		items = []*model.CatalogItem{}
	}
	httputil.RespondWithSuccess(c, items)
}

func (h *Handler) GetItem(c *gin.Context) {
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), ref)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, item)
}

func (h *Handler) CreateItem(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	kind, ok := h.kind(c)
	if !ok {
		return
	}
	var req model.CatalogItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	item, err := h.service.Create(c.Request.Context(), actor, kind, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondCreated(c, item)
}

func (h *Handler) UpdateItem(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	ref, ok := h.ref(c)
	if !ok {
		return
	}
	var req model.CatalogItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	item, err := h.service.Update(c.Request.Context(), actor, ref, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, item)
}

type quotaQuery struct {
	Month int `form:"month" binding:"omitempty,min=1,max=12"`
	Year  int `form:"year" binding:"omitempty,min=2000,max=9999"`
}

// Quotas reports usage for ?month&year, defaulting to the current month.
func (h *Handler) Quotas(c *gin.Context) {
	var q quotaQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, apperrors.Validation("month must be 1-12 and year a four digit year"))
		return
	}
	now := h.now()
	if q.Month == 0 {
		q.Month = int(now.Month())
	}
	if q.Year == 0 {
		q.Year = now.Year()
	}

	usage, err := h.service.Usage(c.Request.Context(), q.Year, time.Month(q.Month))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if usage == nil {
		usage = []model.QuotaUsage{}
	}
	httputil.RespondWithSuccess(c, usage)
}

func (h *Handler) ListUnits(c *gin.Context) {
	units, err := h.service.ListUnits(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if units == nil {
		units = []*model.HealthUnit{}
	}
	httputil.RespondWithSuccess(c, units)
}

func (h *Handler) GetUnit(c *gin.Context) {
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	unit, err := h.service.GetUnit(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, unit)
}

func (h *Handler) CreateUnit(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req model.HealthUnitRequest
	if !h.BindJSON(c, &req) {
		return
	}
	unit, err := h.service.CreateUnit(c.Request.Context(), actor, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondCreated(c, unit)
}
