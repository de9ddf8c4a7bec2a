package patient

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/regulacao-api/internal/handler"
	"github.com/jwalitptl/regulacao-api/internal/model"
	patientsvc "github.com/jwalitptl/regulacao-api/internal/service/patient"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
	"github.com/jwalitptl/regulacao-api/pkg/httputil"
)

type Handler struct {
	*handler.BaseHandler
	service *patientsvc.Service
}

func NewHandler(base *handler.BaseHandler, service *patientsvc.Service) *Handler {
	return &Handler{BaseHandler: base, service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.GET("", h.SearchPatients)
		patients.POST("", h.CreatePatient)
		patients.GET("/cpf/:cpf", h.GetPatientByCPF)
		patients.GET("/:id", h.GetPatient)
		patients.PUT("/:id", h.UpdatePatient)

		patients.PUT("/:id/documents/:side", h.SetDocument)
		patients.GET("/:id/documents/:side", h.GetDocument)
	}
}

func (h *Handler) SearchPatients(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var filters model.PatientFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid query", err))
		return
	}

	patients, err := h.service.Search(c.Request.Context(), actor, &filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if patients == nil {
		patients = []*model.Patient{}
	}
	httputil.RespondWithSuccess(c, patients)
}

// CreatePatient accepts a multipart form with optional id_front and id_back files.
func (h *Handler) CreatePatient(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var req model.CreatePatientRequest
	if !h.Bind(c, &req) {
		return
	}
	front, err := h.FormFile(c, "id_front")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	back, err := h.FormFile(c, "id_back")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	patient, err := h.service.Create(c.Request.Context(), actor, &req, front, back)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondCreated(c, patient)
}

func (h *Handler) GetPatientByCPF(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	patient, err := h.service.GetByCPF(c.Request.Context(), actor, c.Param("cpf"))
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}

func (h *Handler) GetPatient(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}

	patient, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req model.UpdatePatientRequest
	if !h.BindJSON(c, &req) {
		return
	}

	patient, err := h.service.Update(c.Request.Context(), actor, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}

// SetDocument replaces one ID photo from the "file" form field.
func (h *Handler) SetDocument(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	file, err := h.FormFile(c, "file")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if file.Empty() {
		httputil.RespondWithError(c, apperrors.Validation("file is required"))
		return
	}

	patient, err := h.service.SetDocument(c.Request.Context(), actor, id, model.DocumentSide(c.Param("side")), file)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, patient)
}

func (h *Handler) GetDocument(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	side := model.DocumentSide(c.Param("side"))
	if !side.Valid() {
		httputil.RespondWithError(c, apperrors.BadRequest(fmt.Sprintf("unknown document side %q", side), nil))
		return
	}

	rc, obj, err := h.service.Document(c.Request.Context(), actor, id, side)
	h.ServeFile(c, rc, obj, err)
}
