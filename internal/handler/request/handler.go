package request

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/jwalitptl/regulacao-api/internal/handler"
	"github.com/jwalitptl/regulacao-api/internal/model"
	requestsvc "github.com/jwalitptl/regulacao-api/internal/service/request"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
	"github.com/jwalitptl/regulacao-api/pkg/httputil"
	"github.com/jwalitptl/regulacao-api/pkg/validator"
)

type Handler struct {
	*handler.BaseHandler
	service *requestsvc.Service
}

func NewHandler(base *handler.BaseHandler, service *requestsvc.Service) *Handler {
	return &Handler{BaseHandler: base, service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	requests := r.Group("/requests")
	{
		requests.POST("", h.Submit)
		requests.GET("", h.ListRequests)
		requests.GET("/:id", h.GetRequest)
		requests.PATCH("/:id", h.UpdateRequest)
		requests.DELETE("/:id", h.DeleteRequest)

		requests.POST("/:id/accept", h.Accept)
		requests.POST("/:id/confirm", h.Confirm)
		requests.POST("/:id/complete", h.Complete)
		requests.POST("/:id/suspend", h.Suspend)
		requests.POST("/:id/revert", h.Revert)

		requests.PUT("/:id/additional-document", h.SetAdditionalDocument)
		requests.GET("/:id/attachment", h.file(requestsvc.FileAttachment))
		requests.GET("/:id/additional-document", h.file(requestsvc.FileAdditional))
		requests.GET("/:id/result", h.file(requestsvc.FileResult))
	}
}

// intakeItem is one entry of the "payload" form field. Its attachment is
// uploaded as the file field attachment_<index>.
type intakeItem struct {
	Kind                 string  `json:"kind" binding:"required"`
	ServiceID            int64   `json:"service_id" binding:"required"`
	IsUrgent             bool    `json:"is_urgent"`
	UrgencyJustification *string `json:"urgency_justification" binding:"omitempty,max=1000"`
	Comment              *string `json:"comment" binding:"omitempty,max=2000"`
}

type intakePayload struct {
	PatientID    int64                       `json:"patient_id"`
	Patient      *model.CreatePatientRequest `json:"patient"`
	HealthUnitID int64                       `json:"health_unit_id" binding:"required"`
	Items        []intakeItem                `json:"items" binding:"dive"`
}

// Submit takes a multipart form: "payload" holds the JSON submission,
// id_front and id_back the patient's ID photos and attachment_<n> the
// document for item n.
func (h *Handler) Submit(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	in, err := h.intakeRequest(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	result, err := h.service.Submit(c.Request.Context(), actor, in)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if len(result.Created) == 0 {
		c.JSON(http.StatusUnprocessableEntity, &httputil.Response{
			Status:  "error",
			Message: "no request was created",
			Data:    result,
		})
		return
	}
	httputil.RespondCreated(c, result)
}

func (h *Handler) intakeRequest(c *gin.Context) (*model.IntakeRequest, error) {
	raw := c.PostForm("payload")
	if raw == "" {
		return nil, apperrors.Validation("payload is required")
	}
	var payload intakePayload
	if err := binding.JSON.BindBody([]byte(raw), &payload); err != nil {
		if msgs := validator.Messages(err); len(msgs) > 0 {
			return nil, apperrors.Validation("invalid payload", msgs...)
		}
		return nil, apperrors.BadRequest("invalid payload", err)
	}

	in := &model.IntakeRequest{
		PatientID:    payload.PatientID,
		Patient:      payload.Patient,
		HealthUnitID: payload.HealthUnitID,
		Items:        make([]model.IntakeItem, 0, len(payload.Items)),
	}
	var err error
	if in.IDFront, err = h.FormFile(c, "id_front"); err != nil {
		return nil, err
	}
	if in.IDBack, err = h.FormFile(c, "id_back"); err != nil {
		return nil, err
	}

	for i, it := range payload.Items {
		kind, err := model.ParseServiceKind(it.Kind)
		if err != nil {
			return nil, apperrors.Validation(fmt.Sprintf("items[%d]: %s", i, err))
		}
		attachment, err := h.FormFile(c, "attachment_"+strconv.Itoa(i))
		if err != nil {
			return nil, err
		}
		in.Items = append(in.Items, model.IntakeItem{
			Service:              model.ServiceRef{Kind: kind, ID: it.ServiceID},
			IsUrgent:             it.IsUrgent,
			UrgencyJustification: it.UrgencyJustification,
			Comment:              it.Comment,
			Attachment:           attachment,
		})
	}
	return in, nil
}

type listQuery struct {
	View         string `form:"view"`
	PatientID    int64  `form:"patient_id"`
	HealthUnitID int64  `form:"health_unit_id"`
}

func (h *Handler) ListRequests(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid query", err))
		return
	}
	view, err := model.ParseRequestView(q.View)
	if err != nil {
		httputil.RespondWithError(c, apperrors.Validation(err.Error()))
		return
	}

	requests, err := h.service.List(c.Request.Context(), actor, model.RequestFilters{
		View:         view,
		PatientID:    q.PatientID,
		HealthUnitID: q.HealthUnitID,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if requests == nil {
		requests = []*model.Request{}
	}
	httputil.RespondWithSuccess(c, requests)
}

func (h *Handler) GetRequest(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	req, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, req)
}

func (h *Handler) UpdateRequest(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var body model.UpdateRequestRequest
	if !h.BindJSON(c, &body) {
		return
	}

	req, err := h.service.Update(c.Request.Context(), actor, id, &body)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, req)
}

func (h *Handler) DeleteRequest(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type transitionFunc func(c *gin.Context, actor model.Actor, id int64) (*model.Request, error)

// transition runs a status change that needs no body.
func (h *Handler) transition(c *gin.Context, fn transitionFunc) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	req, err := fn(c, actor, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, req)
}

func (h *Handler) Accept(c *gin.Context) {
	h.transition(c, func(c *gin.Context, actor model.Actor, id int64) (*model.Request, error) {
		return h.service.Accept(c.Request.Context(), actor, id)
	})
}

func (h *Handler) Confirm(c *gin.Context) {
	h.transition(c, func(c *gin.Context, actor model.Actor, id int64) (*model.Request, error) {
		return h.service.Confirm(c.Request.Context(), actor, id)
	})
}

func (h *Handler) Revert(c *gin.Context) {
	h.transition(c, func(c *gin.Context, actor model.Actor, id int64) (*model.Request, error) {
		return h.service.Revert(c.Request.Context(), actor, id)
	})
}

type suspendBody struct {
	Reason string `json:"reason" binding:"required,max=2000"`
}

func (h *Handler) Suspend(c *gin.Context) {
	var body suspendBody
	if !h.BindJSON(c, &body) {
		return
	}
	h.transition(c, func(c *gin.Context, actor model.Actor, id int64) (*model.Request, error) {
		return h.service.Suspend(c.Request.Context(), actor, id, body.Reason)
	})
}

type completeForm struct {
	Location string `form:"location"`
	Date     string `form:"date"`
	Time     string `form:"time"`
}

// Complete takes a multipart form with location, date, time and the result file.
func (h *Handler) Complete(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	id, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var form completeForm
	if !h.Bind(c, &form) {
		return
	}
	result, err := h.FormFile(c, "result")
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	out, err := h.service.Complete(c.Request.Context(), actor, id, model.CompletionInput{
		Location: form.Location,
		Date:     form.Date,
		Time:     form.Time,
		Result:   result,
	})
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, out)
}

func (h *Handler) SetAdditionalDocument(c *gin.Context) {
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

	req, err := h.service.SetAdditionalDocument(c.Request.Context(), actor, id, file)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, req)
}

func (h *Handler) file(kind requestsvc.FileKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := h.Actor(c)
		if !ok {
			return
		}
		id, ok := h.ParamID(c, "id")
		if !ok {
			return
		}
		rc, obj, err := h.service.File(c.Request.Context(), actor, id, kind)
		h.ServeFile(c, rc, obj, err)
	}
}
