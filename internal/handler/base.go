package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/regulacao-api/internal/middleware"
	"github.com/jwalitptl/regulacao-api/internal/model"
	"github.com/jwalitptl/regulacao-api/internal/storage"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
	"github.com/jwalitptl/regulacao-api/pkg/httputil"
	"github.com/jwalitptl/regulacao-api/pkg/validator"
)

// BaseHandler holds the helpers shared by every resource handler.
type BaseHandler struct {
	// MaxUpload bounds a single uploaded file read into memory.
	MaxUpload int64
}

func NewBaseHandler(maxUpload int64) *BaseHandler {
	if maxUpload <= 0 {
		maxUpload = storage.DefaultMaxSize
	}
	validator.RegisterGin()
	return &BaseHandler{MaxUpload: maxUpload}
}

// Actor returns the authenticated actor or writes a 401.
func (h *BaseHandler) Actor(c *gin.Context) (model.Actor, bool) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("not authenticated")))
		return model.Actor{}, false
	}
	return actor, true
}

// ParamID parses a positive integer path parameter or writes a 400.
func (h *BaseHandler) ParamID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		httputil.RespondWithError(c, apperrors.BadRequest(fmt.Sprintf("invalid %s", name), err))
		return 0, false
	}
	return id, true
}

// BindJSON binds the body or writes a validation error.
func (h *BaseHandler) BindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		httputil.RespondWithError(c, bindError(err))
		return false
	}
	return true
}

// Bind binds a multipart form or writes a validation error.
func (h *BaseHandler) Bind(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBind(dst); err != nil {
		httputil.RespondWithError(c, bindError(err))
		return false
	}
	return true
}

// FormFile reads an optional multipart file. A missing field yields nil.
func (h *BaseHandler) FormFile(c *gin.Context, field string) (*model.FileUpload, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid file %s", field), err)
	}
	return h.readFile(field, fh)
}

func (h *BaseHandler) readFile(field string, fh *multipart.FileHeader) (*model.FileUpload, error) {
	if fh.Size > h.MaxUpload {
		return nil, apperrors.Validation(fmt.Sprintf("%s exceeds %d bytes", field, h.MaxUpload))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperrors.BadRequest(fmt.Sprintf("cannot read %s", field), err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, h.MaxUpload+1))
	if err != nil {
		return nil, apperrors.BadRequest(fmt.Sprintf("cannot read %s", field), err)
	}
	if int64(len(data)) > h.MaxUpload {
		return nil, apperrors.Validation(fmt.Sprintf("%s exceeds %d bytes", field, h.MaxUpload))
	}
	return &model.FileUpload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// ServeFile streams a stored object with its content type.
func (h *BaseHandler) ServeFile(c *gin.Context, rc io.ReadCloser, obj storage.Object, err error) {
	if errors.Is(err, storage.ErrObjectNotFound) {
		err = apperrors.NotFound("file", err)
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	defer rc.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "private, no-store")
	c.DataFromReader(http.StatusOK, obj.Size, contentType, rc, nil)
}

func bindError(err error) error {
	if msgs := validator.Messages(err); len(msgs) > 0 {
		return apperrors.Validation("invalid request", msgs...)
	}
	return apperrors.BadRequest("invalid request body", err)
}
