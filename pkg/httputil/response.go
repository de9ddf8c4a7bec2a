package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/regulacao-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Details []string    `json:"details,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string, details ...string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
		Details: details,
	}
}

// RespondWithSuccess sends a 200 success response
func RespondWithSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, NewSuccessResponse(data))
}

// RespondCreated sends a 201 success response
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, NewSuccessResponse(data))
}

// RespondWithError sends an error response. Application errors keep their
// message and details; anything else is logged and hidden behind a 500.
func RespondWithError(c *gin.Context, err error) {
	if appErr, ok := errors.As(err); ok {
		status := appErr.StatusCode()
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		}
		c.AbortWithStatusJSON(status, NewErrorResponse(appErr.Message, appErr.Details...))
		return
	}

	log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, NewErrorResponse("internal server error"))
}
