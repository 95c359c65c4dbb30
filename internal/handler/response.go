package handler

import (
	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/clinic-desk/pkg/errors"
)

type Response struct {
	Status    string      `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Fail writes err as an error response. The original error is kept on the
// context so the error middleware can log it.
func Fail(c *gin.Context, err error) {
	appErr := Translate(err)
	_ = c.Error(err)

	resp := NewErrorResponse(appErr.Message)
	resp.Details = appErr.Details
	resp.RequestID = c.GetString(ContextRequestID)
	c.AbortWithStatusJSON(appErr.StatusCode(), resp)
}

// Unauthorized is used by the auth middleware, which has no domain error.
func Unauthorized(c *gin.Context, err error) {
	Fail(c, apperrors.Unauthorized(err))
}
