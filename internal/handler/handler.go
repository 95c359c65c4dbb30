package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/clinic-desk/pkg/errors"
	"github.com/jwalitptl/clinic-desk/pkg/validator"
)

const (
	ContextRequestID = "request_id"
	HeaderTerminalID = "X-Terminal-ID"
)

// BindJSON decodes the request body into obj and runs its binding rules.
// On failure it writes the 400 and returns false.
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		if fields := validator.Describe(err); fields != nil {
			Fail(c, apperrors.Validation(fields))
		} else {
			Fail(c, apperrors.BadRequest("invalid request body", err))
		}
		return false
	}
	return true
}

// ParamID parses a UUID path parameter.
func ParamID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		Fail(c, apperrors.BadRequest("invalid "+name, err))
		return uuid.Nil, false
	}
	return id, true
}

// TerminalID identifies the front-desk screen; requests without the
// header share the "default" view.
func TerminalID(c *gin.Context) string {
	if id := c.GetHeader(HeaderTerminalID); id != "" {
		return id
	}
	return "default"
}
