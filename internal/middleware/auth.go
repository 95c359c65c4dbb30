package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-desk/internal/handler"
	"github.com/jwalitptl/clinic-desk/internal/service/audit"
	"github.com/jwalitptl/clinic-desk/pkg/auth"
)

const ContextStaffID = "staff_id"

type AuthMiddleware struct {
	jwt     auth.JWTService
	enabled bool
}

// NewAuthMiddleware verifies bearer tokens with jwt. With enabled false
// every request passes anonymously; audit records then carry no staff id.
func NewAuthMiddleware(jwt auth.JWTService, enabled bool) *AuthMiddleware {
	return &AuthMiddleware{
		jwt:     jwt,
		enabled: enabled,
	}
}

// Authenticate verifies the JWT and puts the staff member on the request
// context for audit records.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := audit.Actor{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}

		if m.enabled {
			token, err := bearerToken(c)
			if err != nil {
				handler.Unauthorized(c, err)
				return
			}
			claims, err := m.jwt.ValidateToken(token)
			if err != nil {
				handler.Unauthorized(c, err)
				return
			}
			staffID, err := claims.StaffID()
			if err != nil {
				handler.Unauthorized(c, err)
				return
			}
			actor.StaffID = &staffID
			c.Set(ContextStaffID, staffID.String())
		}

		c.Request = c.Request.WithContext(audit.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("invalid authorization format")
	}
	return parts[1], nil
}
