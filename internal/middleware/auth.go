package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/regulacao-api/internal/model"
	apperrors "github.com/jwalitptl/regulacao-api/pkg/errors"
)

const ContextActor = "actor"

// Authenticator resolves a bearer token into the acting staff member.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.Actor, error)
}

type AuthMiddleware struct {
	authService Authenticator
}

func NewAuthMiddleware(authService Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authService: authService}
}

// Authenticate verifies the JWT and stores the actor in the context
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, apperrors.Unauthorized(errors.New("missing authorization header")))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abort(c, apperrors.Unauthorized(errors.New("invalid authorization format")))
			return
		}

		actor, err := m.authService.Authenticate(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			abort(c, err)
			return
		}

		c.Set(ContextActor, actor)
		c.Next()
	}
}

// RequireRole rejects actors whose role is not listed.
func (m *AuthMiddleware) RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			abort(c, apperrors.Unauthorized(errors.New("not authenticated")))
			return
		}
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		abort(c, apperrors.Forbidden("permission denied"))
	}
}

// GetActor returns the authenticated actor set by Authenticate.
func GetActor(c *gin.Context) (model.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

// abort records err for ErrorHandler and stops the chain.
func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
