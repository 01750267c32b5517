package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/indent-flow/internal/domain/entity"
	domainwf "github.com/garyjia/indent-flow/internal/domain/workflow"
	"github.com/garyjia/indent-flow/pkg/utils"
)

// Actor headers
const (
	HeaderActorEmail = "X-Actor-Email"
	HeaderActorRole  = "X-Actor-Role"
)

const actorKey = "actor"

// ActorMiddleware resolves the acting user from request headers.
// Authentication happens upstream; this only checks the headers are well formed.
func ActorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := strings.TrimSpace(c.GetHeader(HeaderActorEmail))
		role := domainwf.Role(strings.TrimSpace(c.GetHeader(HeaderActorRole)))

		if err := utils.ValidateEmail(email); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   HeaderActorEmail + " header must carry a valid email",
			})
			return
		}
		if !role.IsValid() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   HeaderActorRole + " header must carry a known role",
			})
			return
		}

		c.Set(actorKey, entity.Actor{Email: email, Role: role})
		c.Next()
	}
}

// actorFrom returns the actor set by ActorMiddleware
func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}
