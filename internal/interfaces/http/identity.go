package http

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/editorial-workflow/internal/domain/entity"
)

// Identity headers set by the authenticating proxy in front of the service
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserName  = "X-User-Name"
	HeaderUserRoles = "X-User-Roles"

	anonymousUserID = "anonymous"
	actorKey        = "workflow.actor"
)

// IdentityMiddleware builds the calling actor from the identity headers.
// Roles are comma separated; every role found in mapping also grants the mapped roles.
// A request without a user id runs as an anonymous actor without roles.
func IdentityMiddleware(mapping map[string][]string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := entity.Actor{
			UserID:      strings.TrimSpace(c.GetHeader(HeaderUserID)),
			DisplayName: strings.TrimSpace(c.GetHeader(HeaderUserName)),
			Roles:       ExpandRoles(splitRoles(c.GetHeader(HeaderUserRoles)), mapping),
		}
		if actor.UserID == "" {
			actor = entity.Actor{UserID: anonymousUserID, DisplayName: "Anonymous", Roles: entity.NewRoleSet()}
		}
		if actor.DisplayName == "" {
			actor.DisplayName = actor.UserID
		}

		c.Set(actorKey, actor)
		c.Next()
	}
}

// ExpandRoles adds the roles granted by mapping. Expansion is a single level.
func ExpandRoles(roles []string, mapping map[string][]string) entity.RoleSet {
	set := entity.NewRoleSet(roles...)
	for _, role := range roles {
		set.Add(mapping[role]...)
	}
	return set
}

func splitRoles(header string) []string {
	if header == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if role := strings.TrimSpace(p); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}

func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{UserID: anonymousUserID, DisplayName: "Anonymous", Roles: entity.NewRoleSet()}
}
