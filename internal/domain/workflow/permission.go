package workflow

import "github.com/garyjia/editorial-workflow/internal/domain/entity"

// CanTransition reports whether any of the actor's roles is allowed by the rule.
// Matching is exact and case-sensitive.
func CanTransition(rule *entity.TransitionRule, actorRoles entity.RoleSet) bool {
	if rule == nil {
		return false
	}
	return rule.AllowedRoles.Intersects(actorRoles)
}
