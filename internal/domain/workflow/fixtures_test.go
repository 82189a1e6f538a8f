package workflow

import (
	"time"

	"github.com/garyjia/editorial-workflow/internal/domain/entity"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// editorialDefinition is draft(initial) -> review -> approved -> published(final)
func editorialDefinition() *entity.WorkflowDefinition {
	return &entity.WorkflowDefinition{
		ID:       "def-1",
		Name:     "Editorial",
		Version:  1,
		IsActive: true,
		States: []entity.WorkflowState{
			{ID: "s-draft", StateID: "draft", Name: "Draft", IsInitial: true, SortOrder: 1},
			{ID: "s-review", StateID: "review", Name: "Review", SortOrder: 2},
			{ID: "s-approved", StateID: "approved", Name: "Approved", SortOrder: 3},
			{ID: "s-published", StateID: "published", Name: "Published", IsPublished: true, IsFinal: true, SortOrder: 4},
		},
		Transitions: []entity.TransitionRule{
			{ID: "r-submit", FromStateID: "s-draft", ToStateID: "s-review", AllowedRoles: entity.NewRoleSet("Editor"), IsActive: true, SortOrder: 1},
			{ID: "r-approve", FromStateID: "s-review", ToStateID: "s-approved", AllowedRoles: entity.NewRoleSet("Reviewer"), IsActive: true, SortOrder: 1},
			{ID: "r-reject", FromStateID: "s-review", ToStateID: "s-draft", AllowedRoles: entity.NewRoleSet("Reviewer"), RequiresComment: true, IsActive: true, SortOrder: 2},
			{ID: "r-publish", FromStateID: "s-approved", ToStateID: "s-published", AllowedRoles: entity.NewRoleSet("Publisher", "Admin"), IsActive: true, SortOrder: 1},
			{ID: "r-legacy", FromStateID: "s-approved", ToStateID: "s-draft", AllowedRoles: entity.NewRoleSet("Admin"), IsActive: false, SortOrder: 2},
		},
	}
}

func newInstanceAt(stateID string) *entity.WorkflowInstance {
	return &entity.WorkflowInstance{
		ID:                   "inst-1",
		ContentID:            "content-1",
		ContentType:          "page",
		WorkflowDefinitionID: "def-1",
		CurrentStateID:       stateID,
		Status:               entity.StatusActive,
		Version:              1,
		History: []entity.HistoryEntry{
			{ID: "h-0", InstanceID: "inst-1", Kind: entity.HistoryKindCreated, ToStateID: stateID, Timestamp: testNow.Add(-time.Hour), Success: true},
		},
	}
}

func actor(roles ...string) entity.Actor {
	return entity.Actor{UserID: "u-1", DisplayName: "User One", Roles: entity.NewRoleSet(roles...)}
}
