package entity

import "time"

// WorkflowDefinition is a named, versioned template of states and transition rules.
// States and rules reference each other only by id.
type WorkflowDefinition struct {
	ID           string           `json:"id" validate:"required"`
	Name         string           `json:"name" validate:"required,max=200"`
	Description  string           `json:"description,omitempty" validate:"max=2000"`
	Version      int              `json:"version" validate:"min=1"`
	IsActive     bool             `json:"is_active"`
	ContentTypes []string         `json:"content_types,omitempty" validate:"dive,required"`
	States       []WorkflowState  `json:"states" validate:"dive"`
	Transitions  []TransitionRule `json:"transitions" validate:"dive"`
	Created      time.Time        `json:"created"`
	LastModified time.Time        `json:"last_modified"`
}

// WorkflowState is a named node of a definition
type WorkflowState struct {
	ID          string `json:"id" validate:"required"`
	StateID     string `json:"state_id" validate:"required,max=100"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description,omitempty"`
	IsInitial   bool   `json:"is_initial"`
	IsPublished bool   `json:"is_published"`
	IsFinal     bool   `json:"is_final"`
	SortOrder   int    `json:"sort_order"`
	ColorCode   string `json:"color_code,omitempty" validate:"omitempty,hexcolor"`
}

// TransitionRule is a directed edge between two states of the same definition
type TransitionRule struct {
	ID              string  `json:"id" validate:"required"`
	Name            string  `json:"name,omitempty" validate:"max=200"`
	FromStateID     string  `json:"from_state_id" validate:"required"`
	ToStateID       string  `json:"to_state_id" validate:"required"`
	AllowedRoles    RoleSet `json:"allowed_roles"`
	RequiresComment bool    `json:"requires_comment"`
	CommentTemplate string  `json:"comment_template,omitempty"`
	IsActive        bool    `json:"is_active"`
	SortOrder       int     `json:"sort_order"`
}

// AppliesTo reports whether the definition may be attached to the content type.
// An empty filter accepts every content type.
func (d *WorkflowDefinition) AppliesTo(contentType string) bool {
	if len(d.ContentTypes) == 0 {
		return true
	}
	for _, ct := range d.ContentTypes {
		if ct == contentType {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the definition
func (d *WorkflowDefinition) Clone() *WorkflowDefinition {
	out := *d
	out.ContentTypes = append([]string(nil), d.ContentTypes...)
	out.States = append([]WorkflowState(nil), d.States...)
	out.Transitions = make([]TransitionRule, len(d.Transitions))
	for i, rule := range d.Transitions {
		rule.AllowedRoles = rule.AllowedRoles.Clone()
		out.Transitions[i] = rule
	}
	return &out
}
