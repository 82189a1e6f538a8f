package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/garyjia/editorial-workflow/internal/domain/entity"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateDefinition checks field constraints and the graph rules of a definition:
// at least one initial state, at least one published or final state, unique state slugs,
// rule endpoints inside the definition and at most one active rule per state pair.
func ValidateDefinition(def *entity.WorkflowDefinition) error {
	if def == nil {
		return fmt.Errorf("%w: definition is nil", ErrInvalidDefinition)
	}

	var problems []string

	if err := validate.Struct(def); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			for _, fe := range validationErrors {
				problems = append(problems, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	ids := make(map[string]bool, len(def.States))
	slugs := make(map[string]bool, len(def.States))
	hasInitial, hasTerminal := false, false
	for _, s := range def.States {
		if ids[s.ID] {
			problems = append(problems, fmt.Sprintf("duplicate state id %q", s.ID))
		}
		ids[s.ID] = true
		if slugs[s.StateID] {
			problems = append(problems, fmt.Sprintf("duplicate state slug %q", s.StateID))
		}
		slugs[s.StateID] = true
		hasInitial = hasInitial || s.IsInitial
		hasTerminal = hasTerminal || s.IsPublished || s.IsFinal
	}
	if !hasInitial {
		problems = append(problems, "no initial state")
	}
	if !hasTerminal {
		problems = append(problems, "no published or final state")
	}

	ruleIDs := make(map[string]bool, len(def.Transitions))
	pairs := make(map[[2]string]bool)
	for _, r := range def.Transitions {
		if ruleIDs[r.ID] {
			problems = append(problems, fmt.Sprintf("duplicate rule id %q", r.ID))
		}
		ruleIDs[r.ID] = true
		if !ids[r.FromStateID] {
			problems = append(problems, fmt.Sprintf("rule %q starts outside the definition", r.ID))
		}
		if !ids[r.ToStateID] {
			problems = append(problems, fmt.Sprintf("rule %q ends outside the definition", r.ID))
		}
		if !r.IsActive {
			continue
		}
		pair := [2]string{r.FromStateID, r.ToStateID}
		if pairs[pair] {
			problems = append(problems, fmt.Sprintf("more than one active rule from %q to %q", r.FromStateID, r.ToStateID))
		}
		pairs[pair] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(problems, "; "))
	}
	return nil
}
