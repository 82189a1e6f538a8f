package workflow

import (
	"fmt"
	"sort"

	"github.com/garyjia/editorial-workflow/internal/domain/entity"
)

// Graph is a read-only index over one definition.
// States and rules are kept in flat slices and resolved by id, never by back-pointers.
type Graph struct {
	def          *entity.WorkflowDefinition
	statesByID   map[string]int
	statesBySlug map[string]int
	rulesByID    map[string]int
	outgoing     map[string][]int
}

// NewGraph indexes a copy of the definition
func NewGraph(def *entity.WorkflowDefinition) *Graph {
	d := def.Clone()
	g := &Graph{
		def:          d,
		statesByID:   make(map[string]int, len(d.States)),
		statesBySlug: make(map[string]int, len(d.States)),
		rulesByID:    make(map[string]int, len(d.Transitions)),
		outgoing:     make(map[string][]int),
	}

	for i, s := range d.States {
		g.statesByID[s.ID] = i
		g.statesBySlug[s.StateID] = i
	}
	for i, r := range d.Transitions {
		g.rulesByID[r.ID] = i
		g.outgoing[r.FromStateID] = append(g.outgoing[r.FromStateID], i)
	}
	for from, idx := range g.outgoing {
		rules := d.Transitions
		sort.SliceStable(idx, func(a, b int) bool {
			return rules[idx[a]].SortOrder < rules[idx[b]].SortOrder
		})
		g.outgoing[from] = idx
	}

	return g
}

// Definition returns the indexed definition. Callers must not modify it.
func (g *Graph) Definition() *entity.WorkflowDefinition {
	return g.def
}

// GetState resolves a state by id or, failing that, by slug
func (g *Graph) GetState(ref string) (*entity.WorkflowState, error) {
	if i, ok := g.statesByID[ref]; ok {
		return &g.def.States[i], nil
	}
	if i, ok := g.statesBySlug[ref]; ok {
		return &g.def.States[i], nil
	}
	return nil, fmt.Errorf("%w: %q in definition %s", ErrUnknownState, ref, g.def.ID)
}

// InitialState returns the first initial state in list order
func (g *Graph) InitialState() (*entity.WorkflowState, error) {
	for i := range g.def.States {
		if g.def.States[i].IsInitial {
			return &g.def.States[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoInitialState, g.def.ID)
}

// Rule returns a rule by id
func (g *Graph) Rule(id string) (*entity.TransitionRule, bool) {
	i, ok := g.rulesByID[id]
	if !ok {
		return nil, false
	}
	return &g.def.Transitions[i], true
}

// ActiveTransitions returns every active rule from one state to another
func (g *Graph) ActiveTransitions(fromStateID, toStateID string) []*entity.TransitionRule {
	var out []*entity.TransitionRule
	for _, i := range g.outgoing[fromStateID] {
		r := &g.def.Transitions[i]
		if r.IsActive && r.ToStateID == toStateID {
			out = append(out, r)
		}
	}
	return out
}

// GetActiveTransition returns the single active rule between two states.
// More than one active rule for the same pair is a configuration fault.
func (g *Graph) GetActiveTransition(fromStateID, toStateID string) (*entity.TransitionRule, error) {
	rules := g.ActiveTransitions(fromStateID, toStateID)
	switch len(rules) {
	case 0:
		return nil, fmt.Errorf("%w: %s -> %s", ErrNoSuchTransition, fromStateID, toStateID)
	case 1:
		return rules[0], nil
	default:
		return nil, fmt.Errorf("%w: %d active rules for %s -> %s", ErrAmbiguousTransition, len(rules), fromStateID, toStateID)
	}
}

// OutgoingActive returns the active rules leaving a state, ordered by sort order
func (g *Graph) OutgoingActive(fromStateID string) []entity.TransitionRule {
	out := make([]entity.TransitionRule, 0, len(g.outgoing[fromStateID]))
	for _, i := range g.outgoing[fromStateID] {
		if g.def.Transitions[i].IsActive {
			out = append(out, g.def.Transitions[i])
		}
	}
	return out
}
