package entity

import (
	"encoding/json"
	"sort"
)

// RoleSet is a set of case-sensitive role names
type RoleSet map[string]struct{}

// NewRoleSet builds a set from role names, ignoring empty names
func NewRoleSet(roles ...string) RoleSet {
	set := make(RoleSet, len(roles))
	for _, role := range roles {
		if role == "" {
			continue
		}
		set[role] = struct{}{}
	}
	return set
}

// Has reports whether the role is in the set
func (s RoleSet) Has(role string) bool {
	_, ok := s[role]
	return ok
}

// Intersects reports whether the two sets share at least one role
func (s RoleSet) Intersects(other RoleSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for role := range small {
		if large.Has(role) {
			return true
		}
	}
	return false
}

// Add inserts roles into the set
func (s RoleSet) Add(roles ...string) {
	for _, role := range roles {
		if role != "" {
			s[role] = struct{}{}
		}
	}
}

// Slice returns the roles sorted by name
func (s RoleSet) Slice() []string {
	out := make([]string, 0, len(s))
	for role := range s {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of the set
func (s RoleSet) Clone() RoleSet {
	out := make(RoleSet, len(s))
	for role := range s {
		out[role] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array
func (s RoleSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes the set from an array of role names
func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var roles []string
	if err := json.Unmarshal(data, &roles); err != nil {
		return err
	}
	*s = NewRoleSet(roles...)
	return nil
}

// Actor identifies who performs an operation and which roles they hold
type Actor struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	Roles       RoleSet `json:"roles"`
}

// SystemActor is used for automatic operations without a human caller
var SystemActor = Actor{UserID: "system", DisplayName: "System"}
