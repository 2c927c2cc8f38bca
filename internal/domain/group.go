package domain

import (
	"regexp"
	"slices"
	"strings"
	"time"
)

// GroupKind discriminates the node variants stored in one hierarchy.
type GroupKind string

// GroupKind values.
const (
	GroupKindLevel      GroupKind = "level"
	GroupKindGroup      GroupKind = "group"
	GroupKindRole       GroupKind = "role"
	GroupKindDepartment GroupKind = "department"
)

var validGroupKinds = []GroupKind{
	GroupKindLevel,
	GroupKindGroup,
	GroupKindRole,
	GroupKindDepartment,
}

// DefaultLongNameSeparator joins ancestor names in LongName.
const DefaultLongNameSeparator = " / "

// codePattern is the accepted shape of a group code.
var codePattern = regexp.MustCompile(`^[\w-]+$`)

// NormalizeGroupKind canonicalizes one kind value.
func NormalizeGroupKind(kind GroupKind) GroupKind {
	return GroupKind(strings.TrimSpace(strings.ToLower(string(kind))))
}

// IsValidGroupKind reports whether kind is one of the supported variants.
func IsValidGroupKind(kind GroupKind) bool {
	return slices.Contains(validGroupKinds, NormalizeGroupKind(kind))
}

// IsValidGroupCode reports whether code matches the group code pattern.
func IsValidGroupCode(code string) bool {
	return codePattern.MatchString(code)
}

// Membership links one user to a group. Enabling is independent of the group's own state.
type Membership struct {
	UserID   string    `json:"user_id"`
	Enabled  bool      `json:"enabled"`
	JoinedAt time.Time `json:"joined_at"`
}

// Group is one node of an organizational hierarchy.
//
// ParentID is a read-only copy: parentage only changes through GroupTree.SetParent.
type Group struct {
	ID                    string
	Code                  string
	Kind                  GroupKind
	Name                  string
	Description           string
	SortOrder             int
	NaturalOrder          *int
	AllowDirectMembership bool
	Deleted               *bool
	DeletedAt             *time.Time
	DeletedBy             string
	ParentID              string
	Members               []Membership
	ActivityMasterIDs     []string
	CreatedBy             string
	CreatedAt             time.Time
	LastModifiedBy        string
	LastModifiedAt        *time.Time
}

// GroupInput holds write-time values for NewGroup.
type GroupInput struct {
	ID                    string
	Code                  string
	Kind                  GroupKind
	Name                  string
	Description           string
	SortOrder             int
	AllowDirectMembership *bool
	CreatedBy             string
}

// NewGroup validates input and constructs a detached node.
func NewGroup(in GroupInput, now time.Time) (Group, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Kind = NormalizeGroupKind(in.Kind)
	if in.ID == "" {
		return Group{}, ErrInvalidID
	}
	if in.Name == "" {
		return Group{}, ErrInvalidName
	}
	if !IsValidGroupCode(in.Code) {
		return Group{}, ErrInvalidCode
	}
	if in.Kind == "" {
		in.Kind = GroupKindGroup
	}
	if !IsValidGroupKind(in.Kind) {
		return Group{}, ErrInvalidKind
	}
	allowDirect := true
	if in.AllowDirectMembership != nil {
		allowDirect = *in.AllowDirectMembership
	}

	return Group{
		ID:                    in.ID,
		Code:                  in.Code,
		Kind:                  in.Kind,
		Name:                  in.Name,
		Description:           strings.TrimSpace(in.Description),
		SortOrder:             in.SortOrder,
		AllowDirectMembership: allowDirect,
		CreatedBy:             strings.TrimSpace(in.CreatedBy),
		CreatedAt:             now.UTC(),
	}, nil
}

// NaturalOrderValue returns the hierarchical order, 0 when unset.
func (g Group) NaturalOrderValue() int {
	if g.NaturalOrder == nil {
		return 0
	}
	return *g.NaturalOrder
}

// IsDeleted collapses the tri-state deleted flag.
func (g Group) IsDeleted() bool {
	return g.Deleted != nil && *g.Deleted
}

// IsLevel reports whether the node marks the top of a hierarchy.
func (g Group) IsLevel() bool {
	return g.Kind == GroupKindLevel
}

// IsModified reports whether the audit trail shows a real edit.
// Edits by the creator within 15 minutes of creation do not count.
func (g Group) IsModified() bool {
	if g.LastModifiedBy == "" || g.LastModifiedAt == nil {
		return false
	}
	if g.LastModifiedBy != g.CreatedBy {
		return true
	}
	if g.CreatedAt.IsZero() {
		return true
	}
	return g.CreatedAt.Before(g.LastModifiedAt.Add(-15 * time.Minute))
}

// setDeleted stamps DeletedAt and DeletedBy on the first transition to deleted only.
func (g *Group) setDeleted(deleted bool, actor string, now time.Time) {
	if deleted && !g.IsDeleted() {
		ts := now.UTC()
		g.DeletedAt = &ts
		g.DeletedBy = strings.TrimSpace(actor)
	}
	g.Deleted = &deleted
	g.touch(actor, now)
}

// touch records the last modification.
func (g *Group) touch(actor string, now time.Time) {
	ts := now.UTC()
	g.LastModifiedAt = &ts
	if actor = strings.TrimSpace(actor); actor != "" {
		g.LastModifiedBy = actor
	}
}

// memberIndex returns the membership slot for userID or -1.
func (g *Group) memberIndex(userID string) int {
	for i, m := range g.Members {
		if SameUser(m.UserID, userID) {
			return i
		}
	}
	return -1
}

// clone returns a deep copy safe to hand out of the tree.
func (g *Group) clone() Group {
	out := *g
	out.Members = slices.Clone(g.Members)
	out.ActivityMasterIDs = slices.Clone(g.ActivityMasterIDs)
	if g.NaturalOrder != nil {
		v := *g.NaturalOrder
		out.NaturalOrder = &v
	}
	if g.Deleted != nil {
		v := *g.Deleted
		out.Deleted = &v
	}
	if g.DeletedAt != nil {
		v := *g.DeletedAt
		out.DeletedAt = &v
	}
	if g.LastModifiedAt != nil {
		v := *g.LastModifiedAt
		out.LastModifiedAt = &v
	}
	return out
}
