package domain

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// GroupTree owns every node of one or more hierarchies, keyed by id.
//
// parent and children are id references into the same table and SetParent is the only
// code path that changes either side. One lock guards the whole tree: re-parenting and
// cycle checks traverse arbitrary parts of it and must see a consistent snapshot.
type GroupTree struct {
	mu       sync.RWMutex
	nodes    map[string]*Group
	children map[string][]string
}

// NewGroupTree returns an empty tree.
func NewGroupTree() *GroupTree {
	return &GroupTree{
		nodes:    map[string]*Group{},
		children: map[string][]string{},
	}
}

// BuildGroupTree hydrates a tree from stored nodes in any order.
// Parent links are replayed through the cycle-checked path.
func BuildGroupTree(groups []Group) (*GroupTree, error) {
	t := NewGroupTree()
	for _, g := range groups {
		if strings.TrimSpace(g.ID) == "" {
			return nil, ErrInvalidID
		}
		if _, ok := t.nodes[g.ID]; ok {
			return nil, fmt.Errorf("duplicate group %q: %w", g.ID, ErrInvalidState)
		}
		node := g.clone()
		node.ParentID = ""
		t.nodes[g.ID] = &node
	}
	for _, g := range groups {
		if g.ParentID == "" {
			continue
		}
		if err := t.setParent(g.ID, g.ParentID); err != nil {
			return nil, fmt.Errorf("link group %q to parent %q: %w", g.ID, g.ParentID, err)
		}
	}
	return t, nil
}

// Len returns the number of nodes.
func (t *GroupTree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Get returns a copy of one node.
func (t *GroupTree) Get(id string) (Group, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.nodes[id]
	if !ok {
		return Group{}, false
	}
	return node.clone(), true
}

// Create constructs a node and, when parentID is set, links it in the same step.
func (t *GroupTree) Create(in GroupInput, parentID string, now time.Time) (Group, error) {
	g, err := NewGroup(in, now)
	if err != nil {
		return Group{}, err
	}
	parentID = strings.TrimSpace(parentID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if parentID == g.ID {
		return Group{}, fmt.Errorf("group %q cannot be its own parent: %w", g.ID, ErrInvalidState)
	}
	if _, ok := t.nodes[g.ID]; ok {
		return Group{}, fmt.Errorf("duplicate group %q: %w", g.ID, ErrInvalidState)
	}
	if parentID != "" {
		if _, ok := t.nodes[parentID]; !ok {
			return Group{}, fmt.Errorf("parent %q: %w", parentID, ErrUnknownGroup)
		}
	}
	t.nodes[g.ID] = &g
	if parentID != "" {
		t.link(g.ID, parentID)
	}
	return g.clone(), nil
}

// Insert adds an already constructed node whose parent, if any, is in the tree.
func (t *GroupTree) Insert(g Group) error {
	if strings.TrimSpace(g.ID) == "" {
		return ErrInvalidID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[g.ID]; ok {
		return fmt.Errorf("duplicate group %q: %w", g.ID, ErrInvalidState)
	}
	parentID := g.ParentID
	if parentID != "" {
		if parentID == g.ID {
			return fmt.Errorf("group %q cannot be its own parent: %w", g.ID, ErrCircularReference)
		}
		if _, ok := t.nodes[parentID]; !ok {
			return fmt.Errorf("parent %q: %w", parentID, ErrUnknownGroup)
		}
	}
	node := g.clone()
	node.ParentID = ""
	t.nodes[g.ID] = &node
	if parentID != "" {
		t.link(g.ID, parentID)
	}
	return nil
}

// SetParent re-parents id under parentID. An empty parentID detaches the node.
// The tree is unchanged when an error is returned.
func (t *GroupTree) SetParent(id, parentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[id]; !ok {
		return fmt.Errorf("group %q: %w", id, ErrUnknownGroup)
	}
	return t.setParent(id, strings.TrimSpace(parentID))
}

func (t *GroupTree) setParent(id, parentID string) error {
	node := t.nodes[id]
	if parentID == "" {
		t.unlink(id)
		return nil
	}
	if parentID == id {
		return fmt.Errorf("assign %q as parent of itself: %w", id, ErrCircularReference)
	}
	if _, ok := t.nodes[parentID]; !ok {
		return fmt.Errorf("parent %q: %w", parentID, ErrUnknownGroup)
	}
	if t.isDescendant(id, parentID) {
		return fmt.Errorf("assign descendant %q as parent of %q: %w", parentID, id, ErrCircularReference)
	}
	if node.ParentID != "" {
		t.unlink(id)
	}
	t.link(id, parentID)
	return nil
}

// link and unlink are the only writers of ParentID and the children table.
func (t *GroupTree) link(id, parentID string) {
	t.nodes[id].ParentID = parentID
	t.children[parentID] = append(t.children[parentID], id)
}

func (t *GroupTree) unlink(id string) {
	node := t.nodes[id]
	if node.ParentID == "" {
		return
	}
	siblings := t.children[node.ParentID]
	if idx := slices.Index(siblings, id); idx >= 0 {
		siblings = slices.Delete(siblings, idx, idx+1)
	}
	if len(siblings) == 0 {
		delete(t.children, node.ParentID)
	} else {
		t.children[node.ParentID] = siblings
	}
	node.ParentID = ""
}

// IsDescendant reports whether candidate appears anywhere below id. A node is not its own descendant.
func (t *GroupTree) IsDescendant(id, candidate string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isDescendant(id, candidate)
}

func (t *GroupTree) isDescendant(id, candidate string) bool {
	if candidate == "" {
		return false
	}
	for _, childID := range t.children[id] {
		if childID == candidate {
			return true
		}
		if t.isDescendant(childID, candidate) {
			return true
		}
	}
	return false
}

// IsAncestor reports whether candidate appears on the parent chain of id.
func (t *GroupTree) IsAncestor(id, candidate string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if candidate == "" {
		return false
	}
	for _, ancestor := range t.ancestorIDs(id) {
		if ancestor == candidate {
			return true
		}
	}
	return false
}

// ancestorIDs walks the parent chain upward, nearest ancestor first.
func (t *GroupTree) ancestorIDs(id string) []string {
	out := []string{}
	node, ok := t.nodes[id]
	for ok && node.ParentID != "" {
		out = append(out, node.ParentID)
		node, ok = t.nodes[node.ParentID]
	}
	return out
}

// Ancestors returns the parent chain ordered root first.
func (t *GroupTree) Ancestors(id string) []Group {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := t.ancestorIDs(id)
	slices.Reverse(ids)
	return t.cloneAll(ids)
}

// Depth returns the length of the ancestor chain; roots have depth 0.
func (t *GroupTree) Depth(id string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ancestorIDs(id))
}

// Roots returns parentless nodes in sibling order.
func (t *GroupTree) Roots() []Group {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cloneAll(t.rootIDs())
}

func (t *GroupTree) rootIDs() []string {
	ids := []string{}
	for id, node := range t.nodes {
		if node.ParentID == "" {
			ids = append(ids, id)
		}
	}
	t.sortSiblings(ids)
	return ids
}

// Children returns direct children ordered by sort order, then name.
func (t *GroupTree) Children(id string) []Group {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cloneAll(t.sortedChildIDs(id))
}

func (t *GroupTree) sortedChildIDs(id string) []string {
	ids := slices.Clone(t.children[id])
	t.sortSiblings(ids)
	return ids
}

func (t *GroupTree) sortSiblings(ids []string) {
	slices.SortStableFunc(ids, func(a, b string) int {
		na, nb := t.nodes[a], t.nodes[b]
		return cmp.Or(
			cmp.Compare(na.SortOrder, nb.SortOrder),
			cmp.Compare(na.Name, nb.Name),
			cmp.Compare(na.ID, nb.ID),
		)
	})
}

// Descendants returns every node below id: the direct children first, then each child's subtree.
func (t *GroupTree) Descendants(id string) []Group {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cloneAll(t.descendantIDs(id))
}

func (t *GroupTree) descendantIDs(id string) []string {
	childIDs := t.sortedChildIDs(id)
	out := slices.Clone(childIDs)
	for _, childID := range childIDs {
		out = append(out, t.descendantIDs(childID)...)
	}
	return out
}

// DescendantCount counts every node below id.
func (t *GroupTree) DescendantCount(id string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.descendantIDs(id))
}

// IsEnabled reports whether id and every ancestor are not deleted. Recomputed on each call.
func (t *GroupTree) IsEnabled(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isEnabled(id)
}

func (t *GroupTree) isEnabled(id string) bool {
	node, ok := t.nodes[id]
	if !ok {
		return false
	}
	if node.IsDeleted() {
		return false
	}
	if node.ParentID == "" {
		return true
	}
	return t.isEnabled(node.ParentID)
}

// IsDisabled is the negation of IsEnabled.
func (t *GroupTree) IsDisabled(id string) bool {
	return !t.IsEnabled(id)
}

// IsRestorable reports whether id is deleted while no ancestor is.
func (t *GroupTree) IsRestorable(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.nodes[id]
	if !ok || !node.IsDeleted() {
		return false
	}
	for _, ancestor := range t.ancestorIDs(id) {
		if t.nodes[ancestor].IsDeleted() {
			return false
		}
	}
	return true
}

// EnabledChildren returns the direct children that are enabled.
func (t *GroupTree) EnabledChildren(id string) []Group {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := []string{}
	for _, childID := range t.sortedChildIDs(id) {
		if t.isEnabled(childID) {
			ids = append(ids, childID)
		}
	}
	return t.cloneAll(ids)
}

// EnabledChildrenCount counts the enabled direct children.
func (t *GroupTree) EnabledChildrenCount(id string) int {
	return len(t.EnabledChildren(id))
}

// SetDeleted soft-deletes or undeletes one node. Only the first transition to deleted
// stamps DeletedAt; undeleting never checks ancestors (see IsRestorable).
func (t *GroupTree) SetDeleted(id string, deleted bool, actor string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("group %q: %w", id, ErrUnknownGroup)
	}
	node.setDeleted(deleted, actor, now)
	return nil
}

// Level returns the nearest node of kind level, starting at id itself.
func (t *GroupTree) Level(id string) (Group, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.nodes[id]
	for ok {
		if node.IsLevel() {
			return node.clone(), true
		}
		if node.ParentID == "" {
			break
		}
		node, ok = t.nodes[node.ParentID]
	}
	return Group{}, false
}

// LongName joins every ancestor name, root first, and ends with the node's own name.
func (t *GroupTree) LongName(id, separator string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.nodes[id]
	if !ok {
		return ""
	}
	ids := t.ancestorIDs(id)
	names := make([]string, 0, len(ids)+1)
	for i := len(ids) - 1; i >= 0; i-- {
		names = append(names, t.nodes[ids[i]].Name)
	}
	names = append(names, node.Name)
	return strings.Join(names, separator)
}

// IsMember reports direct membership only.
func (t *GroupTree) IsMember(id, userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isMember(id, userID)
}

func (t *GroupTree) isMember(id, userID string) bool {
	if strings.TrimSpace(userID) == "" {
		return false
	}
	node, ok := t.nodes[id]
	if !ok {
		return false
	}
	return node.memberIndex(userID) >= 0
}

// IsMemberOfDescendant reports membership in any node below id.
func (t *GroupTree) IsMemberOfDescendant(id, userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isMemberOfDescendant(id, userID)
}

func (t *GroupTree) isMemberOfDescendant(id, userID string) bool {
	for _, childID := range t.children[id] {
		if t.isMember(childID, userID) || t.isMemberOfDescendant(childID, userID) {
			return true
		}
	}
	return false
}

// IsMemberOfAncestor reports membership in any node on the parent chain.
func (t *GroupTree) IsMemberOfAncestor(id, userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isMemberOfAncestor(id, userID)
}

func (t *GroupTree) isMemberOfAncestor(id, userID string) bool {
	for _, ancestor := range t.ancestorIDs(id) {
		if t.isMember(ancestor, userID) {
			return true
		}
	}
	return false
}

// IsMemberOrMemberOfDescendant combines the direct and downward checks.
func (t *GroupTree) IsMemberOrMemberOfDescendant(id, userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isMember(id, userID) || t.isMemberOfDescendant(id, userID)
}

// IsMemberOrMemberOfAncestor combines the direct and upward checks.
func (t *GroupTree) IsMemberOrMemberOfAncestor(id, userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isMember(id, userID) || t.isMemberOfAncestor(id, userID)
}

// AddMember adds userID as an enabled direct member.
func (t *GroupTree) AddMember(id, userID string, now time.Time) error {
	userID = CanonicalUserID(userID)
	if userID == "" {
		return ErrInvalidID
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("group %q: %w", id, ErrUnknownGroup)
	}
	if !node.AllowDirectMembership {
		return fmt.Errorf("group %q does not allow direct membership: %w", id, ErrInvalidState)
	}
	if node.memberIndex(userID) >= 0 {
		return fmt.Errorf("user %q is already a member of %q: %w", userID, id, ErrInvalidState)
	}
	node.Members = append(node.Members, Membership{
		UserID:   userID,
		Enabled:  true,
		JoinedAt: now.UTC(),
	})
	return nil
}

// SetMemberEnabled toggles one membership's own enabled flag.
func (t *GroupTree) SetMemberEnabled(id, userID string, enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("group %q: %w", id, ErrUnknownGroup)
	}
	idx := node.memberIndex(userID)
	if idx < 0 {
		return fmt.Errorf("user %q is not a member of %q: %w", userID, id, ErrInvalidState)
	}
	node.Members[idx].Enabled = enabled
	return nil
}

// RemoveMember drops one direct membership.
func (t *GroupTree) RemoveMember(id, userID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("group %q: %w", id, ErrUnknownGroup)
	}
	idx := node.memberIndex(userID)
	if idx < 0 {
		return fmt.Errorf("user %q is not a member of %q: %w", userID, id, ErrInvalidState)
	}
	node.Members = slices.Delete(node.Members, idx, idx+1)
	return nil
}

// Members returns every direct membership, enabled or not.
func (t *GroupTree) Members(id string) []Membership {
	t.mu.RLock()
	defer t.mu.RUnlock()
	node, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return slices.Clone(node.Members)
}

// EnabledMembers filters direct memberships by their own enabled flag.
func (t *GroupTree) EnabledMembers(id string) []Membership {
	out := []Membership{}
	for _, m := range t.Members(id) {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// MemberCount counts direct memberships, enabled or not.
func (t *GroupTree) MemberCount(id string) int {
	return len(t.Members(id))
}

// EnabledMemberCount counts enabled direct memberships.
func (t *GroupTree) EnabledMemberCount(id string) int {
	return len(t.EnabledMembers(id))
}

// Users returns the user ids of every direct membership.
func (t *GroupTree) Users(id string) []string {
	members := t.Members(id)
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.UserID)
	}
	return out
}

// AttachActivityMaster records that id owns the given template.
func (t *GroupTree) AttachActivityMaster(id, masterID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("group %q: %w", id, ErrUnknownGroup)
	}
	if !slices.Contains(node.ActivityMasterIDs, masterID) {
		node.ActivityMasterIDs = append(node.ActivityMasterIDs, masterID)
	}
	return nil
}

// ActivityMasterCount counts the templates owned by id.
func (t *GroupTree) ActivityMasterCount(id string) int {
	g, ok := t.Get(id)
	if !ok {
		return 0
	}
	return len(g.ActivityMasterIDs)
}

// GroupDetailsInput holds editable attributes for UpdateDetails.
type GroupDetailsInput struct {
	Name                  string
	Description           string
	SortOrder             int
	AllowDirectMembership bool
}

// UpdateDetails replaces the editable attributes of one node.
func (t *GroupTree) UpdateDetails(id string, in GroupDetailsInput, actor string, now time.Time) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ErrInvalidName
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("group %q: %w", id, ErrUnknownGroup)
	}
	node.Name = name
	node.Description = strings.TrimSpace(in.Description)
	node.SortOrder = in.SortOrder
	node.AllowDirectMembership = in.AllowDirectMembership
	node.touch(actor, now)
	return nil
}

// Rename changes one node's name.
func (t *GroupTree) Rename(id, name, actor string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	node, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("group %q: %w", id, ErrUnknownGroup)
	}
	node.Name = name
	node.touch(actor, now)
	return nil
}

// Purge physically removes id and its whole subtree, returning the removed ids.
func (t *GroupTree) Purge(id string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[id]; !ok {
		return nil, fmt.Errorf("group %q: %w", id, ErrUnknownGroup)
	}
	removed := append([]string{id}, t.descendantIDs(id)...)
	t.unlink(id)
	for _, rid := range removed {
		delete(t.children, rid)
		delete(t.nodes, rid)
	}
	return removed, nil
}

// IsValid reports whether id is structurally valid: every non-level node needs a parent.
func (t *GroupTree) IsValid(id string) bool {
	g, ok := t.Get(id)
	if !ok {
		return false
	}
	return g.IsLevel() || g.ParentID != ""
}

// Validate checks acyclicity, parent/children consistency and parent presence over the
// whole tree and joins every violation found.
func (t *GroupTree) Validate() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var errs []error
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		node := t.nodes[id]
		if !node.IsLevel() && node.ParentID == "" {
			errs = append(errs, fmt.Errorf("group %q has no parent: %w", id, ErrInvalidState))
		}
		if node.ParentID != "" {
			if _, ok := t.nodes[node.ParentID]; !ok {
				errs = append(errs, fmt.Errorf("group %q parent %q: %w", id, node.ParentID, ErrUnknownGroup))
			} else if !slices.Contains(t.children[node.ParentID], id) {
				errs = append(errs, fmt.Errorf("group %q missing from children of %q: %w", id, node.ParentID, ErrInvalidState))
			}
		}
		for _, childID := range t.children[id] {
			child, ok := t.nodes[childID]
			if !ok || child.ParentID != id {
				errs = append(errs, fmt.Errorf("child %q of %q does not point back: %w", childID, id, ErrInvalidState))
			}
		}
		steps := 0
		for cur := node.ParentID; cur != ""; steps++ {
			if cur == id || steps > len(t.nodes) {
				errs = append(errs, fmt.Errorf("group %q is its own ancestor: %w", id, ErrCircularReference))
				break
			}
			next, ok := t.nodes[cur]
			if !ok {
				break
			}
			cur = next.ParentID
		}
	}
	return errors.Join(errs...)
}

// Walk visits every node in hierarchical order (roots, then depth first) until fn returns false.
func (t *GroupTree) Walk(fn func(g Group, depth int) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.walk(func(node *Group, depth int) bool {
		return fn(node.clone(), depth)
	})
}

func (t *GroupTree) walk(fn func(node *Group, depth int) bool) {
	var visit func(id string, depth int) bool
	visit = func(id string, depth int) bool {
		if !fn(t.nodes[id], depth) {
			return false
		}
		for _, childID := range t.sortedChildIDs(id) {
			if !visit(childID, depth+1) {
				return false
			}
		}
		return true
	}
	for _, rootID := range t.rootIDs() {
		if !visit(rootID, 0) {
			return
		}
	}
}

// RecomputeNaturalOrder numbers every node in Walk order and returns the ids whose
// natural order changed.
func (t *GroupTree) RecomputeNaturalOrder() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := []string{}
	idx := 0
	t.walk(func(node *Group, _ int) bool {
		if node.NaturalOrder == nil || *node.NaturalOrder != idx {
			v := idx
			node.NaturalOrder = &v
			changed = append(changed, node.ID)
		}
		idx++
		return true
	})
	return changed
}

func (t *GroupTree) cloneAll(ids []string) []Group {
	out := make([]Group, 0, len(ids))
	for _, id := range ids {
		if node, ok := t.nodes[id]; ok {
			out = append(out, node.clone())
		}
	}
	return out
}

// Restore clears the deleted flag. DeletedAt and DeletedBy keep the last deletion.
func (t *GroupTree) Restore(id, actor string, now time.Time) error {
	return t.SetDeleted(id, false, actor, now)
}
