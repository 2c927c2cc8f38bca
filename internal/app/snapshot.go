package app

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/hylla/vitality/internal/domain"
)

// SnapshotVersion defines a package constant value.
const SnapshotVersion = "vitality.snapshot.v1"

// Snapshot is a portable JSON copy of the whole store.
type Snapshot struct {
	Version         string                   `json:"version"`
	ExportedAt      time.Time                `json:"exported_at"`
	Groups          []SnapshotGroup          `json:"groups"`
	ActivityMasters []SnapshotActivityMaster `json:"activity_masters,omitempty"`
	Activities      []SnapshotActivity       `json:"activities"`
	Milestones      []SnapshotMilestone      `json:"milestones,omitempty"`
	LevelUpdates    []SnapshotLevelUpdate    `json:"level_updates,omitempty"`
}

// SnapshotGroup represents snapshot group data used by this package.
type SnapshotGroup struct {
	ID                    string              `json:"id"`
	ParentID              string              `json:"parent_id,omitempty"`
	Code                  string              `json:"code"`
	Kind                  domain.GroupKind    `json:"kind"`
	Name                  string              `json:"name"`
	Description           string              `json:"description"`
	SortOrder             int                 `json:"sort_order"`
	NaturalOrder          *int                `json:"natural_order,omitempty"`
	AllowDirectMembership bool                `json:"allow_direct_membership"`
	Deleted               *bool               `json:"deleted,omitempty"`
	DeletedAt             *time.Time          `json:"deleted_at,omitempty"`
	DeletedBy             string              `json:"deleted_by,omitempty"`
	Members               []domain.Membership `json:"members,omitempty"`
	CreatedBy             string              `json:"created_by,omitempty"`
	CreatedAt             time.Time           `json:"created_at"`
	LastModifiedBy        string              `json:"last_modified_by,omitempty"`
	LastModifiedAt        *time.Time          `json:"last_modified_at,omitempty"`
}

// SnapshotActivityMaster represents snapshot template data used by this package.
type SnapshotActivityMaster struct {
	ID                 string    `json:"id"`
	LevelID            string    `json:"level_id"`
	GroupID            string    `json:"group_id"`
	Name               string    `json:"name"`
	Description        string    `json:"description"`
	Points             int       `json:"points"`
	PointsExpireInDays int64     `json:"points_expire_in_days"`
	CreatedAt          time.Time `json:"created_at"`
}

// SnapshotActivity represents snapshot activity data used by this package.
type SnapshotActivity struct {
	ID                 string     `json:"id"`
	LevelID            string     `json:"level_id"`
	GroupID            string     `json:"group_id"`
	ReceivingUserID    string     `json:"receiving_user_id"`
	ConsentingUserID   string     `json:"consenting_user_id"`
	ActivityMasterID   string     `json:"activity_master_id,omitempty"`
	Name               string     `json:"name"`
	Description        string     `json:"description"`
	Points             int        `json:"points"`
	PointsExpireInDays int64      `json:"points_expire_in_days"`
	Completed          bool       `json:"completed"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	PointsAssigned     bool       `json:"points_assigned"`
	PointsAssignedAt   *time.Time `json:"points_assigned_at,omitempty"`
	ActiveFrom         *time.Time `json:"active_from,omitempty"`
	ActiveTo           *time.Time `json:"active_to,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// SnapshotMilestone represents snapshot milestone data used by this package.
type SnapshotMilestone struct {
	ID          string    `json:"id"`
	LevelID     string    `json:"level_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Points      int       `json:"points"`
	Color       string    `json:"color"`
	CreatedAt   time.Time `json:"created_at"`
}

// SnapshotLevelUpdate represents one ledger entry in a snapshot.
type SnapshotLevelUpdate struct {
	ActivityID  string            `json:"activity_id"`
	UserID      string            `json:"user_id"`
	LevelID     string            `json:"level_id"`
	Kind        domain.LedgerKind `json:"kind"`
	Points      int               `json:"points"`
	EffectiveAt time.Time         `json:"effective_at"`
}

// ExportSnapshot handles export snapshot.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	groups, err := s.repo.ListGroups(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	masters, err := s.repo.ListActivityMasters(ctx, "")
	if err != nil {
		return Snapshot{}, err
	}
	activities, err := s.repo.ListActivities(ctx, ActivityFilter{})
	if err != nil {
		return Snapshot{}, err
	}
	milestones, err := s.repo.ListMilestones(ctx, "")
	if err != nil {
		return Snapshot{}, err
	}
	entries, err := s.repo.ListLedgerEntries(ctx, LedgerFilter{})
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:         SnapshotVersion,
		ExportedAt:      s.clock().UTC(),
		Groups:          make([]SnapshotGroup, 0, len(groups)),
		ActivityMasters: make([]SnapshotActivityMaster, 0, len(masters)),
		Activities:      make([]SnapshotActivity, 0, len(activities)),
		Milestones:      make([]SnapshotMilestone, 0, len(milestones)),
		LevelUpdates:    make([]SnapshotLevelUpdate, 0, len(entries)),
	}
	for _, g := range groups {
		snap.Groups = append(snap.Groups, snapshotGroupFromDomain(g))
	}
	for _, m := range masters {
		snap.ActivityMasters = append(snap.ActivityMasters, SnapshotActivityMaster(m))
	}
	for _, a := range activities {
		snap.Activities = append(snap.Activities, snapshotActivityFromDomain(a))
	}
	for _, m := range milestones {
		snap.Milestones = append(snap.Milestones, SnapshotMilestone(m))
	}
	for _, e := range entries {
		snap.LevelUpdates = append(snap.LevelUpdates, SnapshotLevelUpdate{
			ActivityID:  e.ActivityID,
			UserID:      e.UserID,
			LevelID:     e.LevelID,
			Kind:        e.Kind,
			Points:      e.Points,
			EffectiveAt: e.EffectiveAt,
		})
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot upserts every row of snap. Groups are written parents first.
//
// Nothing is written unless the snapshot merged with the stored rows passes checkImport.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.checkImport(ctx, snap)
	if err != nil {
		return err
	}
	incoming := make(map[string]struct{}, len(snap.Groups))
	for _, g := range snap.Groups {
		incoming[strings.TrimSpace(g.ID)] = struct{}{}
	}
	var walkErr error
	tree.Walk(func(g domain.Group, _ int) bool {
		if _, ok := incoming[g.ID]; !ok {
			return true
		}
		walkErr = s.upsertGroup(ctx, g)
		return walkErr == nil
	})
	if walkErr != nil {
		return walkErr
	}
	for _, g := range snap.Groups {
		for _, m := range g.Members {
			if err := s.repo.SaveMembership(ctx, g.ID, m); err != nil {
				return err
			}
		}
	}

	for _, m := range snap.ActivityMasters {
		if _, err := s.repo.GetActivityMaster(ctx, m.ID); err == nil {
			continue
		} else if !isNotFound(err) {
			return err
		}
		if err := s.repo.CreateActivityMaster(ctx, domain.ActivityMaster(m)); err != nil {
			return err
		}
	}
	for _, a := range snap.Activities {
		da := a.toDomain()
		if _, err := s.repo.GetActivity(ctx, da.ID); err == nil {
			if err := s.repo.UpdateActivity(ctx, da); err != nil {
				return err
			}
			continue
		} else if !isNotFound(err) {
			return err
		}
		if err := s.repo.CreateActivity(ctx, da); err != nil {
			return err
		}
	}
	if err := s.importMilestones(ctx, snap.Milestones); err != nil {
		return err
	}
	if err := s.importLevelUpdates(ctx, snap.LevelUpdates); err != nil {
		return err
	}
	s.logger.Info("snapshot imported", "groups", len(snap.Groups), "activities", len(snap.Activities))
	return nil
}

// Validate checks ids, references and activity windows.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	groupIDs := map[string]struct{}{}
	for i, g := range s.Groups {
		if strings.TrimSpace(g.ID) == "" {
			return fmt.Errorf("groups[%d].id is required", i)
		}
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("groups[%d].name is required", i)
		}
		if !domain.IsValidGroupCode(g.Code) {
			return fmt.Errorf("groups[%d].code %q: %w", i, g.Code, domain.ErrInvalidCode)
		}
		if !domain.IsValidGroupKind(g.Kind) {
			return fmt.Errorf("groups[%d].kind %q: %w", i, g.Kind, domain.ErrInvalidKind)
		}
		if _, exists := groupIDs[g.ID]; exists {
			return fmt.Errorf("duplicate group id: %q", g.ID)
		}
		groupIDs[g.ID] = struct{}{}
	}
	for i, g := range s.Groups {
		if g.ParentID == "" {
			if domain.NormalizeGroupKind(g.Kind) != domain.GroupKindLevel {
				return fmt.Errorf("groups[%d] %s group needs a parent: %w", i, g.Kind, domain.ErrInvalidState)
			}
			continue
		}
		if _, ok := groupIDs[g.ParentID]; !ok {
			return fmt.Errorf("groups[%d] references unknown parent_id %q", i, g.ParentID)
		}
	}

	masterIDs := map[string]struct{}{}
	for i, m := range s.ActivityMasters {
		if strings.TrimSpace(m.ID) == "" {
			return fmt.Errorf("activity_masters[%d].id is required", i)
		}
		if _, ok := groupIDs[m.GroupID]; !ok {
			return fmt.Errorf("activity_masters[%d] references unknown group_id %q", i, m.GroupID)
		}
		masterIDs[m.ID] = struct{}{}
	}

	activityIDs := map[string]struct{}{}
	for i, a := range s.Activities {
		if strings.TrimSpace(a.ID) == "" {
			return fmt.Errorf("activities[%d].id is required", i)
		}
		if _, ok := groupIDs[a.GroupID]; !ok {
			return fmt.Errorf("activities[%d] references unknown group_id %q", i, a.GroupID)
		}
		if a.ActivityMasterID != "" {
			if _, ok := masterIDs[a.ActivityMasterID]; !ok {
				return fmt.Errorf("activities[%d] references unknown activity_master_id %q", i, a.ActivityMasterID)
			}
		}
		if a.ActiveFrom != nil && a.ActiveTo != nil && a.ActiveTo.Before(*a.ActiveFrom) {
			return fmt.Errorf("activities[%d]: %w", i, domain.ErrInvalidWindow)
		}
		if a.Points < 0 || a.PointsExpireInDays < 0 {
			return fmt.Errorf("activities[%d]: %w", i, domain.ErrInvalidPoints)
		}
		if _, exists := activityIDs[a.ID]; exists {
			return fmt.Errorf("duplicate activity id: %q", a.ID)
		}
		activityIDs[a.ID] = struct{}{}
	}

	for i, m := range s.Milestones {
		if _, ok := groupIDs[m.LevelID]; !ok {
			return fmt.Errorf("milestones[%d] references unknown level_id %q", i, m.LevelID)
		}
	}
	for i, e := range s.LevelUpdates {
		if _, ok := activityIDs[e.ActivityID]; !ok {
			return fmt.Errorf("level_updates[%d] references unknown activity_id %q", i, e.ActivityID)
		}
	}
	return nil
}

// checkImport merges snap into the stored hierarchy and returns the resulting tree.
// Nothing is written.
func (s *Service) checkImport(ctx context.Context, snap Snapshot) (*domain.GroupTree, error) {
	stored, err := s.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]domain.Group, len(stored)+len(snap.Groups))
	for _, g := range stored {
		merged[g.ID] = g
	}
	for _, g := range snap.Groups {
		dg := g.toDomain()
		merged[dg.ID] = dg
	}
	groups := slices.Collect(maps.Values(merged))
	slices.SortFunc(groups, func(a, b domain.Group) int { return cmp.Compare(a.ID, b.ID) })

	codes := make(map[string]string, len(groups))
	for _, g := range groups {
		if other, ok := codes[g.Code]; ok {
			return nil, fmt.Errorf("group code %q used by %q and %q: %w", g.Code, other, g.ID, domain.ErrInvalidState)
		}
		codes[g.Code] = g.ID
	}
	tree, err := domain.BuildGroupTree(groups)
	if err != nil {
		return nil, fmt.Errorf("snapshot groups: %w", err)
	}
	if err := tree.Validate(); err != nil {
		return nil, fmt.Errorf("snapshot groups: %w", err)
	}

	masters := make(map[string]domain.ActivityMaster, len(snap.ActivityMasters))
	for _, m := range snap.ActivityMasters {
		master := domain.ActivityMaster(m)
		if existing, err := s.repo.GetActivityMaster(ctx, m.ID); err == nil {
			master = existing
		} else if !isNotFound(err) {
			return nil, err
		}
		if err := checkLevel(tree, master.GroupID, master.LevelID); err != nil {
			return nil, fmt.Errorf("activity template %q: %w", master.ID, err)
		}
		masters[master.ID] = master
	}
	for _, a := range snap.Activities {
		da := a.toDomain()
		if err := checkLevel(tree, da.GroupID, da.LevelID); err != nil {
			return nil, fmt.Errorf("activity %q: %w", da.ID, err)
		}
		if da.ActivityMasterID == "" {
			continue
		}
		master, ok := masters[da.ActivityMasterID]
		if !ok {
			return nil, fmt.Errorf("activity %q template %q: %w", da.ID, da.ActivityMasterID, ErrNotFound)
		}
		if err := da.AttachMaster(master); err != nil {
			return nil, err
		}
	}
	return tree, nil
}

// checkLevel confirms levelID is the level above groupID.
func checkLevel(tree *domain.GroupTree, groupID, levelID string) error {
	level, ok := tree.Level(groupID)
	if !ok {
		return fmt.Errorf("group %q has no level: %w", groupID, domain.ErrInvalidState)
	}
	if level.ID != levelID {
		return fmt.Errorf("level %q is not the level of group %q: %w", levelID, groupID, domain.ErrInvalidState)
	}
	return nil
}

func (s *Service) upsertGroup(ctx context.Context, g domain.Group) error {
	if _, err := s.repo.GetGroup(ctx, g.ID); err == nil {
		return s.repo.UpdateGroup(ctx, g)
	} else if !isNotFound(err) {
		return err
	}
	return s.repo.CreateGroup(ctx, g)
}

func (s *Service) importMilestones(ctx context.Context, milestones []SnapshotMilestone) error {
	existing, err := s.repo.ListMilestones(ctx, "")
	if err != nil {
		return err
	}
	for _, m := range milestones {
		dm := domain.Milestone(m)
		if slices.ContainsFunc(existing, func(e domain.Milestone) bool { return e.ID == m.ID }) {
			if err := s.repo.UpdateMilestone(ctx, dm); err != nil {
				return err
			}
			continue
		}
		if err := s.repo.CreateMilestone(ctx, dm); err != nil {
			return err
		}
	}
	return nil
}

// importLevelUpdates appends the entries not already recorded for their activity.
func (s *Service) importLevelUpdates(ctx context.Context, updates []SnapshotLevelUpdate) error {
	existing, err := s.repo.ListLedgerEntries(ctx, LedgerFilter{})
	if err != nil {
		return err
	}
	type ledgerKey struct {
		activityID string
		kind       domain.LedgerKind
		at         int64
	}
	seen := map[ledgerKey]struct{}{}
	for _, e := range existing {
		seen[ledgerKey{e.ActivityID, e.Kind, e.EffectiveAt.UnixNano()}] = struct{}{}
	}
	fresh := []domain.LedgerEntry{}
	for _, u := range updates {
		key := ledgerKey{u.ActivityID, u.Kind, u.EffectiveAt.UnixNano()}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, domain.LedgerEntry{
			ActivityID:  u.ActivityID,
			UserID:      u.UserID,
			LevelID:     u.LevelID,
			Kind:        u.Kind,
			Points:      u.Points,
			EffectiveAt: u.EffectiveAt.UTC(),
		})
	}
	if len(fresh) == 0 {
		return nil
	}
	return s.repo.AppendLedgerEntries(ctx, fresh)
}

func (s *Snapshot) sort() {
	slices.SortFunc(s.Groups, func(a, b SnapshotGroup) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.ActivityMasters, func(a, b SnapshotActivityMaster) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Activities, func(a, b SnapshotActivity) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.Milestones, func(a, b SnapshotMilestone) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(s.LevelUpdates, func(a, b SnapshotLevelUpdate) int {
		return cmp.Or(
			a.EffectiveAt.Compare(b.EffectiveAt),
			cmp.Compare(a.ActivityID, b.ActivityID),
			cmp.Compare(a.Kind, b.Kind),
		)
	})
}

func snapshotGroupFromDomain(g domain.Group) SnapshotGroup {
	return SnapshotGroup{
		ID:                    g.ID,
		ParentID:              g.ParentID,
		Code:                  g.Code,
		Kind:                  g.Kind,
		Name:                  g.Name,
		Description:           g.Description,
		SortOrder:             g.SortOrder,
		NaturalOrder:          g.NaturalOrder,
		AllowDirectMembership: g.AllowDirectMembership,
		Deleted:               g.Deleted,
		DeletedAt:             g.DeletedAt,
		DeletedBy:             g.DeletedBy,
		Members:               g.Members,
		CreatedBy:             g.CreatedBy,
		CreatedAt:             g.CreatedAt,
		LastModifiedBy:        g.LastModifiedBy,
		LastModifiedAt:        g.LastModifiedAt,
	}
}

func (g SnapshotGroup) toDomain() domain.Group {
	return domain.Group{
		ID:                    strings.TrimSpace(g.ID),
		ParentID:              strings.TrimSpace(g.ParentID),
		Code:                  g.Code,
		Kind:                  domain.NormalizeGroupKind(g.Kind),
		Name:                  g.Name,
		Description:           g.Description,
		SortOrder:             g.SortOrder,
		NaturalOrder:          g.NaturalOrder,
		AllowDirectMembership: g.AllowDirectMembership,
		Deleted:               g.Deleted,
		DeletedAt:             copyTimePtr(g.DeletedAt),
		DeletedBy:             g.DeletedBy,
		CreatedBy:             g.CreatedBy,
		CreatedAt:             g.CreatedAt.UTC(),
		LastModifiedBy:        g.LastModifiedBy,
		LastModifiedAt:        copyTimePtr(g.LastModifiedAt),
	}
}

func snapshotActivityFromDomain(a domain.Activity) SnapshotActivity {
	return SnapshotActivity{
		ID:                 a.ID,
		LevelID:            a.LevelID,
		GroupID:            a.GroupID,
		ReceivingUserID:    a.ReceivingUserID,
		ConsentingUserID:   a.ConsentingUserID,
		ActivityMasterID:   a.ActivityMasterID,
		Name:               a.Name,
		Description:        a.Description,
		Points:             a.Points,
		PointsExpireInDays: a.PointsExpireInDays,
		Completed:          a.Completed,
		CompletedAt:        a.CompletedAt,
		PointsAssigned:     a.PointsAssigned,
		PointsAssignedAt:   a.PointsAssignedAt,
		ActiveFrom:         a.ActiveFrom,
		ActiveTo:           a.ActiveTo,
		CreatedAt:          a.CreatedAt,
	}
}

func (a SnapshotActivity) toDomain() domain.Activity {
	return domain.Activity{
		ID:                 a.ID,
		LevelID:            a.LevelID,
		GroupID:            a.GroupID,
		ReceivingUserID:    a.ReceivingUserID,
		ConsentingUserID:   a.ConsentingUserID,
		ActivityMasterID:   a.ActivityMasterID,
		Name:               a.Name,
		Description:        a.Description,
		Points:             a.Points,
		PointsExpireInDays: a.PointsExpireInDays,
		Completed:          a.Completed,
		CompletedAt:        copyTimePtr(a.CompletedAt),
		PointsAssigned:     a.PointsAssigned,
		PointsAssignedAt:   copyTimePtr(a.PointsAssignedAt),
		ActiveFrom:         copyTimePtr(a.ActiveFrom),
		ActiveTo:           copyTimePtr(a.ActiveTo),
		CreatedAt:          a.CreatedAt.UTC(),
	}
}

// copyTimePtr returns a UTC copy of an optional instant.
func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	ts := in.UTC()
	return &ts
}
