package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hylla/vitality/internal/domain"
	"github.com/hylla/vitality/internal/validation"
)

// DefaultCodePrefix prefixes generated group codes.
const DefaultCodePrefix = "ugid"

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	CodePrefix        string
	LongNameSeparator string
	// DefaultPoints applies to activities created without points; zero selects the domain default.
	DefaultPoints       int
	DefaultExpiryPeriod domain.ExpiryPeriod
	CodeGenerator       CodeGenerator
	Logger              *charmLog.Logger
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// CodeGenerator returns a fresh group code.
type CodeGenerator func() string

// UUIDCodeGenerator returns codes shaped prefix-uuid.
func UUIDCodeGenerator(prefix string) CodeGenerator {
	prefix = strings.TrimSpace(prefix)
	return func() string {
		if prefix == "" {
			return uuid.NewString()
		}
		return prefix + "-" + uuid.NewString()
	}
}

// Service coordinates group hierarchies and activities over one repository.
//
// Mutations load the tree, apply the change through the domain and persist the touched
// rows. mu serializes that load-modify-store cycle.
type Service struct {
	mu                sync.Mutex
	repo              Repository
	idGen             IDGenerator
	clock             Clock
	codeGen           CodeGenerator
	validate          *validation.Validator
	logger            *charmLog.Logger
	separator         string
	defaultPoints     int
	defaultExpireDays int64
}

// NewService constructs a new value for this package.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return uuid.NewString() }
	}
	if clock == nil {
		clock = time.Now
	}
	if cfg.CodeGenerator == nil {
		prefix := cfg.CodePrefix
		if strings.TrimSpace(prefix) == "" {
			prefix = DefaultCodePrefix
		}
		cfg.CodeGenerator = UUIDCodeGenerator(prefix)
	}
	if cfg.LongNameSeparator == "" {
		cfg.LongNameSeparator = domain.DefaultLongNameSeparator
	}
	if cfg.DefaultPoints <= 0 {
		cfg.DefaultPoints = domain.DefaultActivityPoints
	}
	expireDays := domain.DefaultPointsExpireInDays
	if days := cfg.DefaultExpiryPeriod.Days(); days >= 0 {
		expireDays = days
	}
	if cfg.Logger == nil {
		cfg.Logger = charmLog.New(io.Discard)
	}

	return &Service{
		repo:              repo,
		idGen:             idGen,
		clock:             clock,
		codeGen:           cfg.CodeGenerator,
		validate:          validation.New(),
		logger:            cfg.Logger,
		separator:         cfg.LongNameSeparator,
		defaultPoints:     cfg.DefaultPoints,
		defaultExpireDays: expireDays,
	}
}

// LoadTree hydrates every stored group into one tree.
func (s *Service) LoadTree(ctx context.Context) (*domain.GroupTree, error) {
	groups, err := s.repo.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := domain.BuildGroupTree(groups)
	if err != nil {
		return nil, fmt.Errorf("load group tree: %w", err)
	}
	return tree, nil
}

// CreateGroupInput holds input values for create group operations.
type CreateGroupInput struct {
	ParentID              string           `json:"parent_id"`
	Code                  string           `json:"code" validate:"omitempty,groupcode,max=64"`
	Kind                  domain.GroupKind `json:"kind" validate:"groupkind"`
	Name                  string           `json:"name" validate:"required,max=255"`
	Description           string           `json:"description" validate:"max=2000"`
	SortOrder             int              `json:"sort_order"`
	AllowDirectMembership *bool            `json:"allow_direct_membership"`
}

// CreateLevel creates a level node, the top of one hierarchy.
func (s *Service) CreateLevel(ctx context.Context, in CreateGroupInput) (domain.Group, error) {
	in.Kind = domain.GroupKindLevel
	return s.CreateGroup(ctx, in)
}

// CreateGroup creates one node. Every kind except level needs a parent.
func (s *Service) CreateGroup(ctx context.Context, in CreateGroupInput) (domain.Group, error) {
	if err := s.validate.Validate(in); err != nil {
		return domain.Group{}, err
	}
	kind := domain.NormalizeGroupKind(in.Kind)
	if kind == "" {
		kind = domain.GroupKindGroup
	}
	parentID := strings.TrimSpace(in.ParentID)
	if kind != domain.GroupKindLevel && parentID == "" {
		return domain.Group{}, fmt.Errorf("%s group requires a parent: %w", kind, domain.ErrInvalidState)
	}
	code := strings.TrimSpace(in.Code)
	if code == "" {
		code = s.codeGen()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.LoadTree(ctx)
	if err != nil {
		return domain.Group{}, err
	}
	if codeInUse(tree, code) {
		return domain.Group{}, fmt.Errorf("group code %q is taken: %w", code, domain.ErrInvalidState)
	}
	group, err := tree.Create(domain.GroupInput{
		ID:                    s.idGen(),
		Code:                  code,
		Kind:                  kind,
		Name:                  in.Name,
		Description:           in.Description,
		SortOrder:             in.SortOrder,
		AllowDirectMembership: in.AllowDirectMembership,
		CreatedBy:             actorID(ctx),
	}, parentID, s.clock())
	if err != nil {
		return domain.Group{}, err
	}
	changed := tree.RecomputeNaturalOrder()
	group, _ = tree.Get(group.ID)
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return domain.Group{}, err
	}
	changed = slices.DeleteFunc(changed, func(id string) bool { return id == group.ID })
	if err := s.persistGroups(ctx, tree, changed...); err != nil {
		return domain.Group{}, err
	}
	s.logger.Info("group created", "id", group.ID, "kind", group.Kind, "parent", parentID)
	return group, nil
}

// UpdateGroupInput holds editable group attributes.
type UpdateGroupInput struct {
	Name                  string `json:"name" validate:"required,max=255"`
	Description           string `json:"description" validate:"max=2000"`
	SortOrder             int    `json:"sort_order"`
	AllowDirectMembership bool   `json:"allow_direct_membership"`
}

// UpdateGroup replaces the editable attributes of one group.
func (s *Service) UpdateGroup(ctx context.Context, id string, in UpdateGroupInput) (domain.Group, error) {
	if err := s.validate.Validate(in); err != nil {
		return domain.Group{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadTreeWith(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	err = tree.UpdateDetails(id, domain.GroupDetailsInput{
		Name:                  in.Name,
		Description:           in.Description,
		SortOrder:             in.SortOrder,
		AllowDirectMembership: in.AllowDirectMembership,
	}, actorID(ctx), s.clock())
	if err != nil {
		return domain.Group{}, err
	}
	changed := tree.RecomputeNaturalOrder()
	if err := s.persistGroups(ctx, tree, append(changed, id)...); err != nil {
		return domain.Group{}, err
	}
	group, _ := tree.Get(id)
	return group, nil
}

// MoveGroup re-parents one group. Only levels may be detached.
func (s *Service) MoveGroup(ctx context.Context, id, parentID string) (domain.Group, error) {
	parentID = strings.TrimSpace(parentID)
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadTreeWith(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	group, _ := tree.Get(id)
	if parentID == "" && !group.IsLevel() {
		return domain.Group{}, fmt.Errorf("detach %s group %q: %w", group.Kind, id, domain.ErrInvalidState)
	}
	if err := tree.SetParent(id, parentID); err != nil {
		return domain.Group{}, err
	}
	changed := tree.RecomputeNaturalOrder()
	if err := s.persistGroups(ctx, tree, append(changed, id)...); err != nil {
		return domain.Group{}, err
	}
	group, _ = tree.Get(id)
	s.logger.Info("group moved", "id", id, "parent", parentID)
	return group, nil
}

// DeleteGroup soft-deletes one group; its subtree becomes disabled.
func (s *Service) DeleteGroup(ctx context.Context, id string) (domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadTreeWith(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	if err := tree.SetDeleted(id, true, actorID(ctx), s.clock()); err != nil {
		return domain.Group{}, err
	}
	if err := s.persistGroups(ctx, tree, id); err != nil {
		return domain.Group{}, err
	}
	group, _ := tree.Get(id)
	s.logger.Info("group deleted", "id", id, "descendants", tree.DescendantCount(id))
	return group, nil
}

// RestoreGroup undeletes a group whose ancestors are all live.
func (s *Service) RestoreGroup(ctx context.Context, id string) (domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadTreeWith(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	if !tree.IsRestorable(id) {
		return domain.Group{}, fmt.Errorf("group %q is not restorable: %w", id, domain.ErrInvalidState)
	}
	if err := tree.Restore(id, actorID(ctx), s.clock()); err != nil {
		return domain.Group{}, err
	}
	if err := s.persistGroups(ctx, tree, id); err != nil {
		return domain.Group{}, err
	}
	group, _ := tree.Get(id)
	s.logger.Info("group restored", "id", id)
	return group, nil
}

// PurgeGroup physically removes a group and its subtree and returns the removed ids.
func (s *Service) PurgeGroup(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadTreeWith(ctx, id)
	if err != nil {
		return nil, err
	}
	removed, err := tree.Purge(id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.DeleteGroup(ctx, id); err != nil {
		return nil, err
	}
	if err := s.persistGroups(ctx, tree, tree.RecomputeNaturalOrder()...); err != nil {
		return nil, err
	}
	s.logger.Warn("group purged", "id", id, "removed", len(removed))
	return removed, nil
}

// AddMember adds one user as an enabled direct member.
func (s *Service) AddMember(ctx context.Context, groupID, userID string) (domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadTreeWith(ctx, groupID)
	if err != nil {
		return domain.Membership{}, err
	}
	if err := tree.AddMember(groupID, userID, s.clock()); err != nil {
		return domain.Membership{}, err
	}
	membership, _ := findMembership(tree.Members(groupID), userID)
	if err := s.repo.SaveMembership(ctx, groupID, membership); err != nil {
		return domain.Membership{}, err
	}
	s.logger.Info("member added", "group", groupID, "user", membership.UserID)
	return membership, nil
}

// SetMemberEnabled toggles one membership.
func (s *Service) SetMemberEnabled(ctx context.Context, groupID, userID string, enabled bool) (domain.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadTreeWith(ctx, groupID)
	if err != nil {
		return domain.Membership{}, err
	}
	if err := tree.SetMemberEnabled(groupID, userID, enabled); err != nil {
		return domain.Membership{}, err
	}
	membership, ok := findMembership(tree.Members(groupID), userID)
	if !ok {
		return domain.Membership{}, fmt.Errorf("user %q is not a member of %q: %w", userID, groupID, domain.ErrInvalidState)
	}
	if err := s.repo.SaveMembership(ctx, groupID, membership); err != nil {
		return domain.Membership{}, err
	}
	return membership, nil
}

// RemoveMember drops one direct membership.
func (s *Service) RemoveMember(ctx context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadTreeWith(ctx, groupID)
	if err != nil {
		return err
	}
	membership, ok := findMembership(tree.Members(groupID), userID)
	if err := tree.RemoveMember(groupID, userID); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %q is not a member of %q: %w", userID, groupID, domain.ErrInvalidState)
	}
	if err := s.repo.DeleteMembership(ctx, groupID, membership.UserID); err != nil {
		return err
	}
	s.logger.Info("member removed", "group", groupID, "user", membership.UserID)
	return nil
}

// RenameGroup replaces the name of one group.
func (s *Service) RenameGroup(ctx context.Context, id, name string) (domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadTreeWith(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	if err := tree.Rename(id, name, actorID(ctx), s.clock()); err != nil {
		return domain.Group{}, err
	}
	changed := tree.RecomputeNaturalOrder()
	if err := s.persistGroups(ctx, tree, append(changed, id)...); err != nil {
		return domain.Group{}, err
	}
	group, _ := tree.Get(id)
	s.logger.Info("group renamed", "id", id, "name", group.Name)
	return group, nil
}

// GroupDetails describes one group in the context of its tree.
type GroupDetails struct {
	Group                domain.Group
	LongName             string
	Depth                int
	Level                *domain.Group
	Ancestors            []domain.Group
	Children             []domain.Group
	Enabled              bool
	Restorable           bool
	Valid                bool
	DescendantCount      int
	EnabledChildrenCount int
	MemberCount          int
	EnabledMemberCount   int
	ActivityMasterCount  int
	Users                []string
}

// GroupDetails resolves the derived state of one group.
func (s *Service) GroupDetails(ctx context.Context, id string) (GroupDetails, error) {
	tree, err := s.loadTreeWith(ctx, id)
	if err != nil {
		return GroupDetails{}, err
	}
	group, _ := tree.Get(id)
	out := GroupDetails{
		Group:                group,
		LongName:             tree.LongName(id, s.separator),
		Depth:                tree.Depth(id),
		Ancestors:            tree.Ancestors(id),
		Children:             tree.Children(id),
		Enabled:              tree.IsEnabled(id),
		Restorable:           tree.IsRestorable(id),
		Valid:                tree.IsValid(id),
		DescendantCount:      tree.DescendantCount(id),
		EnabledChildrenCount: tree.EnabledChildrenCount(id),
		MemberCount:          tree.MemberCount(id),
		EnabledMemberCount:   tree.EnabledMemberCount(id),
		ActivityMasterCount:  tree.ActivityMasterCount(id),
		Users:                tree.Users(id),
	}
	if level, ok := tree.Level(id); ok {
		out.Level = &level
	}
	return out, nil
}

// LongNameSeparator returns the configured separator for display.
func (s *Service) LongNameSeparator() string {
	return s.separator
}

// loadTreeWith loads the tree and confirms id is part of it.
func (s *Service) loadTreeWith(ctx context.Context, id string) (*domain.GroupTree, error) {
	tree, err := s.LoadTree(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := tree.Get(id); !ok {
		return nil, fmt.Errorf("group %q: %w", id, ErrNotFound)
	}
	return tree, nil
}

// persistGroups writes the current state of each listed group once.
func (s *Service) persistGroups(ctx context.Context, tree *domain.GroupTree, ids ...string) error {
	slices.Sort(ids)
	for _, id := range slices.Compact(ids) {
		group, ok := tree.Get(id)
		if !ok {
			continue
		}
		if err := s.repo.UpdateGroup(ctx, group); err != nil {
			return fmt.Errorf("persist group %q: %w", id, err)
		}
	}
	return nil
}

func codeInUse(tree *domain.GroupTree, code string) bool {
	found := false
	tree.Walk(func(g domain.Group, _ int) bool {
		found = g.Code == code
		return !found
	})
	return found
}

func findMembership(members []domain.Membership, userID string) (domain.Membership, bool) {
	for _, m := range members {
		if domain.SameUser(m.UserID, userID) {
			return m, true
		}
	}
	return domain.Membership{}, false
}

// isNotFound reports whether err is a repository miss.
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
