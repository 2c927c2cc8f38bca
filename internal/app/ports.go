package app

import (
	"context"

	"github.com/hylla/vitality/internal/domain"
)

// Repository is the persistence port. Physically deleting a group cascades to its
// subtree, memberships and templates.
type Repository interface {
	CreateGroup(context.Context, domain.Group) error
	UpdateGroup(context.Context, domain.Group) error
	GetGroup(context.Context, string) (domain.Group, error)
	ListGroups(context.Context) ([]domain.Group, error)
	DeleteGroup(context.Context, string) error
	SaveMembership(context.Context, string, domain.Membership) error
	DeleteMembership(context.Context, string, string) error

	CreateActivityMaster(context.Context, domain.ActivityMaster) error
	GetActivityMaster(context.Context, string) (domain.ActivityMaster, error)
	ListActivityMasters(context.Context, string) ([]domain.ActivityMaster, error)

	CreateActivity(context.Context, domain.Activity) error
	UpdateActivity(context.Context, domain.Activity) error
	GetActivity(context.Context, string) (domain.Activity, error)
	ListActivities(context.Context, ActivityFilter) ([]domain.Activity, error)
	// RecordPointsAssignment fails with domain.ErrInvalidState when points were already assigned.
	RecordPointsAssignment(context.Context, domain.Activity, []domain.LedgerEntry) error

	CreateMilestone(context.Context, domain.Milestone) error
	UpdateMilestone(context.Context, domain.Milestone) error
	ListMilestones(context.Context, string) ([]domain.Milestone, error)

	AppendLedgerEntries(context.Context, []domain.LedgerEntry) error
	ListLedgerEntries(context.Context, LedgerFilter) ([]domain.LedgerEntry, error)
}

// ActivityFilter narrows ListActivities. Empty fields match everything.
type ActivityFilter struct {
	ReceivingUserID string
	GroupID         string
	LevelID         string
}

// LedgerFilter narrows ListLedgerEntries. Empty fields match everything.
type LedgerFilter struct {
	UserID     string
	LevelID    string
	ActivityID string
}
