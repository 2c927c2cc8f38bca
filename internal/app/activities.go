package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/vitality/internal/domain"
)

// CreateActivityMasterInput holds input values for template creation.
type CreateActivityMasterInput struct {
	GroupID            string `json:"group_id" validate:"required"`
	Name               string `json:"name" validate:"required,max=255"`
	Description        string `json:"description" validate:"max=2000"`
	Points             *int   `json:"points" validate:"omitempty,gte=0"`
	ExpiryPeriod       string `json:"expiry_period" validate:"expiry"`
	PointsExpireInDays *int64 `json:"points_expire_in_days" validate:"omitempty,gte=0"`
}

// CreateActivityMaster creates a template owned by one group and its level.
func (s *Service) CreateActivityMaster(ctx context.Context, in CreateActivityMasterInput) (domain.ActivityMaster, error) {
	if err := s.validate.Validate(in); err != nil {
		return domain.ActivityMaster{}, err
	}
	expireDays, err := s.resolveExpiryDays(in.ExpiryPeriod, in.PointsExpireInDays)
	if err != nil {
		return domain.ActivityMaster{}, err
	}
	points := s.defaultPoints
	if in.Points != nil {
		points = *in.Points
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadTreeWith(ctx, in.GroupID)
	if err != nil {
		return domain.ActivityMaster{}, err
	}
	level, ok := tree.Level(in.GroupID)
	if !ok {
		return domain.ActivityMaster{}, fmt.Errorf("group %q has no level: %w", in.GroupID, domain.ErrInvalidState)
	}
	master, err := domain.NewActivityMaster(domain.ActivityMasterInput{
		ID:                 s.idGen(),
		LevelID:            level.ID,
		GroupID:            in.GroupID,
		Name:               in.Name,
		Description:        in.Description,
		Points:             &points,
		PointsExpireInDays: &expireDays,
	}, s.clock())
	if err != nil {
		return domain.ActivityMaster{}, err
	}
	if err := s.repo.CreateActivityMaster(ctx, master); err != nil {
		return domain.ActivityMaster{}, err
	}
	s.logger.Info("activity template created", "id", master.ID, "group", master.GroupID, "level", master.LevelID)
	return master, nil
}

// CreateActivityInput holds input values for activity creation. With a template id the
// template supplies group, name and point configuration unless overridden here.
type CreateActivityInput struct {
	ActivityMasterID   string     `json:"activity_master_id"`
	GroupID            string     `json:"group_id" validate:"required_without=ActivityMasterID"`
	ReceivingUserID    string     `json:"receiving_user_id" validate:"required"`
	ConsentingUserID   string     `json:"consenting_user_id" validate:"required"`
	Name               string     `json:"name" validate:"required_without=ActivityMasterID,max=255"`
	Description        string     `json:"description" validate:"max=2000"`
	Points             *int       `json:"points" validate:"omitempty,gte=0"`
	ExpiryPeriod       string     `json:"expiry_period" validate:"expiry"`
	PointsExpireInDays *int64     `json:"points_expire_in_days" validate:"omitempty,gte=0"`
	ActiveFrom         *time.Time `json:"active_from"`
	ActiveTo           *time.Time `json:"active_to"`
}

// CreateActivity creates an activity in an enabled group.
func (s *Service) CreateActivity(ctx context.Context, in CreateActivityInput) (domain.Activity, error) {
	if err := s.validate.Validate(in); err != nil {
		return domain.Activity{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		ai     domain.ActivityInput
		master *domain.ActivityMaster
	)
	if id := strings.TrimSpace(in.ActivityMasterID); id != "" {
		m, err := s.repo.GetActivityMaster(ctx, id)
		if err != nil {
			return domain.Activity{}, fmt.Errorf("activity template %q: %w", id, err)
		}
		if in.GroupID != "" && in.GroupID != m.GroupID {
			return domain.Activity{}, fmt.Errorf("template %q belongs to group %q: %w", m.ID, m.GroupID, domain.ErrInvalidState)
		}
		ai = m.ActivityInput(s.idGen(), in.ReceivingUserID, in.ConsentingUserID)
		if strings.TrimSpace(in.Name) != "" {
			ai.Name = in.Name
		}
		if strings.TrimSpace(in.Description) != "" {
			ai.Description = in.Description
		}
		master = &m
	} else {
		ai = domain.ActivityInput{
			ID:               s.idGen(),
			GroupID:          in.GroupID,
			ReceivingUserID:  in.ReceivingUserID,
			ConsentingUserID: in.ConsentingUserID,
			Name:             in.Name,
			Description:      in.Description,
		}
	}
	if in.Points != nil {
		ai.Points = in.Points
	} else if ai.Points == nil {
		points := s.defaultPoints
		ai.Points = &points
	}
	if in.PointsExpireInDays != nil || in.ExpiryPeriod != "" || ai.PointsExpireInDays == nil {
		expireDays, err := s.resolveExpiryDays(in.ExpiryPeriod, in.PointsExpireInDays)
		if err != nil {
			return domain.Activity{}, err
		}
		ai.PointsExpireInDays = &expireDays
	}
	ai.ActiveFrom = in.ActiveFrom
	ai.ActiveTo = in.ActiveTo

	tree, err := s.loadTreeWith(ctx, ai.GroupID)
	if err != nil {
		return domain.Activity{}, err
	}
	if !tree.IsEnabled(ai.GroupID) {
		return domain.Activity{}, fmt.Errorf("group %q is disabled: %w", ai.GroupID, domain.ErrInvalidState)
	}
	level, ok := tree.Level(ai.GroupID)
	if !ok {
		return domain.Activity{}, fmt.Errorf("group %q has no level: %w", ai.GroupID, domain.ErrInvalidState)
	}
	ai.LevelID = level.ID

	activity, err := domain.NewActivity(ai, s.clock())
	if err != nil {
		return domain.Activity{}, err
	}
	if master != nil {
		if err := activity.AttachMaster(*master); err != nil {
			return domain.Activity{}, err
		}
	}
	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		return domain.Activity{}, err
	}
	s.logger.Info("activity created", "id", activity.ID, "group", activity.GroupID, "user", activity.ReceivingUserID)
	return activity, nil
}

// MoveActivity places an activity that has no template in another enabled group.
// Activities whose points were assigned stay where they are.
func (s *Service) MoveActivity(ctx context.Context, id, groupID string) (domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity, err := s.repo.GetActivity(ctx, id)
	if err != nil {
		return domain.Activity{}, err
	}
	if activity.PointsAssigned {
		return domain.Activity{}, fmt.Errorf("activity %q points already assigned: %w", id, domain.ErrInvalidState)
	}
	tree, err := s.loadTreeWith(ctx, groupID)
	if err != nil {
		return domain.Activity{}, err
	}
	if !tree.IsEnabled(groupID) {
		return domain.Activity{}, fmt.Errorf("group %q is disabled: %w", groupID, domain.ErrInvalidState)
	}
	if err := activity.SetGroupAndLevel(tree, groupID); err != nil {
		return domain.Activity{}, err
	}
	if err := s.repo.UpdateActivity(ctx, activity); err != nil {
		return domain.Activity{}, err
	}
	return activity, nil
}

// RescheduleActivity replaces the activation window. A nil bound leaves that side open.
func (s *Service) RescheduleActivity(ctx context.Context, id string, from, to *time.Time) (domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity, err := s.repo.GetActivity(ctx, id)
	if err != nil {
		return domain.Activity{}, err
	}
	if activity.PointsAssigned {
		return domain.Activity{}, fmt.Errorf("activity %q points already assigned: %w", id, domain.ErrInvalidState)
	}
	activity.SetWindow(from, to)
	if err := s.repo.UpdateActivity(ctx, activity); err != nil {
		return domain.Activity{}, err
	}
	s.logger.Info("activity rescheduled", "id", id)
	return activity, nil
}

// CompleteActivity marks an activity completed. Activities that have not opened yet refuse.
func (s *Service) CompleteActivity(ctx context.Context, id string) (domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity, err := s.repo.GetActivity(ctx, id)
	if err != nil {
		return domain.Activity{}, err
	}
	now := s.clock()
	if status := activity.Status(now); status == domain.StatusNotAvailableYet {
		return domain.Activity{}, fmt.Errorf("activity %q is %s: %w", id, status, domain.ErrInvalidState)
	}
	activity.SetCompleted(true, now)
	if err := s.repo.UpdateActivity(ctx, activity); err != nil {
		return domain.Activity{}, err
	}
	s.logger.Info("activity completed", "id", id)
	return activity, nil
}

// AssignPoints credits a completed activity and records its ledger entries.
func (s *Service) AssignPoints(ctx context.Context, id string) (domain.Activity, []domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	activity, err := s.repo.GetActivity(ctx, id)
	if err != nil {
		return domain.Activity{}, nil, err
	}
	now := s.clock()
	if status := activity.Status(now); status != domain.StatusOpenComplete {
		return domain.Activity{}, nil, fmt.Errorf("activity %q is %s: %w", id, status, domain.ErrInvalidState)
	}
	activity.SetPointsAssigned(true, now)
	entries := activity.LedgerEntries(now)
	if err := s.repo.RecordPointsAssignment(ctx, activity, entries); err != nil {
		return domain.Activity{}, nil, err
	}
	s.logger.Info("points assigned", "activity", id, "user", activity.ReceivingUserID, "points", activity.Points)
	return activity, entries, nil
}

// ActivityStatus derives the current status of one activity.
func (s *Service) ActivityStatus(ctx context.Context, id string) (domain.ActivityStatus, error) {
	activity, err := s.repo.GetActivity(ctx, id)
	if err != nil {
		return "", err
	}
	return activity.Status(s.clock()), nil
}

// GetActivity returns one activity.
func (s *Service) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	return s.repo.GetActivity(ctx, id)
}

// ListActivityMasters lists templates owned by groupID, or every template when it is empty.
func (s *Service) ListActivityMasters(ctx context.Context, groupID string) ([]domain.ActivityMaster, error) {
	return s.repo.ListActivityMasters(ctx, groupID)
}

// ListActivities lists activities matching filter.
func (s *Service) ListActivities(ctx context.Context, filter ActivityFilter) ([]domain.Activity, error) {
	if filter.ReceivingUserID != "" {
		filter.ReceivingUserID = domain.CanonicalUserID(filter.ReceivingUserID)
	}
	return s.repo.ListActivities(ctx, filter)
}

// UserPoints sums a user's ledger in one level at the given instant; zero means now.
func (s *Service) UserPoints(ctx context.Context, userID, levelID string, at time.Time) (int, error) {
	if at.IsZero() {
		at = s.clock()
	}
	entries, err := s.repo.ListLedgerEntries(ctx, LedgerFilter{UserID: domain.CanonicalUserID(userID), LevelID: levelID})
	if err != nil {
		return 0, err
	}
	return domain.PointsAt(entries, at), nil
}

// CreateMilestoneInput holds input values for milestone creation.
type CreateMilestoneInput struct {
	LevelID     string `json:"level_id" validate:"required"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
	Points      int    `json:"points" validate:"gte=0"`
	Color       string `json:"color" validate:"required,hexcolor"`
}

// CreateMilestone creates a points threshold in one level.
func (s *Service) CreateMilestone(ctx context.Context, in CreateMilestoneInput) (domain.Milestone, error) {
	if err := s.validate.Validate(in); err != nil {
		return domain.Milestone{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.loadTreeWith(ctx, in.LevelID)
	if err != nil {
		return domain.Milestone{}, err
	}
	if level, _ := tree.Get(in.LevelID); !level.IsLevel() {
		return domain.Milestone{}, fmt.Errorf("group %q is not a level: %w", in.LevelID, domain.ErrInvalidState)
	}
	milestone, err := domain.NewMilestone(domain.MilestoneInput{
		ID:          s.idGen(),
		LevelID:     in.LevelID,
		Name:        in.Name,
		Description: in.Description,
		Points:      in.Points,
		Color:       in.Color,
	}, s.clock())
	if err != nil {
		return domain.Milestone{}, err
	}
	if err := s.repo.CreateMilestone(ctx, milestone); err != nil {
		return domain.Milestone{}, err
	}
	return milestone, nil
}

// UserMilestone returns the highest milestone the user has reached in one level.
func (s *Service) UserMilestone(ctx context.Context, userID, levelID string, at time.Time) (domain.Milestone, bool, error) {
	points, err := s.UserPoints(ctx, userID, levelID, at)
	if err != nil {
		return domain.Milestone{}, false, err
	}
	milestones, err := s.repo.ListMilestones(ctx, levelID)
	if err != nil {
		return domain.Milestone{}, false, err
	}
	milestone, ok := domain.HighestMilestone(milestones, points)
	return milestone, ok, nil
}

// resolveExpiryDays prefers an explicit day count, then a named period, then the default.
func (s *Service) resolveExpiryDays(period string, days *int64) (int64, error) {
	if days != nil {
		return *days, nil
	}
	if strings.TrimSpace(period) == "" {
		return s.defaultExpireDays, nil
	}
	p, err := domain.ParseExpiryPeriod(period)
	if err != nil {
		return 0, err
	}
	if p == domain.ExpiryCustom {
		return 0, fmt.Errorf("custom expiry period needs a day count: %w", domain.ErrInvalidPoints)
	}
	return p.Days(), nil
}
