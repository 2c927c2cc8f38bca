package domain

import (
	"strings"
	"time"
)

// ActivityMaster is a reusable activity template owned by one group.
type ActivityMaster struct {
	ID                 string
	LevelID            string
	GroupID            string
	Name               string
	Description        string
	Points             int
	PointsExpireInDays int64
	CreatedAt          time.Time
}

// ActivityMasterInput holds write-time values for NewActivityMaster.
type ActivityMasterInput struct {
	ID                 string
	LevelID            string
	GroupID            string
	Name               string
	Description        string
	Points             *int
	PointsExpireInDays *int64
}

// NewActivityMaster constructs a template with the same defaults as NewActivity.
func NewActivityMaster(in ActivityMasterInput, now time.Time) (ActivityMaster, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.LevelID = strings.TrimSpace(in.LevelID)
	in.GroupID = strings.TrimSpace(in.GroupID)
	in.Name = strings.TrimSpace(in.Name)
	if in.ID == "" || in.LevelID == "" || in.GroupID == "" {
		return ActivityMaster{}, ErrInvalidID
	}
	if in.Name == "" {
		return ActivityMaster{}, ErrInvalidName
	}
	points := DefaultActivityPoints
	if in.Points != nil {
		points = *in.Points
	}
	expireDays := DefaultPointsExpireInDays
	if in.PointsExpireInDays != nil {
		expireDays = *in.PointsExpireInDays
	}
	if points < 0 || expireDays < 0 {
		return ActivityMaster{}, ErrInvalidPoints
	}
	return ActivityMaster{
		ID:                 in.ID,
		LevelID:            in.LevelID,
		GroupID:            in.GroupID,
		Name:               in.Name,
		Description:        strings.TrimSpace(in.Description),
		Points:             points,
		PointsExpireInDays: expireDays,
		CreatedAt:          now.UTC(),
	}, nil
}

// ActivityInput seeds an activity from the template for the two users.
func (m ActivityMaster) ActivityInput(id, receivingUserID, consentingUserID string) ActivityInput {
	points := m.Points
	expireDays := m.PointsExpireInDays
	return ActivityInput{
		ID:                 id,
		LevelID:            m.LevelID,
		GroupID:            m.GroupID,
		ReceivingUserID:    receivingUserID,
		ConsentingUserID:   consentingUserID,
		Name:               m.Name,
		Description:        m.Description,
		Points:             &points,
		PointsExpireInDays: &expireDays,
	}
}
