package domain

import (
	"regexp"
	"strings"
	"time"
)

var hexColorPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// Milestone marks a points threshold within one level.
type Milestone struct {
	ID          string
	LevelID     string
	Name        string
	Description string
	Points      int
	Color       string
	CreatedAt   time.Time
}

// MilestoneInput holds write-time values for NewMilestone.
type MilestoneInput struct {
	ID          string
	LevelID     string
	Name        string
	Description string
	Points      int
	Color       string
}

// NewMilestone validates input and constructs a milestone.
func NewMilestone(in MilestoneInput, now time.Time) (Milestone, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.LevelID = strings.TrimSpace(in.LevelID)
	in.Name = strings.TrimSpace(in.Name)
	in.Color = strings.ToLower(strings.TrimSpace(in.Color))
	if in.ID == "" || in.LevelID == "" {
		return Milestone{}, ErrInvalidID
	}
	if in.Name == "" {
		return Milestone{}, ErrInvalidName
	}
	if in.Points < 0 {
		return Milestone{}, ErrInvalidPoints
	}
	if !hexColorPattern.MatchString(in.Color) {
		return Milestone{}, ErrInvalidColor
	}
	return Milestone{
		ID:          in.ID,
		LevelID:     in.LevelID,
		Name:        in.Name,
		Description: strings.TrimSpace(in.Description),
		Points:      in.Points,
		Color:       in.Color,
		CreatedAt:   now.UTC(),
	}, nil
}

// HighestMilestone returns the reached milestone with the most points.
func HighestMilestone(milestones []Milestone, points int) (Milestone, bool) {
	var (
		best  Milestone
		found bool
	)
	for _, m := range milestones {
		if m.Points > points {
			continue
		}
		if !found || m.Points > best.Points {
			best = m
			found = true
		}
	}
	return best, found
}
