package domain

import "time"

// ActivityStatus is the derived lifecycle state of an activity.
type ActivityStatus string

// ActivityStatus values.
const (
	StatusNotAvailableYet  ActivityStatus = "not_available_yet"
	StatusClosedComplete   ActivityStatus = "closed_complete"
	StatusClosedIncomplete ActivityStatus = "closed_incomplete"
	StatusOpenComplete     ActivityStatus = "open_complete"
	StatusOpenIncomplete   ActivityStatus = "open_incomplete"
)

// DeriveActivityStatus evaluates the status rules in priority order; the first match wins.
//
// A completed activity whose points are not assigned stays open_complete even after
// activeTo has passed, so points can still be credited late.
func DeriveActivityStatus(now time.Time, activeFrom, activeTo *time.Time, completed, pointsAssigned bool) ActivityStatus {
	if activeFrom != nil && now.Before(*activeFrom) {
		return StatusNotAvailableYet
	}
	if completed && pointsAssigned {
		return StatusClosedComplete
	}
	if !completed && activeTo != nil && now.After(*activeTo) {
		return StatusClosedIncomplete
	}
	if !completed {
		return StatusOpenIncomplete
	}
	return StatusOpenComplete
}

// IsOpen reports whether the status still accepts completion or crediting.
func (s ActivityStatus) IsOpen() bool {
	return s == StatusOpenComplete || s == StatusOpenIncomplete
}
