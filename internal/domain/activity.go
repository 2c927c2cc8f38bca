package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Activity defaults.
const (
	DefaultActivityPoints     = 1
	DefaultPointsExpireInDays = int64(183)
)

// Activity is a point-bearing, time-windowed task for one receiving user.
type Activity struct {
	ID                 string
	LevelID            string
	GroupID            string
	ReceivingUserID    string
	ConsentingUserID   string
	ActivityMasterID   string
	Name               string
	Description        string
	Points             int
	PointsExpireInDays int64
	Completed          bool
	CompletedAt        *time.Time
	PointsAssigned     bool
	PointsAssignedAt   *time.Time
	ActiveFrom         *time.Time
	ActiveTo           *time.Time
	CreatedAt          time.Time
}

// ActivityInput holds write-time values for NewActivity. Nil pointers take defaults.
type ActivityInput struct {
	ID                 string
	LevelID            string
	GroupID            string
	ReceivingUserID    string
	ConsentingUserID   string
	Name               string
	Description        string
	Points             *int
	PointsExpireInDays *int64
	ActiveFrom         *time.Time
	ActiveTo           *time.Time
}

// NewActivity validates input and constructs an activity with a normalized window.
func NewActivity(in ActivityInput, now time.Time) (Activity, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.LevelID = strings.TrimSpace(in.LevelID)
	in.GroupID = strings.TrimSpace(in.GroupID)
	in.ReceivingUserID = CanonicalUserID(in.ReceivingUserID)
	in.ConsentingUserID = CanonicalUserID(in.ConsentingUserID)
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)

	if in.ID == "" || in.LevelID == "" || in.GroupID == "" {
		return Activity{}, ErrInvalidID
	}
	if in.ReceivingUserID == "" || in.ConsentingUserID == "" {
		return Activity{}, ErrInvalidID
	}
	if in.Name == "" {
		return Activity{}, ErrInvalidName
	}
	points := DefaultActivityPoints
	if in.Points != nil {
		points = *in.Points
	}
	if points < 0 {
		return Activity{}, ErrInvalidPoints
	}
	expireDays := DefaultPointsExpireInDays
	if in.PointsExpireInDays != nil {
		expireDays = *in.PointsExpireInDays
	}
	if expireDays < 0 {
		return Activity{}, ErrInvalidPoints
	}

	a := Activity{
		ID:                 in.ID,
		LevelID:            in.LevelID,
		GroupID:            in.GroupID,
		ReceivingUserID:    in.ReceivingUserID,
		ConsentingUserID:   in.ConsentingUserID,
		Name:               in.Name,
		Description:        in.Description,
		Points:             points,
		PointsExpireInDays: expireDays,
		ActiveFrom:         normalizeInstant(in.ActiveFrom),
		ActiveTo:           normalizeInstant(in.ActiveTo),
		CreatedAt:          now.UTC(),
	}
	a.NormalizeWindow()
	return a, nil
}

// SetGroupAndLevel places the activity in groupID and the level above it.
func (a *Activity) SetGroupAndLevel(tree *GroupTree, groupID string) error {
	if _, ok := tree.Get(groupID); !ok {
		return fmt.Errorf("group %q: %w", groupID, ErrUnknownGroup)
	}
	level, ok := tree.Level(groupID)
	if !ok {
		return fmt.Errorf("group %q has no level: %w", groupID, ErrInvalidState)
	}
	if a.ActivityMasterID != "" && (a.GroupID != groupID || a.LevelID != level.ID) {
		return fmt.Errorf("activity %q is bound to a template: %w", a.ID, ErrInvalidState)
	}
	a.GroupID = groupID
	a.LevelID = level.ID
	return nil
}

// AttachMaster binds the activity to its template. Level and group must match the template's.
func (a *Activity) AttachMaster(m ActivityMaster) error {
	if a.ActivityMasterID != "" && a.ActivityMasterID != m.ID {
		return fmt.Errorf("activity %q already has template %q: %w", a.ID, a.ActivityMasterID, ErrInvalidState)
	}
	if m.LevelID != a.LevelID || m.GroupID != a.GroupID {
		return fmt.Errorf("template %q level/group differ from activity %q: %w", m.ID, a.ID, ErrInvalidState)
	}
	a.ActivityMasterID = m.ID
	return nil
}

// SetCompleted sets the completed flag; CompletedAt is stamped on the first transition only.
func (a *Activity) SetCompleted(completed bool, now time.Time) {
	a.Completed = completed
	if completed && a.CompletedAt == nil {
		ts := now.UTC()
		a.CompletedAt = &ts
	}
}

// SetPointsAssigned sets the assigned flag; PointsAssignedAt is stamped on the first transition only.
func (a *Activity) SetPointsAssigned(assigned bool, now time.Time) {
	a.PointsAssigned = assigned
	if assigned && a.PointsAssignedAt == nil {
		ts := now.UTC()
		a.PointsAssignedAt = &ts
	}
}

// SetWindow replaces the activation window and normalizes it.
func (a *Activity) SetWindow(from, to *time.Time) {
	a.ActiveFrom = normalizeInstant(from)
	a.ActiveTo = normalizeInstant(to)
	a.NormalizeWindow()
}

// NormalizeWindow swaps ActiveFrom and ActiveTo when both are set and out of order.
func (a *Activity) NormalizeWindow() {
	a.ActiveFrom, a.ActiveTo = NormalizeWindow(a.ActiveFrom, a.ActiveTo)
}

// NormalizeWindow returns the window with from <= to whenever both are set.
func NormalizeWindow(from, to *time.Time) (*time.Time, *time.Time) {
	if from == nil || to == nil {
		return from, to
	}
	if from.After(*to) {
		return to, from
	}
	return from, to
}

// Status derives the lifecycle state at now.
func (a Activity) Status(now time.Time) ActivityStatus {
	return DeriveActivityStatus(now, a.ActiveFrom, a.ActiveTo, a.Completed, a.PointsAssigned)
}

// IsActive reports whether now lies strictly inside the activation window.
func (a Activity) IsActive(now time.Time) bool {
	if a.ActiveFrom != nil && !a.ActiveFrom.Before(now) {
		return false
	}
	if a.ActiveTo != nil && !a.ActiveTo.After(now) {
		return false
	}
	return true
}

// ExpiryDuration returns the time left until ActiveTo; effectively infinite when open ended.
func (a Activity) ExpiryDuration(now time.Time) time.Duration {
	if a.ActiveTo == nil {
		return time.Duration(math.MaxInt64)
	}
	return a.ActiveTo.Sub(now)
}

// ExpiryPeriod classifies PointsExpireInDays against the catalog.
func (a Activity) ExpiryPeriod() ExpiryPeriod {
	return ClassifyExpiryPeriod(a.PointsExpireInDays)
}

// LevelUpdateEntryTimestamp returns the effective start of the positive ledger entry.
func (a Activity) LevelUpdateEntryTimestamp(now time.Time) time.Time {
	return LevelUpdateEntryTimestamp(now, a.ActiveFrom, a.ActiveTo, a.CreatedAt)
}

// LevelUpdateEntryTimestamp picks the earliest of now, activeFrom, activeTo and createdAt,
// considering each candidate only when it is before the running minimum.
func LevelUpdateEntryTimestamp(now time.Time, activeFrom, activeTo *time.Time, createdAt time.Time) time.Time {
	entry := now
	if activeFrom != nil && entry.After(*activeFrom) {
		entry = *activeFrom
	}
	if activeTo != nil && entry.After(*activeTo) {
		entry = *activeTo
	}
	if !createdAt.IsZero() && entry.After(createdAt) {
		entry = createdAt
	}
	return entry
}

// LedgerEntries returns the credit for this activity and, unless points never expire,
// the matching debit PointsExpireInDays after it.
func (a Activity) LedgerEntries(now time.Time) []LedgerEntry {
	if a.Points == 0 {
		return nil
	}
	entryAt := a.LevelUpdateEntryTimestamp(now).UTC()
	out := []LedgerEntry{{
		ActivityID:  a.ID,
		UserID:      a.ReceivingUserID,
		LevelID:     a.LevelID,
		Kind:        LedgerCredit,
		Points:      a.Points,
		EffectiveAt: entryAt,
	}}
	if a.PointsExpireInDays > 0 {
		out = append(out, LedgerEntry{
			ActivityID:  a.ID,
			UserID:      a.ReceivingUserID,
			LevelID:     a.LevelID,
			Kind:        LedgerDebit,
			Points:      -a.Points,
			EffectiveAt: entryAt.AddDate(0, 0, int(a.PointsExpireInDays)),
		})
	}
	return out
}

// normalizeInstant copies an optional instant and converts it to UTC.
func normalizeInstant(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	ts := t.UTC()
	return &ts
}
