package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hylla/vitality/internal/app"
	"github.com/hylla/vitality/internal/domain"
)

var testNow = time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "vitality.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func mustGroup(t *testing.T, id, parentID string, kind domain.GroupKind) domain.Group {
	t.Helper()
	g, err := domain.NewGroup(domain.GroupInput{ID: id, Code: "code-" + id, Kind: kind, Name: "Group " + id}, testNow)
	if err != nil {
		t.Fatalf("NewGroup(%q) error = %v", id, err)
	}
	g.ParentID = parentID
	return g
}

func TestRepository_GroupLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	level := mustGroup(t, "l1", "", domain.GroupKindLevel)
	team := mustGroup(t, "g1", level.ID, domain.GroupKindGroup)
	for _, g := range []domain.Group{level, team} {
		if err := repo.CreateGroup(ctx, g); err != nil {
			t.Fatalf("CreateGroup(%q) error = %v", g.ID, err)
		}
	}
	if err := repo.CreateGroup(ctx, mustGroup(t, "g2", "missing", domain.GroupKindGroup)); err == nil {
		t.Fatal("expected foreign key error for unknown parent")
	}

	if err := repo.SaveMembership(ctx, team.ID, domain.Membership{UserID: "u1", Enabled: true, JoinedAt: testNow}); err != nil {
		t.Fatalf("SaveMembership() error = %v", err)
	}
	if err := repo.SaveMembership(ctx, team.ID, domain.Membership{UserID: "u1", Enabled: false, JoinedAt: testNow.Add(time.Hour)}); err != nil {
		t.Fatalf("SaveMembership(update) error = %v", err)
	}
	master, err := domain.NewActivityMaster(domain.ActivityMasterInput{ID: "m1", LevelID: level.ID, GroupID: team.ID, Name: "Drill"}, testNow)
	if err != nil {
		t.Fatalf("NewActivityMaster() error = %v", err)
	}
	if err := repo.CreateActivityMaster(ctx, master); err != nil {
		t.Fatalf("CreateActivityMaster() error = %v", err)
	}

	loaded, err := repo.GetGroup(ctx, team.ID)
	if err != nil {
		t.Fatalf("GetGroup() error = %v", err)
	}
	if loaded.ParentID != level.ID || loaded.Kind != domain.GroupKindGroup || !loaded.CreatedAt.Equal(testNow) {
		t.Fatalf("unexpected loaded group %#v", loaded)
	}
	if len(loaded.Members) != 1 || loaded.Members[0].Enabled || !loaded.Members[0].JoinedAt.Equal(testNow) {
		t.Fatalf("expected one disabled membership with the original join time, got %#v", loaded.Members)
	}
	if len(loaded.ActivityMasterIDs) != 1 || loaded.ActivityMasterIDs[0] != master.ID {
		t.Fatalf("unexpected template ids %#v", loaded.ActivityMasterIDs)
	}

	order := 3
	deleted := true
	modified := testNow.Add(time.Minute)
	loaded.NaturalOrder = &order
	loaded.Deleted = &deleted
	loaded.DeletedAt = &modified
	loaded.DeletedBy = "admin"
	loaded.LastModifiedAt = &modified
	if err := repo.UpdateGroup(ctx, loaded); err != nil {
		t.Fatalf("UpdateGroup() error = %v", err)
	}

	groups, err := repo.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups() error = %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	byID := map[string]domain.Group{}
	for _, g := range groups {
		byID[g.ID] = g
	}
	got := byID[team.ID]
	if got.NaturalOrderValue() != 3 || !got.IsDeleted() || got.DeletedBy != "admin" || got.LastModifiedAt == nil {
		t.Fatalf("unexpected updated group %#v", got)
	}
	if byID[level.ID].Deleted != nil || byID[level.ID].NaturalOrder != nil {
		t.Fatalf("expected unset tri-state fields on level, got %#v", byID[level.ID])
	}
	if len(got.Members) != 1 || len(byID[level.ID].Members) != 0 {
		t.Fatalf("unexpected hydrated members %#v", groups)
	}

	if err := repo.DeleteGroup(ctx, level.ID); err != nil {
		t.Fatalf("DeleteGroup() error = %v", err)
	}
	groups, err = repo.ListGroups(ctx)
	if err != nil {
		t.Fatalf("ListGroups() after delete error = %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("expected delete to cascade to the subtree, got %#v", groups)
	}
	masters, err := repo.ListActivityMasters(ctx, "")
	if err != nil {
		t.Fatalf("ListActivityMasters() error = %v", err)
	}
	if len(masters) != 0 {
		t.Fatalf("expected delete to cascade to templates, got %#v", masters)
	}
}

func TestRepository_ActivityAndLedger(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	level := mustGroup(t, "l1", "", domain.GroupKindLevel)
	team := mustGroup(t, "g1", level.ID, domain.GroupKindGroup)
	for _, g := range []domain.Group{level, team} {
		if err := repo.CreateGroup(ctx, g); err != nil {
			t.Fatalf("CreateGroup(%q) error = %v", g.ID, err)
		}
	}

	from := testNow.Add(-time.Hour)
	points := 5
	activity, err := domain.NewActivity(domain.ActivityInput{
		ID:               "a1",
		LevelID:          level.ID,
		GroupID:          team.ID,
		ReceivingUserID:  "u1",
		ConsentingUserID: "u2",
		Name:             "Shift",
		Points:           &points,
		ActiveFrom:       &from,
	}, testNow)
	if err != nil {
		t.Fatalf("NewActivity() error = %v", err)
	}
	if err := repo.CreateActivity(ctx, activity); err != nil {
		t.Fatalf("CreateActivity() error = %v", err)
	}

	activity.SetCompleted(true, testNow)
	if err := repo.UpdateActivity(ctx, activity); err != nil {
		t.Fatalf("UpdateActivity() error = %v", err)
	}
	assignedAt := testNow.Add(time.Minute)
	activity.SetPointsAssigned(true, assignedAt)
	entries := activity.LedgerEntries(assignedAt)
	if err := repo.RecordPointsAssignment(ctx, activity, entries); err != nil {
		t.Fatalf("RecordPointsAssignment() error = %v", err)
	}
	if err := repo.RecordPointsAssignment(ctx, activity, entries); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected second RecordPointsAssignment() to fail with ErrInvalidState, got %v", err)
	}
	missing := activity
	missing.ID = "missing"
	if err := repo.RecordPointsAssignment(ctx, missing, nil); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown activity, got %v", err)
	}

	loaded, err := repo.GetActivity(ctx, activity.ID)
	if err != nil {
		t.Fatalf("GetActivity() error = %v", err)
	}
	if !loaded.Completed || !loaded.PointsAssigned || loaded.PointsAssignedAt == nil || loaded.ActiveFrom == nil || loaded.ActiveTo != nil {
		t.Fatalf("unexpected loaded activity %#v", loaded)
	}
	if loaded.ActivityMasterID != "" || loaded.Points != 5 {
		t.Fatalf("unexpected activity fields %#v", loaded)
	}
	if got := loaded.Status(assignedAt); got != domain.StatusClosedComplete {
		t.Fatalf("Status() = %q, want %q", got, domain.StatusClosedComplete)
	}

	listed, err := repo.ListActivities(ctx, app.ActivityFilter{ReceivingUserID: "u1", LevelID: level.ID})
	if err != nil {
		t.Fatalf("ListActivities() error = %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one activity, got %d", len(listed))
	}
	listed, err = repo.ListActivities(ctx, app.ActivityFilter{ReceivingUserID: "u2"})
	if err != nil {
		t.Fatalf("ListActivities(u2) error = %v", err)
	}
	if len(listed) != 0 {
		t.Fatalf("expected no activities for the consenting user, got %d", len(listed))
	}

	ledger, err := repo.ListLedgerEntries(ctx, app.LedgerFilter{UserID: "u1", LevelID: level.ID})
	if err != nil {
		t.Fatalf("ListLedgerEntries() error = %v", err)
	}
	if len(ledger) != 2 || ledger[0].Kind != domain.LedgerCredit || ledger[1].Kind != domain.LedgerDebit {
		t.Fatalf("unexpected ledger %#v", ledger)
	}
	if ledger[0].ID == 0 || ledger[0].ID == ledger[1].ID {
		t.Fatalf("expected generated ledger ids, got %#v", ledger)
	}
	if got := domain.PointsAt(ledger, assignedAt); got != 5 {
		t.Fatalf("PointsAt() = %d, want 5", got)
	}
	if got := domain.PointsAt(ledger, ledger[1].EffectiveAt); got != 0 {
		t.Fatalf("PointsAt(expiry) = %d, want 0", got)
	}

	extra := []domain.LedgerEntry{{ActivityID: activity.ID, UserID: "u1", LevelID: level.ID, Kind: domain.LedgerCredit, Points: 1, EffectiveAt: testNow}}
	if err := repo.AppendLedgerEntries(ctx, extra); err != nil {
		t.Fatalf("AppendLedgerEntries() error = %v", err)
	}
	ledger, err = repo.ListLedgerEntries(ctx, app.LedgerFilter{ActivityID: activity.ID})
	if err != nil {
		t.Fatalf("ListLedgerEntries(activity) error = %v", err)
	}
	if len(ledger) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(ledger))
	}
	orphan := []domain.LedgerEntry{{ActivityID: "missing", UserID: "u1", LevelID: level.ID, Kind: domain.LedgerCredit, Points: 1, EffectiveAt: testNow}}
	if err := repo.AppendLedgerEntries(ctx, orphan); err == nil {
		t.Fatal("expected foreign key error for unknown activity")
	}
}

func TestRepository_Milestones(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	level := mustGroup(t, "l1", "", domain.GroupKindLevel)
	if err := repo.CreateGroup(ctx, level); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	for i, points := range []int{50, 10} {
		m, err := domain.NewMilestone(domain.MilestoneInput{
			ID:      []string{"gold", "bronze"}[i],
			LevelID: level.ID,
			Name:    "Milestone",
			Points:  points,
			Color:   "#FFAA00",
		}, testNow)
		if err != nil {
			t.Fatalf("NewMilestone() error = %v", err)
		}
		if err := repo.CreateMilestone(ctx, m); err != nil {
			t.Fatalf("CreateMilestone() error = %v", err)
		}
	}
	milestones, err := repo.ListMilestones(ctx, level.ID)
	if err != nil {
		t.Fatalf("ListMilestones() error = %v", err)
	}
	if len(milestones) != 2 || milestones[0].ID != "bronze" || milestones[1].Color != "#ffaa00" {
		t.Fatalf("unexpected milestones %#v", milestones)
	}

	milestones[0].Points = 100
	if err := repo.UpdateMilestone(ctx, milestones[0]); err != nil {
		t.Fatalf("UpdateMilestone() error = %v", err)
	}
	milestones, err = repo.ListMilestones(ctx, "")
	if err != nil {
		t.Fatalf("ListMilestones(all) error = %v", err)
	}
	if milestones[0].ID != "gold" || milestones[1].Points != 100 {
		t.Fatalf("expected reordered milestones, got %#v", milestones)
	}
}

func TestRepository_NotFoundCases(t *testing.T) {
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	ctx := context.Background()

	if _, err := repo.GetGroup(ctx, "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound for GetGroup, got %v", err)
	}
	if err := repo.UpdateGroup(ctx, mustGroup(t, "missing", "", domain.GroupKindLevel)); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound for UpdateGroup, got %v", err)
	}
	if err := repo.DeleteGroup(ctx, "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound for DeleteGroup, got %v", err)
	}
	if _, err := repo.GetActivityMaster(ctx, "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound for GetActivityMaster, got %v", err)
	}
	if _, err := repo.GetActivity(ctx, "missing"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound for GetActivity, got %v", err)
	}
	if err := repo.UpdateActivity(ctx, domain.Activity{ID: "missing"}); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound for UpdateActivity, got %v", err)
	}
	if err := repo.RecordPointsAssignment(ctx, domain.Activity{ID: "missing"}, nil); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound for RecordPointsAssignment, got %v", err)
	}
	if err := repo.UpdateMilestone(ctx, domain.Milestone{ID: "missing"}); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected app.ErrNotFound for UpdateMilestone, got %v", err)
	}
}

func TestRepository_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "nested", "vitality.db")
	repo, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := repo.CreateGroup(ctx, mustGroup(t, "l1", "", domain.GroupKindLevel)); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open(reopen) error = %v", err)
	}
	t.Cleanup(func() {
		_ = reopened.Close()
	})
	if _, err := reopened.GetGroup(ctx, "l1"); err != nil {
		t.Fatalf("GetGroup() after reopen error = %v", err)
	}
}

func TestRepositoryOpenValidation(t *testing.T) {
	if _, err := Open("   "); err == nil {
		t.Fatal("expected error for empty sqlite path")
	}
}

func TestRepository_ServicePurgeCascades(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	seq := 0
	svc := app.NewService(repo, func() string {
		seq++
		return "id-" + strconv.Itoa(seq)
	}, func() time.Time { return testNow }, app.ServiceConfig{})

	level, err := svc.CreateLevel(ctx, app.CreateGroupInput{Name: "Company"})
	if err != nil {
		t.Fatalf("CreateLevel() error = %v", err)
	}
	team, err := svc.CreateGroup(ctx, app.CreateGroupInput{ParentID: level.ID, Name: "Team"})
	if err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	if _, err := svc.AddMember(ctx, team.ID, "u1"); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	activity, err := svc.CreateActivity(ctx, app.CreateActivityInput{GroupID: team.ID, Name: "Shift", ReceivingUserID: "u1", ConsentingUserID: "u2"})
	if err != nil {
		t.Fatalf("CreateActivity() error = %v", err)
	}
	if activity.LevelID != level.ID {
		t.Fatalf("expected activity level %q, got %q", level.ID, activity.LevelID)
	}
	if _, err := svc.CompleteActivity(ctx, activity.ID); err != nil {
		t.Fatalf("CompleteActivity() error = %v", err)
	}
	if _, _, err := svc.AssignPoints(ctx, activity.ID); err != nil {
		t.Fatalf("AssignPoints() error = %v", err)
	}
	points, err := svc.UserPoints(ctx, "u1", level.ID, time.Time{})
	if err != nil {
		t.Fatalf("UserPoints() error = %v", err)
	}
	if points != domain.DefaultActivityPoints {
		t.Fatalf("UserPoints() = %d, want %d", points, domain.DefaultActivityPoints)
	}

	removed, err := svc.PurgeGroup(ctx, level.ID)
	if err != nil {
		t.Fatalf("PurgeGroup() error = %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("expected two purged groups, got %#v", removed)
	}
	if _, err := repo.GetActivity(ctx, activity.ID); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected purged activity to be gone, got %v", err)
	}
	ledger, err := repo.ListLedgerEntries(ctx, app.LedgerFilter{UserID: "u1"})
	if err != nil {
		t.Fatalf("ListLedgerEntries() error = %v", err)
	}
	if len(ledger) != 0 {
		t.Fatalf("expected purge to cascade to the ledger, got %#v", ledger)
	}
}

func TestRepository_DeleteMembership(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	level := mustGroup(t, "l1", "", domain.GroupKindLevel)
	if err := repo.CreateGroup(ctx, level); err != nil {
		t.Fatalf("CreateGroup() error = %v", err)
	}
	for _, user := range []string{"u1", "u2"} {
		if err := repo.SaveMembership(ctx, level.ID, domain.Membership{UserID: user, Enabled: true, JoinedAt: testNow}); err != nil {
			t.Fatalf("SaveMembership(%q) error = %v", user, err)
		}
	}
	if err := repo.DeleteMembership(ctx, level.ID, "u1"); err != nil {
		t.Fatalf("DeleteMembership() error = %v", err)
	}
	loaded, err := repo.GetGroup(ctx, level.ID)
	if err != nil {
		t.Fatalf("GetGroup() error = %v", err)
	}
	if len(loaded.Members) != 1 || loaded.Members[0].UserID != "u2" {
		t.Fatalf("unexpected members after delete %#v", loaded.Members)
	}
	if err := repo.DeleteMembership(ctx, level.ID, "u1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for second delete, got %v", err)
	}
}

func TestRepository_ConcurrentAssignPointsCreditsOnce(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	newSvc := func(prefix string) *app.Service {
		seq := 0
		return app.NewService(repo, func() string {
			seq++
			return prefix + strconv.Itoa(seq)
		}, func() time.Time { return testNow }, app.ServiceConfig{})
	}
	first, second := newSvc("a-"), newSvc("b-")

	level, err := first.CreateLevel(ctx, app.CreateGroupInput{Name: "Company"})
	if err != nil {
		t.Fatalf("CreateLevel() error = %v", err)
	}
	activity, err := first.CreateActivity(ctx, app.CreateActivityInput{GroupID: level.ID, Name: "Shift", ReceivingUserID: "u1", ConsentingUserID: "u2"})
	if err != nil {
		t.Fatalf("CreateActivity() error = %v", err)
	}
	if _, err := first.CompleteActivity(ctx, activity.ID); err != nil {
		t.Fatalf("CompleteActivity() error = %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, svc := range []*app.Service{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, errs[i] = svc.AssignPoints(ctx, activity.ID)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, domain.ErrInvalidState):
			t.Fatalf("AssignPoints() error = %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one assignment to succeed, got %d (%v)", succeeded, errs)
	}
	ledger, err := repo.ListLedgerEntries(ctx, app.LedgerFilter{ActivityID: activity.ID})
	if err != nil {
		t.Fatalf("ListLedgerEntries() error = %v", err)
	}
	if len(ledger) != 2 {
		t.Fatalf("expected one credit and one debit, got %#v", ledger)
	}
	points, err := first.UserPoints(ctx, "u1", level.ID, time.Time{})
	if err != nil {
		t.Fatalf("UserPoints() error = %v", err)
	}
	if points != domain.DefaultActivityPoints {
		t.Fatalf("UserPoints() = %d, want %d", points, domain.DefaultActivityPoints)
	}
}
