package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/vitality/internal/app"
	"github.com/hylla/vitality/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// connPragmas is appended to every DSN so each pooled connection enforces foreign keys.
const connPragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

// Repository represents repository data used by this package.
type Repository struct {
	db *sql.DB
}

// Open opens the database at path, creating its directory and schema.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path+"?"+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return newRepository(db)
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared&"+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return newRepository(db)
}

func newRepository(db *sql.DB) (*Repository, error) {
	db.SetMaxOpenConns(1)
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates every table and index; it is safe to run on an existing database.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			parent_id TEXT REFERENCES groups(id) ON DELETE CASCADE,
			code TEXT NOT NULL UNIQUE,
			kind TEXT NOT NULL DEFAULT 'group',
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			sort_order INTEGER NOT NULL DEFAULT 0,
			natural_order INTEGER,
			allow_direct_membership INTEGER NOT NULL DEFAULT 1,
			deleted INTEGER,
			deleted_at TEXT,
			deleted_by TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			last_modified_by TEXT NOT NULL DEFAULT '',
			last_modified_at TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			joined_at TEXT NOT NULL,
			PRIMARY KEY(group_id, user_id),
			FOREIGN KEY(group_id) REFERENCES groups(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS activity_masters (
			id TEXT PRIMARY KEY,
			level_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			points INTEGER NOT NULL DEFAULT 1,
			points_expire_in_days INTEGER NOT NULL DEFAULT 183,
			created_at TEXT NOT NULL,
			FOREIGN KEY(level_id) REFERENCES groups(id) ON DELETE CASCADE,
			FOREIGN KEY(group_id) REFERENCES groups(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS activities (
			id TEXT PRIMARY KEY,
			level_id TEXT NOT NULL,
			group_id TEXT NOT NULL,
			receiving_user_id TEXT NOT NULL,
			consenting_user_id TEXT NOT NULL,
			activity_master_id TEXT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			points INTEGER NOT NULL DEFAULT 1,
			points_expire_in_days INTEGER NOT NULL DEFAULT 183,
			completed INTEGER NOT NULL DEFAULT 0,
			completed_at TEXT,
			points_assigned INTEGER NOT NULL DEFAULT 0,
			points_assigned_at TEXT,
			active_from TEXT,
			active_to TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY(level_id) REFERENCES groups(id) ON DELETE CASCADE,
			FOREIGN KEY(group_id) REFERENCES groups(id) ON DELETE CASCADE,
			FOREIGN KEY(activity_master_id) REFERENCES activity_masters(id) ON DELETE SET NULL
		);`,
		`CREATE TABLE IF NOT EXISTS milestones (
			id TEXT PRIMARY KEY,
			level_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			points INTEGER NOT NULL DEFAULT 0,
			color TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY(level_id) REFERENCES groups(id) ON DELETE CASCADE
		);`,
		`CREATE TABLE IF NOT EXISTS level_updates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			activity_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			level_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			points INTEGER NOT NULL,
			effective_at TEXT NOT NULL,
			FOREIGN KEY(activity_id) REFERENCES activities(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_groups_parent ON groups(parent_id);`,
		`CREATE INDEX IF NOT EXISTS idx_activities_user ON activities(receiving_user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_level_updates_user_level ON level_updates(user_id, level_id, effective_at);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

const groupColumns = `id, parent_id, code, kind, name, description, sort_order, natural_order, allow_direct_membership,
	deleted, deleted_at, deleted_by, created_by, created_at, last_modified_by, last_modified_at`

// CreateGroup inserts one group row. Members are written through SaveMembership.
func (r *Repository) CreateGroup(ctx context.Context, g domain.Group) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO groups(`+groupColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		g.ID,
		nullableString(g.ParentID),
		g.Code,
		string(g.Kind),
		g.Name,
		g.Description,
		g.SortOrder,
		nullableInt(g.NaturalOrder),
		g.AllowDirectMembership,
		nullableBool(g.Deleted),
		nullableTS(g.DeletedAt),
		g.DeletedBy,
		g.CreatedBy,
		ts(g.CreatedAt),
		g.LastModifiedBy,
		nullableTS(g.LastModifiedAt),
	)
	return err
}

// UpdateGroup rewrites one group row including its parent link.
func (r *Repository) UpdateGroup(ctx context.Context, g domain.Group) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE groups
		SET parent_id = ?, code = ?, kind = ?, name = ?, description = ?, sort_order = ?, natural_order = ?,
		    allow_direct_membership = ?, deleted = ?, deleted_at = ?, deleted_by = ?, last_modified_by = ?, last_modified_at = ?
		WHERE id = ?
	`,
		nullableString(g.ParentID),
		g.Code,
		string(g.Kind),
		g.Name,
		g.Description,
		g.SortOrder,
		nullableInt(g.NaturalOrder),
		g.AllowDirectMembership,
		nullableBool(g.Deleted),
		nullableTS(g.DeletedAt),
		g.DeletedBy,
		g.LastModifiedBy,
		nullableTS(g.LastModifiedAt),
		g.ID,
	)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetGroup returns one group with its memberships and template ids.
func (r *Repository) GetGroup(ctx context.Context, id string) (domain.Group, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups WHERE id = ?`, id)
	g, err := scanGroup(row)
	if err != nil {
		return domain.Group{}, err
	}
	members, err := r.listMembers(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	masters, err := r.listMasterIDs(ctx, id)
	if err != nil {
		return domain.Group{}, err
	}
	g.Members = members[id]
	g.ActivityMasterIDs = masters[id]
	return g, nil
}

// ListGroups returns every group with its memberships and template ids.
func (r *Repository) ListGroups(ctx context.Context) ([]domain.Group, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY natural_order ASC, created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	out := []domain.Group{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	members, err := r.listMembers(ctx, "")
	if err != nil {
		return nil, err
	}
	masters, err := r.listMasterIDs(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Members = members[out[i].ID]
		out[i].ActivityMasterIDs = masters[out[i].ID]
	}
	return out, nil
}

// DeleteGroup physically removes one group; foreign keys cascade to the subtree.
func (r *Repository) DeleteGroup(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// SaveMembership inserts or replaces one membership row.
func (r *Repository) SaveMembership(ctx context.Context, groupID string, m domain.Membership) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO group_members(group_id, user_id, enabled, joined_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(group_id, user_id) DO UPDATE SET enabled = excluded.enabled
	`, groupID, m.UserID, m.Enabled, ts(m.JoinedAt))
	return err
}

// DeleteMembership removes one membership row.
func (r *Repository) DeleteMembership(ctx context.Context, groupID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// listMembers groups membership rows by group id; an empty groupID lists all.
func (r *Repository) listMembers(ctx context.Context, groupID string) (map[string][]domain.Membership, error) {
	query := `SELECT group_id, user_id, enabled, joined_at FROM group_members`
	args := []any{}
	if groupID != "" {
		query += ` WHERE group_id = ?`
		args = append(args, groupID)
	}
	query += ` ORDER BY joined_at ASC, user_id ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]domain.Membership{}
	for rows.Next() {
		var (
			gid       string
			m         domain.Membership
			joinedRaw string
		)
		if err := rows.Scan(&gid, &m.UserID, &m.Enabled, &joinedRaw); err != nil {
			return nil, err
		}
		m.JoinedAt = parseTS(joinedRaw)
		out[gid] = append(out[gid], m)
	}
	return out, rows.Err()
}

// listMasterIDs groups template ids by owning group; an empty groupID lists all.
func (r *Repository) listMasterIDs(ctx context.Context, groupID string) (map[string][]string, error) {
	query := `SELECT group_id, id FROM activity_masters`
	args := []any{}
	if groupID != "" {
		query += ` WHERE group_id = ?`
		args = append(args, groupID)
	}
	query += ` ORDER BY id ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var gid, id string
		if err := rows.Scan(&gid, &id); err != nil {
			return nil, err
		}
		out[gid] = append(out[gid], id)
	}
	return out, rows.Err()
}

const masterColumns = `id, level_id, group_id, name, description, points, points_expire_in_days, created_at`

// CreateActivityMaster inserts one template.
func (r *Repository) CreateActivityMaster(ctx context.Context, m domain.ActivityMaster) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_masters(`+masterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.LevelID, m.GroupID, m.Name, m.Description, m.Points, m.PointsExpireInDays, ts(m.CreatedAt))
	return err
}

// GetActivityMaster returns one template.
func (r *Repository) GetActivityMaster(ctx context.Context, id string) (domain.ActivityMaster, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+masterColumns+` FROM activity_masters WHERE id = ?`, id)
	return scanActivityMaster(row)
}

// ListActivityMasters lists templates of one group; an empty groupID lists all.
func (r *Repository) ListActivityMasters(ctx context.Context, groupID string) ([]domain.ActivityMaster, error) {
	query := `SELECT ` + masterColumns + ` FROM activity_masters`
	args := []any{}
	if groupID != "" {
		query += ` WHERE group_id = ?`
		args = append(args, groupID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.ActivityMaster{}
	for rows.Next() {
		m, err := scanActivityMaster(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const activityColumns = `id, level_id, group_id, receiving_user_id, consenting_user_id, activity_master_id, name, description,
	points, points_expire_in_days, completed, completed_at, points_assigned, points_assigned_at, active_from, active_to, created_at`

// CreateActivity inserts one activity.
func (r *Repository) CreateActivity(ctx context.Context, a domain.Activity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activities(`+activityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID,
		a.LevelID,
		a.GroupID,
		a.ReceivingUserID,
		a.ConsentingUserID,
		nullableString(a.ActivityMasterID),
		a.Name,
		a.Description,
		a.Points,
		a.PointsExpireInDays,
		a.Completed,
		nullableTS(a.CompletedAt),
		a.PointsAssigned,
		nullableTS(a.PointsAssignedAt),
		nullableTS(a.ActiveFrom),
		nullableTS(a.ActiveTo),
		ts(a.CreatedAt),
	)
	return err
}

// UpdateActivity rewrites the mutable columns of one activity.
func (r *Repository) UpdateActivity(ctx context.Context, a domain.Activity) error {
	return updateActivity(ctx, r.db, a)
}

func updateActivity(ctx context.Context, execer execerContext, a domain.Activity) error {
	res, err := execer.ExecContext(ctx, `
		UPDATE activities
		SET level_id = ?, group_id = ?, activity_master_id = ?, name = ?, description = ?, points = ?, points_expire_in_days = ?,
		    completed = ?, completed_at = ?, points_assigned = ?, points_assigned_at = ?, active_from = ?, active_to = ?
		WHERE id = ?
	`,
		a.LevelID,
		a.GroupID,
		nullableString(a.ActivityMasterID),
		a.Name,
		a.Description,
		a.Points,
		a.PointsExpireInDays,
		a.Completed,
		nullableTS(a.CompletedAt),
		a.PointsAssigned,
		nullableTS(a.PointsAssignedAt),
		nullableTS(a.ActiveFrom),
		nullableTS(a.ActiveTo),
		a.ID,
	)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// GetActivity returns one activity.
func (r *Repository) GetActivity(ctx context.Context, id string) (domain.Activity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+activityColumns+` FROM activities WHERE id = ?`, id)
	return scanActivity(row)
}

// ListActivities lists activities matching filter.
func (r *Repository) ListActivities(ctx context.Context, filter app.ActivityFilter) ([]domain.Activity, error) {
	clauses := []string{}
	args := []any{}
	if filter.ReceivingUserID != "" {
		clauses = append(clauses, `receiving_user_id = ?`)
		args = append(args, filter.ReceivingUserID)
	}
	if filter.GroupID != "" {
		clauses = append(clauses, `group_id = ?`)
		args = append(args, filter.GroupID)
	}
	if filter.LevelID != "" {
		clauses = append(clauses, `level_id = ?`)
		args = append(args, filter.LevelID)
	}
	query := `SELECT ` + activityColumns + ` FROM activities`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordPointsAssignment updates the activity and appends its ledger entries in one transaction.
// The row is claimed only while points_assigned is still unset.
func (r *Repository) RecordPointsAssignment(ctx context.Context, a domain.Activity, entries []domain.LedgerEntry) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE activities SET points_assigned = 1 WHERE id = ? AND points_assigned = 0`, a.ID)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); errors.Is(err, app.ErrNotFound) {
		var exists int
		if scanErr := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM activities WHERE id = ?`, a.ID).Scan(&exists); scanErr != nil {
			return scanErr
		}
		if exists > 0 {
			err = fmt.Errorf("activity %q points already assigned: %w", a.ID, domain.ErrInvalidState)
		}
		return err
	} else if err != nil {
		return err
	}
	if err = updateActivity(ctx, tx, a); err != nil {
		return err
	}
	if err = insertLedgerEntries(ctx, tx, entries); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

const milestoneColumns = `id, level_id, name, description, points, color, created_at`

// CreateMilestone inserts one milestone.
func (r *Repository) CreateMilestone(ctx context.Context, m domain.Milestone) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO milestones(`+milestoneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.LevelID, m.Name, m.Description, m.Points, m.Color, ts(m.CreatedAt))
	return err
}

// UpdateMilestone rewrites one milestone.
func (r *Repository) UpdateMilestone(ctx context.Context, m domain.Milestone) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE milestones
		SET level_id = ?, name = ?, description = ?, points = ?, color = ?
		WHERE id = ?
	`, m.LevelID, m.Name, m.Description, m.Points, m.Color, m.ID)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// ListMilestones lists milestones of one level by ascending points; an empty levelID lists all.
func (r *Repository) ListMilestones(ctx context.Context, levelID string) ([]domain.Milestone, error) {
	query := `SELECT ` + milestoneColumns + ` FROM milestones`
	args := []any{}
	if levelID != "" {
		query += ` WHERE level_id = ?`
		args = append(args, levelID)
	}
	query += ` ORDER BY points ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Milestone{}
	for rows.Next() {
		var (
			m          domain.Milestone
			createdRaw string
		)
		if err := rows.Scan(&m.ID, &m.LevelID, &m.Name, &m.Description, &m.Points, &m.Color, &createdRaw); err != nil {
			return nil, err
		}
		m.CreatedAt = parseTS(createdRaw)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendLedgerEntries inserts ledger entries in one transaction.
func (r *Repository) AppendLedgerEntries(ctx context.Context, entries []domain.LedgerEntry) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = insertLedgerEntries(ctx, tx, entries); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// ListLedgerEntries lists ledger entries matching filter in effective order.
func (r *Repository) ListLedgerEntries(ctx context.Context, filter app.LedgerFilter) ([]domain.LedgerEntry, error) {
	clauses := []string{}
	args := []any{}
	if filter.UserID != "" {
		clauses = append(clauses, `user_id = ?`)
		args = append(args, filter.UserID)
	}
	if filter.LevelID != "" {
		clauses = append(clauses, `level_id = ?`)
		args = append(args, filter.LevelID)
	}
	if filter.ActivityID != "" {
		clauses = append(clauses, `activity_id = ?`)
		args = append(args, filter.ActivityID)
	}
	query := `SELECT id, activity_id, user_id, level_id, kind, points, effective_at FROM level_updates`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, ` AND `)
	}
	query += ` ORDER BY effective_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.LedgerEntry{}
	for rows.Next() {
		var (
			e            domain.LedgerEntry
			kind         string
			effectiveRaw string
		)
		if err := rows.Scan(&e.ID, &e.ActivityID, &e.UserID, &e.LevelID, &kind, &e.Points, &effectiveRaw); err != nil {
			return nil, err
		}
		e.Kind = domain.LedgerKind(kind)
		e.EffectiveAt = parseTS(effectiveRaw)
		out = append(out, e)
	}
	return out, rows.Err()
}

// execerContext represents a write-only DB contract used by DB and Tx implementations.
type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

func insertLedgerEntries(ctx context.Context, execer execerContext, entries []domain.LedgerEntry) error {
	for _, e := range entries {
		_, err := execer.ExecContext(ctx, `
			INSERT INTO level_updates(activity_id, user_id, level_id, kind, points, effective_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.ActivityID, e.UserID, e.LevelID, string(e.Kind), e.Points, ts(e.EffectiveAt))
		if err != nil {
			return fmt.Errorf("insert level update for activity %q: %w", e.ActivityID, err)
		}
	}
	return nil
}

// scanner represents scanner data used by this package.
type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(s scanner) (domain.Group, error) {
	var (
		g            domain.Group
		parentID     sql.NullString
		kind         string
		naturalOrder sql.NullInt64
		deleted      sql.NullBool
		deletedAt    sql.NullString
		createdRaw   string
		lastModified sql.NullString
	)
	err := s.Scan(
		&g.ID,
		&parentID,
		&g.Code,
		&kind,
		&g.Name,
		&g.Description,
		&g.SortOrder,
		&naturalOrder,
		&g.AllowDirectMembership,
		&deleted,
		&deletedAt,
		&g.DeletedBy,
		&g.CreatedBy,
		&createdRaw,
		&g.LastModifiedBy,
		&lastModified,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Group{}, app.ErrNotFound
		}
		return domain.Group{}, err
	}
	g.ParentID = parentID.String
	g.Kind = domain.GroupKind(kind)
	if naturalOrder.Valid {
		v := int(naturalOrder.Int64)
		g.NaturalOrder = &v
	}
	if deleted.Valid {
		v := deleted.Bool
		g.Deleted = &v
	}
	g.DeletedAt = parseNullTS(deletedAt)
	g.CreatedAt = parseTS(createdRaw)
	g.LastModifiedAt = parseNullTS(lastModified)
	return g, nil
}

func scanActivityMaster(s scanner) (domain.ActivityMaster, error) {
	var (
		m          domain.ActivityMaster
		createdRaw string
	)
	if err := s.Scan(&m.ID, &m.LevelID, &m.GroupID, &m.Name, &m.Description, &m.Points, &m.PointsExpireInDays, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ActivityMaster{}, app.ErrNotFound
		}
		return domain.ActivityMaster{}, err
	}
	m.CreatedAt = parseTS(createdRaw)
	return m, nil
}

func scanActivity(s scanner) (domain.Activity, error) {
	var (
		a           domain.Activity
		masterID    sql.NullString
		completedAt sql.NullString
		assignedAt  sql.NullString
		activeFrom  sql.NullString
		activeTo    sql.NullString
		createdRaw  string
	)
	err := s.Scan(
		&a.ID,
		&a.LevelID,
		&a.GroupID,
		&a.ReceivingUserID,
		&a.ConsentingUserID,
		&masterID,
		&a.Name,
		&a.Description,
		&a.Points,
		&a.PointsExpireInDays,
		&a.Completed,
		&completedAt,
		&a.PointsAssigned,
		&assignedAt,
		&activeFrom,
		&activeTo,
		&createdRaw,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Activity{}, app.ErrNotFound
		}
		return domain.Activity{}, err
	}
	a.ActivityMasterID = masterID.String
	a.CompletedAt = parseNullTS(completedAt)
	a.PointsAssignedAt = parseNullTS(assignedAt)
	a.ActiveFrom = parseNullTS(activeFrom)
	a.ActiveTo = parseNullTS(activeTo)
	a.CreatedAt = parseTS(createdRaw)
	return a, nil
}

// translateNoRows maps an update or delete that touched nothing to app.ErrNotFound.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableBool(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
