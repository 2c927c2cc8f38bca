package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hylla/vitality/internal/config"
)

func TestMain(m *testing.M) {
	_ = os.Setenv("VITALITY_DEV_MODE", "false")
	os.Exit(m.Run())
}

// testEnv points every invocation at temp config and db paths.
type testEnv struct {
	t      *testing.T
	config string
	db     string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	return testEnv{
		t:      t,
		config: filepath.Join(dir, "config.toml"),
		db:     filepath.Join(dir, "vitality.db"),
	}
}

func (e testEnv) run(args ...string) (string, string, error) {
	e.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{"--config", e.config, "--db", e.db}, args...)
	err := run(context.Background(), full, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func (e testEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, stderr, err := e.run(args...)
	if err != nil {
		e.t.Fatalf("run(%v) error = %v\nstderr: %s", args, err, stderr)
	}
	return out
}

// field returns the value of the first "key: value" line in out.
func field(t *testing.T, out, key string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, key+": "); ok {
			return strings.TrimSpace(v)
		}
	}
	t.Fatalf("missing %q in output:\n%s", key, out)
	return ""
}

func TestRunPathsCommand(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun("paths")
	if field(t, out, "config") != env.config {
		t.Fatalf("expected config override in output, got %q", out)
	}
	if field(t, out, "db") != env.db {
		t.Fatalf("expected db override in output, got %q", out)
	}
	if field(t, out, "dev_mode") != "false" {
		t.Fatalf("expected dev_mode false, got %q", out)
	}
	if _, err := os.Stat(env.db); !os.IsNotExist(err) {
		t.Fatalf("expected paths to leave the db untouched, stat err = %v", err)
	}
}

func TestRunRejectsUnknownCommand(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.run("nope")
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunRejectsInvalidFlag(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.run("level", "create", "--bogus"); err == nil {
		t.Fatal("expected invalid flag error")
	}
}

func TestRunHierarchyActivityFlow(t *testing.T) {
	env := newTestEnv(t)
	levelID := field(t, env.mustRun("level", "create", "--name", "Company"), "id")
	teamOut := env.mustRun("group", "create", "--parent", levelID, "--name", "Team", "--kind", "department")
	teamID := field(t, teamOut, "id")
	if field(t, teamOut, "parent") != levelID {
		t.Fatalf("expected team parent %q, got %q", levelID, teamOut)
	}
	if got := field(t, env.mustRun("member", "add", teamID, "alice"), "enabled"); got != "true" {
		t.Fatalf("expected enabled membership, got %q", got)
	}

	activityOut := env.mustRun("activity", "create", "--group", teamID, "--user", "alice", "--consenter", "bob", "--name", "Run")
	activityID := field(t, activityOut, "id")
	if field(t, activityOut, "level") != levelID || field(t, activityOut, "points") != "1" {
		t.Fatalf("unexpected activity output %q", activityOut)
	}
	if got := field(t, activityOut, "status"); got != "open_incomplete" {
		t.Fatalf("expected open_incomplete, got %q", got)
	}
	if _, _, err := env.run("activity", "assign", activityID); err == nil {
		t.Fatal("expected assign before completion to fail")
	}
	env.mustRun("activity", "complete", activityID)
	assignOut := env.mustRun("activity", "assign", activityID)
	if !strings.Contains(assignOut, "ledger: credit +1") || !strings.Contains(assignOut, "ledger: debit -1") {
		t.Fatalf("expected credit and debit ledger lines, got %q", assignOut)
	}
	if got := strings.TrimSpace(env.mustRun("activity", "status", activityID)); got != "closed_complete" {
		t.Fatalf("expected closed_complete, got %q", got)
	}

	env.mustRun("milestone", "create", "--level", levelID, "--name", "Bronze", "--points", "1", "--color", "#cd7f32")
	pointsOut := env.mustRun("points", "alice", levelID)
	if field(t, pointsOut, "points") != "1" || field(t, pointsOut, "milestone") != "Bronze" {
		t.Fatalf("unexpected points output %q", pointsOut)
	}
	later := time.Now().AddDate(1, 0, 0).UTC().Format(time.RFC3339)
	if got := field(t, env.mustRun("points", "alice", levelID, "--at", later), "points"); got != "0" {
		t.Fatalf("expected expired points to net zero, got %q", got)
	}

	if got := field(t, env.mustRun("group", "show", teamID), "long_name"); got != "Company / Team" {
		t.Fatalf("unexpected long name %q", got)
	}
	if got := field(t, env.mustRun("group", "show", teamID), "users"); got != "alice" {
		t.Fatalf("expected alice among users, got %q", got)
	}
	treeOut := env.mustRun("group", "tree")
	if !strings.Contains(treeOut, "Company [level]") || !strings.Contains(treeOut, "Team [department]") {
		t.Fatalf("unexpected tree output %q", treeOut)
	}

	listOut := env.mustRun("activity", "list", "--user", "alice")
	if !strings.Contains(listOut, activityID) {
		t.Fatalf("expected activity in list, got %q", listOut)
	}

	env.mustRun("group", "delete", teamID)
	if got := field(t, env.mustRun("group", "show", teamID), "enabled"); got != "false" {
		t.Fatalf("expected deleted team disabled, got %q", got)
	}
	if _, _, err := env.run("activity", "create", "--group", teamID, "--user", "alice", "--consenter", "bob", "--name", "Swim"); err == nil {
		t.Fatal("expected activity creation in a disabled group to fail")
	}
	env.mustRun("group", "restore", teamID)
	purgeOut := env.mustRun("group", "purge", teamID)
	if !strings.Contains(purgeOut, "removed: "+teamID) {
		t.Fatalf("expected purge to report team, got %q", purgeOut)
	}
}

func TestRunRenameRemoveAndSchedule(t *testing.T) {
	env := newTestEnv(t)
	levelID := field(t, env.mustRun("level", "create", "--name", "Company"), "id")
	teamID := field(t, env.mustRun("group", "create", "--parent", levelID, "--name", "Team"), "id")

	if got := field(t, env.mustRun("group", "rename", teamID, "Crew"), "name"); got != "Crew" {
		t.Fatalf("expected renamed group, got %q", got)
	}
	if got := field(t, env.mustRun("group", "show", teamID), "long_name"); got != "Company / Crew" {
		t.Fatalf("unexpected long name after rename %q", got)
	}

	env.mustRun("member", "add", teamID, "Dana@Example.com")
	if got := field(t, env.mustRun("member", "remove", teamID, "dana@example.com"), "removed"); got != "dana@example.com" {
		t.Fatalf("unexpected removal output %q", got)
	}
	if got := field(t, env.mustRun("group", "show", teamID), "members"); got != "0 (enabled 0)" {
		t.Fatalf("expected no members after removal, got %q", got)
	}
	if _, _, err := env.run("member", "remove", teamID, "dana@example.com"); err == nil {
		t.Fatal("expected second removal to fail")
	}

	activityID := field(t, env.mustRun("activity", "create", "--group", teamID, "--user", "alice", "--consenter", "bob", "--name", "Run"), "id")
	from := time.Now().AddDate(0, 0, 7).UTC().Format(time.RFC3339)
	if got := field(t, env.mustRun("activity", "schedule", activityID, "--from", from), "status"); got != "not_available_yet" {
		t.Fatalf("expected rescheduled activity to wait, got %q", got)
	}
	if got := field(t, env.mustRun("activity", "schedule", activityID), "status"); got != "open_incomplete" {
		t.Fatalf("expected open window after clearing, got %q", got)
	}
	if _, _, err := env.run("activity", "schedule", activityID, "--to", "soon"); err == nil {
		t.Fatal("expected invalid --to to fail")
	}
}

func TestRunGroupUpdateKeepsUnsetFields(t *testing.T) {
	env := newTestEnv(t)
	levelID := field(t, env.mustRun("level", "create", "--name", "Company", "--code", "acme"), "id")
	out := env.mustRun("group", "update", levelID, "--name", "Acme")
	if field(t, out, "name") != "Acme" || field(t, out, "code") != "acme" {
		t.Fatalf("unexpected update output %q", out)
	}
}

func TestRunTemplateSeedsActivity(t *testing.T) {
	env := newTestEnv(t)
	levelID := field(t, env.mustRun("level", "create", "--name", "Company"), "id")
	templateOut := env.mustRun("template", "create", "--group", levelID, "--name", "Drill", "--points", "5", "--expiry", "1W")
	templateID := field(t, templateOut, "id")
	if field(t, templateOut, "expiry") != "1w" {
		t.Fatalf("unexpected template expiry %q", templateOut)
	}
	activityOut := env.mustRun("activity", "create", "--template", templateID, "--user", "alice", "--consenter", "bob")
	if field(t, activityOut, "name") != "Drill" || field(t, activityOut, "points") != "5" {
		t.Fatalf("expected template values on activity, got %q", activityOut)
	}
	if !strings.Contains(env.mustRun("template", "list", levelID), templateID) {
		t.Fatal("expected template in list")
	}
}

func TestRunEmptyTree(t *testing.T) {
	env := newTestEnv(t)
	if got := strings.TrimSpace(env.mustRun("group", "tree")); got != "no groups" {
		t.Fatalf("expected empty tree message, got %q", got)
	}
}

func TestRunExpiryList(t *testing.T) {
	env := newTestEnv(t)
	out := env.mustRun("expiry", "list")
	if !strings.Contains(out, "six_months\t6m\t183") || !strings.Contains(out, "never\t∞\t0") {
		t.Fatalf("unexpected expiry catalog %q", out)
	}
}

func TestRunExportImportRoundTrip(t *testing.T) {
	source := newTestEnv(t)
	levelID := field(t, source.mustRun("level", "create", "--name", "Company"), "id")
	source.mustRun("group", "create", "--parent", levelID, "--name", "Team")
	snapshotPath := filepath.Join(t.TempDir(), "snap", "vitality.json")
	source.mustRun("export", "--out", snapshotPath)

	stdoutSnap := source.mustRun("export")
	if !strings.Contains(stdoutSnap, "vitality.snapshot.v1") {
		t.Fatalf("expected snapshot version on stdout, got %q", stdoutSnap)
	}

	target := newTestEnv(t)
	target.mustRun("import", "--in", snapshotPath)
	if got := field(t, target.mustRun("group", "show", levelID), "name"); got != "Company" {
		t.Fatalf("expected imported level, got %q", got)
	}
	if !strings.Contains(target.mustRun("group", "tree"), "Team [group]") {
		t.Fatal("expected imported child in tree")
	}
}

func TestRunImportRequiresInput(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.run("import")
	if err == nil || !strings.Contains(err.Error(), "--in is required") {
		t.Fatalf("expected --in error, got %v", err)
	}
}

func TestRunEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "env-config.toml")
	dbPath := filepath.Join(dir, "env.db")
	t.Setenv("VITALITY_CONFIG", cfgPath)
	t.Setenv("VITALITY_DB_PATH", dbPath)

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), []string{"paths"}, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	out := stdout.String()
	if field(t, out, "config") != cfgPath || field(t, out, "db") != dbPath {
		t.Fatalf("expected env paths, got %q", out)
	}
}

func TestRunRejectsInvalidLoggingLevel(t *testing.T) {
	env := newTestEnv(t)
	if err := os.WriteFile(env.config, []byte("[logging]\nlevel = \"loud\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, _, err := env.run("group", "tree")
	if err == nil || !strings.Contains(err.Error(), "load config") {
		t.Fatalf("expected config load error, got %v", err)
	}
}

func TestRunConfigInit(t *testing.T) {
	env := newTestEnv(t)
	env.mustRun("config", "init")
	cfg, err := config.Load(env.config, config.Default("/unused.db"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != env.db {
		t.Fatalf("expected db path %q persisted, got %q", env.db, cfg.Database.Path)
	}
	if _, _, err := env.run("config", "init"); err == nil {
		t.Fatal("expected second init without --force to fail")
	}
	env.mustRun("config", "init", "--force")
}

func TestRunActorStampsModifications(t *testing.T) {
	env := newTestEnv(t)
	levelID := field(t, env.mustRun("level", "create", "--name", "Company"), "id")
	env.mustRun("--actor", "carol", "group", "update", levelID, "--description", "HQ")
	if got := field(t, env.mustRun("group", "show", levelID), "modified_by"); got != "carol" {
		t.Fatalf("expected carol as modifier, got %q", got)
	}
}

func TestRunQuietSilencesConsoleLogs(t *testing.T) {
	env := newTestEnv(t)
	_, stderr, err := env.run("group", "tree")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(stderr, "command flow start") {
		t.Fatalf("expected console flow logs, got %q", stderr)
	}
	out, stderr, err := env.run("--quiet", "group", "tree")
	if err != nil {
		t.Fatalf("run(--quiet) error = %v", err)
	}
	if stderr != "" {
		t.Fatalf("expected silent console, got %q", stderr)
	}
	if strings.TrimSpace(out) != "no groups" {
		t.Fatalf("expected command output to survive --quiet, got %q", out)
	}
}

func TestRuntimeLoggerCloseDetachesFileSink(t *testing.T) {
	dir := t.TempDir()
	var stderr bytes.Buffer
	cfg := config.Default("/tmp/x.db").Logging
	cfg.DevFile.Dir = dir
	logger, err := newRuntimeLogger(&stderr, "vitality", true, cfg, "", nil)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	logger.Info("before close")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	logger.Warn("after close")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close(again) error = %v", err)
	}

	if !strings.Contains(stderr.String(), "after close") {
		t.Fatalf("expected console to receive late warning, got %q", stderr.String())
	}
	content, err := os.ReadFile(logger.DevLogPath())
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "before close") || strings.Contains(string(content), "after close") {
		t.Fatalf("expected only pre-close events in dev log, got %q", content)
	}
}

func TestRuntimeLoggerDevFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default("/tmp/x.db").Logging
	cfg.DevFile.Dir = dir
	now := func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }
	logger, err := newRuntimeLogger(&bytes.Buffer{}, "vitality", true, cfg, "", now)
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	logger.ServiceLogger().Info("service event", "id", "g1")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	want := filepath.Join(dir, "vitality-20260304.log")
	if logger.DevLogPath() != want {
		t.Fatalf("unexpected dev log path %q, want %q", logger.DevLogPath(), want)
	}
	content, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "component=service") {
		t.Fatalf("expected service component in dev log, got %q", content)
	}
}

func TestWorkspaceRootFrom(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module x\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if got := workspaceRootFrom(nested); got != root {
		t.Fatalf("workspaceRootFrom() = %q, want %q", got, root)
	}
	if got := sanitizeLogFileStem(" my/app "); got != "my-app" {
		t.Fatalf("sanitizeLogFileStem() = %q", got)
	}
	if got := sanitizeLogFileStem("//"); got != "vitality" {
		t.Fatalf("expected default stem, got %q", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("VITALITY_TEST_BOOL", "yes")
	if _, ok := parseBoolEnv("VITALITY_TEST_BOOL"); ok {
		t.Fatal("expected invalid bool to be ignored")
	}
	t.Setenv("VITALITY_TEST_BOOL", "true")
	if v, ok := parseBoolEnv("VITALITY_TEST_BOOL"); !ok || !v {
		t.Fatalf("parseBoolEnv() = %t, %t", v, ok)
	}
}
