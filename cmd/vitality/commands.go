package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
	"github.com/hylla/vitality/internal/app"
	"github.com/hylla/vitality/internal/config"
	"github.com/hylla/vitality/internal/domain"
	"github.com/spf13/cobra"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Faint(true)
	openStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	closedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Strikethrough(true)
)

func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := opts.resolvePaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "db_overridden: %t\n", paths.DBOverridden)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := opts.resolvePaths()
			if err != nil {
				return err
			}
			if _, err := os.Stat(paths.ConfigPath); err == nil && !force {
				return fmt.Errorf("config %q already exists (use --force to overwrite)", paths.ConfigPath)
			}
			if err := config.Save(paths.ConfigPath, config.Default(paths.DBPath)); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "config: %s\n", paths.ConfigPath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	cmd.AddCommand(initCmd)
	return cmd
}

// groupFlags binds the shared create flags of levels and groups.
type groupFlags struct {
	parent      string
	code        string
	kind        string
	name        string
	description string
	sort        int
	noDirect    bool
}

func (f *groupFlags) bind(cmd *cobra.Command, withParent bool) {
	if withParent {
		cmd.Flags().StringVar(&f.parent, "parent", "", "parent group id")
		cmd.Flags().StringVar(&f.kind, "kind", string(domain.GroupKindGroup), "group kind: group, role or department")
	}
	cmd.Flags().StringVar(&f.code, "code", "", "unique group code (generated when empty)")
	cmd.Flags().StringVar(&f.name, "name", "", "display name")
	cmd.Flags().StringVar(&f.description, "description", "", "description")
	cmd.Flags().IntVar(&f.sort, "sort", 0, "sort order among siblings")
	cmd.Flags().BoolVar(&f.noDirect, "no-direct-membership", false, "reject direct members")
}

func (f *groupFlags) input() app.CreateGroupInput {
	in := app.CreateGroupInput{
		ParentID:    f.parent,
		Code:        f.code,
		Kind:        domain.GroupKind(f.kind),
		Name:        f.name,
		Description: f.description,
		SortOrder:   f.sort,
	}
	if f.noDirect {
		allow := false
		in.AllowDirectMembership = &allow
	}
	return in
}

func newLevelCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "level",
		Short: "Manage hierarchy roots",
	}
	var flags groupFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a level",
		Args:  cobra.NoArgs,
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, _ []string) error {
			group, err := svc.CreateLevel(ctx, flags.input())
			if err != nil {
				return err
			}
			printGroup(cmd.OutOrStdout(), group)
			return nil
		}),
	}
	flags.bind(create, false)
	cmd.AddCommand(create)
	return cmd
}

func newGroupCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups",
	}

	var createFlags groupFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a group under a parent",
		Args:  cobra.NoArgs,
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, _ []string) error {
			group, err := svc.CreateGroup(ctx, createFlags.input())
			if err != nil {
				return err
			}
			printGroup(cmd.OutOrStdout(), group)
			return nil
		}),
	}
	createFlags.bind(create, true)

	var (
		updateName        string
		updateDescription string
		updateSort        int
		updateDirect      bool
	)
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit group attributes; unset flags keep their values",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			details, err := svc.GroupDetails(ctx, args[0])
			if err != nil {
				return err
			}
			in := app.UpdateGroupInput{
				Name:                  details.Group.Name,
				Description:           details.Group.Description,
				SortOrder:             details.Group.SortOrder,
				AllowDirectMembership: details.Group.AllowDirectMembership,
			}
			if cmd.Flags().Changed("name") {
				in.Name = updateName
			}
			if cmd.Flags().Changed("description") {
				in.Description = updateDescription
			}
			if cmd.Flags().Changed("sort") {
				in.SortOrder = updateSort
			}
			if cmd.Flags().Changed("direct-membership") {
				in.AllowDirectMembership = updateDirect
			}
			group, err := svc.UpdateGroup(ctx, args[0], in)
			if err != nil {
				return err
			}
			printGroup(cmd.OutOrStdout(), group)
			return nil
		}),
	}
	update.Flags().StringVar(&updateName, "name", "", "display name")
	update.Flags().StringVar(&updateDescription, "description", "", "description")
	update.Flags().IntVar(&updateSort, "sort", 0, "sort order among siblings")
	update.Flags().BoolVar(&updateDirect, "direct-membership", true, "accept direct members")

	var moveParent string
	move := &cobra.Command{
		Use:   "move <id>",
		Short: "Re-parent a group; an empty --parent detaches a level",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			group, err := svc.MoveGroup(ctx, args[0], moveParent)
			if err != nil {
				return err
			}
			printGroup(cmd.OutOrStdout(), group)
			return nil
		}),
	}
	move.Flags().StringVar(&moveParent, "parent", "", "new parent group id")

	rename := &cobra.Command{
		Use:   "rename <id> <name>",
		Short: "Rename a group",
		Args:  cobra.ExactArgs(2),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			group, err := svc.RenameGroup(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			printGroup(cmd.OutOrStdout(), group)
			return nil
		}),
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete a group; its subtree becomes disabled",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			group, err := svc.DeleteGroup(ctx, args[0])
			if err != nil {
				return err
			}
			printGroup(cmd.OutOrStdout(), group)
			return nil
		}),
	}

	restore := &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a soft-deleted group",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			group, err := svc.RestoreGroup(ctx, args[0])
			if err != nil {
				return err
			}
			printGroup(cmd.OutOrStdout(), group)
			return nil
		}),
	}

	purge := &cobra.Command{
		Use:   "purge <id>",
		Short: "Physically remove a group and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			removed, err := svc.PurgeGroup(ctx, args[0])
			if err != nil {
				return err
			}
			for _, id := range removed {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed: %s\n", id)
			}
			return nil
		}),
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a group and its derived state",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			details, err := svc.GroupDetails(ctx, args[0])
			if err != nil {
				return err
			}
			printGroupDetails(cmd.OutOrStdout(), details)
			return nil
		}),
	}

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Render every hierarchy",
		Args:  cobra.NoArgs,
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, _ []string) error {
			groups, err := svc.LoadTree(ctx)
			if err != nil {
				return err
			}
			if groups.Len() == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("no groups"))
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderGroupTree(groups))
			return nil
		}),
	}

	cmd.AddCommand(create, update, rename, move, deleteCmd, restore, purge, show, treeCmd)
	return cmd
}

func newMemberCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "member",
		Short: "Manage direct group memberships",
	}
	add := &cobra.Command{
		Use:   "add <group-id> <user-id>",
		Short: "Add an enabled member",
		Args:  cobra.ExactArgs(2),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			m, err := svc.AddMember(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			printMembership(cmd.OutOrStdout(), args[0], m)
			return nil
		}),
	}
	toggle := func(use, short string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <group-id> <user-id>",
			Short: short,
			Args:  cobra.ExactArgs(2),
			RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
				m, err := svc.SetMemberEnabled(ctx, args[0], args[1], enabled)
				if err != nil {
					return err
				}
				printMembership(cmd.OutOrStdout(), args[0], m)
				return nil
			}),
		}
	}
	remove := &cobra.Command{
		Use:   "remove <group-id> <user-id>",
		Short: "Drop a direct membership",
		Args:  cobra.ExactArgs(2),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			if err := svc.RemoveMember(ctx, args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed: %s\n", domain.CanonicalUserID(args[1]))
			return nil
		}),
	}
	cmd.AddCommand(add, toggle("enable", "Enable a membership", true), toggle("disable", "Disable a membership", false), remove)
	return cmd
}

func newTemplateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage activity templates",
	}
	var (
		in         app.CreateActivityMasterInput
		points     int
		expireDays int64
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an activity template owned by a group",
		Args:  cobra.NoArgs,
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, _ []string) error {
			if cmd.Flags().Changed("points") {
				in.Points = &points
			}
			if cmd.Flags().Changed("expire-days") {
				in.PointsExpireInDays = &expireDays
			}
			m, err := svc.CreateActivityMaster(ctx, in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "id: %s\n", m.ID)
			_, _ = fmt.Fprintf(out, "group: %s\n", m.GroupID)
			_, _ = fmt.Fprintf(out, "level: %s\n", m.LevelID)
			_, _ = fmt.Fprintf(out, "name: %s\n", m.Name)
			_, _ = fmt.Fprintf(out, "points: %d\n", m.Points)
			_, _ = fmt.Fprintf(out, "expiry: %s\n", domain.ClassifyExpiryPeriod(m.PointsExpireInDays).Abbreviation())
			return nil
		}),
	}
	create.Flags().StringVar(&in.GroupID, "group", "", "owning group id")
	create.Flags().StringVar(&in.Name, "name", "", "template name")
	create.Flags().StringVar(&in.Description, "description", "", "description")
	create.Flags().IntVar(&points, "points", 0, "points credited on assignment")
	create.Flags().StringVar(&in.ExpiryPeriod, "expiry", "", "expiry period name or abbreviation")
	create.Flags().Int64Var(&expireDays, "expire-days", 0, "explicit expiry in days (0 never expires)")

	list := &cobra.Command{
		Use:   "list [group-id]",
		Short: "List templates",
		Args:  cobra.MaximumNArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			groupID := ""
			if len(args) == 1 {
				groupID = args[0]
			}
			masters, err := svc.ListActivityMasters(ctx, groupID)
			if err != nil {
				return err
			}
			for _, m := range masters {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\t%s\n", m.ID, m.Name, m.Points, domain.ClassifyExpiryPeriod(m.PointsExpireInDays).Abbreviation())
			}
			return nil
		}),
	}
	cmd.AddCommand(create, list)
	return cmd
}

func newActivityCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Manage activities",
	}

	var (
		in         app.CreateActivityInput
		points     int
		expireDays int64
		from, to   string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an activity from a template or free-standing",
		Args:  cobra.NoArgs,
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, _ []string) error {
			if cmd.Flags().Changed("points") {
				in.Points = &points
			}
			if cmd.Flags().Changed("expire-days") {
				in.PointsExpireInDays = &expireDays
			}
			var err error
			if in.ActiveFrom, err = parseTimeFlag("from", from); err != nil {
				return err
			}
			if in.ActiveTo, err = parseTimeFlag("to", to); err != nil {
				return err
			}
			activity, err := svc.CreateActivity(ctx, in)
			if err != nil {
				return err
			}
			printActivity(cmd.OutOrStdout(), activity, time.Now())
			return nil
		}),
	}
	create.Flags().StringVar(&in.ActivityMasterID, "template", "", "activity template id")
	create.Flags().StringVar(&in.GroupID, "group", "", "group id (required without --template)")
	create.Flags().StringVar(&in.ReceivingUserID, "user", "", "receiving user id")
	create.Flags().StringVar(&in.ConsentingUserID, "consenter", "", "consenting user id")
	create.Flags().StringVar(&in.Name, "name", "", "activity name")
	create.Flags().StringVar(&in.Description, "description", "", "description")
	create.Flags().IntVar(&points, "points", 0, "points credited on assignment")
	create.Flags().StringVar(&in.ExpiryPeriod, "expiry", "", "expiry period name or abbreviation")
	create.Flags().Int64Var(&expireDays, "expire-days", 0, "explicit expiry in days (0 never expires)")
	create.Flags().StringVar(&from, "from", "", "window start (RFC3339)")
	create.Flags().StringVar(&to, "to", "", "window end (RFC3339)")

	complete := &cobra.Command{
		Use:   "complete <id>",
		Short: "Mark an activity completed",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			activity, err := svc.CompleteActivity(ctx, args[0])
			if err != nil {
				return err
			}
			printActivity(cmd.OutOrStdout(), activity, time.Now())
			return nil
		}),
	}

	assign := &cobra.Command{
		Use:   "assign <id>",
		Short: "Credit the points of a completed activity",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			activity, entries, err := svc.AssignPoints(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printActivity(out, activity, time.Now())
			for _, e := range entries {
				_, _ = fmt.Fprintf(out, "ledger: %s %+d at %s\n", e.Kind, e.Points, e.EffectiveAt.Format(time.RFC3339))
			}
			return nil
		}),
	}

	status := &cobra.Command{
		Use:   "status <id>",
		Short: "Print the derived status of an activity",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			s, err := svc.ActivityStatus(ctx, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderStatus(s))
			return nil
		}),
	}

	var moveGroup string
	move := &cobra.Command{
		Use:   "move <id>",
		Short: "Place an activity without a template in another group",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			activity, err := svc.MoveActivity(ctx, args[0], moveGroup)
			if err != nil {
				return err
			}
			printActivity(cmd.OutOrStdout(), activity, time.Now())
			return nil
		}),
	}
	move.Flags().StringVar(&moveGroup, "group", "", "target group id")

	var scheduleFrom, scheduleTo string
	schedule := &cobra.Command{
		Use:   "schedule <id>",
		Short: "Replace the activation window; omitted bounds stay open",
		Args:  cobra.ExactArgs(1),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			from, err := parseTimeFlag("from", scheduleFrom)
			if err != nil {
				return err
			}
			to, err := parseTimeFlag("to", scheduleTo)
			if err != nil {
				return err
			}
			activity, err := svc.RescheduleActivity(ctx, args[0], from, to)
			if err != nil {
				return err
			}
			printActivity(cmd.OutOrStdout(), activity, time.Now())
			return nil
		}),
	}
	schedule.Flags().StringVar(&scheduleFrom, "from", "", "window start (RFC3339)")
	schedule.Flags().StringVar(&scheduleTo, "to", "", "window end (RFC3339)")

	var filter app.ActivityFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		Args:  cobra.NoArgs,
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, _ []string) error {
			activities, err := svc.ListActivities(ctx, filter)
			if err != nil {
				return err
			}
			now := time.Now()
			for _, a := range activities {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d\n", a.ID, renderStatus(a.Status(now)), a.Name, a.Points)
			}
			return nil
		}),
	}
	list.Flags().StringVar(&filter.ReceivingUserID, "user", "", "receiving user id")
	list.Flags().StringVar(&filter.GroupID, "group", "", "group id")
	list.Flags().StringVar(&filter.LevelID, "level", "", "level id")

	cmd.AddCommand(create, complete, assign, status, move, schedule, list)
	return cmd
}

func newMilestoneCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "milestone",
		Short: "Manage level milestones",
	}
	var in app.CreateMilestoneInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a points milestone in a level",
		Args:  cobra.NoArgs,
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, _ []string) error {
			m, err := svc.CreateMilestone(ctx, in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "id: %s\n", m.ID)
			_, _ = fmt.Fprintf(out, "level: %s\n", m.LevelID)
			_, _ = fmt.Fprintf(out, "name: %s\n", m.Name)
			_, _ = fmt.Fprintf(out, "points: %d\n", m.Points)
			_, _ = fmt.Fprintf(out, "color: %s\n", lipgloss.NewStyle().Foreground(lipgloss.Color(m.Color)).Render(m.Color))
			return nil
		}),
	}
	create.Flags().StringVar(&in.LevelID, "level", "", "level id")
	create.Flags().StringVar(&in.Name, "name", "", "milestone name")
	create.Flags().StringVar(&in.Description, "description", "", "description")
	create.Flags().IntVar(&in.Points, "points", 0, "points threshold")
	create.Flags().StringVar(&in.Color, "color", "", "hex color, for example #ffd700")
	cmd.AddCommand(create)
	return cmd
}

func newPointsCommand(opts *rootOptions) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "points <user-id> <level-id>",
		Short: "Print a user's points and reached milestone in a level",
		Args:  cobra.ExactArgs(2),
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, args []string) error {
			instant, err := parseTimeFlag("at", at)
			if err != nil {
				return err
			}
			var when time.Time
			if instant != nil {
				when = *instant
			}
			points, err := svc.UserPoints(ctx, args[0], args[1], when)
			if err != nil {
				return err
			}
			milestone, ok, err := svc.UserMilestone(ctx, args[0], args[1], when)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "points: %d\n", points)
			if ok {
				_, _ = fmt.Fprintf(out, "milestone: %s\n", milestone.Name)
			} else {
				_, _ = fmt.Fprintf(out, "milestone: %s\n", mutedStyle.Render("none"))
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&at, "at", "", "instant to evaluate (RFC3339, default now)")
	return cmd
}

func newExpiryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expiry",
		Short: "Inspect expiry periods",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List the expiry period catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, p := range domain.ExpiryPeriods() {
				days := fmt.Sprintf("%d", p.Days())
				if p == domain.ExpiryCustom {
					days = "-"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", p, p.Abbreviation(), days)
			}
			return nil
		},
	}
	cmd.AddCommand(list)
	return cmd
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON snapshot of the whole store",
		Args:  cobra.NoArgs,
		RunE: opts.withService(func(ctx context.Context, cmd *cobra.Command, svc *app.Service, _ []string) error {
			return runExport(ctx, svc, outPath, cmd.OutOrStdout())
		}),
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

func newImportCommand(opts *rootOptions) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a JSON snapshot into the store",
		Args:  cobra.NoArgs,
		RunE: opts.withService(func(ctx context.Context, _ *cobra.Command, svc *app.Service, _ []string) error {
			return runImport(ctx, svc, inPath)
		}),
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	return cmd
}

// runExport encodes the snapshot to outPath or stdout.
func runExport(ctx context.Context, svc *app.Service, outPath string, stdout io.Writer) error {
	snap, err := svc.ExportSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}
	encoded, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot json: %w", err)
	}
	encoded = append(encoded, '\n')

	if outPath == "" || outPath == "-" {
		if _, err := stdout.Write(encoded); err != nil {
			return fmt.Errorf("write snapshot to stdout: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create export output dir: %w", err)
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write export file: %w", err)
	}
	return nil
}

// runImport decodes and imports one snapshot file.
func runImport(ctx context.Context, svc *app.Service, inPath string) error {
	if strings.TrimSpace(inPath) == "" {
		return errors.New("--in is required")
	}
	content, err := os.ReadFile(inPath)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	var snap app.Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return fmt.Errorf("decode snapshot json: %w", err)
	}
	if err := svc.ImportSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	return nil
}

// parseTimeFlag parses an optional RFC3339 flag value.
func parseTimeFlag(name, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("parse --%s: %w", name, err)
	}
	return &t, nil
}

func printGroup(out io.Writer, g domain.Group) {
	_, _ = fmt.Fprintf(out, "id: %s\n", g.ID)
	_, _ = fmt.Fprintf(out, "code: %s\n", g.Code)
	_, _ = fmt.Fprintf(out, "kind: %s\n", g.Kind)
	_, _ = fmt.Fprintf(out, "name: %s\n", g.Name)
	if g.ParentID != "" {
		_, _ = fmt.Fprintf(out, "parent: %s\n", g.ParentID)
	}
	_, _ = fmt.Fprintf(out, "deleted: %t\n", g.IsDeleted())
}

func printGroupDetails(out io.Writer, d app.GroupDetails) {
	_, _ = fmt.Fprintln(out, titleStyle.Render(d.LongName))
	printGroup(out, d.Group)
	level := "-"
	if d.Level != nil {
		level = d.Level.ID
	}
	_, _ = fmt.Fprintf(out, "long_name: %s\n", d.LongName)
	_, _ = fmt.Fprintf(out, "level: %s\n", level)
	_, _ = fmt.Fprintf(out, "depth: %d\n", d.Depth)
	_, _ = fmt.Fprintf(out, "enabled: %t\n", d.Enabled)
	_, _ = fmt.Fprintf(out, "restorable: %t\n", d.Restorable)
	_, _ = fmt.Fprintf(out, "valid: %t\n", d.Valid)
	_, _ = fmt.Fprintf(out, "children: %d (enabled %d)\n", len(d.Children), d.EnabledChildrenCount)
	_, _ = fmt.Fprintf(out, "descendants: %d\n", d.DescendantCount)
	_, _ = fmt.Fprintf(out, "members: %d (enabled %d)\n", d.MemberCount, d.EnabledMemberCount)
	if len(d.Users) > 0 {
		_, _ = fmt.Fprintf(out, "users: %s\n", strings.Join(d.Users, ", "))
	}
	_, _ = fmt.Fprintf(out, "templates: %d\n", d.ActivityMasterCount)
	if d.Group.IsModified() {
		_, _ = fmt.Fprintf(out, "modified_by: %s\n", d.Group.LastModifiedBy)
	}
}

func printMembership(out io.Writer, groupID string, m domain.Membership) {
	_, _ = fmt.Fprintf(out, "group: %s\n", groupID)
	_, _ = fmt.Fprintf(out, "user: %s\n", m.UserID)
	_, _ = fmt.Fprintf(out, "enabled: %t\n", m.Enabled)
}

func printActivity(out io.Writer, a domain.Activity, now time.Time) {
	_, _ = fmt.Fprintf(out, "id: %s\n", a.ID)
	_, _ = fmt.Fprintf(out, "name: %s\n", a.Name)
	_, _ = fmt.Fprintf(out, "group: %s\n", a.GroupID)
	_, _ = fmt.Fprintf(out, "level: %s\n", a.LevelID)
	_, _ = fmt.Fprintf(out, "user: %s\n", a.ReceivingUserID)
	_, _ = fmt.Fprintf(out, "points: %d\n", a.Points)
	_, _ = fmt.Fprintf(out, "expiry: %s\n", a.ExpiryPeriod().Abbreviation())
	_, _ = fmt.Fprintf(out, "status: %s\n", renderStatus(a.Status(now)))
}

func renderStatus(s domain.ActivityStatus) string {
	if s.IsOpen() {
		return openStyle.Render(string(s))
	}
	return closedStyle.Render(string(s))
}

// renderGroupTree draws every root with its subtree; disabled nodes are struck through.
func renderGroupTree(groups *domain.GroupTree) string {
	root := tree.New().Enumerator(tree.RoundedEnumerator)
	for _, g := range groups.Roots() {
		root.Child(groupNode(groups, g))
	}
	return root.String()
}

func groupNode(groups *domain.GroupTree, g domain.Group) any {
	label := fmt.Sprintf("%s [%s] %s", g.Name, g.Kind, mutedStyle.Render(g.Code))
	if !groups.IsEnabled(g.ID) {
		label = disabledStyle.Render(fmt.Sprintf("%s [%s]", g.Name, g.Kind)) + " " + mutedStyle.Render(g.Code)
	}
	children := groups.Children(g.ID)
	if len(children) == 0 {
		return label
	}
	node := tree.Root(label).Enumerator(tree.RoundedEnumerator)
	for _, child := range children {
		node.Child(groupNode(groups, child))
	}
	return node
}
