package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/workitems-go/internal/workitems"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one work item",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}
}

func newQueryCmd() *cobra.Command {
	var (
		top     int
		project string
	)

	cmd := &cobra.Command{
		Use:   "query <wiql>",
		Short: "Run a WIQL query",
		Long: `Run a WIQL query and show the matching work items.

The query is scoped to --project, or to the profile's project when set.
@project macros need a project scope.

Examples:
  workitems query "SELECT [System.Id] FROM WorkItems WHERE [System.State] = 'Active'"
  workitems query --top 1 --project Fabrikam "SELECT [System.Id] FROM WorkItems"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], project, top)
		},
	}

	cmd.Flags().IntVar(&top, "top", -1, "return at most N work items (default from config, 0 = all)")
	cmd.Flags().StringVar(&project, "project", "", "project scope (default from profile)")

	return cmd
}

func newSavedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "saved <project> <folder> <query>",
		Short: "Run a saved query",
		Long: `Run the saved query <query> found in the root folder <folder> of
<project>, for example "Shared Queries". Names match case-insensitively.`,
		Args: cobra.ExactArgs(3),
		RunE: runSaved,
	}
}

func newProjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "projects",
		Short: "List the projects of the collection",
		Args:  cobra.NoArgs,
		RunE:  runProjects,
	}
}

func newFoldersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "folders [project]",
		Short: "List the root query folders of a project",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFolders,
	}
}

func newQueriesCmd() *cobra.Command {
	var tree bool

	cmd := &cobra.Command{
		Use:   "queries [project] <folder>",
		Short: "List the saved queries under a root folder",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQueries(cmd, args, tree)
		},
	}

	cmd.Flags().BoolVar(&tree, "tree", false, "show the folder hierarchy")

	return cmd
}

// withExtractor connects and runs fn under a signal-aware context.
func withExtractor(cmd *cobra.Command, fn func(ctx context.Context, cc *CLIContext, ex *workitems.Extractor) error) error {
	cc := mustCLIContext(cmd.Context())

	ctx, cancel := shutdownContext(cmd.Context(), cc.Logger)
	defer cancel()

	ex, err := connect(ctx, cc)
	if err != nil {
		return err
	}

	return fn(ctx, cc, ex)
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := strconv.Atoi(args[0])
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid work item id %q", args[0])
	}

	return withExtractor(cmd, func(ctx context.Context, cc *CLIContext, ex *workitems.Extractor) error {
		item, err := ex.WorkItemByID(ctx, id)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if done, err := writeStructured(w, cc.Flags.Format(), item); done {
			return err
		}

		printSummaryDetail(w, &item)

		return nil
	})
}

// printSummaryDetail renders one work item as a field list.
func printSummaryDetail(w io.Writer, s *workitems.Summary) {
	fields := [][2]string{
		{"ID", strconv.Itoa(s.ID)},
		{"Rev", strconv.Itoa(s.Rev)},
		{"Type", s.Type},
		{"Title", s.Title},
		{"State", s.State},
		{"Reason", s.Reason},
		{"Assigned To", s.AssignedTo},
		{"Created By", s.CreatedBy},
		{"Project", s.Project},
		{"Area", s.AreaPath},
		{"Iteration", s.IterationPath},
		{"Tags", strings.Join(s.Tags, "; ")},
		{"URL", s.URL},
	}

	if s.Priority != 0 {
		fields = append(fields, [2]string{"Priority", strconv.Itoa(s.Priority)})
	}

	if !s.CreatedAt.IsZero() {
		fields = append(fields, [2]string{"Created", formatTime(s.CreatedAt)})
	}

	if !s.ChangedAt.IsZero() {
		fields = append(fields, [2]string{"Changed", formatTime(s.ChangedAt)})
	}

	for _, f := range fields {
		if f[1] == "" {
			continue
		}

		fmt.Fprintf(w, "%-12s %s\n", f[0]+":", f[1])
	}
}

// queryOptions applies profile defaults to the query flags. A negative top
// means the flag was not given.
func queryOptions(cc *CLIContext, project string, top int) workitems.QueryOptions {
	if project == "" {
		project = cc.Cfg.Project
	}

	if top < 0 {
		top = cc.Cfg.Query.DefaultTop
	}

	return workitems.QueryOptions{Project: project, Top: top}
}

func runQuery(cmd *cobra.Command, wiql, project string, top int) error {
	return withExtractor(cmd, func(ctx context.Context, cc *CLIContext, ex *workitems.Extractor) error {
		items, err := ex.WorkItemsByQueryText(ctx, wiql, queryOptions(cc, project, top))
		if err != nil {
			return err
		}

		return printSummaries(cmd.OutOrStdout(), cc.Flags.Format(), items)
	})
}

func runSaved(cmd *cobra.Command, args []string) error {
	return withExtractor(cmd, func(ctx context.Context, cc *CLIContext, ex *workitems.Extractor) error {
		items, err := ex.WorkItemsBySavedQuery(ctx, args[0], args[1], args[2])
		if err != nil {
			return err
		}

		return printSummaries(cmd.OutOrStdout(), cc.Flags.Format(), items)
	})
}

func runProjects(cmd *cobra.Command, _ []string) error {
	return withExtractor(cmd, func(ctx context.Context, cc *CLIContext, ex *workitems.Extractor) error {
		names, err := ex.AvailableProjects(ctx)
		if err != nil {
			return err
		}

		return printNames(cmd.OutOrStdout(), cc.Flags.Format(), names)
	})
}

// projectArg returns the explicit project argument or the profile default.
func projectArg(cc *CLIContext, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}

	if cc.Cfg.Project == "" {
		return "", fmt.Errorf("no project given and profile %q has no default project", cc.Cfg.Name)
	}

	return cc.Cfg.Project, nil
}

func runFolders(cmd *cobra.Command, args []string) error {
	return withExtractor(cmd, func(ctx context.Context, cc *CLIContext, ex *workitems.Extractor) error {
		project, err := projectArg(cc, args)
		if err != nil {
			return err
		}

		names, err := ex.AvailableQueryFolders(ctx, project)
		if err != nil {
			return err
		}

		return printNames(cmd.OutOrStdout(), cc.Flags.Format(), names)
	})
}

func runQueries(cmd *cobra.Command, args []string, tree bool) error {
	folder := args[len(args)-1]

	return withExtractor(cmd, func(ctx context.Context, cc *CLIContext, ex *workitems.Extractor) error {
		project, err := projectArg(cc, args[:len(args)-1])
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()

		if !tree {
			names, err := ex.AvailableQueries(ctx, project, folder)
			if err != nil {
				return err
			}

			return printNames(w, cc.Flags.Format(), names)
		}

		root, err := ex.QueryTree(ctx, project, folder)
		if err != nil {
			return err
		}

		if done, err := writeStructured(w, cc.Flags.Format(), root); done {
			return err
		}

		printQueryTree(w, &root, 0)

		return nil
	})
}

// printQueryTree writes node and its descendants, indented by depth.
func printQueryTree(w io.Writer, node *workitems.QueryNode, depth int) {
	name := node.Name
	if node.IsFolder {
		name += "/"
	}

	fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), name)

	for i := range node.Children {
		printQueryTree(w, &node.Children[i], depth+1)
	}
}
