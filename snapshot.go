package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/workitems-go/internal/snapshot"
	"github.com/tonimelisma/workitems-go/internal/workitems"
)

// errDiffFound is returned by `snapshot diff --exit-code` when the runs
// differ. main maps it to exit status 1 without an error message.
var errDiffFound = errors.New("snapshot runs differ")

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Record query results locally and compare them over time",
	}

	cmd.AddCommand(newSnapshotRecordCmd())
	cmd.AddCommand(newSnapshotListCmd())
	cmd.AddCommand(newSnapshotShowCmd())
	cmd.AddCommand(newSnapshotDiffCmd())

	return cmd
}

func newSnapshotRecordCmd() *cobra.Command {
	var (
		wiql    string
		saved   string
		project string
		top     int
	)

	cmd := &cobra.Command{
		Use:   "record <label>",
		Short: "Run a query and store its results",
		Long: `Run a WIQL query (--wiql) or a saved query (--saved project/folder/query)
and store the results under <label>.

Examples:
  workitems snapshot record active --wiql "SELECT [System.Id] FROM WorkItems WHERE [System.State] = 'Active'"
  workitems snapshot record bugs --saved "Fabrikam/Shared Queries/Active Bugs"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotRecord(cmd, args[0], wiql, saved, project, top)
		},
	}

	cmd.Flags().StringVar(&wiql, "wiql", "", "WIQL query text")
	cmd.Flags().StringVar(&saved, "saved", "", "saved query as project/folder/query")
	cmd.Flags().StringVar(&project, "project", "", "project scope for --wiql (default from profile)")
	cmd.Flags().IntVar(&top, "top", -1, "record at most N work items for --wiql (default from config, 0 = all)")
	cmd.MarkFlagsMutuallyExclusive("wiql", "saved")
	cmd.MarkFlagsOneRequired("wiql", "saved")

	return cmd
}

func newSnapshotListCmd() *cobra.Command {
	var (
		label string
		since time.Duration
		limit uint64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := snapshot.Filter{Label: label, Limit: limit}
			if since > 0 {
				f.Since = time.Now().Add(-since)
			}

			return runSnapshotList(cmd, f)
		},
	}

	cmd.Flags().StringVar(&label, "label", "", "only runs with this label")
	cmd.Flags().DurationVar(&since, "since", 0, "only runs captured within this duration (e.g. 72h)")
	cmd.Flags().Uint64Var(&limit, "limit", 0, "show at most N runs")

	return cmd
}

func newSnapshotShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run>",
		Short: "Show a recorded run and its work items",
		Long:  "Show a recorded run. <run> is a run id or a unique prefix of one.",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotShow,
	}
}

func newSnapshotDiffCmd() *cobra.Command {
	var exitCode bool

	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Compare two recorded runs",
		Long: `Compare two recorded runs by work item id. Items are reported as added,
removed, or changed when their revision or state differs.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSnapshotDiff(cmd, args[0], args[1], exitCode)
		},
	}

	cmd.Flags().BoolVar(&exitCode, "exit-code", false, "exit with status 1 when the runs differ")

	return cmd
}

// withSnapshots opens the profile's snapshot database for fn.
func withSnapshots(ctx context.Context, cc *CLIContext, fn func(*snapshot.Store) error) (err error) {
	store, err := snapshot.Open(ctx, cc.Cfg.DBPath, cc.Logger)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := store.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(store)
}

// savedQueryRef is a parsed project/folder/query reference.
type savedQueryRef struct {
	Project, Folder, Query string
}

func parseSavedQueryRef(s string) (savedQueryRef, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return savedQueryRef{}, fmt.Errorf("invalid saved query %q: want project/folder/query", s)
	}

	return savedQueryRef{Project: parts[0], Folder: parts[1], Query: parts[2]}, nil
}

func runSnapshotRecord(cmd *cobra.Command, label, wiql, saved, project string, top int) error {
	var ref savedQueryRef

	if saved != "" {
		var err error
		if ref, err = parseSavedQueryRef(saved); err != nil {
			return err
		}
	}

	return withExtractor(cmd, func(ctx context.Context, cc *CLIContext, ex *workitems.Extractor) error {
		var (
			items []workitems.Summary
			query string
			err   error
		)

		if saved != "" {
			query = "saved:" + saved
			items, err = ex.WorkItemsBySavedQuery(ctx, ref.Project, ref.Folder, ref.Query)
		} else {
			query = wiql
			items, err = ex.WorkItemsByQueryText(ctx, wiql, queryOptions(cc, project, top))
		}

		if err != nil {
			return err
		}

		return withSnapshots(ctx, cc, func(store *snapshot.Store) error {
			run, err := store.Record(ctx, snapshot.Run{
				Profile: cc.Cfg.Name,
				Label:   label,
				Query:   query,
				Items:   items,
			})
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if done, err := writeStructured(w, cc.Flags.Format(), runHeader(run)); done {
				return err
			}

			fmt.Fprintf(w, "Recorded run %s (%s, %d items)\n", run.ID, run.Label, run.Count)

			return nil
		})
	})
}

// runHeader drops the items so listings stay small.
func runHeader(r snapshot.Run) snapshot.Run {
	r.Items = nil

	return r
}

var runHeaders = []string{"RUN", "LABEL", "PROFILE", "CAPTURED", "ITEMS"}

// shortIDLen is how much of a run id tables show. Any unique prefix is
// accepted back by show and diff.
const shortIDLen = 8

func shortID(id string) string {
	if len(id) <= shortIDLen {
		return id
	}

	return id[:shortIDLen]
}

func runSnapshotList(cmd *cobra.Command, f snapshot.Filter) error {
	cc := mustCLIContext(cmd.Context())

	return withSnapshots(cmd.Context(), cc, func(store *snapshot.Store) error {
		runs, err := store.Runs(cmd.Context(), f)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if done, err := writeStructured(w, cc.Flags.Format(), runs); done {
			return err
		}

		if len(runs) == 0 {
			statusf(cmd.ErrOrStderr(), cc.Flags.Quiet, "No snapshot runs recorded.\n")
			return nil
		}

		printRunTable(w, runs)

		return nil
	})
}

func printRunTable(w io.Writer, runs []snapshot.Run) {
	rows := make([][]string, 0, len(runs))
	for i := range runs {
		r := &runs[i]
		rows = append(rows, []string{
			shortID(r.ID),
			r.Label,
			r.Profile,
			formatTime(r.CapturedAt),
			strconv.Itoa(r.Count),
		})
	}

	printTable(w, runHeaders, rows)
}

func runSnapshotShow(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	return withSnapshots(ctx, cc, func(store *snapshot.Store) error {
		run, err := store.Run(ctx, args[0])
		if err != nil {
			return err
		}

		if run.Items, err = store.Items(ctx, run.ID); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if done, err := writeStructured(w, cc.Flags.Format(), run); done {
			return err
		}

		fmt.Fprintf(w, "Run:      %s\n", run.ID)
		fmt.Fprintf(w, "Label:    %s\n", run.Label)
		fmt.Fprintf(w, "Profile:  %s\n", run.Profile)
		fmt.Fprintf(w, "Query:    %s\n", run.Query)
		fmt.Fprintf(w, "Captured: %s\n\n", run.CapturedAt.Local().Format(time.RFC3339))

		return printSummaries(w, formatTable, run.Items)
	})
}

func runSnapshotDiff(cmd *cobra.Command, oldRun, newRun string, exitCode bool) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	return withSnapshots(ctx, cc, func(store *snapshot.Store) error {
		d, err := store.Diff(ctx, oldRun, newRun)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if done, err := writeStructured(w, cc.Flags.Format(), d); done {
			if err != nil {
				return err
			}
		} else {
			printDiff(w, d)
		}

		if exitCode && !d.Empty() {
			return errDiffFound
		}

		return nil
	})
}

// printDiff writes one line per difference, prefixed +, - or ~.
func printDiff(w io.Writer, d *snapshot.Diff) {
	if d.Empty() {
		fmt.Fprintln(w, "No differences.")
		return
	}

	for i := range d.Added {
		s := &d.Added[i]
		fmt.Fprintf(w, "+ %d  %s  [%s]\n", s.ID, s.Title, s.State)
	}

	for i := range d.Removed {
		s := &d.Removed[i]
		fmt.Fprintf(w, "- %d  %s  [%s]\n", s.ID, s.Title, s.State)
	}

	for i := range d.Changed {
		c := &d.Changed[i]
		fmt.Fprintf(w, "~ %d  %s  [%s -> %s] rev %d -> %d\n",
			c.ID, c.New.Title, c.Old.State, c.New.State, c.Old.Rev, c.New.Rev)
	}

	fmt.Fprintf(w, "\n%d added, %d removed, %d changed\n", len(d.Added), len(d.Removed), len(d.Changed))
}
