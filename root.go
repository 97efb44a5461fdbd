package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/workitems-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// skipConfigAnnotation marks commands that resolve configuration themselves.
// login must work before a profile exists; status reads every profile.
const skipConfigAnnotation = "skipConfig"

// CLIFlags holds the persistent flag values of one invocation.
type CLIFlags struct {
	ConfigPath string
	Profile    string
	JSON       bool
	YAML       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is attached to the command context by PersistentPreRunE.
type CLIContext struct {
	Flags  CLIFlags
	Logger *slog.Logger
	// Cfg is nil for commands annotated with skipConfigAnnotation.
	Cfg *config.ResolvedProfile
	// Env is captured once so commands see one consistent view.
	Env config.EnvOverrides
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext installed by the root pre-run. A
// missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("workitems: command run without CLIContext")
	}

	return cc
}

// newRootCmd builds the fully-assembled root command. Called once from main()
// and once per test.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "workitems",
		Short: "Query work items on Team Foundation Server / Azure DevOps",
		Long: `workitems connects to a TFS or Azure DevOps collection and runs
work item lookups, WIQL queries and saved queries. Results can be recorded
as local snapshots and compared over time.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return preRun(cmd, flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.Profile, "profile", "", "profile name from the config file")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVar(&flags.YAML, "yaml", false, "output in YAML format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("json", "yaml")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newSavedCmd())
	cmd.AddCommand(newProjectsCmd())
	cmd.AddCommand(newFoldersCmd())
	cmd.AddCommand(newQueriesCmd())
	cmd.AddCommand(newSnapshotCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// preRun resolves configuration (unless the command opts out), builds the
// logger, and installs the CLIContext.
func preRun(cmd *cobra.Command, flags CLIFlags) error {
	cc := &CLIContext{
		Flags: flags,
		Env:   config.ReadEnvOverrides(),
	}

	if cmd.Annotations[skipConfigAnnotation] == "" {
		resolved, err := config.Resolve(cc.Env, config.CLIOverrides{
			ConfigPath: flags.ConfigPath,
			Profile:    flags.Profile,
		})
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		cc.Cfg = resolved
	}

	var logging *config.LoggingConfig
	if cc.Cfg != nil {
		logging = &cc.Cfg.Logging
	}

	cc.Logger = buildLogger(cmd.ErrOrStderr(), logging, flags)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(withCLIContext(ctx, cc))

	return nil
}

// buildLogger creates an slog.Logger from the logging config and CLI flags.
// The config level is the baseline; --verbose and --quiet override it.
// Format "auto" is text on a terminal and JSON otherwise.
func buildLogger(w io.Writer, logging *config.LoggingConfig, flags CLIFlags) *slog.Logger {
	level := slog.LevelWarn
	format := "auto"

	if logging != nil {
		switch logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}

		if logging.LogFormat != "" {
			format = logging.LogFormat
		}
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" || (format == "auto" && !isTerminal(w)) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

// isTerminal reports whether w is a terminal file descriptor.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
