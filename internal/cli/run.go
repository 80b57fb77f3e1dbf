// Package cli implements the lodgectl command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"lodge/internal/config"
)

// ErrUsage marks errors caused by bad arguments.
var ErrUsage = errors.New("usage")

type command struct {
	usage string
	short string
	exec  func(ctx context.Context, a *app, out io.Writer, args []string) error
}

func (c command) name() string {
	name, _, _ := strings.Cut(c.usage, " ")
	return name
}

var commands = []command{
	{usage: "members [flags]", short: "List members", exec: cmdMembers},
	{usage: "documents [flags]", short: "List documents", exec: cmdDocuments},
	{usage: "programs [flags]", short: "List programs", exec: cmdPrograms},
	{usage: "attendance <program-id> [--stats]", short: "Show a program's roster", exec: cmdAttendance},
	{usage: "confirm <program-id> <member-id>...", short: "Confirm pending members", exec: transitionCommand("confirm")},
	{usage: "checkin <program-id> <member-id>...", short: "Check members in", exec: transitionCommand("check-in")},
	{usage: "absent <program-id> <member-id>...", short: "Mark members absent", exec: transitionCommand("mark-absent")},
	{usage: "justify <program-id> <member-id> <text>", short: "Excuse an absent member", exec: cmdJustify},
	{usage: "journal <program-id> [flags]", short: "Show recorded attendance attempts", exec: cmdJournal},
	{usage: "report <program-id> [flags]", short: "Render, email or export an attendance report", exec: cmdReport},
	{usage: "config", short: "Print the effective configuration", exec: cmdConfig},
}

type globalFlags struct {
	workDir    string
	configPath string
	overrides  config.Overrides
	timings    bool
	help       bool
	remaining  []string
}

func parseGlobalFlags(args []string) (globalFlags, error) {
	var g globalFlags
	fs := flag.NewFlagSet("lodgectl", flag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.SetOutput(io.Discard)

	fs.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	fs.StringVarP(&g.configPath, "config", "c", "", "Use config `file` instead of .lodge.json")
	fs.StringVar(&g.overrides.APIBaseURL, "api", "", "API base `url`")
	fs.StringVar(&g.overrides.APIToken, "token", "", "API bearer `token`")
	fs.IntVar(&g.overrides.PageSize, "page-size", 0, "Rows per page (10, 20, 50, 100, 200)")
	fs.StringVar(&g.overrides.JournalPath, "journal", "", "Attendance journal database `path`")
	fs.StringVar(&g.overrides.LogLevel, "log-level", "", "debug, info, warn or error")
	fs.BoolVar(&g.timings, "timings", false, "Print remote call timings on exit")
	fs.BoolVarP(&g.help, "help", "h", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return globalFlags{}, fmt.Errorf("%w: %w", ErrUsage, err)
	}
	g.remaining = fs.Args()
	return g, nil
}

// Run is the main entry point. Returns the exit code.
func Run(ctx context.Context, out, errOut io.Writer, args []string, env map[string]string) int {
	g, err := parseGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		printUsage(errOut)
		return 2
	}
	if g.help || len(g.remaining) == 0 {
		printUsage(out)
		return 0
	}

	var cmd *command
	for i := range commands {
		if commands[i].name() == g.remaining[0] {
			cmd = &commands[i]
			break
		}
	}
	if cmd == nil {
		fmt.Fprintln(errOut, "error: unknown command:", g.remaining[0])
		printUsage(errOut)
		return 2
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDir:    g.workDir,
		ConfigPath: g.configPath,
		Env:        env,
		Overrides:  g.overrides,
	})
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.Level()})))

	a, err := newApp(cfg)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	defer a.Close()

	started := time.Now()
	err = cmd.exec(ctx, a, out, g.remaining[1:])
	if g.timings {
		a.collector.Snapshot(started, 5).WriteTo(errOut)
	}
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		if errors.Is(err, ErrUsage) {
			fmt.Fprintln(errOut, "usage: lodgectl", cmd.usage)
			return 2
		}
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: lodgectl [global flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-42s %s\n", c.usage, c.short)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global flags:")
	fmt.Fprintln(w, "  -C, --cwd dir        -c, --config file    --api url    --token token")
	fmt.Fprintln(w, "  --page-size n        --journal path       --log-level level    --timings")
}

// newFlagSet returns a command flag set that reports errors instead of exiting.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return nil
}
