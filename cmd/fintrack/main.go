// Command fintrack is a terminal client for the personal-finance dashboard
// API. It keeps the session in the configured credential store, so a stale
// access token is refreshed transparently between invocations.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/session"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// usageError makes run exit with exitUsage.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

// env is what every command gets to work with.
type env struct {
	app    *cli.App
	stdin  *bufio.Reader
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	usage   string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"login":         {"login [-username U] [-password P]", "sign in with username and password", runLogin},
	"login-google":  {"login-google [-port N]", "sign in with a Google account", runLoginGoogle},
	"signup":        {"signup -username U -email E [-password P]", "create an account and sign in", runSignup},
	"logout":        {"logout", "end the session and forget stored credentials", runLogout},
	"status":        {"status", "show whether the session is valid", runStatus},
	"tx":            {"tx list|add|edit|delete|import [flags]", "manage transactions", runTx},
	"whoami":        {"whoami", "print the signed-in username", runWhoami},
	"categories":    {"categories", "list the known categories", runCategories},
	"investments":   {"investments [-json]", "list investment holdings", runInvestments},
	"settings":      {"settings show|budget|display [flags]", "view or change user settings", runSettings},
	"bank":          {"bank link-token|exchange|transactions|balance", "bank account linking", runBank},
	"overview":      {"overview [-month M] [-year Y]", "monthly totals by category", runOverview},
	"export-sheets": {"export-sheets [-year Y] [-month M] [-dry-run]", "append transactions to Google Sheets", runExportSheets},
	"events":        {"events", "print session events published to AMQP", runEvents},
}

func main() {
	cli.LoadEnvFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return exitUsage
	}
	name := args[0]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage(stdout)
		return exitOK
	}
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "fintrack: unknown command %q\n\n", name)
		printUsage(stderr)
		return exitUsage
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	logger := cli.SetupLogger(level, stderr).WithComponent(log.ComponentCLI)

	cfg, err := cli.LoadAndValidateConfig(logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitFailure
	}

	app, err := cli.NewApp(ctx, cfg, logger, cli.AppOptions{
		Navigator: session.NavigatorFunc(func(context.Context, string) {
			fmt.Fprintln(stderr, "Your session has expired. Run `fintrack login` to sign in again.")
		}),
	})
	if err != nil {
		fmt.Fprintf(stderr, "fintrack: %v\n", err)
		return exitFailure
	}
	defer app.Close()

	e := &env{app: app, stdin: bufio.NewReader(stdin), stdout: stdout, stderr: stderr}
	err = cmd.run(ctx, e, args[1:])

	var uerr usageError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.As(err, &uerr):
		fmt.Fprintf(stderr, "fintrack %s: %v\nusage: fintrack %s\n", name, uerr.msg, cmd.usage)
		return exitUsage
	case errors.Is(err, session.ErrSessionTerminated):
		// The navigator already told the user what to do.
		return exitFailure
	default:
		fmt.Fprintf(stderr, "fintrack %s: %v\n", name, err)
		return exitFailure
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: fintrack <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].summary)
	}
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func newFlagSet(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

// parseFlags maps flag parse failures onto usage errors.
func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}
	return nil
}

// subcommand splits "tx list -json" into "list" and its arguments.
func subcommand(args []string, valid ...string) (string, []string, error) {
	if len(args) == 0 {
		return "", nil, usagef("missing subcommand")
	}
	for _, v := range valid {
		if args[0] == v {
			return v, args[1:], nil
		}
	}
	return "", nil, usagef("unknown subcommand %q", args[0])
}
