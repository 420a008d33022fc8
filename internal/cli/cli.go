// Package cli is the program shell shared by every skill binary: subcommand
// dispatch, usage text, error rendering and exit codes.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shineum/skillkit/internal/args"
	"github.com/shineum/skillkit/internal/config"
)

// httpTimeout bounds a single request/response round trip.
const httpTimeout = 2 * time.Minute

// Env carries the per-invocation dependencies handed to every command.
type Env struct {
	Config *config.Config
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// HTTPClient is used for every outbound REST call. Nil means a default
	// client with a fixed timeout.
	HTTPClient *http.Client

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

// HTTP returns the client for outbound calls.
func (e *Env) HTTP() *http.Client {
	if e.HTTPClient == nil {
		e.HTTPClient = &http.Client{Timeout: httpTimeout}
	}
	return e.HTTPClient
}

// Clock returns the current time.
func (e *Env) Clock() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Printf writes formatted output to stdout.
func (e *Env) Printf(format string, a ...any) {
	fmt.Fprintf(e.Stdout, format, a...)
}

// Println writes a line to stdout.
func (e *Env) Println(a ...any) {
	fmt.Fprintln(e.Stdout, a...)
}

// Command is one subcommand of a program.
type Command struct {
	// Name is the subcommand token, e.g. "send".
	Name string
	// Usage lists positional arguments and options, e.g. "<to> [--cc addr]*".
	Usage string
	// Short is a one-line description.
	Short string
	// Repeatable names options that accumulate values.
	Repeatable []string
	// Run performs the command. Positional arguments exclude the subcommand.
	Run func(ctx context.Context, env *Env, a *args.Args) error
}

// Program is a skill binary: a name and its subcommands.
type Program struct {
	Name     string
	Short    string
	Commands []*Command
}

// Main loads configuration, configures logging and runs the program against
// os.Args, then exits with the resulting status.
func Main(p *Program) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	SetupLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	env := &Env{
		Config: cfg,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Stdin:  os.Stdin,
	}
	code := p.Run(ctx, os.Args[1:], env)
	stop()
	os.Exit(code)
}

// Run executes the program against argv and returns the process exit status:
// 0 on success, 1 on any error.
func (p *Program) Run(ctx context.Context, argv []string, env *Env) int {
	if argv == nil {
		// cobra falls back to os.Args when given nil.
		argv = []string{}
	}

	root := p.rootCommand(env)
	root.SetArgs(argv)
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		p.report(env.Stderr, err)
		return 1
	}
	return 0
}

func (p *Program) rootCommand(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:                p.Name,
		Short:              p.Short,
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableFlagParsing: true,
		Args:               cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, rest []string) error {
			a := args.Parse(rest)
			if a.Bool("help") || a.Arg(0) == "help" {
				p.PrintUsage(env.Stdout)
				return nil
			}
			p.PrintUsage(env.Stderr)
			if len(a.Positional) == 0 {
				return Usagef("no command given")
			}
			return Usagef("Unknown command: %s", a.Arg(0))
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetHelpFunc(func(*cobra.Command, []string) {
		p.PrintUsage(env.Stdout)
	})

	for _, c := range p.Commands {
		root.AddCommand(p.subcommand(env, c))
	}
	return root
}

func (p *Program) subcommand(env *Env, c *Command) *cobra.Command {
	return &cobra.Command{
		Use:                c.Name,
		Short:              c.Short,
		SilenceUsage:       true,
		SilenceErrors:      true,
		DisableFlagParsing: true,
		Args:               cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, rest []string) error {
			a := args.Parse(rest, c.Repeatable...)
			if a.Bool("help") {
				p.printCommandUsage(env.Stdout, c)
				return nil
			}

			err := c.Run(cmd.Context(), env, a)
			if isUsage(err) {
				p.printCommandUsage(env.Stderr, c)
			}
			return err
		},
	}
}

// PrintUsage writes the program's command list.
func (p *Program) PrintUsage(w io.Writer) {
	fmt.Fprintf(w, "%s - %s\n\n", p.Name, p.Short)
	fmt.Fprintf(w, "Usage:\n  %s <command> [arguments] [--option [value]]...\n\n", p.Name)
	fmt.Fprintln(w, "Commands:")

	cmds := make([]*Command, len(p.Commands))
	copy(cmds, p.Commands)
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	width := 0
	for _, c := range cmds {
		if len(c.Name) > width {
			width = len(c.Name)
		}
	}
	for _, c := range cmds {
		fmt.Fprintf(w, "  %-*s  %s\n", width, c.Name, c.Short)
	}
}

func (p *Program) printCommandUsage(w io.Writer, c *Command) {
	line := strings.TrimSpace(p.Name + " " + c.Name + " " + c.Usage)
	fmt.Fprintf(w, "Usage: %s\n", line)
	if c.Short != "" {
		fmt.Fprintf(w, "  %s\n", c.Short)
	}
}

// report renders err on w. Configuration errors carry their remediation hint
// on a separate line.
func (p *Program) report(w io.Writer, err error) {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		fmt.Fprintf(w, "Error: %s\n", cfgErr.Msg)
		if cfgErr.Hint != "" {
			fmt.Fprintf(w, "  %s\n", cfgErr.Hint)
		}
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func isUsage(err error) bool {
	var usageErr *UsageError
	var argErr *args.Error
	return errors.As(err, &usageErr) || errors.As(err, &argErr)
}
