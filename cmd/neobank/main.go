// Command neobank is the CLI of the banking assistant.
//
// Usage:
//
//	neobank check
//	neobank run --strategy autonomous_graph "What did I spend on groceries?"
//	neobank version
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/hupe1980/neobank"
	"github.com/hupe1980/neobank/config"
	"github.com/hupe1980/neobank/core"
	"github.com/hupe1980/neobank/internal/ledger"
	"github.com/hupe1980/neobank/logging"
	"github.com/hupe1980/neobank/tool"
)

// CLI defines the command-line interface.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Answer a question with the assistant."`
	Check   CheckCmd   `cmd:"" help:"Print environment information and validate the configuration."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config   string `short:"c" help:"Path to a YAML settings file." type:"path"`
	LogLevel string `name:"log-level" help:"Override LOG_LEVEL (debug, info, warn, error)."`
}

// Globals passed to every command.
type Globals struct {
	Out io.Writer
}

func (c *CLI) settings() (*config.Settings, error) {
	s, err := config.Load(func(o *config.LoadOptions) { o.File = c.Config })
	if err != nil {
		return nil, err
	}

	if c.LogLevel != "" {
		s.LogLevel = c.LogLevel
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run prints the module version.
func (c *VersionCmd) Run(g *Globals) error {
	_, err := fmt.Fprintf(g.Out, "neobank %s\n", version())
	return err
}

func version() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	return "dev"
}

// CheckCmd prints a self-check banner and validates the configuration.
type CheckCmd struct{}

// Run executes the self-check.
func (c *CheckCmd) Run(cli *CLI, g *Globals) error {
	fmt.Fprintln(g.Out, "Neobank assistant started successfully")
	fmt.Fprintln(g.Out)
	fmt.Fprintln(g.Out, "Environment:")
	fmt.Fprintf(g.Out, "  go:         %s\n", runtime.Version())
	fmt.Fprintf(g.Out, "  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(g.Out, "  version:    %s\n", version())
	fmt.Fprintln(g.Out)

	s, err := cli.settings()
	if err != nil {
		fmt.Fprintf(g.Out, "configuration: FAILED\n  %v\n", err)
		return err
	}

	fmt.Fprintf(g.Out, "configuration: OK\n  %s\n", s)

	reg := tool.NewRegistry()
	if err := reg.Register(ledger.Demo(time.Now()).Tools()...); err != nil {
		return err
	}

	fmt.Fprintf(g.Out, "tools:         %v\n", reg.Names())
	fmt.Fprintf(g.Out, "strategies:    %v\n", core.Strategies())
	fmt.Fprintln(g.Out)
	fmt.Fprintln(g.Out, "All checks passed.")

	return nil
}

// RunCmd answers one question.
type RunCmd struct {
	Question string        `arg:"" help:"The customer question."`
	Strategy string        `short:"s" help:"Strategy: non_agentic, agentic or autonomous_graph. Defaults to AGENT_DEFAULT_STRATEGY."`
	Account  string        `short:"a" help:"Account id the question is about." default:"acc-demo"`
	Timeout  time.Duration `help:"Override AGENT_TIMEOUT."`
	JSON     bool          `name:"json" help:"Print the full run result as JSON."`
}

type runOutput struct {
	RunID      string         `json:"run_id"`
	Strategy   string         `json:"strategy"`
	Status     string         `json:"status"`
	Answer     string         `json:"answer"`
	Iterations int            `json:"iterations"`
	LastNode   string         `json:"last_node,omitempty"`
	DurationMS int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Transcript []core.Message `json:"transcript"`
}

// Run executes the question against the configured provider.
func (c *RunCmd) Run(cli *CLI, g *Globals) error {
	s, err := cli.settings()
	if err != nil {
		return err
	}

	if c.Timeout > 0 {
		s.Timeout = c.Timeout
	}

	logger, err := logging.New(s.LoggerConfig())
	if err != nil {
		return core.NewConfigurationError("build logger", nil).WithCause(err)
	}

	defer func() { _ = logger.Sync() }()

	reg := tool.NewRegistry(func(o *tool.RegistryOptions) { o.Logger = logger })
	if err := reg.Register(ledger.Demo(time.Now()).Tools()...); err != nil {
		return err
	}

	assistant, err := neobank.NewFromSettings(s, reg, func(o *neobank.Options) { o.Logger = logger })
	if err != nil {
		return err
	}

	kind, err := parseKind(c.Strategy)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := core.NewRequest(c.Question, map[string]string{core.ContextAccountID: c.Account})

	res, runErr := assistant.Run(ctx, req, kind)

	return printResult(g.Out, res, runErr, c.JSON)
}

func parseKind(s string) (core.StrategyKind, error) {
	if s == "" {
		return "", nil
	}

	return neobank.ParseKind(s)
}

func printResult(w io.Writer, res *core.RunResult, runErr error, asJSON bool) error {
	if asJSON {
		out := runOutput{
			RunID:      res.RunID,
			Strategy:   string(res.Strategy),
			Status:     string(res.Status),
			Answer:     res.Answer,
			Iterations: res.Iterations,
			LastNode:   res.LastNode,
			DurationMS: res.Duration.Milliseconds(),
			Transcript: res.Transcript,
		}

		if runErr != nil {
			out.Error = runErr.Error()
		}

		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(out); err != nil {
			return err
		}

		return runErr
	}

	fmt.Fprintf(w, "[%s] %s after %d iteration(s)\n\n", res.Strategy, res.Status, res.Iterations)

	if res.Answer != "" {
		fmt.Fprintln(w, res.Answer)
	}

	if runErr != nil {
		var cerr *core.Error
		if errors.As(runErr, &cerr) {
			fmt.Fprintf(w, "\n%s: %v\n", cerr.Kind, runErr)
		}
	}

	return runErr
}

func newParser(cli *CLI, out io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("neobank"),
		kong.Description("Neobank assistant: answers banking questions with non-agentic, ReAct or autonomous graph strategies."),
		kong.UsageOnError(),
		kong.Writers(out, out),
		kong.Bind(&Globals{Out: out}),
	)
}

func main() {
	var cli CLI

	parser, err := newParser(&cli, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
