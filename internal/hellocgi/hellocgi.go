// Package hellocgi implements the actual functionality exposed via the CLI.
package hellocgi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.followtheprocess.codes/hellocgi/internal/check"
	"go.followtheprocess.codes/hellocgi/internal/page"
	"go.followtheprocess.codes/hellocgi/internal/server"
	"go.followtheprocess.codes/hellocgi/internal/tui"
	"go.followtheprocess.codes/log"
	"go.followtheprocess.codes/msg"
)

// DebugEnv is the environment variable that turns on debug logging, it's the only way to
// get debug logs out of a CGI invocation as the web server passes no flags.
const DebugEnv = "HELLOCGI_DEBUG"

// EscapeEnv is the environment variable that, when set to anything, makes the response
// HTML-escape the working directory and environment. Without it they are written verbatim.
const EscapeEnv = "HELLOCGI_ESCAPE"

// App holds the state of the program.
type App struct {
	stdout io.Writer   // Normal program output is written here, in CGI mode this is the response
	stderr io.Writer   // Logs and debug info
	logger *log.Logger // The logger, writes to stderr
	debug  bool        // Whether debug logging is on
}

// New returns a new instance of [App].
//
// Debug logging is enabled if debug is true or [DebugEnv] is set to anything.
func New(stdout, stderr io.Writer, debug bool) App {
	if _, ok := os.LookupEnv(DebugEnv); ok {
		debug = true
	}

	level := log.LevelInfo
	if debug {
		level = log.LevelDebug
	}

	logger := log.New(stderr, log.WithLevel(level))

	return App{
		stdout: stdout,
		stderr: stderr,
		logger: logger,
		debug:  debug,
	}
}

// Respond implements bare `hellocgi`, it writes the CGI response for this process to stdout.
func (a App) Respond() error {
	p, err := current()
	if err != nil {
		return err
	}

	a.logger.Debug("Responding", "cwd", p.Cwd, "vars", len(p.Env), "escape", p.Escape)

	if _, err := p.WriteTo(a.stdout); err != nil {
		return fmt.Errorf("could not write response: %w", err)
	}

	return nil
}

// current returns the page for this process, escaped if [EscapeEnv] is set.
func current() (page.Page, error) {
	p, err := page.Current()
	if err != nil {
		return page.Page{}, err
	}

	_, p.Escape = os.LookupEnv(EscapeEnv)
	return p, nil
}

// CheckOptions are the flags passed to the `hellocgi check` subcommand.
type CheckOptions struct {
	URL     string        // Fetch the response from a deployed page
	Timeout time.Duration // Overall timeout when fetching URL
}

// Check implements the `hellocgi check` subcommand.
//
// With no file and no URL it checks the response this process would give, including that
// it reports the right working directory and environment.
func (a App) Check(file string, options CheckOptions) error {
	var (
		name string
		src  []byte
		opts check.Options
	)

	switch {
	case file != "" && options.URL != "":
		return errors.New("cannot check both a file and a URL, pick one")
	case options.URL != "":
		a.logger.Debug("Fetching response", "url", options.URL, "timeout", options.Timeout)

		fetched, err := check.Fetch(options.URL, options.Timeout)
		if err != nil {
			return err
		}

		name, src, opts = options.URL, fetched, check.Options{Relaxed: true}
	case file != "":
		contents, err := os.ReadFile(file)
		if err != nil {
			return err
		}

		name, src = file, contents
	default:
		p, err := current()
		if err != nil {
			return err
		}

		name, src = "stdout", []byte(p.String())
		opts = check.Options{Cwd: p.Cwd, Env: p.Env, Escape: p.Escape}
	}

	a.logger.Debug("Checking response", "name", name, "bytes", len(src), "relaxed", opts.Relaxed)

	if err := check.Response(name, src, opts, check.PrettyConsoleHandler(a.stderr, src)); err != nil {
		return err
	}

	msg.Fsuccess(a.stdout, "%s is a valid response", name)
	return nil
}

// ServeOptions are the flags passed to the `hellocgi serve` subcommand.
type ServeOptions struct {
	Addr   string // Address to listen on
	Dir    string // Working directory of the CGI program
	Script string // CGI program to run, defaults to this binary
}

// Serve implements the `hellocgi serve` subcommand, it blocks until ctx is cancelled.
func (a App) Serve(ctx context.Context, options ServeOptions) error {
	script := options.Script
	if script == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("could not locate the hellocgi binary: %w", err)
		}
		script = exe
	}

	cfg := server.Config{
		Addr:   options.Addr,
		Script: script,
		Dir:    options.Dir,
	}

	// Carry debug logging through to the CGI program's stderr, which the server logs
	if a.debug {
		cfg.Env = append(cfg.Env, DebugEnv+"=1")
	}

	return server.New(cfg, a.logger).Run(ctx)
}

// Browse implements the `hellocgi browse` subcommand.
func (a App) Browse() error {
	selected, ok, err := tui.Run(page.Environ())
	if err != nil {
		return err
	}

	if !ok {
		a.logger.Debug("Nothing selected")
		return nil
	}

	fmt.Fprintln(a.stdout, selected)
	return nil
}
