// Package cmd implements hellocgi's CLI.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.followtheprocess.codes/cli"
	"go.followtheprocess.codes/hellocgi/internal/check"
	"go.followtheprocess.codes/hellocgi/internal/hellocgi"
	"go.followtheprocess.codes/hellocgi/internal/server"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

const rootLong = `
Run without a subcommand, hellocgi is a CGI program: it writes a
text/html response reporting its working directory and environment to
stdout, for the web server to send on to the client.

Any arguments (some servers pass query strings without an '=' as
arguments) are ignored.
`

// Build returns the root hellocgi CLI command.
func Build() (*cli.Command, error) {
	return cli.New(
		"hellocgi",
		cli.Short("A CGI program that reports its working directory and environment"),
		cli.Long(rootLong),
		cli.Allow(cli.AnyArgs()),
		cli.Version(version),
		cli.Commit(commit),
		cli.BuildDate(date),
		cli.Run(func(cmd *cli.Command, args []string) error {
			app := hellocgi.New(cmd.Stdout(), cmd.Stderr(), false)
			return app.Respond()
		}),
		cli.SubCommands(checkCmd, serve, browse),
	)
}

const checkLong = `
With no arguments, the response hellocgi would give right now is checked,
including that it reports the right working directory and environment.

A file argument is read as a captured CGI response, and '--url' fetches a
deployed page over HTTP in which case headers added by the web server are
allowed.
`

// checkCmd returns the check subcommand.
func checkCmd() (*cli.Command, error) {
	var options hellocgi.CheckOptions
	return cli.New(
		"check",
		cli.Short("Check a response is valid hellocgi output"),
		cli.Long(checkLong),
		cli.Allow(cli.MaxArgs(1)),
		cli.Flag(&options.URL, "url", 'u', "", "URL of a deployed hellocgi page to check"),
		cli.Flag(&options.Timeout, "timeout", cli.NoShortHand, check.DefaultTimeout, "Timeout when fetching --url"),
		cli.Run(func(cmd *cli.Command, args []string) error {
			var file string
			if len(args) == 1 {
				file = args[0]
			}

			app := hellocgi.New(cmd.Stdout(), cmd.Stderr(), false)
			return app.Check(file, options)
		}),
	)
}

// serve returns the serve subcommand.
func serve() (*cli.Command, error) {
	var (
		options hellocgi.ServeOptions
		debug   bool
	)
	return cli.New(
		"serve",
		cli.Short("Host hellocgi as a CGI program on a local web server"),
		cli.Allow(cli.NoArgs()),
		cli.Flag(&options.Addr, "addr", 'a', server.DefaultAddr, "Address to listen on"),
		cli.Flag(&options.Dir, "dir", 'd', "", "Working directory of the CGI program"),
		cli.Flag(&options.Script, "script", cli.NoShortHand, "", "CGI program to run (default this binary)"),
		cli.Flag(&debug, "debug", cli.NoShortHand, false, "Enable debug logging"),
		cli.Run(func(cmd *cli.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			app := hellocgi.New(cmd.Stdout(), cmd.Stderr(), debug)
			return app.Serve(ctx, options)
		}),
	)
}

// browse returns the browse subcommand.
func browse() (*cli.Command, error) {
	return cli.New(
		"browse",
		cli.Short("Interactively browse the environment hellocgi would report"),
		cli.Allow(cli.NoArgs()),
		cli.Run(func(cmd *cli.Command, args []string) error {
			app := hellocgi.New(cmd.Stdout(), cmd.Stderr(), false)
			return app.Browse()
		}),
	)
}
