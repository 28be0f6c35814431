// Command hellocgi is a CGI program that reports its working directory and environment
// as an HTML page, with a few subcommands to check, host and browse what it reports.
package main

import (
	"os"

	"go.followtheprocess.codes/hellocgi/internal/cmd"
	"go.followtheprocess.codes/msg"
)

func main() {
	if err := run(); err != nil {
		msg.Err(err)
		os.Exit(1)
	}
}

func run() error {
	cli, err := cmd.Build()
	if err != nil {
		return err
	}

	return cli.Execute()
}
