/*
ledgerctl - Command line access to the derivation pipeline

COMMANDS:
  run       Derive, validate and publish the current snapshot
  validate  Derive and validate without publishing
  export    Write published tables (xlsx, csv) or a report (pdf)
  balance   Balance of an account at the end of a date
  runs      Recent run history

EXIT STATUS:
  0  success
  1  fatal integrity violations, nothing published
  2  configuration, storage or I/O failure

Configuration is read like the server does (defaults, .env, YAML file,
environment); -config and -db apply to every command.
*/
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	for _, c := range commands {
		commander.Register(c, "pipeline")
	}

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

var commands = []subcommands.Command{
	&runCmd{},
	&validateCmd{},
	&exportCmd{},
	&balanceCmd{},
	&runsCmd{},
}
