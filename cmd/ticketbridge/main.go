// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// ticketbridge runs the customer support bridge: customers talk to a
// Telegram bot, staff work each ticket in its own Matrix room, and
// worker earnings are kept in a SQLite ledger.
//
// Subcommands:
//
//	serve       run the bridge until interrupted
//	reconcile   rebuild worker summaries from ledger entries
//	stats       print worker rankings for a period
//	transcript  write a ticket's archived transcript to stdout
//
// Every subcommand reads the same YAML file, named by --config or
// TICKETBRIDGE_CONFIG.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/ticketbridge/lib/config"
	"github.com/bureau-foundation/ticketbridge/lib/process"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		process.Fatal(err)
	}
}

// command is one subcommand. Its flags are registered on the flag set
// before parsing; its run function sees the loaded configuration.
type command struct {
	summary string
	flags   func(*pflag.FlagSet) func(ctx context.Context, env *environment) error
}

// environment is what every subcommand gets after flag parsing.
type environment struct {
	cfg    *config.Config
	logger *slog.Logger
	args   []string
	stdout io.Writer
}

var commands = map[string]command{
	"serve":      {summary: "run the bridge until interrupted", flags: serveFlags},
	"reconcile":  {summary: "rebuild worker summaries from ledger entries", flags: reconcileFlags},
	"stats":      {summary: "print worker rankings for a period", flags: statsFlags},
	"transcript": {summary: "write a ticket's archived transcript to stdout", flags: transcriptFlags},
}

var commandOrder = []string{"serve", "reconcile", "stats", "transcript"}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage(stdout)
		return nil
	}

	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", name)
	}

	var configPath string
	flagSet := pflag.NewFlagSet("ticketbridge "+name, pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $"+config.EnvVar+")")
	runCommand := cmd.flags(flagSet)

	if err := flagSet.Parse(args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCommand(ctx, &environment{
		cfg:    cfg,
		logger: cfg.Log.NewLogger(os.Stderr),
		args:   flagSet.Args(),
		stdout: stdout,
	})
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: ticketbridge <command> [--config path] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'ticketbridge <command> --help' for a command's flags.")
}
