package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/BaSui01/sessiondb/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// runMigrate handles the migrate command and its subcommands
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		printMigrateUsage(out)
		return errUsage
	}

	sub := args[0]
	if sub == "help" || sub == "-h" || sub == "--help" {
		printMigrateUsage(out)
		return nil
	}

	fs := flag.NewFlagSet("migrate "+sub, flag.ContinueOnError)
	fs.SetOutput(out)
	common := bindCommon(fs)
	path := fs.String("path", "", "Migrations directory (overrides config)")
	flags, positional := splitPositional(args[1:])
	if err := fs.Parse(flags); err != nil {
		return errUsage
	}
	positional = append(positional, fs.Args()...)

	e, err := common.setup()
	if err != nil {
		return err
	}
	defer e.close()

	if *path != "" {
		e.cfg.Database.MigrationsPath = *path
	}

	migrator, err := migration.NewMigratorFromConfig(e.cfg, e.logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(out)
	return cli.Run(ctx, sub, positional)
}

// splitPositional 拆出数字参数，使 "steps -1" 不被当作 flag。
// migrate 的 flag 都带值，紧跟在不含 "=" 的 flag 后面的词视为它的值。
func splitPositional(args []string) (flags, positional []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if _, err := strconv.Atoi(arg); err == nil {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		if strings.HasPrefix(arg, "-") && !strings.Contains(arg, "=") && i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	return flags, positional
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage(out io.Writer) {
	fmt.Fprintln(out, `Database Migration Commands

Usage:
  sessiondb migrate <subcommand> [options] [argument]

Subcommands:
  up          Apply all pending migrations
  down        Roll back the last migration
  reset       Roll back all migrations
  steps <n>   Apply (n > 0) or roll back (n < 0) n migrations
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  status      Show migration status
  version     Show current migration version
  info        Show a migration summary

Options:
  --config <path>   Path to configuration file (YAML)
  --driver <name>   Override database driver
  --dsn <dsn>       Override database DSN
  --path <dir>      Migrations directory

Examples:
  sessiondb migrate up
  sessiondb migrate status --config /etc/sessiondb/config.yaml
  sessiondb migrate steps -1
  sessiondb migrate goto 1`)
}
