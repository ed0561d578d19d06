// SPDX-License-Identifier: MIT

// Command minictl operates on a minios data directory while the daemon is
// stopped: it boots the engine in-process, runs one command and saves.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/ManuGH/minios/internal/config"
	"github.com/ManuGH/minios/internal/engine"
	xglog "github.com/ManuGH/minios/internal/log"
	"github.com/ManuGH/minios/internal/version"
)

// CLI is the root command line.
type CLI struct {
	DataDir       string           `short:"d" name:"data-dir" help:"Sandbox root directory." default:"${data_dir}" env:"MINIOS_DATA_DIR"`
	Backend       string           `name:"backend" help:"State backend (json or sqlite)." default:"json" enum:"json,sqlite" env:"MINIOS_STATE_BACKEND"`
	AdminEmail    string           `name:"admin-email" help:"Bootstrap admin account." default:"${admin_email}" env:"MINIOS_ADMIN_EMAIL"`
	AdminPassword string           `name:"admin-password" help:"Bootstrap admin password." default:"${admin_password}" env:"MINIOS_ADMIN_PASSWORD"`
	BcryptCost    int              `name:"bcrypt-cost" hidden:"" help:"Password hashing cost."`
	Verbose       bool             `short:"v" help:"Enable debug logging."`
	Version       kong.VersionFlag `name:"version" help:"Show version and exit."`

	Exec  ExecCmd  `cmd:"" help:"Run one terminal command."`
	Trash TrashCmd `cmd:"" help:"Inspect and manage the trash."`
	User  UserCmd  `cmd:"" help:"Manage login accounts."`
	State StateCmd `cmd:"" help:"Inspect the persisted state."`
}

// env carries the booted engine and output writer into command Run methods.
type env struct {
	ctx context.Context
	eng *engine.Engine
	out io.Writer
}

// errReported marks failures whose details were already printed.
var errReported = errors.New("command failed")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, os.Exit))
}

func run(args []string, stdout, stderr io.Writer, exit func(int)) int {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("minictl"),
		kong.Description("Offline maintenance for a minios data directory."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(exit),
		kong.Vars{
			"version":        version.String(),
			"data_dir":       config.DefaultDataDir,
			"admin_email":    config.DefaultAdminEmail,
			"admin_password": config.DefaultAdminPassword,
		},
	)
	if err != nil {
		fmt.Fprintf(stderr, "minictl: %v\n", err)
		return 2
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "minictl: %v\n", err)
		return 2
	}

	level := "warn"
	if cli.Verbose {
		level = "debug"
	}
	xglog.Configure(xglog.Config{Level: level, Output: stderr, Service: "minictl", Version: version.Version})

	ctx := context.Background()
	eng := engine.New(engine.Config{
		Root:          cli.DataDir,
		StateBackend:  cli.Backend,
		AdminEmail:    cli.AdminEmail,
		AdminPassword: cli.AdminPassword,
		BcryptCost:    cli.BcryptCost,
	}, nil)
	if err := eng.Boot(ctx); err != nil {
		fmt.Fprintf(stderr, "minictl: boot %s: %v\n", cli.DataDir, err)
		return 1
	}

	runErr := kctx.Run(&env{ctx: ctx, eng: eng, out: stdout})
	if err := eng.Shutdown(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("save state: %w", err)
	}
	_ = eng.Notifier().Close()

	switch {
	case runErr == nil:
		return 0
	case errors.Is(runErr, errReported):
		return 1
	default:
		fmt.Fprintf(stderr, "minictl: %v\n", runErr)
		return 1
	}
}
