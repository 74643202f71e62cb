package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/angelmondragon/flowdesk-backend/internal/platform"
	"github.com/angelmondragon/flowdesk-backend/pkg/migrate"
)

const serviceKind = "migrate"

type options struct {
	cmd    string
	name   string
	target int64
}

// offline commands work on the embedded SQL files only.
var offline = map[string]func(options, io.Writer) error{
	"create": func(o options, out io.Writer) error {
		if o.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.NewMigrationFile(migrate.SourceDir, o.name, time.Now())
		if err != nil {
			return fmt.Errorf("create migration: %w", err)
		}
		fmt.Fprintln(out, "created", path)
		return nil
	},
	"validate": func(_ options, out io.Writer) error {
		if err := migrate.Validate(migrate.Migrations()); err != nil {
			return fmt.Errorf("invalid migrations: %w", err)
		}
		fmt.Fprintln(out, "migrations ok")
		return nil
	},
}

func main() {
	var o options
	flag.StringVar(&o.cmd, "cmd", "up", "up|down|to|status|version|create|validate")
	flag.StringVar(&o.name, "name", "", "migration name for -cmd=create")
	flag.Int64Var(&o.target, "target", -1, "version for -cmd=to (0 rolls everything back)")
	flag.Parse()

	if fn, ok := offline[o.cmd]; ok {
		if err := fn(o, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	rt, err := platform.Boot(context.Background(), platform.Options{Kind: serviceKind})
	if err != nil {
		platform.Fatal(serviceKind, "boot.failed", err)
	}
	defer rt.Close(context.Background())
	ctx := rt.Logger.WithField(rt.Context(context.Background()), "cmd", o.cmd)

	runner, err := migrate.NewRunner(migrate.RunnerParams{DB: rt.DB.SQL(), Logger: rt.Logger})
	if err != nil {
		rt.Exit(ctx, "migrate.runner.failed", err)
	}
	if err := run(ctx, runner, o, os.Stdout); err != nil {
		rt.Exit(ctx, "migrate.command.failed", err)
	}
	rt.Logger.Info(ctx, "migrate.command.completed")
}

func run(ctx context.Context, runner *migrate.Runner, o options, out io.Writer) error {
	switch o.cmd {
	case "up":
		_, err := runner.Up(ctx)
		return err
	case "down":
		return runner.Down(ctx)
	case "to":
		if o.target < 0 {
			return errors.New("missing -target for to")
		}
		return runner.To(ctx, o.target)
	case "version":
		v, err := runner.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, v)
		return nil
	case "status":
		statuses, err := runner.Status(ctx)
		if err != nil {
			return err
		}
		for _, st := range statuses {
			applied := "-"
			if !st.AppliedAt.IsZero() {
				applied = st.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%-10s %-25s %s\n", st.State, applied, st.Source.Path)
		}
		return nil
	default:
		return fmt.Errorf("unknown -cmd %q", o.cmd)
	}
}
