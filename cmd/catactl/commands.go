package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/catactl/catactl/internal/backup"
	"github.com/catactl/catactl/internal/runner"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var backupCommand = &cli.Command{
	Name:  "backup",
	Usage: "Back up the save directory of the install",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "label",
			Usage: "Label appended to the backup identifier",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		var options []backup.Option
		var progress *progressPrinter
		if isInteractive(ctx) {
			progress = newProgressPrinter(os.Stderr)
			options = append(options, backup.WithProgress(progress.Report))
		}

		r, err := buildRunner(ctx, command, options...)
		if err != nil {
			return err
		}
		defer closeRunner(ctx, r)

		report, err := r.Backup(ctx, command.String("label"))
		if progress != nil {
			progress.Done()
		}
		if err != nil {
			if report.ID != "" {
				fmt.Printf("✓ Backup %s written to %s, but mirroring failed\n", report.ID, report.Path)
			}
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("✓ Backup %s written to %s (%d files in %d parts, %.1f%% saved, %s)\n",
			report.ID, report.Path, report.Files, report.Parts, report.Ratio()*100, report.Elapsed.Round(time.Millisecond))
		return nil
	},
}

var restoreCommand = &cli.Command{
	Name:  "restore",
	Usage: "Replace the save directory with a backup",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "id",
			Value:     backup.LatestAlias,
			UsageText: "The backup identifier, or latest",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		id := command.StringArg("id")

		r, err := buildRunner(ctx, command)
		if err != nil {
			return err
		}
		defer closeRunner(ctx, r)

		if err := r.Restore(ctx, id); err != nil {
			return fmt.Errorf("restore failed: %w", err)
		}

		fmt.Printf("✓ Restored backup %s into %s\n", id, r.Layout().InstallRoot)
		return nil
	},
}

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "List backups, oldest first",
	Action: func(ctx context.Context, command *cli.Command) error {
		r, err := buildRunner(ctx, command)
		if err != nil {
			return err
		}
		defer closeRunner(ctx, r)

		ids, err := r.List()
		if err != nil {
			return fmt.Errorf("failed to list backups: %w", err)
		}

		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	},
}

var exportCommand = &cli.Command{
	Name:  "export",
	Usage: "Write the raw archive of a backup to stdout",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "id",
			Value:     backup.LatestAlias,
			UsageText: "The backup identifier, or latest",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		if term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("refusing to write an archive to a terminal, redirect stdout")
		}

		r, err := buildRunner(ctx, command)
		if err != nil {
			return err
		}
		defer closeRunner(ctx, r)

		return r.Export(ctx, command.StringArg("id"), os.Stdout)
	},
}

func buildRunner(ctx context.Context, command *cli.Command, options ...backup.Option) (*runner.Runner, error) {
	logger := getLogger(ctx)

	overrides := runner.Overrides{
		AppRoot: command.String("app-root"),
		Install: command.String("install"),
	}
	cfg, err := runner.LoadConfig(command.String("config"), overrides, command.StringSlice("allowed-env"))
	if err != nil {
		return nil, formatValidationError(err)
	}

	r, err := runner.New(ctx, logger.Named("runner"), afero.NewOsFs(), cfg, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}
	return r, nil
}

func closeRunner(ctx context.Context, r *runner.Runner) {
	if err := r.Close(context.WithoutCancel(ctx)); err != nil {
		getLogger(ctx).Warn("failed to close runner", zap.Error(err))
	}
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("config has %d validation error(s):", len(validationErrs)))
		for _, fe := range validationErrs {
			sb.WriteString(fmt.Sprintf("\n  • %s: failed '%s' validation", fe.Namespace(), fe.Tag()))
			if fe.Param() != "" {
				sb.WriteString(fmt.Sprintf(" (param: %s)", fe.Param()))
			}
		}
		return errors.New(sb.String())
	}
	return err
}
