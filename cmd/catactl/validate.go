package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/catactl/catactl/internal/runner"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

var validateCommand = &cli.Command{
	Name:  "validate",
	Usage: "Validate a configuration file",
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      "config",
			UsageText: "The configuration file to validate, or - for stdin",
		},
	},
	Action: func(ctx context.Context, command *cli.Command) error {
		logger := getLogger(ctx)

		filename := command.StringArg("config")
		if filename == "" {
			filename = command.String("config")
		}
		if filename == "" {
			return fmt.Errorf("no config file provided")
		}

		data, err := readConfigFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read config file '%s': %w", filename, err)
		}

		logger = logger.With(zap.String("config_filename", filename))
		logger.Debug("validating config file")

		cfg, err := runner.DecodeConfig(data)
		if err != nil {
			return fmt.Errorf("config file '%s' is invalid: %w", filename, err)
		}

		variables, err := runner.BuildVariables(command.StringSlice("allowed-env"))
		if err != nil {
			return fmt.Errorf("failed to build variables: %w", err)
		}

		if err := runner.ExpandTemplates(&cfg, variables); err != nil {
			return fmt.Errorf("failed to expand templates: %w", err)
		}

		if err := runner.ValidateConfig(cfg); err != nil {
			fmt.Println(formatValidationError(err))
			return fmt.Errorf("config file '%s' is invalid", filename)
		}

		if _, err := runner.NewLayout(cfg); err != nil {
			return fmt.Errorf("config file '%s' is invalid: %w", filename, err)
		}

		fmt.Printf("✓ Config file '%s' is valid\n", filename)
		return nil
	},
}

func readConfigFile(filename string) ([]byte, error) {
	if filename == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(filename)
}
