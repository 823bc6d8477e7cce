package runner

import (
	"errors"
	"fmt"
	"os"
	"time"

	v1 "github.com/catactl/catactl/apis/v1"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

var (
	defaultValidator = validator.New(validator.WithRequiredStructEnabled())
)

// Overrides are values given on the command line. Non-empty fields replace
// the ones from the configuration file.
type Overrides struct {
	AppRoot string
	Install string
}

// DecodeConfig unmarshals a YAML or JSON configuration without validating it.
func DecodeConfig(data []byte) (v1.Config, error) {
	var cfg v1.Config
	if err := yaml.UnmarshalWithOptions(data, &cfg, yaml.DisallowUnknownField()); err != nil {
		return v1.Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// ValidateConfig checks cfg against its validate tags.
func ValidateConfig(cfg v1.Config) error {
	if err := defaultValidator.Struct(cfg); err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	return nil
}

// ParseConfig decodes and validates a configuration document.
func ParseConfig(data []byte) (v1.Config, error) {
	cfg, err := DecodeConfig(data)
	if err != nil {
		return v1.Config{}, err
	}
	if err := ValidateConfig(cfg); err != nil {
		return v1.Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads the configuration at path (if any), applies overrides,
// expands ${VAR} references and validates the result.
func LoadConfig(path string, overrides Overrides, allowedEnv []string) (v1.Config, error) {
	var cfg v1.Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return v1.Config{}, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if cfg, err = DecodeConfig(data); err != nil {
			return v1.Config{}, err
		}
	}

	if overrides.AppRoot != "" {
		cfg.AppRoot = overrides.AppRoot
	}
	if overrides.Install != "" {
		cfg.Install = overrides.Install
	}

	variables, err := BuildVariables(allowedEnv)
	if err != nil {
		return v1.Config{}, fmt.Errorf("failed to build variables: %w", err)
	}
	if err := ExpandTemplates(&cfg, variables); err != nil {
		return v1.Config{}, fmt.Errorf("failed to expand templates: %w", err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return v1.Config{}, err
	}
	return cfg, nil
}

// BuildVariables creates the variables map used for expansion: the built-in
// variables plus every allowed environment variable. An allowed variable that
// is not set is an error.
func BuildVariables(allowedEnv []string) (map[string]string, error) {
	date := time.Now().UTC()
	variables := map[string]string{
		"CATACTL_DATE":         date.Format(time.DateOnly),
		"CATACTL_DATE_RFC3339": date.Format(time.RFC3339),
	}

	var errs error
	for _, envName := range allowedEnv {
		val, ok := os.LookupEnv(envName)
		if !ok {
			errs = errors.Join(errs, fmt.Errorf("environment variable %q is not set", envName))
			continue
		}
		variables[envName] = val
	}

	if errs != nil {
		return nil, errs
	}

	return variables, nil
}
