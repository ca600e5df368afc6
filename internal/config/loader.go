package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate holds the struct-tag validator shared by all loads.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates the result. Unknown keys are rejected so typos surface at load
// time. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				errs = append(errs, fmt.Errorf("config: %s fails %q", fieldPath(fe), fe.Tag()))
			}
		} else {
			errs = append(errs, fmt.Errorf("config: %w", err))
		}
	}

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("config: server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if root := cfg.Service.Root; root != "" &&
		!strings.HasPrefix(root, "ws://") && !strings.HasPrefix(root, "wss://") {
		errs = append(errs, fmt.Errorf("config: service.root %q must be a ws:// or wss:// URL", root))
	}
	if lo, hi := cfg.Detector.MinThreshold, cfg.Detector.MaxThreshold; lo > 0 && hi > 0 && lo > hi {
		errs = append(errs, fmt.Errorf("config: detector.min_threshold %.3f exceeds detector.max_threshold %.3f", lo, hi))
	}
	if cfg.Output.Sink == "dir" && cfg.Output.Dir == "" {
		errs = append(errs, errors.New("config: output.dir is required for the dir sink"))
	}

	return errors.Join(errs...)
}

// fieldPath renders a validator namespace like "Config.Service.Root" as
// the YAML-ish "service.root" users actually typed.
func fieldPath(fe validator.FieldError) string {
	path := fe.Namespace()
	if i := strings.IndexByte(path, '.'); i >= 0 {
		path = path[i+1:]
	}
	return strings.ToLower(path)
}
