// Package config loads adapter settings and resolves debug configurations.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/go-jsonnet"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Config holds the adapter settings.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Port     string `mapstructure:"port"`

	// Runtimes, Entry, Args and Env describe how an editor spawns the
	// adapter; see the launcher package.
	Runtimes []string          `mapstructure:"runtimes"`
	Entry    string            `mapstructure:"entry"`
	Args     []string          `mapstructure:"args"`
	Env      map[string]string `mapstructure:"env"`

	// Extensions are the file extensions accepted as debug programs.
	Extensions     []string `mapstructure:"extensions"`
	TestAttributes []string `mapstructure:"test_attributes"`
	History        string   `mapstructure:"history"`
}

func Default() Config {
	return Config{
		LogLevel:       "error",
		Port:           "54321",
		Args:           []string{"--dap", "--stdin"},
		Env:            map[string]string{"RUST_LOG": "debug"},
		Extensions:     []string{".rs"},
		TestAttributes: []string{"drink::test", "ink_e2e::test"},
		History:        filepath.Join(os.TempDir(), ".ink-trace-history"),
	}
}

// Load reads path on top of Default. Jsonnet and JSON files are evaluated
// with the Jsonnet VM; YAML files are parsed directly.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := read(path)
	if err != nil {
		return cfg, err
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		ZeroFields:       true,
		Result:           &cfg,
	})
	if err != nil {
		return cfg, err
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, fmt.Errorf("decoding %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func read(path string) (map[string]any, error) {
	raw := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".jsonnet", ".libsonnet", ".json":
		vm := jsonnet.MakeVM()
		vm.Importer(&jsonnet.FileImporter{JPaths: []string{filepath.Dir(path)}})
		out, err := vm.EvaluateFile(path)
		if err != nil {
			return nil, fmt.Errorf("evaluating %s: %w", path, err)
		}
		if err := json.Unmarshal([]byte(out), &raw); err != nil {
			return nil, fmt.Errorf("%s must evaluate to an object: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return raw, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var err error
	if _, e := ParseLevel(c.LogLevel); e != nil {
		err = multierr.Append(err, e)
	}
	if c.Port == "" {
		err = multierr.Append(err, errors.New("port must not be empty"))
	}
	if len(c.Extensions) == 0 {
		err = multierr.Append(err, errors.New("at least one program extension is required"))
	}
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			err = multierr.Append(err, fmt.Errorf("extension %q must start with a dot", ext))
		}
	}
	for _, a := range c.TestAttributes {
		if strings.TrimSpace(a) == "" {
			err = multierr.Append(err, errors.New("test attributes must not be blank"))
			break
		}
	}
	return err
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelError, fmt.Errorf("invalid log level %s. Allowed: debug,info,warn,error", level)
}

var (
	ErrMissingProgram = errors.New("missing required field 'program' in debug configuration")
	ErrInvalidProgram = errors.New("the 'program' field must point to an existing source file")
)

// ResolveLaunch checks the program of a debug configuration and returns its
// absolute path. The program must exist and carry one of exts.
func ResolveLaunch(program string, exts []string) (string, error) {
	if program == "" {
		return "", ErrMissingProgram
	}
	if !slices.Contains(exts, filepath.Ext(program)) {
		return "", fmt.Errorf("%w: %s has none of the extensions %s", ErrInvalidProgram, program, strings.Join(exts, ", "))
	}
	abs, err := filepath.Abs(program)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidProgram, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInvalidProgram, abs)
	}
	return abs, nil
}
