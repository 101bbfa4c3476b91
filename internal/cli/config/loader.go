package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/engine"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/transform"
)

// loggerKey is used to store logger in context.
type loggerKey struct{}

// Package-level koanf instance and config file tracking
var (
	k              = koanf.New(".")
	configFileUsed string
	currentConfig  *Config // Stores the loaded config for access by commands
)

// flagKeys maps CLI flag names to config keys. Flags not listed here are
// command arguments and never reach the config.
var flagKeys = map[string]string{
	"state":       "state_path",
	"log-level":   "log_level",
	"log-format":  "log_format",
	"output":      "output_format",
	"verbose":     "verbose",
	"source":      "source.path",
	"delimiter":   "source.delimiter",
	"quote":       "source.quote",
	"identity":    "source.identity",
	"key-column":  "source.key_column",
	"output-base": "output.base",
	"batch-size":  "output.batch_size",
	"cdata":       "output.cdata_fields",
	"location":    "run.default_location",
	"category":    "run.default_category",
	"operator":    "run.operator",
	"action":      "run.action",
	"node-kind":   "run.node_kind",
	"force":       "run.force_reprocess",
	"path-report": "run.path_report_file",
}

// pathKeys are resolved relative to the config file directory when they
// come from anywhere other than a flag.
var pathKeys = []string{"state_path", "source.path", "output.base", "run.path_report_file"}

func defaults() map[string]interface{} {
	opts := transform.DefaultOptions()
	return map[string]interface{}{
		"state_path":    DefaultStateFile,
		"log_level":     DefaultLogLevel,
		"log_format":    DefaultLogFormat,
		"output_format": DefaultOutput,
		"verbose":       false,

		"source.identity": DefaultIdentity,

		"output.base":       DefaultOutputBase,
		"output.batch_size": engine.DefaultBatchSize,

		"run.action":          "none",
		"run.node_kind":       "none",
		"run.normalize_paths": opts.NormalizePaths,
		"run.doc_number_base": transform.DefaultDocNumberBase,

		"cleansing.strip_title_colons":    opts.Cleansing.StripTitleColons,
		"cleansing.strip_location_colons": opts.Cleansing.StripLocationColons,
		"cleansing.location_segments":     opts.Cleansing.LocationSegments,
		"cleansing.apply_special_chars":   opts.Cleansing.ApplySpecialChars,
	}
}

// findConfigFile finds the config file to use.
// Priority: explicit path > oigen.yaml > oigen.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{DefaultConfigFile, "oigen.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, absolute or the in-memory database.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResetConfig resets the koanf instance. Used for testing.
func ResetConfig() {
	k = koanf.New(".")
	configFileUsed = ""
	currentConfig = nil
}

// LoadConfig loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	// Reset koanf for fresh load
	k = koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Load config file
	configFileUsed = findConfigFile(cfgFile)
	baseDir := ""
	if configFileUsed != "" {
		if err := k.Load(file.Provider(configFileUsed), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFileUsed, err)
		}
		baseDir = filepath.Dir(configFileUsed)
	}

	// 3. Load environment variables (OIGEN_ prefix, "__" nests)
	// Transform: OIGEN_OUTPUT__BATCH_SIZE -> output.batch_size
	if err := k.Load(env.Provider(DefaultEnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, DefaultEnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// Paths set before flags are anchored at the config file
	for _, key := range pathKeys {
		if v := k.String(key); v != "" {
			if err := k.Set(key, resolvePathRelativeTo(v, baseDir)); err != nil {
				return nil, fmt.Errorf("failed to resolve %s: %w", key, err)
			}
		}
	}

	// 4. Load flags (highest priority - overrides env vars and config file)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Unmarshal into Config struct
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.TextUnmarshallerHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if cfg.Cleansing.SpecialChars == nil {
		cfg.Cleansing.SpecialChars = transform.DefaultSpecialChars()
	}
	if cfg.Verbose {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store config for access by commands
	currentConfig = &cfg

	return &cfg, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentConfig returns the currently loaded configuration.
// This is available after LoadConfig is called.
func GetCurrentConfig() *Config {
	return currentConfig
}

// LoggerKey returns the context key used for storing the logger.
// This allows the commands package to retrieve the logger from context
// without creating an import cycle with the cli package.
func LoggerKey() interface{} {
	return loggerKey{}
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	// Return discard logger as safe fallback
	return slog.New(slog.DiscardHandler)
}

// NewLogger builds the CLI logger writing to w.
func NewLogger(level, format string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (want text or json)", format)
	}
}
