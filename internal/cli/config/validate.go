package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/cli/output"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/engine"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/mapping"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.StatePath == "" {
		return errors.New("state_path is required")
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (want text or json)", c.LogFormat)
	}
	if !output.Mode(c.OutputFormat).Valid() {
		return fmt.Errorf("invalid output_format %q (want auto, text, markdown or json)", c.OutputFormat)
	}

	if _, err := parseRune("source.delimiter", c.Source.Delimiter); err != nil {
		return err
	}
	if _, err := parseRune("source.quote", c.Source.Quote); err != nil {
		return err
	}
	mode, err := engine.ParseIdentityMode(c.Source.Identity)
	if err != nil {
		return fmt.Errorf("invalid source.identity: %w", err)
	}
	if mode == engine.IdentityColumn && strings.TrimSpace(c.Source.KeyColumn) == "" {
		return errors.New("source.identity column requires source.key_column")
	}

	if c.Output.BatchSize < 1 {
		return fmt.Errorf("output.batch_size must be at least 1, got %d", c.Output.BatchSize)
	}
	if c.Cleansing.LocationSegments < 1 {
		return fmt.Errorf("cleansing.location_segments must be at least 1, got %d", c.Cleansing.LocationSegments)
	}
	if c.Run.DocNumberBase < 0 {
		return fmt.Errorf("run.doc_number_base must not be negative, got %d", c.Run.DocNumberBase)
	}

	_, err = c.Mapper()
	return err
}

// Mapper builds the field mapper from the configured mapping entries.
func (c *Config) Mapper() (*mapping.Mapper, error) {
	rules := make(map[string]mapping.Rule, len(c.Mapping))
	for i, e := range c.Mapping {
		if strings.TrimSpace(e.Column) == "" {
			return nil, fmt.Errorf("mapping entry %d: column is required", i+1)
		}
		if _, dup := rules[e.Column]; dup {
			return nil, fmt.Errorf("mapping entry %d: duplicate column %q", i+1, e.Column)
		}
		rules[e.Column] = mapping.Rule{Disposition: e.Disposition, Target: e.Target, Categories: e.Categories}
	}
	return mapping.New(rules)
}

// parseRune parses a single-character setting. "tab" and `\t` name the tab
// character and the empty string means auto-detect.
func parseRune(key, s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("invalid %s %q: want a single character", key, s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
