// Package config provides configuration management for the oigen CLI.
//
// Values are layered from defaults, an oigen.yaml file, OIGEN_ environment
// variables and explicitly set flags, then decoded into Config.
package config

import (
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/mapping"
)

// Config holds all CLI configuration options.
type Config struct {
	StatePath    string          `koanf:"state_path"`
	LogLevel     string          `koanf:"log_level"`
	LogFormat    string          `koanf:"log_format"`
	OutputFormat string          `koanf:"output_format"`
	Verbose      bool            `koanf:"verbose"`
	Source       SourceConfig    `koanf:"source"`
	Output       OutputConfig    `koanf:"output"`
	Run          RunConfig       `koanf:"run"`
	Cleansing    CleansingConfig `koanf:"cleansing"`
	Mapping      []MappingEntry  `koanf:"mapping"`
}

// SourceConfig describes the CSV source and how record ids are derived.
type SourceConfig struct {
	Path      string `koanf:"path"`
	Delimiter string `koanf:"delimiter"`
	Quote     string `koanf:"quote"`
	Identity  string `koanf:"identity"`
	KeyColumn string `koanf:"key_column"`
}

// OutputConfig controls batch file naming and serialization.
type OutputConfig struct {
	Base        string `koanf:"base"`
	BatchSize   int    `koanf:"batch_size"`
	CDATAFields string `koanf:"cdata_fields"`
}

// RunConfig holds run-wide defaults and overrides.
type RunConfig struct {
	DefaultLocation    string `koanf:"default_location"`
	DefaultCategory    string `koanf:"default_category"`
	Operator           string `koanf:"operator"`
	UseSourceCreatedBy bool   `koanf:"use_source_createdby"`
	Action             string `koanf:"action"`
	NodeKind           string `koanf:"node_kind"`
	ForceReprocess     bool   `koanf:"force_reprocess"`
	PathReportFile     string `koanf:"path_report_file"`
	NormalizePaths     bool   `koanf:"normalize_paths"`
	DocNumberBase      int64  `koanf:"doc_number_base"`
}

// CleansingConfig toggles the text cleansing rules.
type CleansingConfig struct {
	StripTitleColons    bool              `koanf:"strip_title_colons"`
	TitleReplacement    string            `koanf:"title_replacement"`
	StripLocationColons bool              `koanf:"strip_location_colons"`
	LocationReplacement string            `koanf:"location_replacement"`
	LocationSegments    int               `koanf:"location_segments"`
	ApplySpecialChars   bool              `koanf:"apply_special_chars"`
	SpecialChars        map[string]string `koanf:"special_chars"`
	FileNameReplacement string            `koanf:"file_name_replacement"`
}

// MappingEntry is the explicit rule for one source column. Mappings are a
// list rather than a map so column names may contain the key delimiter.
type MappingEntry struct {
	Column      string              `koanf:"column" yaml:"column"`
	Disposition mapping.Disposition `koanf:"disposition" yaml:"disposition"`
	Target      string              `koanf:"target" yaml:"target,omitempty"`
	Categories  []string            `koanf:"categories" yaml:"categories,omitempty,flow"`
}

// Default configuration values.
const (
	DefaultConfigFile = "oigen.yaml"
	DefaultStateFile  = ".oigen/state.db"
	DefaultOutputBase = "out/import.xml"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "text"
	DefaultOutput     = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultIdentity   = "random"
	DefaultEnvPrefix  = "OIGEN_"
)
