// Package engine drives a full generation run: it reads the source table,
// registers every row in the state store, transforms pending rows, writes
// size-bounded import batches and records each row's outcome.
package engine

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/mapping"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/oixml"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/source"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/transform"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// DefaultBatchSize is the number of nodes per output file when unset.
const DefaultBatchSize = 500

// RenameScriptName is the file name of the companion rename script.
const RenameScriptName = "rename_files.ps1"

// Engine orchestrates generation runs against one state store.
type Engine struct {
	// Structured logger
	logger *slog.Logger

	store  core.RecordStore
	mapper *mapping.Mapper

	sourcePath string
	sourceOpts source.Options
	identity   IdentityMode
	keyColumn  string

	outputDir  string
	outputStem string
	outputExt  string
	batchSize  int
	cdata      oixml.CDATASelector

	force          bool
	pathReportFile string
	transform      transform.Options
	docNumberBase  int64
}

// Config holds engine configuration.
type Config struct {
	// SourcePath is the CSV file to read
	SourcePath string
	// Source controls delimiter and quote detection
	Source source.Options
	// Identity selects how record ids are derived (default random)
	Identity IdentityMode
	// KeyColumn names the business key column for IdentityColumn
	KeyColumn string

	// OutputBase is the batch file template; batches are written as
	// <stem>_<N><ext> next to it. The extension defaults to .xml.
	OutputBase string
	// BatchSize bounds the number of nodes per batch file
	BatchSize int
	// CDATA selects the fields whose text is CDATA-wrapped
	CDATA oixml.CDATASelector

	// ForceReprocess re-processes rows that already succeeded
	ForceReprocess bool
	// PathReportFile, when set, is the authoritative file path source and
	// suppresses the rename script.
	PathReportFile string

	// Transform holds run defaults, overrides and cleansing options
	Transform transform.Options
	// Mapper resolves column rules (nil synthesizes defaults for every column)
	Mapper *mapping.Mapper
	// DocNumberBase seeds the document-number counter (0 uses the default)
	DocNumberBase int64

	// Store is the record store (required)
	Store core.RecordStore
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// New creates an engine. The store is owned by the caller.
func New(cfg Config) (*Engine, error) {
	// Initialize logger (use discard handler if nil)
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if cfg.Store == nil {
		return nil, errors.New("state store is required")
	}
	if strings.TrimSpace(cfg.OutputBase) == "" {
		return nil, errors.New("output base path is required")
	}

	identity := cfg.Identity
	if identity == "" {
		identity = IdentityRandom
	}
	if _, err := ParseIdentityMode(string(identity)); err != nil {
		return nil, err
	}
	if identity == IdentityColumn && strings.TrimSpace(cfg.KeyColumn) == "" {
		return nil, errors.New("identity mode column requires a key column")
	}

	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}

	docBase := cfg.DocNumberBase
	if docBase == 0 {
		docBase = transform.DefaultDocNumberBase
	}

	dir, stem, ext := splitOutputBase(cfg.OutputBase)

	logger.Debug("initializing engine", "source", cfg.SourcePath, "output_dir", dir, "batch_size", batchSize, "identity", identity)

	return &Engine{
		logger:         logger,
		store:          cfg.Store,
		mapper:         cfg.Mapper,
		sourcePath:     cfg.SourcePath,
		sourceOpts:     cfg.Source,
		identity:       identity,
		keyColumn:      cfg.KeyColumn,
		outputDir:      dir,
		outputStem:     stem,
		outputExt:      ext,
		batchSize:      batchSize,
		cdata:          cfg.CDATA,
		force:          cfg.ForceReprocess,
		pathReportFile: cfg.PathReportFile,
		transform:      cfg.Transform,
		docNumberBase:  docBase,
	}, nil
}

// BatchPath returns the path of the n-th batch file (1-based).
func (e *Engine) BatchPath(n int) string {
	return filepath.Join(e.outputDir, batchName(e.outputStem, n, e.outputExt))
}

func splitOutputBase(base string) (dir, stem, ext string) {
	base = filepath.Clean(base)
	dir = filepath.Dir(base)
	name := filepath.Base(base)
	ext = filepath.Ext(name)
	stem = strings.TrimSuffix(name, ext)
	if ext == "" {
		ext = ".xml"
	}
	return dir, stem, ext
}
