package config

import (
	"log/slog"
	"strings"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/engine"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/oixml"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/source"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/transform"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/pkg/core"
)

// SourceOptions returns the CSV parsing options.
func (c *Config) SourceOptions() (source.Options, error) {
	delim, err := parseRune("source.delimiter", c.Source.Delimiter)
	if err != nil {
		return source.Options{}, err
	}
	quote, err := parseRune("source.quote", c.Source.Quote)
	if err != nil {
		return source.Options{}, err
	}
	return source.Options{Delimiter: delim, Quote: quote}, nil
}

// TransformOptions returns the run defaults, overrides and cleansing rules.
func (c *Config) TransformOptions() transform.Options {
	return transform.Options{
		DefaultLocation:    c.Run.DefaultLocation,
		DefaultCategory:    c.Run.DefaultCategory,
		Operator:           c.Run.Operator,
		UseSourceCreatedBy: c.Run.UseSourceCreatedBy,
		Action:             core.ParseAction(c.Run.Action),
		NodeKind:           noneIsEmpty(c.Run.NodeKind),
		NormalizePaths:     c.Run.NormalizePaths,
		Cleansing: transform.Cleansing{
			StripTitleColons:    c.Cleansing.StripTitleColons,
			TitleReplacement:    c.Cleansing.TitleReplacement,
			StripLocationColons: c.Cleansing.StripLocationColons,
			LocationReplacement: c.Cleansing.LocationReplacement,
			LocationSegments:    c.Cleansing.LocationSegments,
			ApplySpecialChars:   c.Cleansing.ApplySpecialChars,
			SpecialChars:        c.Cleansing.SpecialChars,
			FileNameReplacement: c.Cleansing.FileNameReplacement,
		},
	}
}

// noneIsEmpty maps the "none" override to no override.
func noneIsEmpty(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "none" {
		return ""
	}
	return s
}

// CDATA returns the CDATA field selector.
func (c *Config) CDATA() oixml.CDATASelector {
	return oixml.ParseCDATASelector(c.Output.CDATAFields)
}

// EngineConfig assembles the orchestrator configuration.
func (c *Config) EngineConfig(store core.RecordStore, logger *slog.Logger) (engine.Config, error) {
	srcOpts, err := c.SourceOptions()
	if err != nil {
		return engine.Config{}, err
	}
	identity, err := engine.ParseIdentityMode(c.Source.Identity)
	if err != nil {
		return engine.Config{}, err
	}
	mapper, err := c.Mapper()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		SourcePath:     c.Source.Path,
		Source:         srcOpts,
		Identity:       identity,
		KeyColumn:      c.Source.KeyColumn,
		OutputBase:     c.Output.Base,
		BatchSize:      c.Output.BatchSize,
		CDATA:          c.CDATA(),
		ForceReprocess: c.Run.ForceReprocess,
		PathReportFile: c.Run.PathReportFile,
		Transform:      c.TransformOptions(),
		Mapper:         mapper,
		DocNumberBase:  c.Run.DocNumberBase,
		Store:          store,
		Logger:         logger,
	}, nil
}
