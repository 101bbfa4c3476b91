package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/cli/config"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/mapping"
	"github.com/mitchweightman-nz/Object-Import-and-Export-tool/internal/source"
)

// NewMappingCommand creates the mapping command.
func NewMappingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapping [source.csv]",
		Short: "Print the effective column mapping as YAML",
		Long: `Read the source header and print the rule every column resolves to,
explicit rules from the config merged with synthesized defaults. The output
can be pasted into oigen.yaml and edited.`,
		Example: `  # Scaffold a mapping section
  oigen mapping objects.csv >> oigen.yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := NewCommandContextWithoutStore(cmd)
			if err != nil {
				return err
			}

			path := cc.Cfg.Source.Path
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no source file: pass a path or set source.path")
			}

			opts, err := cc.Cfg.SourceOptions()
			if err != nil {
				return err
			}
			table, err := source.Read(path, opts)
			if err != nil {
				return err
			}
			mapper, err := cc.Cfg.Mapper()
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(struct {
				Mapping []config.MappingEntry `yaml:"mapping"`
			}{Mapping: mappingEntries(mapper, table.Header)})
			if err != nil {
				return fmt.Errorf("failed to encode mapping: %w", err)
			}
			_, err = cc.Renderer.Writer().Write(out)
			return err
		},
	}
	return cmd
}

// mappingEntries resolves every header column in header order.
func mappingEntries(m *mapping.Mapper, header []string) []config.MappingEntry {
	entries := make([]config.MappingEntry, 0, len(header))
	for _, col := range header {
		rule, _ := m.Resolve(col)
		entries = append(entries, config.MappingEntry{
			Column:      col,
			Disposition: rule.Disposition,
			Target:      rule.Target,
			Categories:  rule.Categories,
		})
	}
	return entries
}
