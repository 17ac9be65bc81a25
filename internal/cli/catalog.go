package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/breakq/internal/catalog"
)

// CatalogResult is the JSON payload of the catalog command.
type CatalogResult struct {
	Source string               `json:"source"`
	Breaks []catalog.Definition `json:"breaks"`
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog [file]",
		Short: "Validate and print a break catalog",
		Long: `Validate a break catalog and print its definitions.

YAML files are decoded strictly; CUE files are checked against the
catalog schema. Without a file the configured catalog is shown.

Examples:
  breakq catalog
  breakq catalog ./breaks.cue`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(rootOpts, args, cmd)
		},
	}
}

func runCatalog(opts *RootOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	var (
		cat    *catalog.Catalog
		source string
		err    error
	)
	if len(args) == 1 {
		source = args[0]
		cat, err = catalog.Load(source)
	} else {
		cfg, cfgErr := loadConfig(opts)
		if cfgErr != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, "failed to load config", cfgErr)
		}
		source = cfg.CatalogPath
		if source == "" {
			source = "built-in"
		}
		cat, err = cfg.LoadCatalog()
	}
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeCatalog, "invalid catalog", err)
	}

	res := CatalogResult{Source: source, Breaks: cat.Definitions()}
	return f.Render(res, func(w io.Writer) {
		fmt.Fprintf(w, "Catalog %s: %d breaks\n", res.Source, len(res.Breaks))
		for _, d := range res.Breaks {
			fmt.Fprintf(w, "  %-6s %-10s %3d min  %d/day\n", d.Code, d.Name, d.DurationMinutes, d.DailyLimit)
		}
	})
}
