package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/queryable/query/fulltext"
	"github.com/satishbabariya/queryable/query/sqlgen"
)

type searchOptions struct {
	maxDistance int64
	column      string
}

func newSearchCommand(a *app) *cobra.Command {
	o := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search <condition>",
		Short: "Compile a full-text search condition",
		Long: `Parse a full-text search condition and print the normalized CONTAINS
condition it compiles to. Custom proximity terms (NEAR((a, b), 5, TRUE)) need a
provider version that supports them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runSearch(o, strings.Join(args, " "))
		},
	}
	cmd.Flags().Int64Var(&o.maxDistance, "max-distance", 0, "largest proximity distance before MAX is emitted")
	cmd.Flags().StringVar(&o.column, "column", "", "print a complete CONTAINS predicate over this column")
	return cmd
}

func (a *app) runSearch(o *searchOptions, text string) error {
	d, err := sqlgen.NewDialect(a.cfg.Provider, a.cfg.ServerVersion)
	if err != nil {
		return err
	}
	if !d.Features().Has(sqlgen.FeatureFullText) {
		a.ui.Warning("%s %s does not support full-text predicates", d.Provider(), d.Version())
	}
	c, err := fulltext.Parse(text)
	if err != nil {
		return err
	}
	out, err := fulltext.Compile(c, fulltext.Options{
		CustomProximity: d.Features().Has(sqlgen.FeatureCustomProximity),
		MaxDistance:     o.maxDistance,
	})
	if err != nil {
		return fmt.Errorf("invalid search condition: %w", err)
	}
	if o.column != "" {
		a.ui.Code(d.FullTextContains(d.Quote(o.column), "N'"+strings.ReplaceAll(out, "'", "''")+"'"))
		return nil
	}
	a.ui.Plain("%s", out)
	return nil
}
