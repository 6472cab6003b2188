package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/queryable/cli/internal/config"
	"github.com/satishbabariya/queryable/cli/internal/store"
	"github.com/satishbabariya/queryable/cli/internal/ui"
	"github.com/satishbabariya/queryable/cli/internal/watch"
	"github.com/satishbabariya/queryable/query/cache"
	"github.com/satishbabariya/queryable/query/parser"
	"github.com/satishbabariya/queryable/runtime/client"
)

type translateOptions struct {
	file    string
	params  []string
	json    bool
	explain bool
	watch   bool
	noStore bool
}

func newTranslateCommand(a *app) *cobra.Command {
	o := &translateOptions{}
	cmd := &cobra.Command{
		Use:   "translate [query]",
		Short: "Translate a query into SQL",
		Long: `Translate a method-chain query into the SQL command it compiles to.

The query is read from the argument or from --file, for example:

  queryable translate 'All<Person>().Where(p => p.Age > $min).Select(p => p.Name)' --param min=int32:30`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTranslate(cmd.Context(), o, args)
		},
	}
	cmd.Flags().StringVarP(&o.file, "file", "f", "", "read the query from a file")
	cmd.Flags().StringArrayVar(&o.params, "param", nil, "captured value as name=type:value (repeatable)")
	cmd.Flags().BoolVar(&o.json, "json", false, "print the translation as JSON")
	cmd.Flags().BoolVar(&o.explain, "explain", false, "render an explanation of the translation")
	cmd.Flags().BoolVarP(&o.watch, "watch", "w", false, "translate again whenever the schema or query file changes")
	cmd.Flags().BoolVar(&o.noStore, "no-store", false, "do not record the translation in the translation store")
	return cmd
}

// translationOutput is the JSON form of a translation.
type translationOutput struct {
	Provider    string   `json:"provider"`
	Version     string   `json:"version"`
	Query       string   `json:"query"`
	Fingerprint string   `json:"fingerprint"`
	SQL         string   `json:"sql"`
	Nested      []string `json:"nested,omitempty"`
	Cardinality string   `json:"cardinality"`
	Parameters  []string `json:"parameters,omitempty"`
	Seen        int64    `json:"seen,omitempty"`
}

func (a *app) runTranslate(ctx context.Context, o *translateOptions, args []string) error {
	if len(args) == 0 && o.file == "" {
		return fmt.Errorf("no query: pass it as an argument or with --file")
	}
	if !o.watch {
		return a.translateOnce(o, args)
	}

	files := []string{a.cfg.SchemaPath}
	if o.file != "" {
		files = append(files, o.file)
	}
	w, err := watch.New(files, func() error {
		a.ui.Section("--- " + strings.Join(files, ", "))
		return a.translateOnce(o, args)
	}, func(err error) { a.ui.Error("%v", err) })
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return w.Run(ctx)
}

func (a *app) translateOnce(o *translateOptions, args []string) error {
	text, err := a.queryText(o, args)
	if err != nil {
		return err
	}
	m, err := a.loadModel()
	if err != nil {
		return err
	}
	vars, err := parseParams(o.params)
	if err != nil {
		return err
	}
	n, err := parser.Parse(text, vars)
	if err != nil {
		return err
	}

	d, err := a.openDomain(m)
	if err != nil {
		return err
	}
	defer d.Close()

	tr, err := d.OpenSession().Query().TranslateExpr(n)
	if err != nil {
		return err
	}
	dialect := d.Dialect()
	out := translationOutput{
		Provider:    dialect.Provider(),
		Version:     dialect.Version().String(),
		Query:       tr.Query,
		Fingerprint: fmt.Sprintf("%016x", tr.Fingerprint),
		SQL:         tr.SQL,
		Nested:      tr.Nested,
		Cardinality: tr.Cardinality.String(),
		Parameters:  parameterNames(tr),
	}
	if !o.noStore {
		seen, err := a.record(cache.Key(out.Provider, out.Version, tr.Fingerprint), tr)
		if err != nil {
			a.ui.Warning("translation store unavailable: %v", err)
		}
		out.Seen = seen
	}

	switch {
	case o.json:
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		a.ui.Plain("%s", data)
		return nil
	case o.explain:
		return a.ui.Markdown(explain(out))
	}
	a.ui.Code(out.SQL)
	for i, nested := range out.Nested {
		a.ui.Plain("-- nested %d", i+1)
		a.ui.Code(nested)
	}
	return nil
}

func (a *app) queryText(o *translateOptions, args []string) (string, error) {
	if o.file == "" {
		return args[0], nil
	}
	data, err := afero.ReadFile(config.AppFs, o.file)
	if err != nil {
		return "", fmt.Errorf("failed to read query: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// record stores the translation and returns how many times it has been seen.
func (a *app) record(key string, tr *client.Translation) (int64, error) {
	s, err := store.Open(a.cfg.CacheDir)
	if err != nil {
		return 0, err
	}
	defer s.Close()
	if _, err := s.Record(store.Entry{
		Key:         key,
		Query:       tr.Query,
		SQL:         tr.SQL,
		Nested:      tr.Nested,
		Cardinality: tr.Cardinality.String(),
	}); err != nil {
		return 0, err
	}
	e, err := s.Get(key)
	if err != nil || e == nil {
		return 0, err
	}
	return e.Hits, nil
}

func parameterNames(tr *client.Translation) []string {
	var out []string
	for _, i := range tr.Parameters {
		if i < len(tr.Bindings) {
			out = append(out, tr.Bindings[i])
		}
	}
	return out
}

func explain(out translationOutput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Translation\n\n")
	fmt.Fprintf(&b, "- **Provider:** %s %s\n", out.Provider, out.Version)
	fmt.Fprintf(&b, "- **Fingerprint:** `%s`\n", out.Fingerprint)
	fmt.Fprintf(&b, "- **Cardinality:** %s\n", out.Cardinality)
	if out.Seen > 0 {
		fmt.Fprintf(&b, "- **Seen:** %d times\n", out.Seen)
	}
	fmt.Fprintf(&b, "\n## Query\n\n```\n%s\n```\n\n## SQL\n\n```sql\n%s\n```\n", out.Query, out.SQL)
	for i, nested := range out.Nested {
		fmt.Fprintf(&b, "\n### Nested command %d\n\n```sql\n%s\n```\n", i+1, nested)
	}
	if len(out.Parameters) > 0 {
		rows := make([][]string, len(out.Parameters))
		for i, p := range out.Parameters {
			rows[i] = []string{strconv.Itoa(i + 1), p}
		}
		fmt.Fprintf(&b, "\n## Parameters\n\n%s", ui.MarkdownTable([]string{"#", "Capture"}, rows))
	}
	return b.String()
}
