package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/queryable/query/parser"
	"github.com/satishbabariya/queryable/runtime/client"
	"github.com/satishbabariya/queryable/runtime/types"
	"github.com/satishbabariya/queryable/schema"
)

type runOptions struct {
	translateOptions
	timeout   time.Duration
	isolation string
	timing    bool
}

var isolationLevels = map[string]client.IsolationLevel{
	"read-uncommitted": client.ReadUncommitted,
	"read-committed":   client.ReadCommitted,
	"repeatable-read":  client.RepeatableRead,
	"serializable":     client.Serializable,
}

func newRunCommand(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Run a query against the configured database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && o.file == "" {
				return fmt.Errorf("no query: pass it as an argument or with --file")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			return a.runQuery(ctx, o, args)
		},
	}
	cmd.Flags().StringVarP(&o.file, "file", "f", "", "read the query from a file")
	cmd.Flags().StringArrayVar(&o.params, "param", nil, "captured value as name=type:value (repeatable)")
	cmd.Flags().BoolVar(&o.json, "json", false, "print the result as JSON")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 30*time.Second, "query timeout")
	cmd.Flags().StringVar(&o.isolation, "isolation", "", "run inside a transaction with this isolation level (read-committed, serializable, ...)")
	cmd.Flags().BoolVar(&o.timing, "timing", false, "report how long the query took")
	return cmd
}

func (a *app) runQuery(ctx context.Context, o *runOptions, args []string) error {
	text, err := a.queryText(&o.translateOptions, args)
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
	var opts *sql.TxOptions
	if o.isolation != "" {
		level, ok := isolationLevels[o.isolation]
		if !ok {
			return fmt.Errorf("unknown isolation level %q", o.isolation)
		}
		opts = client.NewTxOptions(level, false)
	}
	d, err := a.openDomain(m)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Ping(ctx); err != nil {
		return fmt.Errorf("cannot reach the %s database: %w", a.cfg.Provider, err)
	}
	var elapsed time.Duration
	if o.timing {
		d.Use(client.TimingMiddleware(func(_ string, duration time.Duration) { elapsed = duration }))
	}

	s := d.OpenSession()
	var v any
	stop := a.ui.Spinner("running query")
	if opts != nil {
		err = s.InTransaction(ctx, opts, func(*client.Transaction) error {
			v, err = s.Query().RunExpr(ctx, n)
			return err
		})
	} else {
		v, err = s.Query().RunExpr(ctx, n)
	}
	stop()
	if err != nil {
		return err
	}
	if o.timing {
		defer a.ui.Plain("Time: %s", elapsed)
	}

	if o.json {
		data, err := json.MarshalIndent(plain(v), "", "  ")
		if err != nil {
			return err
		}
		a.ui.Plain("%s", data)
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		a.ui.Plain("%s", cell(v))
		return nil
	}
	headers, rows := tabulate(items)
	if err := a.ui.Table(headers, rows); err != nil {
		return err
	}
	a.ui.Plain("(%d rows)", len(items))
	return nil
}

// plain converts runtime values into maps and slices for JSON output.
func plain(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = plain(item)
		}
		return out
	case *types.Entity:
		if x == nil {
			return nil
		}
		out := map[string]any{}
		for _, f := range x.Type.Fields() {
			if f.Kind != schema.FieldEntitySet {
				out[f.Name] = plain(x.Get(f.Name))
			}
		}
		return out
	case *types.Structure:
		if x == nil {
			return nil
		}
		out := map[string]any{}
		for _, f := range x.Type.Fields() {
			out[f.Name] = plain(x.Get(f.Name))
		}
		return out
	case *types.Record:
		if x == nil {
			return nil
		}
		out := map[string]any{}
		for i, name := range x.Names {
			out[name] = plain(x.Values[i])
		}
		return out
	case *types.Grouping:
		if x == nil {
			return nil
		}
		return map[string]any{"Key": plain(x.Key), "Elements": plain(x.Elements)}
	case *types.Ref:
		if x == nil {
			return nil
		}
		return map[string]any{"type": x.Type.Name, "key": x.KeyVal}
	}
	return v
}

// tabulate lays out a sequence as rows. Rows of entities, structures and
// records get one column per member, anything else a single value column.
func tabulate(items []any) ([]string, [][]string) {
	var headers []string
	seen := map[string]bool{}
	var maps []map[string]any
	for _, item := range items {
		m, ok := plain(item).(map[string]any)
		if !ok {
			maps = nil
			break
		}
		for _, name := range memberNames(item) {
			if !seen[name] {
				seen[name] = true
				headers = append(headers, name)
			}
		}
		maps = append(maps, m)
	}
	if maps == nil {
		rows := make([][]string, len(items))
		for i, item := range items {
			rows[i] = []string{cell(item)}
		}
		return []string{"value"}, rows
	}
	rows := make([][]string, len(maps))
	for i, m := range maps {
		row := make([]string, len(headers))
		for j, h := range headers {
			row[j] = cell(m[h])
		}
		rows[i] = row
	}
	return headers, rows
}

func memberNames(v any) []string {
	var out []string
	switch x := v.(type) {
	case *types.Entity:
		for _, f := range x.Type.Fields() {
			if f.Kind != schema.FieldEntitySet {
				out = append(out, f.Name)
			}
		}
	case *types.Structure:
		for _, f := range x.Type.Fields() {
			out = append(out, f.Name)
		}
	case *types.Record:
		out = x.Names
	case *types.Grouping:
		out = []string{"Key", "Elements"}
	}
	return out
}

func cell(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	case map[string]any, []any:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
	if p, ok := plain(v).(map[string]any); ok {
		return cell(p)
	}
	return fmt.Sprint(v)
}
