package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/queryable/query/sqlgen"
	"github.com/satishbabariya/queryable/schema"
)

func newSchemaCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the domain model schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "validate",
			Short: "Check that the schema loads",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := a.loadModel()
				if err != nil {
					return fmt.Errorf("validation failed: %w", err)
				}
				a.ui.Success("Schema %s is valid: %d types, %d tables", a.cfg.SchemaPath, len(m.Types()), len(m.Tables()))
				return nil
			},
		},
		&cobra.Command{
			Use:   "ddl",
			Short: "Print the CREATE TABLE statements for the configured provider",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := a.loadModel()
				if err != nil {
					return err
				}
				d, err := sqlgen.NewDialect(a.cfg.Provider, a.cfg.ServerVersion)
				if err != nil {
					return err
				}
				for _, t := range m.Tables() {
					a.ui.Plain("%s;", d.CreateTable(t))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "show [type]",
			Short: "List the types of the model, or the fields of one type",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				m, err := a.loadModel()
				if err != nil {
					return err
				}
				if len(args) == 1 {
					t, ok := m.Type(args[0])
					if !ok {
						return fmt.Errorf("unknown type %q", args[0])
					}
					return a.ui.Table(fieldTable(t))
				}
				return a.ui.Table(typeTable(m))
			},
		},
	)
	return cmd
}

func typeTable(m *schema.Model) ([]string, [][]string) {
	var rows [][]string
	for _, t := range m.Types() {
		parent, scheme, table := "", "", ""
		if t.Parent != nil {
			parent = t.Parent.Name
		}
		if t.IsEntity() {
			scheme = t.Scheme().String()
			var names []string
			for _, tbl := range t.OwnTables() {
				names = append(names, tbl.Name)
			}
			table = strings.Join(names, ", ")
		}
		kind := t.Kind.String()
		if t.Abstract {
			kind = "abstract " + kind
		}
		rows = append(rows, []string{t.Name, kind, parent, scheme, table, strconv.Itoa(len(t.Fields()))})
	}
	return []string{"Type", "Kind", "Parent", "Scheme", "Tables", "Fields"}, rows
}

func fieldTable(t *schema.TypeInfo) ([]string, [][]string) {
	var rows [][]string
	for _, f := range t.Fields() {
		typ := f.Type.String()
		switch {
		case f.Enum != nil:
			typ = f.Enum.Name
		case f.Target != nil:
			typ = f.Target.Name
		}
		if f.Nullable {
			typ += "?"
		}
		var flags []string
		if f.Key {
			flags = append(flags, "key")
		}
		if f.Dynamic {
			flags = append(flags, "dynamic")
		}
		if f.Inverse != "" {
			flags = append(flags, "inverse "+f.Inverse)
		}
		rows = append(rows, []string{f.Name, f.Kind.String(), typ, f.DeclaringType().Name, strings.Join(flags, ", ")})
	}
	return []string{"Field", "Kind", "Type", "Declared by", "Flags"}, rows
}
