package schema

// Table is the physical layout of one stored table.
type Table struct {
	Name string
	// Type is the type the table belongs to: the root for single-table
	// hierarchies, the declaring type for class tables, the concrete type for
	// concrete tables.
	Type    *TypeInfo
	Columns []TableColumn
}

// TableColumn is one physical column.
type TableColumn struct {
	Name     string
	Type     ValueType
	Nullable bool
	Key      bool
}

// KeyColumns returns the names of the key columns.
func (t *Table) KeyColumns() []string {
	var out []string
	for _, c := range t.Columns {
		if c.Key {
			out = append(out, c.Name)
		}
	}
	return out
}

// Has reports whether the table stores the named column.
func (t *Table) Has(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Tables returns the tables storing every entity hierarchy of the model, in
// definition order.
func (m *Model) Tables() []*Table {
	var out []*Table
	for _, t := range m.order {
		if t.Kind != KindEntity {
			continue
		}
		out = append(out, t.OwnTables()...)
	}
	return out
}

// OwnTables returns the tables that belong to t itself (not its descendants).
func (t *TypeInfo) OwnTables() []*Table {
	if t.Kind != KindEntity {
		return nil
	}
	switch t.Scheme() {
	case SingleTable:
		if t.Parent != nil {
			return nil
		}
		tbl := &Table{Name: t.Table, Type: t, Columns: keyColumns(t, true)}
		for _, d := range t.Descendants() {
			tbl.Columns = append(tbl.Columns, fieldColumns(d.own, d != t)...)
		}
		return []*Table{tbl}
	case ConcreteTable:
		if t.Abstract {
			return nil
		}
		tbl := &Table{Name: t.Table, Type: t, Columns: keyColumns(t, true)}
		tbl.Columns = append(tbl.Columns, fieldColumns(t.all, false)...)
		return []*Table{tbl}
	default:
		tbl := &Table{Name: t.Table, Type: t, Columns: keyColumns(t, t.Parent == nil)}
		tbl.Columns = append(tbl.Columns, fieldColumns(t.own, false)...)
		return []*Table{tbl}
	}
}

func keyColumns(t *TypeInfo, typeID bool) []TableColumn {
	var cols []TableColumn
	for _, k := range t.Keys() {
		cols = append(cols, TableColumn{Name: k.ColumnName(), Type: k.Type, Key: true})
	}
	if typeID {
		cols = append(cols, TableColumn{Name: TypeIDColumn, Type: TypeInt32})
	}
	return cols
}

func fieldColumns(fields []*Field, nullable bool) []TableColumn {
	var cols []TableColumn
	for _, f := range fields {
		if f.Key {
			continue
		}
		for _, c := range f.Columns() {
			cols = append(cols, TableColumn{
				Name:     c.Name,
				Type:     c.ValueType(),
				Nullable: nullable || c.Nullable(),
			})
		}
	}
	return cols
}
