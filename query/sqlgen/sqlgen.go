// Package sqlgen holds the SQL dialects of the supported providers: identifier
// quoting, placeholders, paging, null-safe comparison, temporary tables, DDL,
// value binding and the provider features gated by server version.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/satishbabariya/queryable/schema"
)

// Query represents a SQL query with arguments
type Query struct {
	SQL  string
	Args []interface{}
}

// TempColumn is a column of a temporary table.
type TempColumn struct {
	Name string
	Type schema.ValueType
}

// Dialect renders provider-specific SQL.
type Dialect interface {
	// Provider is the canonical provider name.
	Provider() string
	// DriverName is the database/sql driver registered for the provider.
	DriverName() string
	Version() *version.Version
	Features() Features

	Quote(ident string) string
	// Placeholder renders the n-th (1-based) positional parameter.
	Placeholder(n int) string
	BoolLiteral(b bool) string
	Concat(parts ...string) string
	Function(name string, args ...string) string
	Cast(x string, t schema.ValueType) string
	// NullSafeEqual renders an equality treating two NULLs as equal.
	NullSafeEqual(l, r string, negate bool) string
	// LikeEscape is the ESCAPE clause matching EscapeLike.
	LikeEscape() string
	// Paging returns the text inserted after SELECT [DISTINCT] and the text
	// appended after ORDER BY for the given take/skip fragments (empty when
	// absent).
	Paging(take, skip string, ordered bool) (top, tail string)
	// FromDual is the FROM clause of a select without a table that has a
	// WHERE clause.
	FromDual() string
	FullTextContains(column, condition string) string

	// InlineListLimit is the largest list rendered inline by IncludeAuto.
	InlineListLimit() int
	TempTableName(n int) string
	CreateTempTable(name string, cols []TempColumn) string
	DropTempTable(name string) string

	ColumnType(t schema.ValueType) string
	CreateTable(t *schema.Table) string
	Insert(table string, columns []string) string

	// BindValue converts a Go value into a driver argument.
	BindValue(v any) (any, error)
	// Decode converts a scanned driver value into the Go type of t.
	Decode(v any, t schema.ValueType) (any, error)
}

// Default server versions assumed when none is configured.
const (
	DefaultSQLiteVersion    = "3.45"
	DefaultPostgresVersion  = "16"
	DefaultMySQLVersion     = "8.0.36"
	DefaultSQLServerVersion = "16.0"
)

// NewDialect returns the dialect of provider for the given server version.
// An empty serverVersion selects the provider default.
func NewDialect(provider, serverVersion string) (Dialect, error) {
	p := strings.ToLower(provider)
	var def string
	switch p {
	case "sqlite", "sqlite3":
		def = DefaultSQLiteVersion
	case "postgres", "postgresql", "pgx":
		def = DefaultPostgresVersion
	case "mysql":
		def = DefaultMySQLVersion
	case "sqlserver", "mssql":
		def = DefaultSQLServerVersion
	default:
		return nil, fmt.Errorf("sqlgen: unknown provider %q", provider)
	}
	if serverVersion == "" {
		serverVersion = def
	}
	v, err := version.NewVersion(serverVersion)
	if err != nil {
		return nil, fmt.Errorf("sqlgen: invalid %s server version %q: %w", provider, serverVersion, err)
	}
	switch p {
	case "sqlite", "sqlite3":
		return newSQLite(v), nil
	case "postgres", "postgresql":
		return newPostgres(v, "postgres"), nil
	case "pgx":
		return newPostgres(v, "pgx"), nil
	case "mysql":
		return newMySQL(v), nil
	default:
		return newSQLServer(v), nil
	}
}

// MustDialect is NewDialect for known-good arguments.
func MustDialect(provider, serverVersion string) Dialect {
	d, err := NewDialect(provider, serverVersion)
	if err != nil {
		panic(err)
	}
	return d
}

// Restrict returns d with the given features removed. It is used to model
// older servers and to exercise capability checks.
func Restrict(d Dialect, remove Features) Dialect {
	return &restricted{Dialect: d, features: d.Features() &^ remove}
}

type restricted struct {
	Dialect
	features Features
}

func (r *restricted) Features() Features { return r.features }

// base holds the behaviour shared by every dialect.
type base struct {
	version  *version.Version
	features Features
}

func (b *base) Version() *version.Version { return b.version }
func (b *base) Features() Features        { return b.features }

func (b *base) Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (b *base) Placeholder(int) string { return "?" }

func (b *base) BoolLiteral(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (b *base) Concat(parts ...string) string { return "(" + strings.Join(parts, " || ") + ")" }

func (b *base) Function(name string, args ...string) string {
	return strings.ToUpper(name) + "(" + strings.Join(args, ", ") + ")"
}

func (b *base) NullSafeEqual(l, r string, negate bool) string {
	if negate {
		return l + " IS DISTINCT FROM " + r
	}
	return l + " IS NOT DISTINCT FROM " + r
}

func (b *base) LikeEscape() string { return ` ESCAPE '\'` }

func (b *base) Paging(take, skip string, _ bool) (string, string) {
	var tail []string
	if take != "" {
		tail = append(tail, "LIMIT "+take)
	}
	if skip != "" {
		tail = append(tail, "OFFSET "+skip)
	}
	return "", strings.Join(tail, " ")
}

func (b *base) FromDual() string { return "" }

func (b *base) FullTextContains(column, condition string) string {
	return "CONTAINS(" + column + ", " + condition + ")"
}

func (b *base) InlineListLimit() int { return 1000 }

func (b *base) TempTableName(n int) string { return fmt.Sprintf("tmp_in_%d", n) }

func (b *base) DropTempTable(name string) string { return "DROP TABLE " + name }

// EscapeLike escapes the LIKE wildcards of s with a backslash.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `[`, `\[`)
	return r.Replace(s)
}

// LikePattern escapes s and adds wildcards for mode: "contains", "prefix"
// or "suffix".
func LikePattern(s, mode string) string {
	e := EscapeLike(s)
	switch mode {
	case "prefix":
		return e + "%"
	case "suffix":
		return "%" + e
	}
	return "%" + e + "%"
}

func createTable(d Dialect, t *schema.Table) string {
	var defs []string
	for _, c := range t.Columns {
		def := d.Quote(c.Name) + " " + d.ColumnType(c.Type)
		if !c.Nullable {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if keys := t.KeyColumns(); len(keys) > 0 {
		quoted := make([]string, len(keys))
		for i, k := range keys {
			quoted[i] = d.Quote(k)
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoted, ", ")+")")
	}
	return "CREATE TABLE " + d.Quote(t.Name) + " (" + strings.Join(defs, ", ") + ")"
}

func insert(d Dialect, table string, columns []string) string {
	quoted := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.Quote(c)
		params[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Quote(table), strings.Join(quoted, ", "), strings.Join(params, ", "))
}

func tempColumns(d Dialect, cols []TempColumn) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = d.Quote(c.Name) + " " + d.ColumnType(c.Type)
	}
	return strings.Join(defs, ", ")
}

func atLeast(v *version.Version, constraint string) bool {
	c, err := version.NewConstraint(">= " + constraint)
	if err != nil {
		panic(err)
	}
	return c.Check(v)
}
