package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/queryable/runtime/client"
	"github.com/satishbabariya/queryable/runtime/types"
	"github.com/satishbabariya/queryable/schema"
)

// workspace isolates HOME and returns a directory holding the sample schema.
func workspace(t *testing.T) (dir, schemaPath string) {
	t.Helper()
	dir = t.TempDir()
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	t.Setenv("HOME", filepath.Join(dir, "home"))
	t.Setenv("DATABASE_URL", "")
	t.Setenv("QUERYABLE_TELEMETRY", "0")
	schemaPath = filepath.Join(dir, "zoo.qry")
	require.NoError(t, os.WriteFile(schemaPath, []byte(sampleSchema), 0644))
	return dir, schemaPath
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := NewRootCommand(&out, &errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestTranslateJSON(t *testing.T) {
	_, schemaPath := workspace(t)
	args := []string{"translate", "--schema", schemaPath, "--json",
		"All<Person>().Where(p => p.Age > $min).Select(p => p.Name)", "--param", "min=int32:30"}

	out, _, err := execute(t, args...)
	require.NoError(t, err)
	var tr translationOutput
	require.NoError(t, json.Unmarshal([]byte(out), &tr))
	assert.Equal(t, "sqlite", tr.Provider)
	assert.Contains(t, tr.SQL, `"people"`)
	assert.Equal(t, "Many", tr.Cardinality)
	assert.Equal(t, []string{"min"}, tr.Parameters)
	assert.Len(t, tr.Fingerprint, 16)
	assert.Equal(t, int64(1), tr.Seen)

	// a different captured value has the same shape
	args[len(args)-1] = "min=int32:50"
	out, _, err = execute(t, args...)
	require.NoError(t, err)
	var again translationOutput
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.Equal(t, tr.Fingerprint, again.Fingerprint)
	assert.Equal(t, int64(2), again.Seen)
}

func TestTranslateFromFileWithExplain(t *testing.T) {
	dir, schemaPath := workspace(t)
	queryPath := filepath.Join(dir, "pets.q")
	require.NoError(t, os.WriteFile(queryPath, []byte("All<Person>().Select(p => new { p.Name, Count = p.Pets.Count() })\n"), 0644))

	out, _, err := execute(t, "translate", "-s", schemaPath, "-f", queryPath, "--explain", "--no-store")
	require.NoError(t, err)
	assert.Contains(t, out, "# Translation")
	assert.Contains(t, out, "```sql")
	assert.Contains(t, out, "Cardinality:** Many")
	assert.NotContains(t, out, "Seen")
}

func TestTranslateErrors(t *testing.T) {
	_, schemaPath := workspace(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no query", []string{"translate", "-s", schemaPath}},
		{"bad param", []string{"translate", "-s", schemaPath, "All<Person>()", "--param", "min=int32"}},
		{"unknown param type", []string{"translate", "-s", schemaPath, "All<Person>()", "--param", "min=complex:1"}},
		{"unknown variable", []string{"translate", "-s", schemaPath, "All<Person>().Where(p => p.Age > $min)"}},
		{"unknown type", []string{"translate", "-s", schemaPath, "--no-store", "All<Robot>()"}},
		{"missing schema", []string{"translate", "-s", schemaPath + ".missing", "All<Person>()"}},
		{"unknown provider", []string{"translate", "-s", schemaPath, "-p", "oracle", "All<Person>()"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestRunQuery(t *testing.T) {
	dir, schemaPath := workspace(t)
	dsn := filepath.Join(dir, "zoo.db")

	m, err := schema.Load(schemaPath, sampleSchema)
	require.NoError(t, err)
	d, err := client.Open(m, client.Config{Provider: "sqlite", DSN: dsn})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, d.CreateSchema(ctx))
	s := d.OpenSession()
	person := m.MustType("Person")
	for i, name := range []string{"Cid", "Ann", "Bob"} {
		require.NoError(t, s.Insert(ctx, types.NewEntity(person).Set("Id", int64(i+1)).Set("Name", name).Set("Age", int32(20+i*10))))
	}
	require.NoError(t, d.Close())

	out, _, err := execute(t, "run", "-s", schemaPath, "--database-url", dsn,
		"All<Person>().OrderBy(p => p.Name).Select(p => p.Name)")
	require.NoError(t, err)
	assert.Less(t, strings.Index(out, "Ann"), strings.Index(out, "Bob"))
	assert.Contains(t, out, "(3 rows)")

	out, _, err = execute(t, "run", "-s", schemaPath, "--database-url", dsn,
		"All<Person>().Where(p => p.Age >= $age).Count()", "--param", "age=int32:30")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	out, _, err = execute(t, "run", "-s", schemaPath, "--database-url", dsn, "--json",
		"All<Person>().Where(p => p.Name == \"Bob\")")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "Bob", rows[0]["Name"])
	assert.EqualValues(t, 40, rows[0]["Age"])

	out, _, err = execute(t, "run", "-s", schemaPath, "--database-url", dsn, "--isolation", "serializable", "--timing",
		"All<Person>().Count()")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "3\n"))
	assert.Contains(t, out, "Time: ")

	_, _, err = execute(t, "run", "-s", schemaPath, "--database-url", dsn, "--isolation", "chaos", "All<Person>().Count()")
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	workspace(t)
	out, _, err := execute(t, "search", "-p", "sqlserver", `"data base*" AND NOT FORMSOF (INFLECTIONAL, run)`)
	require.NoError(t, err)
	assert.Equal(t, "\"data base*\" AND NOT FORMSOF (INFLECTIONAL, run)\n", out)

	out, _, err = execute(t, "search", "-p", "sqlserver", "--column", "Body", "apple")
	require.NoError(t, err)
	assert.Contains(t, out, "CONTAINS")
	assert.Contains(t, out, "N'apple'")

	_, _, err = execute(t, "search", "-p", "sqlite", "NEAR((a, b), 5, TRUE)")
	assert.Error(t, err)

	_, _, err = execute(t, "search", "-p", "sqlserver", "AND AND")
	assert.Error(t, err)
}

func TestSchemaCommands(t *testing.T) {
	_, schemaPath := workspace(t)

	out, _, err := execute(t, "schema", "validate", "-s", schemaPath)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	out, _, err = execute(t, "schema", "ddl", "-s", schemaPath, "-p", "postgres")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out, "CREATE TABLE"))
	assert.Contains(t, out, `"people"`)

	out, _, err = execute(t, "schema", "show", "-s", schemaPath)
	require.NoError(t, err)
	for _, name := range []string{"Person", "Animal", "Dog", "Cat"} {
		assert.Contains(t, out, name)
	}

	out, _, err = execute(t, "schema", "show", "Dog", "-s", schemaPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Breed")
	assert.Contains(t, out, "Owner")

	_, _, err = execute(t, "schema", "show", "Robot", "-s", schemaPath)
	assert.Error(t, err)
}

func TestCacheCommands(t *testing.T) {
	_, schemaPath := workspace(t)
	_, _, err := execute(t, "translate", "-s", schemaPath, "All<Dog>().Count()")
	require.NoError(t, err)

	out, _, err := execute(t, "cache", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Count")
	assert.Contains(t, out, "Scalar")

	out, _, err = execute(t, "cache", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "| 1 ")

	out, _, err = execute(t, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")

	out, _, err = execute(t, "cache", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Scalar")
}

func TestInitWritesConfigAndSchema(t *testing.T) {
	dir, _ := workspace(t)
	cfgPath := filepath.Join(dir, "proj", ".queryable.yaml")
	newSchema := filepath.Join(dir, "proj", "model", "app.qry")

	out, _, err := execute(t, "init", "--yes", "-o", cfgPath, "-s", newSchema, "-p", "pgx")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	assert.Contains(t, out, "Created sample schema")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "provider: pgx")

	out, _, err = execute(t, "schema", "validate", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
}

func TestVersion(t *testing.T) {
	workspace(t)
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "queryable version")

	out, _, err = execute(t, "version", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"goVersion"`)
}
