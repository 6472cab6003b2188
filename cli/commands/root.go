// Package commands implements the queryable command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/queryable/cli/internal/config"
	"github.com/satishbabariya/queryable/cli/internal/ui"
	"github.com/satishbabariya/queryable/cli/internal/version"
	"github.com/satishbabariya/queryable/internal/debug"
	"github.com/satishbabariya/queryable/runtime/client"
	"github.com/satishbabariya/queryable/schema"
	"github.com/satishbabariya/queryable/telemetry"
)

const telemetryInterval = time.Minute

// app is the state shared by the commands of one invocation.
type app struct {
	cfg *config.Config
	ui  *ui.Printer

	configFile    string
	schemaPath    string
	provider      string
	serverVersion string
	databaseURL   string
	debug         bool
	noColor       bool
	noTelemetry   bool

	telemetry *telemetry.Recorder
}

// NewRootCommand creates the queryable command tree writing to out and
// errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "queryable",
		Short:         "Translate expression-tree queries into SQL",
		Long:          "queryable translates method-chain queries over a domain model into parameterized SQL and runs them.",
		Version:       version.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd, out, errOut)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.telemetry.Stop()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default: .queryable.yaml in ., $HOME or $HOME/.config/queryable)")
	flags.StringVarP(&a.schemaPath, "schema", "s", "", "path to the model schema (.qry or .yaml)")
	flags.StringVarP(&a.provider, "provider", "p", "", "database provider: sqlite, postgres, pgx, mysql or sqlserver")
	flags.StringVar(&a.serverVersion, "server-version", "", "server version gating provider features")
	flags.StringVar(&a.databaseURL, "database-url", "", "database connection string")
	flags.BoolVar(&a.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&a.noColor, "no-color", false, "disable styled output")
	flags.BoolVar(&a.noTelemetry, "no-telemetry", false, "disable telemetry export")

	root.AddCommand(
		newTranslateCommand(a),
		newRunCommand(a),
		newSearchCommand(a),
		newSchemaCommand(a),
		newCacheCommand(a),
		newInitCommand(a),
		newVersionCommand(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, out, errOut io.Writer) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("schema") {
		cfg.SchemaPath = a.schemaPath
	}
	if flags.Changed("provider") {
		cfg.Provider = a.provider
	}
	if flags.Changed("server-version") {
		cfg.ServerVersion = a.serverVersion
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL = a.databaseURL
	}
	if flags.Changed("debug") {
		cfg.Debug = a.debug
	}
	a.cfg = cfg

	debug.Init(cfg.Debug)
	debug.SetOutput(errOut)
	a.ui = ui.New(out, errOut, a.noColor || !isTerminal(out))

	a.telemetry = telemetry.NewRecorder()
	if endpoint := telemetry.Endpoint(); endpoint != "" && !a.noTelemetry && !telemetry.Disabled() {
		a.telemetry.StartExport(telemetryInterval, telemetry.HTTPSink{Endpoint: endpoint, Version: version.Version})
	}
	debug.Debug("config loaded", "file", cfg.File, "provider", cfg.Provider, "schema", cfg.SchemaPath)
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

// loadModel reads the configured schema. Files ending in .yaml or .yml are
// read as YAML model definitions, everything else as schema DSL.
func (a *app) loadModel() (*schema.Model, error) {
	path := a.cfg.SchemaPath
	if path == "" {
		return nil, fmt.Errorf("no schema configured: pass --schema or set schema_path")
	}
	data, err := afero.ReadFile(config.AppFs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		return schema.LoadYAML(data)
	}
	return schema.Load(path, string(data))
}

// openDomain binds m to the configured provider. Translation never connects,
// so a database URL is only needed by commands that execute.
func (a *app) openDomain(m *schema.Model) (*client.Domain, error) {
	d, err := client.Open(m, client.Config{
		Provider:       a.cfg.Provider,
		ServerVersion:  a.cfg.ServerVersion,
		DSN:            a.cfg.DatabaseURL,
		QueryCacheSize: a.cfg.QueryCacheSize,
		QueryCacheTTL:  a.cfg.QueryCacheTTL,
		Telemetry:      a.telemetry,
	})
	if err != nil {
		return nil, err
	}
	if a.cfg.Debug {
		d.Use(client.LoggingMiddleware(func(format string, args ...any) {
			debug.Debug(fmt.Sprintf(format, args...))
		}))
	}
	return d, nil
}

// Execute runs the CLI with the process arguments.
func Execute(ctx context.Context) error {
	root := NewRootCommand(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		ui.Stdout().Error("%v", err)
		return err
	}
	return nil
}
