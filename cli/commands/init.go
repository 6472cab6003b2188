package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/queryable/cli/internal/config"
)

const sampleSchema = `// Domain model for queryable. Types listed here can be queried with
// All<Type>() in translate and run.

entity Person @table("people") {
  key Id int64
  Name string
  Age int32
  Pets Animal* inverse Owner
}

abstract entity Animal @scheme("single_table") {
  key Id int64
  Name string
  Owner -> Person?
}

entity Dog : Animal { Breed string }
entity Cat : Animal { Lives int32 }
`

var providers = []string{"sqlite", "postgres", "pgx", "mysql", "sqlserver"}

type initOptions struct {
	yes    bool
	output string
}

func newInitCommand(a *app) *cobra.Command {
	o := &initOptions{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file and a sample schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInit(o)
		},
	}
	cmd.Flags().BoolVarP(&o.yes, "yes", "y", false, "accept the current settings without prompting")
	cmd.Flags().StringVarP(&o.output, "output", "o", config.FileName+".yaml", "configuration file to write")
	return cmd
}

func (a *app) runInit(o *initOptions) error {
	cfg := *a.cfg
	if !o.yes {
		answers := struct {
			Provider    string
			SchemaPath  string
			DatabaseURL string
		}{}
		questions := []*survey.Question{
			{
				Name: "provider",
				Prompt: &survey.Select{
					Message: "Database provider:",
					Options: providers,
					Default: cfg.Provider,
				},
			},
			{
				Name:     "schemaPath",
				Prompt:   &survey.Input{Message: "Schema file:", Default: cfg.SchemaPath},
				Validate: survey.Required,
			},
			{
				Name:   "databaseURL",
				Prompt: &survey.Input{Message: "Database URL (optional):", Default: cfg.DatabaseURL},
			},
		}
		if err := survey.Ask(questions, &answers); err != nil {
			return err
		}
		cfg.Provider = answers.Provider
		cfg.SchemaPath = answers.SchemaPath
		cfg.DatabaseURL = answers.DatabaseURL
	}

	if exists, err := afero.Exists(config.AppFs, o.output); err != nil {
		return err
	} else if exists && !o.yes {
		overwrite := false
		if err := survey.AskOne(&survey.Confirm{Message: fmt.Sprintf("%s exists. Overwrite?", o.output)}, &overwrite); err != nil {
			return err
		}
		if !overwrite {
			a.ui.Warning("Keeping %s", o.output)
			return nil
		}
	}

	path, err := config.Save(&cfg, o.output)
	if err != nil {
		return err
	}
	a.ui.Success("Wrote %s", path)

	if _, err := config.AppFs.Stat(cfg.SchemaPath); os.IsNotExist(err) {
		if dir := filepath.Dir(cfg.SchemaPath); dir != "." {
			if err := config.AppFs.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
		if err := afero.WriteFile(config.AppFs, cfg.SchemaPath, []byte(sampleSchema), 0644); err != nil {
			return fmt.Errorf("failed to create schema file: %w", err)
		}
		a.ui.Success("Created sample schema %s", cfg.SchemaPath)
	}

	a.ui.Plain("\nNext steps:")
	a.ui.Plain("  1. Describe your entities in %s", cfg.SchemaPath)
	a.ui.Plain("  2. queryable translate 'All<Person>().Where(p => p.Age > 30)'")
	a.ui.Plain("  3. Set database_url and use queryable run to execute queries")
	return nil
}
