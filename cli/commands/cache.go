package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/queryable/cli/internal/store"
)

func newCacheCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the translation store",
		Long:  "The translation store records every query translated by the CLI, keyed by provider, server version and fingerprint.",
	}

	withStore := func(fn func(*store.Store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(a.cfg.CacheDir)
			if err != nil {
				return err
			}
			defer s.Close()
			return fn(s)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show translation store statistics",
			Args:  cobra.NoArgs,
			RunE: withStore(func(s *store.Store) error {
				st, err := s.Stats()
				if err != nil {
					return err
				}
				return a.ui.Table([]string{"Directory", "Translations", "Hits"}, [][]string{
					{st.Dir, strconv.Itoa(st.Entries), strconv.FormatInt(st.Hits, 10)},
				})
			}),
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored translations, most used first",
			Args:  cobra.NoArgs,
			RunE: withStore(func(s *store.Store) error {
				entries, err := s.List()
				if err != nil {
					return err
				}
				rows := make([][]string, len(entries))
				for i, e := range entries {
					rows[i] = []string{e.Key, strconv.FormatInt(e.Hits, 10), e.Cardinality, e.Query}
				}
				return a.ui.Table([]string{"Key", "Hits", "Cardinality", "Query"}, rows)
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every stored translation",
			Args:  cobra.NoArgs,
			RunE: withStore(func(s *store.Store) error {
				if err := s.Clear(); err != nil {
					return err
				}
				a.ui.Success("Translation store cleared")
				return nil
			}),
		},
	)
	return cmd
}
