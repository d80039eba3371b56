package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/dbtools/pkg/application"
	"github.com/luxfi/dbtools/pkg/database"
	"github.com/luxfi/dbtools/pkg/statedb"
	"github.com/spf13/cobra"
)

// NewStateHashCmd creates the statehash command
func NewStateHashCmd(app *application.App) *cobra.Command {
	var (
		prefix  string
		exclude []string
	)

	cmd := &cobra.Command{
		Use:   "statehash [state-db-path]",
		Short: "Digest the contents of a state database",
		Long:  "Computes a sha3-256 digest over every key-value pair of the state database in key order. The path defaults to <base-dir>/.statedb.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := statedb.HashOptions{Prefix: []byte(prefix)}
			for _, ex := range exclude {
				opts.Exclude = append(opts.Exclude, []byte(ex))
			}

			return withStateDB(app, args, func(store *database.Store) error {
				result, err := statedb.StateHash(store, opts)
				if err != nil {
					return err
				}
				app.Log.Info("State database hashed", "path", store.Path(), "entries", result.Entries)
				fmt.Fprintf(cmd.OutOrStdout(), "stateHash: %s\n", result.Hash)
				fmt.Fprintf(cmd.OutOrStdout(), "entries: %d\n", result.Entries)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&prefix, "prefix", "", "Only digest keys with this prefix")
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "Skip keys with these prefixes")

	return cmd
}

// NewStateLastBlockCmd creates the statelastblock command
func NewStateLastBlockCmd(app *application.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statelastblock [state-db-path]",
		Short: "Display the last block committed to a state database",
		Long:  "Decodes the last block record of the state database. The path defaults to <base-dir>/.statedb.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStateDB(app, args, func(store *database.Store) error {
				b, err := statedb.LastBlock(store)
				if errors.Is(err, statedb.ErrNoLastBlock) {
					fmt.Fprintln(cmd.OutOrStdout(), notFound)
					return nil
				}
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(b, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			})
		},
	}
	return cmd
}

// withStateDB opens the state database named by args, or the one under the
// base directory, for the duration of fn.
func withStateDB(app *application.App, args []string, fn func(store *database.Store) error) error {
	path := app.StateDBDir()
	if len(args) > 0 {
		path = args[0]
	}
	opts := storeOptions(app)
	opts.Managed = true
	store, err := database.Open(path, opts)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
