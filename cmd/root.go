package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/luxfi/dbtools/pkg/application"
	"github.com/luxfi/dbtools/pkg/database"
	"github.com/luxfi/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version information (set by ldflags)
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	var configFile string

	app := application.New()
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "dbtools",
		Short:         "Block store inspection and state resync tool",
		Long:          `Reads blocks and transaction results from a node's local block store and replays them through an execution engine to rebuild its state database.`,
		Version:       fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(v, configFile); err != nil {
				return err
			}
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			app.Setup(v.GetString("base-dir"), log.NewLogger("dbtools"), v)
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./dbtools.yaml)")
	rootCmd.PersistentFlags().String("base-dir", ".", "directory holding the engine's .score and .statedb")
	rootCmd.PersistentFlags().String("db-type", "", "block store backend: leveldb, pebbledb or badgerdb (default auto-detect)")

	rootCmd.AddCommand(NewSyncCmd(app))
	rootCmd.AddCommand(NewLastBlockCmd(app))
	rootCmd.AddCommand(NewBlockCmd(app))
	rootCmd.AddCommand(NewTxResultCmd(app))
	rootCmd.AddCommand(NewClearCmd(app))
	rootCmd.AddCommand(NewStateHashCmd(app))
	rootCmd.AddCommand(NewStateLastBlockCmd(app))

	return rootCmd
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

func initConfig(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("dbtools")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DBTOOLS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

// storeOptions returns the read-only options for the configured backend.
func storeOptions(app *application.App) database.Options {
	return database.Options{Type: database.Type(app.Config.GetString("db-type"))}
}
