package cmd

import (
	"fmt"

	"github.com/luxfi/dbtools/pkg/application"
	"github.com/luxfi/dbtools/pkg/engine"
	"github.com/luxfi/dbtools/pkg/engine/rpc"
	"github.com/luxfi/dbtools/pkg/replay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// syncFlags maps sync flags to their configuration keys.
var syncFlags = map[string]string{
	"fee":                     "engine.fee",
	"audit":                   "engine.audit",
	"deployer-whitelist":      "engine.deployer-whitelist",
	"score-package-validator": "engine.score-package-validator",
	"builtin-score-owner":     "engine.builtin-score-owner",
	"engine-url":              "engine.url",
	"engine-timeout":          "engine.timeout",
}

// NewSyncCmd creates the sync command
func NewSyncCmd(app *application.App) *cobra.Command {
	var (
		opts        replay.Options
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "sync [db-path]",
		Short: "Replay stored blocks through the execution engine",
		Long: `Replays blocks from the block store in height order through an execution
engine, verifying each computed state root against the recorded one and
committing the result to the engine's state database.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for flag, key := range syncFlags {
				if err := app.Config.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}

			opts.DBPath = args[0]
			opts.All = !cmd.Flags().Changed("count")
			opts.Database = storeOptions(app)
			return runSync(cmd, app, opts, metricsFile)
		},
	}

	cmd.Flags().Uint64Var(&opts.StartHeight, "start", 0, "Height of the first block to replay")
	cmd.Flags().Uint64Var(&opts.Count, "count", 0, "Number of blocks to replay (default: to the end of the chain)")
	cmd.Flags().BoolVar(&opts.StopOnError, "stop-on-error", false, "Stop at the first state root mismatch")
	cmd.Flags().BoolVar(&opts.NoCommit, "no-commit", false, "Execute blocks without committing their state")
	cmd.Flags().BoolVar(&opts.WritePrecommitData, "write-precommit", false, "Write each block's precommit data as JSON")
	cmd.Flags().StringVar(&opts.PrecommitDir, "precommit-dir", "", "Directory for precommit data (default <base-dir>/precommit)")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write sync metrics in Prometheus text format to this file")

	cmd.Flags().Bool("fee", false, "Enable transaction fees")
	cmd.Flags().Bool("audit", false, "Enable contract deployment audit")
	cmd.Flags().Bool("deployer-whitelist", false, "Enable the deployer whitelist")
	cmd.Flags().Bool("score-package-validator", false, "Enable the contract package validator")
	cmd.Flags().String("builtin-score-owner", "", "Owner address of the built-in contracts")
	cmd.Flags().String("engine-url", "http://127.0.0.1:9000", "Execution engine JSON-RPC endpoint")
	cmd.Flags().Duration("engine-timeout", rpc.DefaultTimeout, "Timeout of a single engine call")

	return cmd
}

// engineConfig reads the engine session configuration.
func engineConfig(app *application.App) engine.Config {
	c := app.Config
	return engine.Config{
		Fee:                   c.GetBool("engine.fee"),
		Audit:                 c.GetBool("engine.audit"),
		DeployerWhitelist:     c.GetBool("engine.deployer-whitelist"),
		ScorePackageValidator: c.GetBool("engine.score-package-validator"),
		BuiltinScoreOwner:     c.GetString("engine.builtin-score-owner"),
		ScoreRootPath:         app.ScoreDir(),
		StateDBRootPath:       app.StateDBDir(),
	}
}

func runSync(cmd *cobra.Command, app *application.App, opts replay.Options, metricsFile string) error {
	cfg := engineConfig(app)
	if err := cfg.Validate(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	eng := rpc.New(app.Config.GetString("engine.url"), app.Config.GetDuration("engine.timeout"))
	driver, err := replay.New(app, eng, cfg, reg)
	if err != nil {
		return err
	}

	if err := driver.Open(cmd.Context()); err != nil {
		return err
	}
	defer func() {
		if err := driver.Close(); err != nil {
			app.Log.Warn("Failed to close engine session", "error", err)
		}
	}()

	result, runErr := driver.Run(cmd.Context(), opts)
	if result != nil {
		printSyncResult(cmd, result)
	}
	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			app.Log.Warn("Failed to write metrics", "path", metricsFile, "error", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	if stop := result.Stop(); stop != nil {
		return stop
	}
	return nil
}

func printSyncResult(cmd *cobra.Command, result *replay.Result) {
	out := cmd.OutOrStdout()
	p := result.Progress
	fmt.Fprintf(out, "state: %s\n", result.State)
	fmt.Fprintf(out, "height: %d\n", p.CurrentHeight)
	fmt.Fprintf(out, "processed: %d\n", p.BlocksProcessed)
	fmt.Fprintf(out, "mismatches: %d\n", len(result.Mismatches))
	if p.Unverified > 0 {
		fmt.Fprintf(out, "unverified: %d\n", p.Unverified)
	}
	if p.LastCommittedStateRoot != nil {
		fmt.Fprintf(out, "stateRoot: %s\n", p.LastCommittedStateRoot)
	}
	for _, m := range result.Mismatches {
		fmt.Fprintf(out, "  %s\n", m)
	}
}
