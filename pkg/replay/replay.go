// Package replay re-executes stored blocks through an execution engine to
// rebuild its state database, verifying state roots along the way.
package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/luxfi/geth/common/hexutil"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/dbtools/pkg/application"
	"github.com/luxfi/dbtools/pkg/database"
	"github.com/luxfi/dbtools/pkg/engine"
	"github.com/luxfi/dbtools/pkg/reader"
)

// progressInterval is how often, in blocks, progress is logged.
const progressInterval = 100

// ErrInvalidState is returned when an operation is not allowed in the
// current state.
var ErrInvalidState = errors.New("invalid driver state")

// ErrHeightMismatch is returned when a block indexed at one height records
// another.
var ErrHeightMismatch = errors.New("block height does not match its index")

// Options for a sync run
type Options struct {
	DBPath             string
	StartHeight        uint64
	Count              uint64 // number of blocks to replay
	All                bool   // replay to the chain end, ignoring Count
	StopOnError        bool
	NoCommit           bool
	WritePrecommitData bool
	PrecommitDir       string           // defaults to the app's precommit directory
	Database           database.Options // block store backend
}

// Driver replays blocks through one engine session. It is single use:
// New, Open, Run, Close.
type Driver struct {
	app     *application.App
	engine  engine.Engine
	config  engine.Config
	metrics *metrics

	session engine.Session
	state   State
}

// New creates an idle Driver. Metrics are registered with reg, or with a
// private registry when reg is nil.
func New(app *application.App, eng engine.Engine, cfg engine.Config, reg prometheus.Registerer) (*Driver, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return &Driver{app: app, engine: eng, config: cfg, metrics: m}, nil
}

// State returns the current state.
func (d *Driver) State() State {
	return d.state
}

// Open establishes the engine session.
func (d *Driver) Open(ctx context.Context) error {
	if d.state != Idle {
		return fmt.Errorf("%w: open in %s", ErrInvalidState, d.state)
	}
	session, err := d.engine.OpenSession(ctx, d.config)
	if err != nil {
		return fmt.Errorf("failed to open engine session: %w", err)
	}
	d.session = session
	d.state = Opened

	d.app.Log.Info("Engine session opened",
		"fee", d.config.Fee,
		"audit", d.config.Audit,
		"deployerWhitelist", d.config.DeployerWhitelist,
		"scorePackageValidator", d.config.ScorePackageValidator,
		"builtinScoreOwner", d.config.BuiltinScoreOwner)
	return nil
}

// Run replays blocks from opts.StartHeight in height order. The returned
// error is non-nil only when the run Failed; a Stopped run reports its
// mismatch through the Result.
func (d *Driver) Run(ctx context.Context, opts Options) (*Result, error) {
	if d.state != Opened {
		return nil, fmt.Errorf("%w: run in %s", ErrInvalidState, d.state)
	}
	d.state = Running

	result := &Result{Progress: Progress{CurrentHeight: opts.StartHeight}}
	err := d.run(ctx, opts, result)
	result.State = d.state
	if err != nil {
		d.state = Failed
		result.State = Failed
		d.app.Log.Error("Sync failed",
			"height", result.Progress.CurrentHeight,
			"processed", result.Progress.BlocksProcessed,
			"error", err)
		return result, err
	}

	d.app.Log.Info("Sync finished",
		"state", result.State,
		"height", result.Progress.CurrentHeight,
		"processed", result.Progress.BlocksProcessed,
		"mismatches", result.Progress.ErrorCount)
	return result, nil
}

func (d *Driver) run(ctx context.Context, opts Options, result *Result) error {
	r := reader.New(opts.Database)
	if err := r.Open(opts.DBPath); err != nil {
		return fmt.Errorf("failed to open block store: %w", err)
	}
	defer r.Close()

	progress := &result.Progress
	d.app.Log.Info("Starting sync", "db", opts.DBPath, "start", opts.StartHeight, "count", opts.Count,
		"all", opts.All, "stopOnError", opts.StopOnError, "noCommit", opts.NoCommit, "writePrecommit", opts.WritePrecommitData)

	for opts.All || progress.BlocksProcessed < opts.Count {
		height := opts.StartHeight + progress.BlocksProcessed
		progress.CurrentHeight = height
		d.metrics.height.Set(float64(height))

		stored, err := r.BlockByHeight(height)
		if errors.Is(err, reader.ErrNotFound) {
			d.app.Log.Info("Reached end of chain", "height", height)
			break
		}
		if err != nil {
			return fmt.Errorf("height %d: %w", height, err)
		}
		if stored.Height != int64(height) {
			return fmt.Errorf("height %d: block %s records height %d: %w",
				height, stored.Hash, stored.Height, ErrHeightMismatch)
		}

		blk, err := engine.NewBlock(stored)
		if err != nil {
			return fmt.Errorf("height %d: %w", height, err)
		}

		start := time.Now()
		precommit, err := d.session.ExecuteBlock(ctx, blk)
		d.metrics.execute.Observe(time.Since(start).Seconds())
		if err != nil {
			return fmt.Errorf("height %d: execute: %w", height, err)
		}

		if opts.WritePrecommitData {
			dir := opts.PrecommitDir
			if dir == "" {
				dir = d.app.PrecommitDir()
			}
			if err := writePrecommit(dir, precommit); err != nil {
				d.app.Log.Warn("Failed to write precommit data", "height", height, "error", err)
			}
		}

		if stored.StateRoot == nil {
			progress.Unverified++
			d.app.Log.Warn("Block has no recorded state root, skipping verification",
				"height", height, "hash", stored.Hash)
		} else if !bytes.Equal(precommit.StateRoot, stored.StateRoot) {
			mismatch := &MismatchError{Height: height, Expected: stored.StateRoot, Actual: precommit.StateRoot}
			result.Mismatches = append(result.Mismatches, mismatch)
			d.metrics.mismatches.Inc()

			if opts.StopOnError {
				d.app.Log.Error("State root mismatch, stopping", "height", height,
					"recorded", mismatch.Expected, "computed", mismatch.Actual)
				if err := d.session.Discard(ctx, precommit); err != nil {
					d.app.Log.Warn("Failed to discard precommit", "height", height, "error", err)
				}
				d.state = Stopped
				return nil
			}

			progress.ErrorCount++
			d.app.Log.Warn("State root mismatch", "height", height,
				"recorded", mismatch.Expected, "computed", mismatch.Actual)
		}

		if opts.NoCommit {
			if err := d.session.Discard(ctx, precommit); err != nil {
				return fmt.Errorf("height %d: discard: %w", height, err)
			}
		} else {
			if err := d.session.Commit(ctx, precommit); err != nil {
				return fmt.Errorf("height %d: commit: %w", height, err)
			}
			progress.LastCommittedStateRoot = precommit.StateRoot
			d.metrics.committed.Inc()
		}

		progress.BlocksProcessed++
		progress.CurrentHeight = height + 1
		d.metrics.processed.Inc()

		if progress.BlocksProcessed%progressInterval == 0 {
			d.app.Log.Info("Sync progress", "height", height, "processed", progress.BlocksProcessed,
				"txs", len(blk.Transactions), "stateRoot", hexutil.Bytes(precommit.StateRoot))
		}
	}

	d.state = Completed
	return nil
}

// Close ends the engine session. It is valid from Opened or any terminal
// state and is a no-op when no session is open.
func (d *Driver) Close() error {
	if d.state == Running {
		return fmt.Errorf("%w: close in %s", ErrInvalidState, d.state)
	}
	if d.session == nil {
		return nil
	}
	session := d.session
	d.session = nil
	if err := session.Close(); err != nil {
		return fmt.Errorf("failed to close engine session: %w", err)
	}
	d.app.Log.Info("Engine session closed")
	return nil
}

type precommitDump struct {
	Height    int64           `json:"height"`
	BlockHash hexutil.Bytes   `json:"blockHash"`
	StateRoot hexutil.Bytes   `json:"stateRoot"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// writePrecommit stores p as precommit-<height>.json in dir.
func writePrecommit(dir string, p *engine.Precommit) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(precommitDump{
		Height:    p.Height,
		BlockHash: p.BlockHash,
		StateRoot: p.StateRoot,
		Data:      p.Data,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf("precommit-%d.json", p.Height)), data, 0o644)
}
