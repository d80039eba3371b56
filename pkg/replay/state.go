package replay

import (
	"fmt"

	"github.com/luxfi/geth/common/hexutil"
)

// State is the lifecycle state of a Driver.
type State int

const (
	Idle State = iota
	Opened
	Running
	Stopped
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Opened:
		return "opened"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible besides Close.
func (s State) Terminal() bool {
	return s == Stopped || s == Completed || s == Failed
}

// Progress tracks a single run. It is never persisted.
type Progress struct {
	CurrentHeight          uint64
	BlocksProcessed        uint64
	LastCommittedStateRoot hexutil.Bytes
	ErrorCount             int
	Unverified             int
}

// MismatchError reports a state root that differs from the recorded one.
type MismatchError struct {
	Height   uint64
	Expected hexutil.Bytes
	Actual   hexutil.Bytes
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("state root mismatch at height %d: recorded %s, computed %s", e.Height, e.Expected, e.Actual)
}

// Result is the outcome of Run.
type Result struct {
	State    State
	Progress Progress
	// Mismatches lists every discrepancy seen; the last one stopped the run
	// when State is Stopped.
	Mismatches []*MismatchError
}

// Stop returns the mismatch that stopped the run, or nil.
func (r *Result) Stop() *MismatchError {
	if r.State != Stopped || len(r.Mismatches) == 0 {
		return nil
	}
	return r.Mismatches[len(r.Mismatches)-1]
}
