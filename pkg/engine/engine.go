// Package engine defines the contract of the ledger execution engine driven
// by a state resync.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/dbtools/pkg/block"
	"github.com/luxfi/dbtools/pkg/core"
)

// ErrInvalidHeight is returned for a block that records no usable height.
var ErrInvalidHeight = errors.New("invalid block height")

// Config configures an engine session.
type Config struct {
	Fee                   bool   `json:"fee"`
	Audit                 bool   `json:"audit"`
	DeployerWhitelist     bool   `json:"deployerWhitelist"`
	ScorePackageValidator bool   `json:"scorePackageValidator"`
	BuiltinScoreOwner     string `json:"builtinScoreOwner"`
	ScoreRootPath         string `json:"scoreRootPath,omitempty"`
	StateDBRootPath       string `json:"stateDbRootPath,omitempty"`
}

// Validate checks the configuration before a session is opened.
func (c Config) Validate() error {
	if c.BuiltinScoreOwner == "" {
		return core.ErrInvalidConfig("builtin score owner is required")
	}
	if _, err := block.ParseAddress(c.BuiltinScoreOwner); err != nil {
		return core.ErrInvalidConfigf("builtin score owner: %v", err)
	}
	return nil
}

// Block is the input of ExecuteBlock.
type Block struct {
	Height       int64
	Hash         []byte
	PrevHash     []byte
	Timestamp    int64
	Transactions []*block.Transaction
}

// NewBlock prepares a stored block for execution.
func NewBlock(b *block.Block) (*Block, error) {
	if b.Height < 0 {
		return nil, fmt.Errorf("block %s: height %d: %w", b.Hash, b.Height, ErrInvalidHeight)
	}
	txs, err := b.DecodeTransactions()
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", b.Height, err)
	}
	return &Block{
		Height:       b.Height,
		Hash:         b.Hash,
		PrevHash:     b.PrevHash,
		Timestamp:    b.Timestamp,
		Transactions: txs,
	}, nil
}

// Precommit is the uncommitted result of executing a block.
type Precommit struct {
	Height    int64
	BlockHash []byte
	StateRoot []byte
	// Data is the engine's own precommit payload, kept for diagnostics.
	Data json.RawMessage
}

// Engine opens execution sessions.
type Engine interface {
	OpenSession(ctx context.Context, cfg Config) (Session, error)
}

// Session executes blocks in height order and finalizes their state.
type Session interface {
	ExecuteBlock(ctx context.Context, b *Block) (*Precommit, error)
	Commit(ctx context.Context, p *Precommit) error
	Discard(ctx context.Context, p *Precommit) error
	Close() error
}
