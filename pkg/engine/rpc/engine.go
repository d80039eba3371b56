package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/luxfi/geth/common/hexutil"

	"github.com/luxfi/dbtools/pkg/block"
	"github.com/luxfi/dbtools/pkg/engine"
)

// Methods exposed by the execution service.
const (
	MethodOpen     = "open"
	MethodInvoke   = "invoke"
	MethodCommit   = "write_precommit_state"
	MethodDiscard  = "remove_precommit_state"
	MethodClose    = "close"
	DefaultTimeout = 5 * time.Minute
)

var errSessionClosed = errors.New("engine session closed")

// Engine reaches an execution service over JSON-RPC.
type Engine struct {
	client *client
}

// New returns an Engine for the service at url. A zero timeout selects
// DefaultTimeout.
func New(url string, timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{client: newClient(url, timeout)}
}

type openResult struct {
	SessionID string `json:"sessionId"`
}

// OpenSession validates cfg and opens a session on the service.
func (e *Engine) OpenSession(ctx context.Context, cfg engine.Config) (engine.Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var res openResult
	if err := e.client.call(ctx, MethodOpen, cfg, &res); err != nil {
		return nil, err
	}
	return &session{client: e.client, id: res.SessionID}, nil
}

type session struct {
	client *client
	id     string
	closed bool
}

type blockParams struct {
	Height    string `json:"blockHeight"`
	Hash      string `json:"blockHash"`
	PrevHash  string `json:"prevBlockHash"`
	Timestamp string `json:"timestamp"`
}

type txParams struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type invokeParams struct {
	SessionID    string      `json:"sessionId"`
	Block        blockParams `json:"block"`
	Transactions []txParams  `json:"transactions"`
}

type invokeResult struct {
	StateRootHash hexutil.Bytes   `json:"stateRootHash"`
	Precommit     json.RawMessage `json:"precommit"`
}

type precommitParams struct {
	SessionID string `json:"sessionId"`
	Height    string `json:"blockHeight"`
	Hash      string `json:"blockHash"`
}

func (s *session) ExecuteBlock(ctx context.Context, b *engine.Block) (*engine.Precommit, error) {
	if s.closed {
		return nil, errSessionClosed
	}
	params := invokeParams{
		SessionID: s.id,
		Block: blockParams{
			Height:    hexutil.EncodeUint64(uint64(b.Height)),
			Hash:      hex.EncodeToString(b.Hash),
			PrevHash:  hex.EncodeToString(b.PrevHash),
			Timestamp: hexutil.EncodeUint64(uint64(b.Timestamp)),
		},
		Transactions: make([]txParams, 0, len(b.Transactions)),
	}
	for _, tx := range b.Transactions {
		params.Transactions = append(params.Transactions, txParams{Method: txMethod(tx), Params: tx.Raw})
	}

	var res invokeResult
	if err := s.client.call(ctx, MethodInvoke, params, &res); err != nil {
		return nil, fmt.Errorf("block %d: %w", b.Height, err)
	}
	return &engine.Precommit{
		Height:    b.Height,
		BlockHash: b.Hash,
		StateRoot: res.StateRootHash,
		Data:      res.Precommit,
	}, nil
}

func txMethod(tx *block.Transaction) string {
	if tx.Genesis {
		return "icx_genesisInvoke"
	}
	return "icx_sendTransaction"
}

func (s *session) Commit(ctx context.Context, p *engine.Precommit) error {
	return s.precommitCall(ctx, MethodCommit, p)
}

func (s *session) Discard(ctx context.Context, p *engine.Precommit) error {
	return s.precommitCall(ctx, MethodDiscard, p)
}

func (s *session) precommitCall(ctx context.Context, method string, p *engine.Precommit) error {
	if s.closed {
		return errSessionClosed
	}
	params := precommitParams{
		SessionID: s.id,
		Height:    hexutil.EncodeUint64(uint64(p.Height)),
		Hash:      hex.EncodeToString(p.BlockHash),
	}
	if err := s.client.call(ctx, method, params, nil); err != nil {
		return fmt.Errorf("block %d: %w", p.Height, err)
	}
	return nil
}

// Close ends the session. Later calls are no-ops.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.client.call(ctx, MethodClose, map[string]string{"sessionId": s.id}, nil)
}
