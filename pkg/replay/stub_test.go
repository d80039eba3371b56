package replay_test

import (
	"context"
	"errors"

	"github.com/luxfi/dbtools/pkg/chaintest"
	"github.com/luxfi/dbtools/pkg/engine"
)

// stubEngine returns the recorded state root for every height except those
// listed in wrong, and records what the driver asked for.
type stubEngine struct {
	wrong     map[int64]bool
	failAt    int64
	openErr   error
	opened    *engine.Config
	executed  []int64
	committed []int64
	discarded []int64
	txCounts  []int
	closed    int
}

func newStubEngine() *stubEngine {
	return &stubEngine{wrong: map[int64]bool{}, failAt: -1}
}

func (e *stubEngine) OpenSession(_ context.Context, cfg engine.Config) (engine.Session, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.opened = &cfg
	return &stubSession{e}, nil
}

type stubSession struct {
	e *stubEngine
}

var errExecute = errors.New("engine exploded")

func (s *stubSession) ExecuteBlock(_ context.Context, b *engine.Block) (*engine.Precommit, error) {
	if b.Height == s.e.failAt {
		return nil, errExecute
	}
	s.e.executed = append(s.e.executed, b.Height)
	s.e.txCounts = append(s.e.txCounts, len(b.Transactions))

	root := chaintest.StateRoot(uint64(b.Height))
	if s.e.wrong[b.Height] {
		root = chaintest.StateRoot(uint64(b.Height) + 1000)
	}
	return &engine.Precommit{
		Height:    b.Height,
		BlockHash: b.Hash,
		StateRoot: root,
		Data:      []byte(`{"accounts":1}`),
	}, nil
}

func (s *stubSession) Commit(_ context.Context, p *engine.Precommit) error {
	s.e.committed = append(s.e.committed, p.Height)
	return nil
}

func (s *stubSession) Discard(_ context.Context, p *engine.Precommit) error {
	s.e.discarded = append(s.e.discarded, p.Height)
	return nil
}

func (s *stubSession) Close() error {
	s.e.closed++
	return nil
}
