// Package reader answers block and transaction result queries against a
// loopchain block store.
package reader

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/luxfi/dbtools/pkg/block"
	"github.com/luxfi/dbtools/pkg/database"
	"github.com/luxfi/dbtools/pkg/keys"
)

var (
	// ErrNotOpen is returned by queries issued before Open or after Close.
	ErrNotOpen = errors.New("block reader not open")
	// ErrNotFound is returned when a requested key is absent.
	ErrNotFound = errors.New("not found")
)

// hashLength is the size of a raw block hash.
const hashLength = 32

// Reader reads blocks from a block store. It holds no state besides the
// store handle.
type Reader struct {
	opts  database.Options
	store *database.Store
}

// New creates a closed reader. opts select the store backend; the store is
// always opened read-only.
func New(opts database.Options) *Reader {
	opts.Writable = false
	return &Reader{opts: opts}
}

// Open opens the block store at path, closing any store already open.
func (r *Reader) Open(path string) error {
	if err := r.Close(); err != nil {
		return err
	}
	store, err := database.Open(path, r.opts)
	if err != nil {
		return err
	}
	r.store = store
	return nil
}

// Close releases the store. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.store == nil {
		return nil
	}
	store := r.store
	r.store = nil
	return store.Close()
}

// LastBlock returns the chain head.
func (r *Reader) LastBlock() (*block.Block, error) {
	if r.store == nil {
		return nil, ErrNotOpen
	}
	hashKey, err := r.get(keys.LastBlockKey())
	if err != nil {
		return nil, fmt.Errorf("last block hash: %w", err)
	}
	return r.blockAt(hashKey)
}

// HashByHeight returns the hash key stored for height, as stored.
func (r *Reader) HashByHeight(height uint64) ([]byte, error) {
	if r.store == nil {
		return nil, ErrNotOpen
	}
	hashKey, err := r.get(keys.HeightKey(height))
	if err != nil {
		return nil, fmt.Errorf("block height %d: %w", height, err)
	}
	return hashKey, nil
}

// BlockByHeight returns the block at height.
func (r *Reader) BlockByHeight(height uint64) (*block.Block, error) {
	hashKey, err := r.HashByHeight(height)
	if err != nil {
		return nil, err
	}
	b, err := r.blockAt(hashKey)
	if err != nil {
		return nil, fmt.Errorf("block height %d: %w", height, err)
	}
	return b, nil
}

// BlockByHash returns the block with the given hash.
func (r *Reader) BlockByHash(hash []byte) (*block.Block, error) {
	if r.store == nil {
		return nil, ErrNotOpen
	}
	raw, err := r.get(keys.HashKey(hash))
	if err != nil {
		return nil, fmt.Errorf("block hash %x: %w", hash, err)
	}
	return decode(raw, keys.HashKey(hash))
}

// TransactionResult is an execution result record. Its schema belongs to the
// execution engine; only the common envelope fields are decoded.
type TransactionResult struct {
	BlockHash   string          `json:"block_hash,omitempty"`
	BlockHeight json.RawMessage `json:"block_height,omitempty"`
	TxIndex     json.RawMessage `json:"tx_index,omitempty"`
	Transaction json.RawMessage `json:"transaction,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// TransactionResultByHash returns the execution result of a transaction.
// Results are keyed by hex text; a "0x" prefixed key is tried as well.
func (r *Reader) TransactionResultByHash(txHash []byte) (*TransactionResult, error) {
	if r.store == nil {
		return nil, ErrNotOpen
	}
	key := keys.TxResultKey(txHash)
	raw, err := r.get(key)
	if errors.Is(err, ErrNotFound) {
		raw, err = r.get(append([]byte("0x"), key...))
	}
	if err != nil {
		return nil, fmt.Errorf("transaction result %x: %w", txHash, err)
	}

	result := &TransactionResult{Raw: raw}
	if err := json.Unmarshal(raw, result); err != nil {
		return nil, fmt.Errorf("transaction result %x: %w", txHash, &block.DecodeError{Kind: block.ErrMalformed, Err: err})
	}
	return result, nil
}

// blockAt loads a block through a hash value taken from an index key. Index
// values normally hold the hex text key; raw hashes are accepted too.
func (r *Reader) blockAt(hashKey []byte) (*block.Block, error) {
	raw, err := r.get(hashKey)
	if errors.Is(err, ErrNotFound) && len(hashKey) == hashLength {
		hashKey = keys.HashKey(hashKey)
		raw, err = r.get(hashKey)
	}
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", printable(hashKey), err)
	}
	return decode(raw, hashKey)
}

func (r *Reader) get(key []byte) ([]byte, error) {
	value, ok, err := r.store.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok || len(value) == 0 {
		return nil, ErrNotFound
	}
	return value, nil
}

func decode(raw, hashKey []byte) (*block.Block, error) {
	b, err := block.DecodeBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("decode block %s: %w", printable(hashKey), err)
	}
	return b, nil
}

func printable(key []byte) string {
	for _, c := range key {
		if c < 0x20 || c > 0x7e {
			return hex.EncodeToString(key)
		}
	}
	return string(key)
}
