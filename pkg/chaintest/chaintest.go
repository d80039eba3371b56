// Package chaintest writes synthetic loopchain block stores for tests.
package chaintest

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/luxfi/dbtools/pkg/block"
	"github.com/luxfi/dbtools/pkg/database"
	"github.com/luxfi/dbtools/pkg/keys"
	"golang.org/x/crypto/sha3"
)

const (
	Sender   = "hx0000000000000000000000000000000000000001"
	Receiver = "cx0000000000000000000000000000000000000002"
)

// Block describes one synthetic block.
type Block struct {
	Version   block.Version
	Height    uint64
	Hash      []byte
	PrevHash  []byte
	StateRoot []byte
	Txs       []map[string]any
}

// NewBlock returns a block with txCount transfer transactions and the
// deterministic StateRoot(height).
func NewBlock(version block.Version, height uint64, txCount int) *Block {
	b := &Block{
		Version:   version,
		Height:    height,
		Hash:      BlockHash(height),
		StateRoot: StateRoot(height),
	}
	if height > 0 {
		b.PrevHash = BlockHash(height - 1)
	}
	for i := 0; i < txCount; i++ {
		b.Txs = append(b.Txs, Transaction(version, height, i))
	}
	return b
}

// Chain returns blocks for heights [0, n).
func Chain(version block.Version, n int, txsPerBlock int) []*Block {
	blocks := make([]*Block, n)
	for i := range blocks {
		blocks[i] = NewBlock(version, uint64(i), txsPerBlock)
	}
	return blocks
}

// BlockHash is the synthetic hash of the block at height.
func BlockHash(height uint64) []byte {
	return digest("block", height, 0)
}

// StateRoot is the synthetic state root recorded at height.
func StateRoot(height uint64) []byte {
	return digest("state", height, 0)
}

// TxHash is the synthetic hash of transaction index of the block at height.
func TxHash(height uint64, index int) []byte {
	return digest("tx", height, uint64(index))
}

func digest(kind string, a, b uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf, a)
	binary.BigEndian.PutUint64(buf[8:], b)
	h := sha3.New256()
	h.Write([]byte(kind))
	h.Write(buf)
	return h.Sum(nil)
}

// Transaction builds a transaction record in the layout used by version.
func Transaction(version block.Version, height uint64, index int) map[string]any {
	hash := TxHash(height, index)
	sig := base64.StdEncoding.EncodeToString(hash[:8])
	if version == block.V01a {
		return map[string]any{
			"from":      Sender,
			"to":        Receiver,
			"value":     fmt.Sprintf("0x%x", index+1),
			"fee":       "0x2386f26fc10000",
			"timestamp": fmt.Sprintf("%d", 1519709385120909+height),
			"tx_hash":   hex.EncodeToString(hash),
			"signature": sig,
			"method":    "icx_sendTransaction",
		}
	}
	return map[string]any{
		"version":   "0x3",
		"from":      Sender,
		"to":        Receiver,
		"value":     fmt.Sprintf("0x%x", index+1),
		"stepLimit": "0x3000000",
		"timestamp": fmt.Sprintf("0x%x", 1519709385120909+height),
		"nid":       "0x1",
		"nonce":     fmt.Sprintf("0x%x", index),
		"signature": sig,
		"txHash":    "0x" + hex.EncodeToString(hash),
		"dataType":  "call",
		"data": map[string]any{
			"method": "transfer",
			"params": map[string]any{"_to": Sender, "_value": "0x1"},
		},
	}
}

// Payload serializes the block the way loopchain stores it.
func (b *Block) Payload() ([]byte, error) {
	txs := make([]any, len(b.Txs))
	for i, tx := range b.Txs {
		txs[i] = tx
	}

	switch b.Version {
	case block.V01a:
		payload := map[string]any{
			"version":                    "0.1a",
			"height":                     b.Height,
			"time_stamp":                 1519709385120909 + b.Height,
			"block_hash":                 hex.EncodeToString(b.Hash),
			"prev_block_hash":            hex.EncodeToString(b.PrevHash),
			"confirmed_transaction_list": txs,
			"peer_id":                    Sender,
		}
		if b.StateRoot != nil {
			payload["commit_state"] = map[string]string{block.DefaultChannel: hex.EncodeToString(b.StateRoot)}
		}
		return json.Marshal(payload)
	case block.V03:
		payload := map[string]any{
			"version":      "0.3",
			"height":       fmt.Sprintf("0x%x", b.Height),
			"timestamp":    fmt.Sprintf("0x%x", 1519709385120909+b.Height),
			"hash":         "0x" + hex.EncodeToString(b.Hash),
			"prevHash":     "0x" + hex.EncodeToString(b.PrevHash),
			"transactions": txs,
			"leader":       Sender,
		}
		if b.StateRoot != nil {
			payload["stateHash"] = "0x" + hex.EncodeToString(b.StateRoot)
		}
		return json.Marshal(payload)
	default:
		return nil, fmt.Errorf("unsupported version %v", b.Version)
	}
}

// Write creates a LevelDB block store at path holding blocks. The highest
// block becomes the last block.
func Write(path string, blocks ...*Block) error {
	store, err := database.Open(path, database.Options{Type: database.LevelDB, Writable: true})
	if err != nil {
		return err
	}
	defer store.Close()

	var last *Block
	for _, b := range blocks {
		payload, err := b.Payload()
		if err != nil {
			return err
		}
		if err := store.Put(keys.HashKey(b.Hash), payload); err != nil {
			return err
		}
		if err := store.Put(keys.HeightKey(b.Height), keys.HashKey(b.Hash)); err != nil {
			return err
		}
		for i := range b.Txs {
			if err := writeTxResult(store, b, i); err != nil {
				return err
			}
		}
		if last == nil || b.Height > last.Height {
			last = b
		}
	}

	if last != nil {
		if err := store.Put(keys.LastBlockKey(), keys.HashKey(last.Hash)); err != nil {
			return err
		}
	}
	return nil
}

// WriteRaw stores an arbitrary payload at height, for corrupt block tests.
func WriteRaw(path string, height uint64, hash []byte, payload []byte) error {
	store, err := database.Open(path, database.Options{Type: database.LevelDB, Writable: true})
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Put(keys.HashKey(hash), payload); err != nil {
		return err
	}
	return store.Put(keys.HeightKey(height), keys.HashKey(hash))
}

func writeTxResult(store *database.Store, b *Block, index int) error {
	hash := TxHash(b.Height, index)
	record := map[string]any{
		"block_hash":   hex.EncodeToString(b.Hash),
		"block_height": b.Height,
		"tx_index":     fmt.Sprintf("0x%x", index),
		"transaction":  b.Txs[index],
		"result": map[string]any{
			"status":    "0x1",
			"txHash":    "0x" + hex.EncodeToString(hash),
			"stepUsed":  "0x186a0",
			"stepPrice": "0x2540be400",
		},
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return store.Put(keys.TxResultKey(hash), raw)
}
