// Package block decodes blocks and transactions stored by loopchain.
package block

import (
	"encoding/json"
	"fmt"

	"github.com/luxfi/geth/common/hexutil"
)

// DefaultChannel is the commit_state entry holding the state root of a 0.1a
// block.
const DefaultChannel = "icon_dex"

// Block is a stored block decoded far enough to drive a replay. Transaction
// records are kept raw and decoded on demand.
type Block struct {
	Version   Version
	Height    int64
	Hash      hexutil.Bytes
	PrevHash  hexutil.Bytes
	Timestamp int64
	// StateRoot is the state root recorded in the block, nil when the block
	// carries none.
	StateRoot hexutil.Bytes

	Raw json.RawMessage
	txs []json.RawMessage
}

// DecodeBlock parses a stored block payload.
func DecodeBlock(raw []byte) (*Block, error) {
	f, err := parseFields(raw)
	if err != nil {
		return nil, err
	}

	versionText, err := f.requiredText("version")
	if err != nil {
		return nil, err
	}
	version, err := ParseVersion(versionText)
	if err != nil {
		return nil, err
	}

	b := &Block{Version: version, Raw: append(json.RawMessage(nil), raw...)}
	switch version {
	case V01a:
		err = b.decodeV01a(f)
	case V03:
		err = b.decodeV03(f)
	}
	if err != nil {
		return nil, err
	}

	if list := version.TransactionsField(); f.has(list) {
		if err := json.Unmarshal(f[list], &b.txs); err != nil {
			return nil, invalidField(list, err)
		}
	}
	return b, nil
}

func (b *Block) decodeV01a(f fields) error {
	var err error
	if b.Height, err = f.int("height", -1); err != nil {
		return err
	}
	if b.Timestamp, err = f.int("time_stamp", 0); err != nil {
		return err
	}
	if b.Hash, _, err = f.bytes("block_hash"); err != nil {
		return err
	}
	if b.PrevHash, _, err = f.bytes("prev_block_hash"); err != nil {
		return err
	}
	if !f.has("commit_state") {
		return nil
	}

	var commitState map[string]string
	if err := json.Unmarshal(f["commit_state"], &commitState); err != nil {
		return invalidField("commit_state", err)
	}
	root, ok := commitState[DefaultChannel]
	if !ok && len(commitState) == 1 {
		for _, v := range commitState {
			root, ok = v, true
		}
	}
	if ok && root != "" {
		if b.StateRoot, err = HexToBytes(root); err != nil {
			return invalidField("commit_state", err)
		}
	}
	return nil
}

func (b *Block) decodeV03(f fields) error {
	var err error
	if b.Height, err = f.int("height", -1); err != nil {
		return err
	}
	if b.Timestamp, err = f.int("timestamp", 0); err != nil {
		return err
	}
	if b.Hash, _, err = f.bytes("hash"); err != nil {
		return err
	}
	if b.PrevHash, _, err = f.bytes("prevHash"); err != nil {
		return err
	}
	root, ok, err := f.bytes("stateHash")
	if err != nil {
		return err
	}
	if ok && len(root) > 0 {
		b.StateRoot = root
	}
	return nil
}

// Transactions returns the raw transaction records in block order.
func (b *Block) Transactions() []json.RawMessage {
	return b.txs
}

// DecodeTransactions decodes every transaction of the block, filling in the
// block position of records that do not carry it.
func (b *Block) DecodeTransactions() ([]*Transaction, error) {
	txs := make([]*Transaction, 0, len(b.txs))
	for i, raw := range b.txs {
		tx, err := DecodeTransaction(raw, b.Height, b.Hash, i)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
