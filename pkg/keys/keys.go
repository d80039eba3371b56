// Package keys derives the byte keys used by the loopchain block store.
package keys

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
)

// HeightWidth is the width of the big-endian height suffix in height keys.
const HeightWidth = 12

var (
	lastBlockKey   = []byte("last_block_key")
	blockHeightKey = []byte("block_height_key")
)

// LastBlockKey returns the sentinel key holding the hash of the chain head.
func LastBlockKey() []byte {
	return append([]byte(nil), lastBlockKey...)
}

// HeightKey returns the key mapping a block height to its hash.
// Keys sort in ascending height order.
func HeightKey(height uint64) []byte {
	key := make([]byte, len(blockHeightKey)+HeightWidth)
	copy(key, blockHeightKey)
	binary.BigEndian.PutUint64(key[len(key)-8:], height)
	return key
}

// HeightKeyPrefix returns the prefix shared by all height keys.
func HeightKeyPrefix() []byte {
	return append([]byte(nil), blockHeightKey...)
}

// HashKey returns the key under which a block is stored: the lowercase hex
// text of its hash, not the raw bytes.
func HashKey(hash []byte) []byte {
	return []byte(hex.EncodeToString(hash))
}

// TxResultKey returns the key of a transaction result record.
func TxResultKey(txHash []byte) []byte {
	return []byte(hex.EncodeToString(txHash))
}

// HeightFromKey is the inverse of HeightKey. ok is false when key is not a
// height key or the height does not fit in 64 bits.
func HeightFromKey(key []byte) (height uint64, ok bool) {
	if len(key) != len(blockHeightKey)+HeightWidth || !bytes.HasPrefix(key, blockHeightKey) {
		return 0, false
	}
	suffix := key[len(blockHeightKey):]
	for _, b := range suffix[:HeightWidth-8] {
		if b != 0 {
			return 0, false
		}
	}
	return binary.BigEndian.Uint64(suffix[HeightWidth-8:]), true
}
