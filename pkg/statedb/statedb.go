// Package statedb inspects the state database produced by the execution
// engine.
package statedb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/luxfi/geth/common/hexutil"
	"golang.org/x/crypto/sha3"

	"github.com/luxfi/dbtools/pkg/database"
)

// LastBlockKey is the state database key of the last committed block.
var LastBlockKey = []byte("last_block")

// ErrNoLastBlock is returned when the state database has no last block record.
var ErrNoLastBlock = errors.New("no last block in state database")

// HashOptions select the entries covered by StateHash.
type HashOptions struct {
	Prefix  []byte
	Exclude [][]byte
}

// HashResult is the digest of a state database.
type HashResult struct {
	Hash    hexutil.Bytes
	Entries int
}

// StateHash digests every key-value pair of store in key order with
// sha3-256. Keys starting with an excluded prefix are skipped.
func StateHash(store *database.Store, opts HashOptions) (*HashResult, error) {
	h := sha3.New256()
	entries := 0

	err := store.Iterate(opts.Prefix, func(key, value []byte) error {
		for _, ex := range opts.Exclude {
			if bytes.HasPrefix(key, ex) {
				return nil
			}
		}
		h.Write(key)
		h.Write(value)
		entries++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate state database: %w", err)
	}
	return &HashResult{Hash: h.Sum(nil), Entries: entries}, nil
}

// Block is the last block record kept by the state database.
type Block struct {
	Version   byte          `json:"version"`
	Height    uint64        `json:"height"`
	Hash      hexutil.Bytes `json:"hash"`
	Timestamp uint64        `json:"timestamp"`
	PrevHash  hexutil.Bytes `json:"prevHash"`
}

const (
	hashSize        = 32
	blockRecordSize = 1 + 8 + hashSize + 8 + hashSize
)

// Bytes encodes the record: version, big-endian height, hash, big-endian
// timestamp, previous hash.
func (b *Block) Bytes() []byte {
	buf := make([]byte, blockRecordSize)
	buf[0] = b.Version
	binary.BigEndian.PutUint64(buf[1:9], b.Height)
	copy(buf[9:9+hashSize], b.Hash)
	binary.BigEndian.PutUint64(buf[9+hashSize:17+hashSize], b.Timestamp)
	copy(buf[17+hashSize:], b.PrevHash)
	return buf
}

// DecodeBlock parses a last block record.
func DecodeBlock(raw []byte) (*Block, error) {
	if len(raw) < blockRecordSize {
		return nil, fmt.Errorf("last block record too short: %d bytes", len(raw))
	}
	if raw[0] != 0 {
		return nil, fmt.Errorf("unsupported last block record version %d", raw[0])
	}
	return &Block{
		Version:   raw[0],
		Height:    binary.BigEndian.Uint64(raw[1:9]),
		Hash:      append([]byte(nil), raw[9:9+hashSize]...),
		Timestamp: binary.BigEndian.Uint64(raw[9+hashSize : 17+hashSize]),
		PrevHash:  append([]byte(nil), raw[17+hashSize:blockRecordSize]...),
	}, nil
}

// LastBlock reads the last block committed to the state database.
func LastBlock(store *database.Store) (*Block, error) {
	raw, ok, err := store.Get(LastBlockKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoLastBlock
	}
	return DecodeBlock(raw)
}
