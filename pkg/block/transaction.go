package block

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common/hexutil"
)

// Transaction is a transaction record decoded from a stored block.
type Transaction struct {
	Version     int64
	NID         int64
	TxHash      hexutil.Bytes
	TxIndex     int64
	From        Address
	To          Address
	Value       *uint256.Int
	StepLimit   *uint256.Int
	Fee         *uint256.Int // only in version 2 transactions
	Nonce       *uint256.Int // nil when absent
	Timestamp   int64        // microseconds, not the block timestamp
	Signature   []byte
	BlockHeight int64
	BlockHash   hexutil.Bytes
	DataType    string
	Data        TxData

	// Genesis is set for the genesis record of a 0.1a chain, which carries
	// account allocations instead of a sender.
	Genesis  bool
	Accounts []GenesisAccount

	// Raw is the record as stored.
	Raw json.RawMessage
}

// GenesisAccount is an allocation in the genesis transaction.
type GenesisAccount struct {
	Name    string
	Address Address
	Balance *uint256.Int
}

// DecodeTransaction decodes a raw transaction record. blockHeight, blockHash
// and txIndex are used when the record does not carry them itself; pass -1,
// nil and -1 when they are unknown.
func DecodeTransaction(raw json.RawMessage, blockHeight int64, blockHash []byte, txIndex int) (*Transaction, error) {
	f, err := parseFields(raw)
	if err != nil {
		return nil, err
	}
	if f.has("accounts") && !f.has("from") {
		return decodeGenesis(f, raw, blockHeight, blockHash, txIndex)
	}

	tx := &Transaction{Raw: raw}

	if tx.Version, err = f.int("version", 2); err != nil {
		return nil, err
	}
	if tx.NID, err = f.int("nid", 1); err != nil {
		return nil, err
	}
	if tx.From, err = f.address("from"); err != nil {
		return nil, err
	}
	if tx.To, err = f.address("to"); err != nil {
		return nil, err
	}
	if tx.Value, err = f.uint256("value", 0); err != nil {
		return nil, err
	}
	if tx.TxHash, err = txHash(f); err != nil {
		return nil, err
	}
	ts, err := f.requiredText("timestamp")
	if err != nil {
		return nil, err
	}
	if tx.Timestamp, err = ParseInt(ts); err != nil {
		return nil, invalidField("timestamp", err)
	}
	if sig, ok, err := f.text("signature"); err != nil {
		return nil, err
	} else if ok {
		if tx.Signature, err = base64.StdEncoding.DecodeString(sig); err != nil {
			return nil, invalidField("signature", err)
		}
	}
	if tx.StepLimit, err = f.uint256("stepLimit", 0); err != nil {
		return nil, err
	}
	if tx.Fee, err = f.uint256("fee", 0); err != nil {
		return nil, err
	}
	if f.has("nonce") {
		if tx.Nonce, err = f.uint256("nonce", 0); err != nil {
			return nil, err
		}
	}
	if err := tx.setPosition(f, blockHeight, blockHash, txIndex); err != nil {
		return nil, err
	}

	if dataType, ok, err := f.text("dataType"); err != nil {
		return nil, err
	} else if ok {
		tx.DataType = dataType
	}
	if tx.Data, err = DecodeCallData(tx.DataType, f["data"]); err != nil {
		return nil, err
	}

	return tx, nil
}

func decodeGenesis(f fields, raw json.RawMessage, blockHeight int64, blockHash []byte, txIndex int) (*Transaction, error) {
	tx := &Transaction{Raw: raw, Genesis: true, Value: uint256.NewInt(0), StepLimit: uint256.NewInt(0), Fee: uint256.NewInt(0)}

	var err error
	if tx.NID, err = f.int("nid", 1); err != nil {
		return nil, err
	}
	if tx.Version, err = f.int("version", 2); err != nil {
		return nil, err
	}
	if tx.Timestamp, err = f.int("timestamp", 0); err != nil {
		return nil, err
	}
	if hasTxHash(f) {
		if tx.TxHash, err = txHash(f); err != nil {
			return nil, err
		}
	}
	if err := tx.setPosition(f, blockHeight, blockHash, txIndex); err != nil {
		return nil, err
	}

	var accounts []fields
	if err := json.Unmarshal(f["accounts"], &accounts); err != nil {
		return nil, invalidField("accounts", err)
	}
	for i, acc := range accounts {
		name, _, err := acc.text("name")
		if err != nil {
			return nil, err
		}
		addr, err := acc.address("address")
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		balance, err := acc.uint256("balance", 0)
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		tx.Accounts = append(tx.Accounts, GenesisAccount{Name: name, Address: addr, Balance: balance})
	}
	return tx, nil
}

func (tx *Transaction) setPosition(f fields, blockHeight int64, blockHash []byte, txIndex int) error {
	var err error
	if tx.TxIndex, err = f.int("txIndex", int64(txIndex)); err != nil {
		return err
	}
	if tx.BlockHeight, err = f.int("blockHeight", blockHeight); err != nil {
		return err
	}
	hash, ok, err := f.bytes("blockHash")
	if err != nil {
		return err
	}
	if ok {
		tx.BlockHash = hash
	} else if blockHash != nil {
		tx.BlockHash = append([]byte(nil), blockHash...)
	}
	return nil
}

var txHashFields = []string{"txHash", "tx_hash"}

func hasTxHash(f fields) bool {
	for _, key := range txHashFields {
		if f.has(key) {
			return true
		}
	}
	return false
}

// txHash reads the transaction hash from the current or the legacy field.
func txHash(f fields) ([]byte, error) {
	for _, key := range txHashFields {
		value, ok, err := f.text(key)
		if err != nil {
			return nil, err
		}
		if !ok || value == "" {
			continue
		}
		hash, err := HexToBytes(value)
		if err != nil {
			return nil, invalidField(key, err)
		}
		return hash, nil
	}
	return nil, missingField("txHash")
}

func (f fields) address(key string) (Address, error) {
	s, err := f.requiredText(key)
	if err != nil {
		return Address{}, err
	}
	a, err := ParseAddress(s)
	if err != nil {
		return Address{}, invalidField(key, err)
	}
	return a, nil
}

func (tx *Transaction) String() string {
	items := []struct {
		key   string
		value any
	}{
		{"tx_hash", tx.TxHash},
		{"tx_index", tx.TxIndex},
		{"from", tx.From},
		{"to", tx.To},
		{"value", tx.Value},
		{"step_limit", tx.StepLimit},
		{"fee", tx.Fee},
		{"block_height", tx.BlockHeight},
		{"block_hash", tx.BlockHash},
		{"timestamp", tx.Timestamp},
		{"signature", hexutil.Bytes(tx.Signature)},
		{"nonce", tx.Nonce},
	}

	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprintf("%s=%v", item.key, display(item.value)))
	}
	return strings.Join(parts, " ")
}

func display(v any) any {
	switch v := v.(type) {
	case hexutil.Bytes:
		if v == nil {
			return "None"
		}
		return v.String()
	case *uint256.Int:
		if v == nil {
			return "None"
		}
		return v.Dec()
	default:
		return v
	}
}
