package block

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

var errNegative = errors.New("negative value")

// ParseBig converts a "0x"/"-0x" prefixed hex string or a decimal string.
func ParseBig(s string) (*big.Int, error) {
	var (
		neg    bool
		digits = s
		base   = 10
	)
	if strings.HasPrefix(digits, "-") {
		neg = true
		digits = digits[1:]
	}
	if strings.HasPrefix(digits, "0x") {
		digits = digits[2:]
		base = 16
	}
	if digits == "" || strings.ContainsAny(digits, "+-") {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if neg {
		n.Neg(n)
	}
	return n, nil
}

// ParseInt converts s like ParseBig and requires the result to fit in int64.
func ParseInt(s string) (int64, error) {
	n, err := ParseBig(s)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() {
		return 0, fmt.Errorf("integer %q out of range", s)
	}
	return n.Int64(), nil
}

// ParseUint256 converts s like ParseBig into an unsigned 256-bit integer.
func ParseUint256(s string) (*uint256.Int, error) {
	n, err := ParseBig(s)
	if err != nil {
		return nil, err
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", errNegative, s)
	}
	v, overflow := uint256.FromBig(n)
	if overflow {
		return nil, fmt.Errorf("integer %q overflows 256 bits", s)
	}
	return v, nil
}

// HexToBytes decodes a hex string with or without a "0x" prefix.
func HexToBytes(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

// fields is a JSON object whose values are decoded lazily.
type fields map[string]json.RawMessage

func parseFields(raw []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &DecodeError{Kind: ErrMalformed, Err: err}
	}
	if f == nil {
		return nil, &DecodeError{Kind: ErrMalformed, Err: errors.New("null payload")}
	}
	return f, nil
}

func (f fields) has(key string) bool {
	v, ok := f[key]
	return ok && string(v) != "null"
}

// text returns the value of key as text. JSON numbers are returned verbatim
// so that numeric fields may be stored either way.
func (f fields) text(key string) (string, bool, error) {
	if !f.has(key) {
		return "", false, nil
	}
	raw := f[key]
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", true, invalidField(key, err)
	}
	return n.String(), true, nil
}

func (f fields) requiredText(key string) (string, error) {
	s, ok, err := f.text(key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", missingField(key)
	}
	return s, nil
}

func (f fields) int(key string, def int64) (int64, error) {
	s, ok, err := f.text(key)
	if err != nil || !ok {
		return def, err
	}
	v, err := ParseInt(s)
	if err != nil {
		return 0, invalidField(key, err)
	}
	return v, nil
}

func (f fields) uint256(key string, def uint64) (*uint256.Int, error) {
	s, ok, err := f.text(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return uint256.NewInt(def), nil
	}
	v, err := ParseUint256(s)
	if err != nil {
		return nil, invalidField(key, err)
	}
	return v, nil
}

func (f fields) bytes(key string) ([]byte, bool, error) {
	s, ok, err := f.text(key)
	if err != nil || !ok {
		return nil, false, err
	}
	b, err := HexToBytes(s)
	if err != nil {
		return nil, true, invalidField(key, err)
	}
	return b, true, nil
}
