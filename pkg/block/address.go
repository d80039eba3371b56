package block

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const addressBodyLength = 20

// Address is an account ("hx") or contract ("cx") address.
type Address struct {
	contract bool
	body     [addressBodyLength]byte
}

// ParseAddress validates and parses an address string such as
// "hx" followed by 40 hex characters.
func ParseAddress(s string) (Address, error) {
	var a Address
	if len(s) != 2+2*addressBodyLength {
		return a, fmt.Errorf("invalid address length %q", s)
	}
	switch strings.ToLower(s[:2]) {
	case "hx":
	case "cx":
		a.contract = true
	default:
		return a, fmt.Errorf("invalid address prefix %q", s)
	}
	if _, err := hex.Decode(a.body[:], []byte(s[2:])); err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return a, nil
}

// IsContract reports whether the address belongs to a contract.
func (a Address) IsContract() bool {
	return a.contract
}

// Bytes returns the 20 byte address body.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a.body[:]...)
}

func (a Address) String() string {
	prefix := "hx"
	if a.contract {
		prefix = "cx"
	}
	return prefix + hex.EncodeToString(a.body[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
