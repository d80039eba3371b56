package block

// Version is the block serialization format.
type Version int

const (
	V01a Version = iota + 1
	V03
)

// ParseVersion maps the version string stored in a block to a Version.
func ParseVersion(s string) (Version, error) {
	switch s {
	case "0.1a":
		return V01a, nil
	case "0.3":
		return V03, nil
	default:
		return 0, &DecodeError{Kind: ErrUnsupportedVersion, Version: s}
	}
}

func (v Version) String() string {
	switch v {
	case V01a:
		return "0.1a"
	case V03:
		return "0.3"
	default:
		return "unknown"
	}
}

// TransactionsField is the name of the field holding the transaction list.
func (v Version) TransactionsField() string {
	switch v {
	case V01a:
		return "confirmed_transaction_list"
	case V03:
		return "transactions"
	default:
		return ""
	}
}
