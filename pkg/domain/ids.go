package domain

import (
	"encoding/hex"
	"strings"
	"unicode"
	"unicode/utf8"

	dErrors "bskt/pkg/domain-errors"
	"bskt/pkg/platform/keccak"
)

const maxTransactionIDLength = 128

// TransactionID is the caller-supplied correlation key of one instruction.
// It is carried unchanged through every step of a run.
type TransactionID string

// ParseTransactionID validates a caller-supplied transaction id.
func ParseTransactionID(s string) (TransactionID, error) {
	if s == "" || strings.TrimSpace(s) != s {
		return "", dErrors.New(dErrors.CodeInvalidInput, "transactionId must be non-empty without surrounding whitespace")
	}
	if !utf8.ValidString(s) || len(s) > maxTransactionIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "transactionId must be valid UTF-8 of at most 128 bytes")
	}
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "transactionId contains non-printable characters")
		}
	}
	return TransactionID(s), nil
}

func (t TransactionID) String() string { return string(t) }

func (t TransactionID) IsNil() bool { return t == "" }

// Address is a 20-byte ledger account in EIP-55 checksum form.
type Address string

// ZeroAddress is the all-zero account.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ParseAddress validates a 0x-prefixed hex address and returns its checksum form.
// All-lower or all-upper input is accepted as-is; mixed case must carry a valid checksum.
func ParseAddress(s string) (Address, error) {
	if len(s) != 42 || !(strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be 0x followed by 40 hex characters")
	}
	body := s[2:]
	raw, err := hex.DecodeString(body)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be 0x followed by 40 hex characters")
	}
	var b [20]byte
	copy(b[:], raw)
	addr := AddressFromBytes(b)
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && string(addr)[2:] != body {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address has an invalid checksum")
	}
	return addr, nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes renders b in checksum form.
func AddressFromBytes(b [20]byte) Address {
	lower := hex.EncodeToString(b[:])
	hash := keccak.Sum256([]byte(lower))
	out := make([]byte, 0, 42)
	out = append(out, '0', 'x')
	for i := 0; i < len(lower); i++ {
		c := lower[i]
		nibble := hash[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if c >= 'a' && c <= 'f' && nibble&0x0f >= 8 {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return Address(out)
}

// AddressFromWord extracts the low 20 bytes of a 32-byte ABI word.
func AddressFromWord(word [32]byte) Address {
	var b [20]byte
	copy(b[:], word[12:])
	return AddressFromBytes(b)
}

// Bytes returns the raw 20 bytes. The zero value maps to the zero account.
func (a Address) Bytes() [20]byte {
	var out [20]byte
	if len(a) != 42 {
		return out
	}
	raw, err := hex.DecodeString(string(a)[2:])
	if err != nil {
		return out
	}
	copy(out[:], raw)
	return out
}

// Word returns the address left-padded to a 32-byte ABI word.
func (a Address) Word() [32]byte {
	var w [32]byte
	b := a.Bytes()
	copy(w[12:], b[:])
	return w
}

// Equal compares addresses case-insensitively.
func (a Address) Equal(other Address) bool {
	return strings.EqualFold(string(a), string(other))
}

func (a Address) String() string { return string(a) }

func (a Address) IsNil() bool { return a == "" }

// TxHash is a 32-byte ledger transaction hash in lower-case 0x hex.
type TxHash string

// ParseTxHash validates a 0x-prefixed 32-byte hex hash.
func ParseTxHash(s string) (TxHash, error) {
	if len(s) != 66 || !strings.HasPrefix(s, "0x") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "transaction hash must be 0x followed by 64 hex characters")
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "transaction hash must be 0x followed by 64 hex characters")
	}
	return TxHash(strings.ToLower(s)), nil
}

// TxHashFromBytes renders a 32-byte hash.
func TxHashFromBytes(b [32]byte) TxHash {
	return TxHash("0x" + hex.EncodeToString(b[:]))
}

func (h TxHash) String() string { return string(h) }

func (h TxHash) IsNil() bool { return h == "" }
