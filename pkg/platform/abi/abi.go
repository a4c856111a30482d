// Package abi encodes and decodes the 32-byte word layout used by ledger
// calldata, reports and event data. Only the static types and the
// dynamic string type are supported.
package abi

import (
	"errors"
	"math/big"

	id "bskt/pkg/domain"
)

// WordSize is the width of one ABI slot.
const WordSize = 32

var (
	ErrOverflow  = errors.New("abi: value does not fit in 256 bits")
	ErrNegative  = errors.New("abi: negative value for unsigned type")
	ErrTruncated = errors.New("abi: data shorter than declared layout")
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Uint256 encodes v as a big-endian unsigned word.
func Uint256(v *big.Int) ([WordSize]byte, error) {
	var w [WordSize]byte
	if v == nil {
		return w, nil
	}
	if v.Sign() < 0 {
		return w, ErrNegative
	}
	if v.Cmp(maxUint256) > 0 {
		return w, ErrOverflow
	}
	v.FillBytes(w[:])
	return w, nil
}

// Uint64 encodes v right-aligned in a word.
func Uint64(v uint64) [WordSize]byte {
	var w [WordSize]byte
	new(big.Int).SetUint64(v).FillBytes(w[:])
	return w
}

// Uint8 encodes v right-aligned in a word.
func Uint8(v uint8) [WordSize]byte {
	var w [WordSize]byte
	w[WordSize-1] = v
	return w
}

// Address encodes a left-padded address word.
func Address(a id.Address) [WordSize]byte {
	return a.Word()
}

// Bytes32 right-pads or truncates b to a fixed 32-byte field.
func Bytes32(b []byte) [WordSize]byte {
	var w [WordSize]byte
	copy(w[:], b)
	return w
}

// Concat joins words into one buffer.
func Concat(words ...[WordSize]byte) []byte {
	out := make([]byte, 0, len(words)*WordSize)
	for _, w := range words {
		out = append(out, w[:]...)
	}
	return out
}

// Word returns the i-th word of data.
func Word(data []byte, i int) ([WordSize]byte, error) {
	var w [WordSize]byte
	start := i * WordSize
	if i < 0 || start+WordSize > len(data) {
		return w, ErrTruncated
	}
	copy(w[:], data[start:start+WordSize])
	return w, nil
}

// Arg is one entry of a mixed static/dynamic tuple. Exactly one of Static
// or String is meaningful, selected by Dynamic.
type Arg struct {
	Static  [WordSize]byte
	String  string
	Dynamic bool
}

// StaticArg wraps a static word.
func StaticArg(w [WordSize]byte) Arg { return Arg{Static: w} }

// StringArg wraps a dynamic string.
func StringArg(s string) Arg { return Arg{String: s, Dynamic: true} }

// EncodeTuple lays out args with heads first and dynamic tails after, the
// standard ABI tuple layout.
func EncodeTuple(args ...Arg) []byte {
	head := make([]byte, 0, len(args)*WordSize)
	var tail []byte
	headLen := len(args) * WordSize
	for _, a := range args {
		if !a.Dynamic {
			head = append(head, a.Static[:]...)
			continue
		}
		off := Uint64(uint64(headLen + len(tail)))
		head = append(head, off[:]...)
		tail = append(tail, encodeString(a.String)...)
	}
	return append(head, tail...)
}

func encodeString(s string) []byte {
	length := Uint64(uint64(len(s)))
	padded := (len(s) + WordSize - 1) / WordSize * WordSize
	out := make([]byte, WordSize+padded)
	copy(out, length[:])
	copy(out[WordSize:], s)
	return out
}

// DecodeString reads the dynamic string whose offset sits in head slot i.
func DecodeString(data []byte, i int) (string, error) {
	offWord, err := Word(data, i)
	if err != nil {
		return "", err
	}
	off := new(big.Int).SetBytes(offWord[:])
	if !off.IsInt64() || off.Int64()+WordSize > int64(len(data)) {
		return "", ErrTruncated
	}
	start := int(off.Int64())
	length := new(big.Int).SetBytes(data[start : start+WordSize])
	if !length.IsInt64() || int64(start+WordSize)+length.Int64() > int64(len(data)) {
		return "", ErrTruncated
	}
	n := int(length.Int64())
	return string(data[start+WordSize : start+WordSize+n]), nil
}

// BigInt decodes an unsigned word.
func BigInt(w [WordSize]byte) *big.Int {
	return new(big.Int).SetBytes(w[:])
}
