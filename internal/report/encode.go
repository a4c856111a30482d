package report

import (
	"fmt"
	"math/big"

	id "bskt/pkg/domain"
	"bskt/pkg/platform/abi"
	"bskt/pkg/platform/keccak"
)

// MintTag is the instruction-type tag leading every mint report.
const MintTag uint8 = 1

var createBasketSelector = keccak.Selector("createBasket(string,string,address)")

// Mint is an issuance instruction for the minting consumer.
type Mint struct {
	Recipient     id.Address
	Amount        *big.Int
	BankReference string
}

// BridgeTransfer forwards minted value to a destination ledger.
type BridgeTransfer struct {
	DestinationSelector uint64
	Sender              id.Address
	Beneficiary         id.Address
	Amount              *big.Int
	BankReference       string
}

// EncodeMint lays out (uint8 tag, address recipient, uint256 amount, bytes32 bankRef).
func EncodeMint(m Mint) ([]byte, error) {
	amount, err := abi.Uint256(m.Amount)
	if err != nil {
		return nil, fmt.Errorf("encode mint amount: %w", err)
	}
	return abi.Concat(
		abi.Uint8(MintTag),
		abi.Address(m.Recipient),
		amount,
		BankReference(m.BankReference),
	), nil
}

// EncodeBridge lays out (uint64 destSelector, address sender, address
// beneficiary, uint256 amount, bytes32 bankRef). The bridge consumer
// accepts only one report type, so no tag is carried.
func EncodeBridge(b BridgeTransfer) ([]byte, error) {
	amount, err := abi.Uint256(b.Amount)
	if err != nil {
		return nil, fmt.Errorf("encode bridge amount: %w", err)
	}
	return abi.Concat(
		abi.Uint64(b.DestinationSelector),
		abi.Address(b.Sender),
		abi.Address(b.Beneficiary),
		amount,
		BankReference(b.BankReference),
	), nil
}

// EncodeCreateBasket builds createBasket(string,string,address) calldata.
func EncodeCreateBasket(name, symbol string, admin id.Address) []byte {
	args := abi.EncodeTuple(
		abi.StringArg(name),
		abi.StringArg(symbol),
		abi.StaticArg(abi.Address(admin)),
	)
	out := make([]byte, 0, len(createBasketSelector)+len(args))
	out = append(out, createBasketSelector[:]...)
	return append(out, args...)
}

// BankReference packs the UTF-8 reference into a fixed 32-byte field,
// zero padded on the right or truncated.
func BankReference(ref string) [32]byte {
	return abi.Bytes32([]byte(ref))
}
