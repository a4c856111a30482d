package instruction

import (
	"github.com/shopspring/decimal"

	id "bskt/pkg/domain"
)

// Kind discriminates instruction variants on the wire.
type Kind string

const (
	KindMint         Kind = "MINT"
	KindCreateBasket Kind = "CREATE_BASKET"
)

// Instruction is a parsed, validated instruction. The set of
// implementations is closed: *MintInstruction and *CreateBasketInstruction.
type Instruction interface {
	ID() id.TransactionID
	Kind() Kind
	isInstruction()
}

// Beneficiary is the account credited by a mint.
type Beneficiary struct {
	Account id.Address
	Name    string
}

// CrossChain requests forwarding the minted value to another ledger.
type CrossChain struct {
	DestinationChain string
	Beneficiary      id.Address
}

// MintInstruction asks for new issuance backed by a bank transfer.
type MintInstruction struct {
	TransactionID id.TransactionID
	Beneficiary   Beneficiary
	Amount        decimal.Decimal
	Currency      string
	ValueDate     string
	BankReference string
	CrossChain    *CrossChain
}

func (m *MintInstruction) ID() id.TransactionID { return m.TransactionID }
func (m *MintInstruction) Kind() Kind           { return KindMint }
func (m *MintInstruction) isInstruction()       {}

// Bridges reports whether a bridge step follows the mint.
func (m *MintInstruction) Bridges() bool { return m.CrossChain != nil }

// CreateBasketInstruction provisions a new asset and its enforcement consumer.
type CreateBasketInstruction struct {
	TransactionID id.TransactionID
	Name          string
	Symbol        string
	Admin         id.Address
}

func (c *CreateBasketInstruction) ID() id.TransactionID { return c.TransactionID }
func (c *CreateBasketInstruction) Kind() Kind           { return KindCreateBasket }
func (c *CreateBasketInstruction) isInstruction()       {}
