package instruction

import (
	"encoding/base64"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "bskt/pkg/domain"
	dErrors "bskt/pkg/domain-errors"
)

// =============================================================================
// Instruction Parser Test Suite
// =============================================================================

type ParseSuite struct {
	suite.Suite
}

func TestParseSuite(t *testing.T) {
	suite.Run(t, new(ParseSuite))
}

const mintJSON = `{
	"messageType": "MINT",
	"transactionId": "TX-1001",
	"beneficiary": {"account": "0x742d35cc6634c0532925a3b844bc454e4438f44e", "name": "Alice"},
	"amount": "50000.25",
	"currency": "usd",
	"valueDate": "2025-01-15",
	"bankReference": "SWIFT-REF-001"
}`

const bridgeJSON = `{
	"messageType": "MINT",
	"transactionId": "TX-1002",
	"beneficiary": {"account": "0x742d35cc6634c0532925a3b844bc454e4438f44e"},
	"amount": 100,
	"currency": "USD",
	"bankReference": "REF",
	"crossChain": {"enabled": true, "destinationChain": "Fuji", "beneficiary": "0x00000000000000000000000000000000000000bb"}
}`

const basketJSON = `{
	"messageType": "CREATE_BASKET",
	"transactionId": "TX-B-1",
	"basketName": "Euro Basket",
	"basketSymbol": "EURB",
	"basketAdmin": "0x00000000000000000000000000000000000000aa"
}`

func (s *ParseSuite) assertMalformed(err error) {
	s.Require().Error(err)
	s.ErrorIs(err, ErrMalformedInstruction)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

// =============================================================================
// MINT
// =============================================================================

func (s *ParseSuite) TestMint() {
	s.Run("valid mint is typed and normalised", func() {
		ins, err := Parse([]byte(mintJSON))
		s.Require().NoError(err)

		m, ok := ins.(*MintInstruction)
		s.Require().True(ok)
		s.Equal(KindMint, m.Kind())
		s.Equal(id.TransactionID("TX-1001"), m.ID())
		s.Equal(id.Address("0x742d35Cc6634C0532925a3b844Bc454e4438f44e"), m.Beneficiary.Account)
		s.Equal("Alice", m.Beneficiary.Name)
		s.True(decimal.RequireFromString("50000.25").Equal(m.Amount))
		s.Equal("USD", m.Currency)
		s.Equal("SWIFT-REF-001", m.BankReference)
		s.False(m.Bridges())
	})

	s.Run("numeric amount with cross chain", func() {
		ins, err := Parse([]byte(bridgeJSON))
		s.Require().NoError(err)

		m := ins.(*MintInstruction)
		s.True(m.Bridges())
		s.Equal("fuji", m.CrossChain.DestinationChain)
		s.True(decimal.NewFromInt(100).Equal(m.Amount))
	})

	s.Run("disabled cross chain is ignored", func() {
		raw := `{"messageType":"MINT","transactionId":"T","beneficiary":{"account":"0x00000000000000000000000000000000000000aa"},
			"amount":"1","currency":"USD","bankReference":"R","crossChain":{"enabled":false,"destinationChain":"","beneficiary":"0x00000000000000000000000000000000000000aa"}}`
		ins, err := Parse([]byte(raw))
		s.Require().NoError(err)
		s.False(ins.(*MintInstruction).Bridges())
	})

	s.Run("missing amount is malformed", func() {
		raw := `{"messageType":"MINT","transactionId":"T","beneficiary":{"account":"0x00000000000000000000000000000000000000aa"},"currency":"USD","bankReference":"R"}`
		_, err := Parse([]byte(raw))
		s.assertMalformed(err)
	})

	s.Run("zero amount is malformed", func() {
		raw := `{"messageType":"MINT","transactionId":"T","beneficiary":{"account":"0x00000000000000000000000000000000000000aa"},"amount":"0","currency":"USD","bankReference":"R"}`
		_, err := Parse([]byte(raw))
		s.assertMalformed(err)
	})

	s.Run("negative amount is malformed", func() {
		raw := `{"messageType":"MINT","transactionId":"T","beneficiary":{"account":"0x00000000000000000000000000000000000000aa"},"amount":"-5","currency":"USD","bankReference":"R"}`
		_, err := Parse([]byte(raw))
		s.assertMalformed(err)
	})

	s.Run("amount with an oversized exponent is malformed", func() {
		for _, amount := range []string{"1e100000000", "1e-100000000", "1e2000"} {
			raw := `{"messageType":"MINT","transactionId":"T","beneficiary":{"account":"0x00000000000000000000000000000000000000aa"},"amount":` + amount + `,"currency":"USD","bankReference":"R"}`
			var err error
			s.NotPanics(func() { _, err = Parse([]byte(raw)) }, amount)
			s.assertMalformed(err)
			s.Contains(err.Error(), "/amount: number out of range")
		}
	})

	s.Run("oversized number in any field is malformed", func() {
		raw := `{"messageType":"CREATE_BASKET","transactionId":"T","basketName":"N","basketSymbol":"S","basketAdmin":"0x00000000000000000000000000000000000000aa","extra":[1e100000000]}`
		var err error
		s.NotPanics(func() { _, err = Parse([]byte(raw)) })
		s.assertMalformed(err)
	})

	s.Run("wrong-typed amount is malformed", func() {
		raw := `{"messageType":"MINT","transactionId":"T","beneficiary":{"account":"0x00000000000000000000000000000000000000aa"},"amount":true,"currency":"USD","bankReference":"R"}`
		_, err := Parse([]byte(raw))
		s.assertMalformed(err)
	})

	s.Run("bad address is malformed", func() {
		raw := `{"messageType":"MINT","transactionId":"T","beneficiary":{"account":"0x1234"},"amount":"1","currency":"USD","bankReference":"R"}`
		_, err := Parse([]byte(raw))
		s.assertMalformed(err)
	})

	s.Run("bad checksum is malformed", func() {
		raw := `{"messageType":"MINT","transactionId":"T","beneficiary":{"account":"0x742D35cc6634c0532925a3b844bc454e4438f44e"},"amount":"1","currency":"USD","bankReference":"R"}`
		_, err := Parse([]byte(raw))
		s.assertMalformed(err)
	})

	s.Run("enabled cross chain needs a destination", func() {
		raw := `{"messageType":"MINT","transactionId":"T","beneficiary":{"account":"0x00000000000000000000000000000000000000aa"},"amount":"1","currency":"USD","bankReference":"R","crossChain":{"enabled":true}}`
		_, err := Parse([]byte(raw))
		s.assertMalformed(err)
	})
}

// =============================================================================
// CREATE_BASKET
// =============================================================================

func (s *ParseSuite) TestCreateBasket() {
	s.Run("valid basket instruction", func() {
		ins, err := Parse([]byte(basketJSON))
		s.Require().NoError(err)

		b, ok := ins.(*CreateBasketInstruction)
		s.Require().True(ok)
		s.Equal(KindCreateBasket, b.Kind())
		s.Equal("Euro Basket", b.Name)
		s.Equal("EURB", b.Symbol)
	})

	s.Run("mint fields do not satisfy basket requirements", func() {
		raw := `{"messageType":"CREATE_BASKET","transactionId":"T","amount":"1"}`
		_, err := Parse([]byte(raw))
		s.assertMalformed(err)
	})

	s.Run("zero admin is malformed", func() {
		raw := `{"messageType":"CREATE_BASKET","transactionId":"T","basketName":"N","basketSymbol":"S","basketAdmin":"0x0000000000000000000000000000000000000000"}`
		_, err := Parse([]byte(raw))
		s.assertMalformed(err)
	})
}

// =============================================================================
// Envelope and shape
// =============================================================================

func (s *ParseSuite) TestEnvelope() {
	s.Run("base64 input envelope is unwrapped", func() {
		wrapped := `{"input":"` + base64.StdEncoding.EncodeToString([]byte(basketJSON)) + `"}`
		ins, err := Parse([]byte(wrapped))
		s.Require().NoError(err)
		s.Equal(KindCreateBasket, ins.Kind())
	})

	s.Run("invalid base64 is malformed", func() {
		_, err := Parse([]byte(`{"input":"***"}`))
		s.assertMalformed(err)
	})

	s.Run("not JSON is malformed", func() {
		_, err := Parse([]byte(`MT103:20:REF`))
		s.assertMalformed(err)
	})

	s.Run("unknown message type is malformed", func() {
		_, err := Parse([]byte(`{"messageType":"BURN","transactionId":"T"}`))
		s.assertMalformed(err)
	})

	s.Run("blank transaction id is malformed", func() {
		_, err := Parse([]byte(`{"messageType":"CREATE_BASKET","transactionId":" ","basketName":"N","basketSymbol":"S","basketAdmin":"0x00000000000000000000000000000000000000aa"}`))
		s.assertMalformed(err)
	})
}

func TestSchemaCompiles(t *testing.T) {
	sch, err := compiledSchema()
	require.NoError(t, err)
	assert.NotNil(t, sch)
}
