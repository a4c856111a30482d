// Package instruction decodes and validates incoming bank instructions.
//
// Validation runs in two passes. The JSON Schema pass checks shape and
// required fields per messageType; the semantic pass parses amounts,
// normalises addresses and builds the typed instruction. Any failure is
// reported as ErrMalformedInstruction and is terminal.
package instruction

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	id "bskt/pkg/domain"
	dErrors "bskt/pkg/domain-errors"
)

// ErrMalformedInstruction marks any parse or validation failure.
var ErrMalformedInstruction = errors.New("malformed instruction")

//go:embed instruction.schema.json
var schemaSource string

const schemaURL = "https://bskt.local/schemas/instruction.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, strings.NewReader(schemaSource)); err != nil {
			schemaErr = fmt.Errorf("instruction schema load failed: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

type wireBeneficiary struct {
	Account string `json:"account"`
	Name    string `json:"name"`
}

type wireCrossChain struct {
	Enabled          bool   `json:"enabled"`
	DestinationChain string `json:"destinationChain"`
	Beneficiary      string `json:"beneficiary"`
}

type wireInstruction struct {
	MessageType   Kind             `json:"messageType"`
	TransactionID string           `json:"transactionId"`
	Beneficiary   *wireBeneficiary `json:"beneficiary"`
	Amount        json.RawMessage  `json:"amount"`
	Currency      string           `json:"currency"`
	ValueDate     string           `json:"valueDate"`
	BankReference string           `json:"bankReference"`
	CrossChain    *wireCrossChain  `json:"crossChain"`
	BasketName    string           `json:"basketName"`
	BasketSymbol  string           `json:"basketSymbol"`
	BasketAdmin   string           `json:"basketAdmin"`
}

type triggerEnvelope struct {
	Input *string `json:"input"`
}

// Parse decodes raw into a typed Instruction. It makes no external calls.
func Parse(raw []byte) (Instruction, error) {
	raw, err := unwrapTrigger(raw)
	if err != nil {
		return nil, err
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "instruction schema unavailable")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, malformed("payload is not valid JSON")
	}
	if err := checkNumbers(doc, ""); err != nil {
		return nil, err
	}
	if err := sch.Validate(doc); err != nil {
		return nil, malformed(schemaDetail(err))
	}

	var w wireInstruction
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, malformed("payload does not match instruction layout")
	}

	txID, err := id.ParseTransactionID(w.TransactionID)
	if err != nil {
		return nil, malformed(dErrors.Message(err))
	}

	switch w.MessageType {
	case KindMint:
		return parseMint(txID, &w)
	case KindCreateBasket:
		return parseCreateBasket(txID, &w)
	default:
		return nil, malformed("unknown messageType " + string(w.MessageType))
	}
}

func parseMint(txID id.TransactionID, w *wireInstruction) (*MintInstruction, error) {
	account, err := id.ParseAddress(w.Beneficiary.Account)
	if err != nil {
		return nil, malformed("beneficiary.account: " + dErrors.Message(err))
	}
	amount, err := parseAmount(w.Amount)
	if err != nil {
		return nil, err
	}
	bankRef := strings.TrimSpace(w.BankReference)
	if bankRef == "" {
		return nil, malformed("bankReference must not be blank")
	}

	m := &MintInstruction{
		TransactionID: txID,
		Beneficiary: Beneficiary{
			Account: account,
			Name:    strings.TrimSpace(w.Beneficiary.Name),
		},
		Amount:        amount,
		Currency:      strings.ToUpper(w.Currency),
		ValueDate:     w.ValueDate,
		BankReference: bankRef,
	}

	if w.CrossChain != nil && w.CrossChain.Enabled {
		dest := strings.TrimSpace(w.CrossChain.DestinationChain)
		if dest == "" {
			return nil, malformed("crossChain.destinationChain must not be blank")
		}
		beneficiary, err := id.ParseAddress(w.CrossChain.Beneficiary)
		if err != nil {
			return nil, malformed("crossChain.beneficiary: " + dErrors.Message(err))
		}
		m.CrossChain = &CrossChain{
			DestinationChain: strings.ToLower(dest),
			Beneficiary:      beneficiary,
		}
	}
	return m, nil
}

func parseCreateBasket(txID id.TransactionID, w *wireInstruction) (*CreateBasketInstruction, error) {
	name := strings.TrimSpace(w.BasketName)
	symbol := strings.TrimSpace(w.BasketSymbol)
	if name == "" || symbol == "" {
		return nil, malformed("basketName and basketSymbol must not be blank")
	}
	admin, err := id.ParseAddress(w.BasketAdmin)
	if err != nil {
		return nil, malformed("basketAdmin: " + dErrors.Message(err))
	}
	if admin == id.ZeroAddress {
		return nil, malformed("basketAdmin must not be the zero address")
	}
	return &CreateBasketInstruction{
		TransactionID: txID,
		Name:          name,
		Symbol:        symbol,
		Admin:         admin,
	}, nil
}

// parseAmount accepts a JSON string or number and requires a positive value.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, malformed("amount is not a decimal number")
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, malformed("amount must be greater than zero")
	}
	return amount, nil
}

// maxExponent bounds the decimal exponent of any JSON number in a payload.
const maxExponent = 1000

// checkNumbers rejects JSON numbers that cannot be held as a decimal with a
// bounded exponent. Schema validation converts numbers to big.Rat and must
// not see them.
func checkNumbers(v any, path string) error {
	switch t := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(t.String())
		if err != nil || d.Exponent() > maxExponent || d.Exponent() < -maxExponent {
			return malformed(pathOrRoot(path) + ": number out of range")
		}
	case map[string]any:
		for k, child := range t {
			if err := checkNumbers(child, path+"/"+k); err != nil {
				return err
			}
		}
	case []any:
		for i, child := range t {
			if err := checkNumbers(child, fmt.Sprintf("%s/%d", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

// unwrapTrigger accepts the {"input": "<base64>"} trigger envelope and
// returns the decoded instruction bytes. Other payloads pass through.
func unwrapTrigger(raw []byte) ([]byte, error) {
	var env triggerEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Input == nil {
		return raw, nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err == nil {
		if _, ok := probe["messageType"]; ok {
			return raw, nil
		}
	}
	decoded, err := base64.StdEncoding.DecodeString(*env.Input)
	if err != nil {
		return nil, malformed("input envelope is not valid base64")
	}
	if len(bytes.TrimSpace(decoded)) == 0 {
		return nil, malformed("input envelope is empty")
	}
	return decoded, nil
}

func malformed(detail string) error {
	return dErrors.Wrap(fmt.Errorf("%w: %s", ErrMalformedInstruction, detail), dErrors.CodeValidation, detail)
}

func schemaDetail(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	return fmt.Sprintf("%s: %s", pathOrRoot(leaf.InstanceLocation), leaf.Message)
}
