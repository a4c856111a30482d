package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	id "bskt/pkg/domain"
)

// Workflow holds the deployment settings of the issuance workflow: contract
// addresses on the issuing ledger, destination ledgers, gas budgets and the
// reserve sources consulted before every mint.
type Workflow struct {
	Decimals     int32                  `yaml:"decimals"`
	Issuing      IssuingLedger          `yaml:"issuing"`
	Destinations map[string]Destination `yaml:"destinations"`
	Reserves     Reserves               `yaml:"reserves"`
	Gas          Gas                    `yaml:"gas"`
	// StepTimeout bounds every external call made by a run.
	StepTimeout time.Duration `yaml:"stepTimeout"`
}

// IssuingLedger lists the contracts the workflow writes to.
type IssuingLedger struct {
	StablecoinAddress      id.Address `yaml:"stablecoinAddress"`
	MintingConsumerAddress id.Address `yaml:"mintingConsumerAddress"`
	BridgeConsumerAddress  id.Address `yaml:"bridgeConsumerAddress"`
	BasketFactoryAddress   id.Address `yaml:"basketFactoryAddress"`
}

// Destination is a ledger reachable through the bridge consumer.
type Destination struct {
	ChainSelector     uint64     `yaml:"chainSelector"`
	StablecoinAddress id.Address `yaml:"stablecoinAddress"`
}

// Reserves configures the attestation fan-out.
type Reserves struct {
	Sources      []ReserveSource `yaml:"sources"`
	MinResponses int             `yaml:"minResponses"`
	Concurrency  int             `yaml:"concurrency"`
	Timeout      time.Duration   `yaml:"timeout"`
}

// ReserveSource is one independent reserve reading. URL schemes: http(s)://,
// file://, or static://<amount> for low-assurance deployments.
type ReserveSource struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// Gas budgets per consumer.
type Gas struct {
	Mint    uint64 `yaml:"mint"`
	Bridge  uint64 `yaml:"bridge"`
	Factory uint64 `yaml:"factory"`
}

// DefaultWorkflow returns the values used when the YAML omits a field.
func DefaultWorkflow() Workflow {
	return Workflow{
		Decimals: 18,
		Destinations: map[string]Destination{
			"avalanche-fuji": {ChainSelector: 14767482510784806043},
			"fuji":           {ChainSelector: 14767482510784806043},
		},
		Reserves: Reserves{
			MinResponses: 1,
			Concurrency:  4,
			Timeout:      5 * time.Second,
		},
		Gas: Gas{
			Mint:    500_000,
			Bridge:  1_000_000,
			Factory: 5_000_000,
		},
		StepTimeout: 30 * time.Second,
	}
}

// LoadWorkflow reads a YAML workflow config, applies env overrides and validates it.
func LoadWorkflow(path string) (Workflow, error) {
	cfg := DefaultWorkflow()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Workflow{}, fmt.Errorf("read workflow config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Workflow{}, fmt.Errorf("parse workflow config: %w", err)
	}
	applyWorkflowEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Workflow{}, err
	}
	return cfg, nil
}

func applyWorkflowEnv(cfg *Workflow) {
	if urls := splitList(os.Getenv("POR_API_URL")); len(urls) > 0 {
		cfg.Reserves.Sources = cfg.Reserves.Sources[:0]
		for i, u := range urls {
			cfg.Reserves.Sources = append(cfg.Reserves.Sources, ReserveSource{ID: "env-" + strconv.Itoa(i), URL: u})
		}
	}
	if v := envInt("RESERVE_MIN_RESPONSES", 0); v > 0 {
		cfg.Reserves.MinResponses = v
	}
	if v := os.Getenv("STABLECOIN_ADDRESS"); v != "" {
		cfg.Issuing.StablecoinAddress = id.Address(v)
	}
	if v := os.Getenv("MINTING_CONSUMER_ADDRESS"); v != "" {
		cfg.Issuing.MintingConsumerAddress = id.Address(v)
	}
}

// Validate normalises addresses and rejects incoherent settings.
func (w *Workflow) Validate() error {
	if w.Decimals < 0 || w.Decimals > 36 {
		return fmt.Errorf("decimals must be within [0, 36], got %d", w.Decimals)
	}
	required := []struct {
		name string
		addr *id.Address
	}{
		{"issuing.stablecoinAddress", &w.Issuing.StablecoinAddress},
		{"issuing.mintingConsumerAddress", &w.Issuing.MintingConsumerAddress},
	}
	optional := []struct {
		name string
		addr *id.Address
	}{
		{"issuing.bridgeConsumerAddress", &w.Issuing.BridgeConsumerAddress},
		{"issuing.basketFactoryAddress", &w.Issuing.BasketFactoryAddress},
	}
	for _, r := range required {
		if r.addr.IsNil() {
			return fmt.Errorf("%s is required", r.name)
		}
	}
	for _, r := range append(required, optional...) {
		if r.addr.IsNil() {
			continue
		}
		parsed, err := id.ParseAddress(string(*r.addr))
		if err != nil {
			return fmt.Errorf("%s: %w", r.name, err)
		}
		*r.addr = parsed
	}
	if len(w.Reserves.Sources) == 0 {
		return fmt.Errorf("reserves.sources must list at least one source")
	}
	if w.Reserves.MinResponses < 1 || w.Reserves.MinResponses > len(w.Reserves.Sources) {
		return fmt.Errorf("reserves.minResponses must be within [1, %d]", len(w.Reserves.Sources))
	}
	normalized := make(map[string]Destination, len(w.Destinations))
	for name, d := range w.Destinations {
		if d.ChainSelector == 0 {
			return fmt.Errorf("destinations.%s.chainSelector is required", name)
		}
		normalized[strings.ToLower(name)] = d
	}
	w.Destinations = normalized
	if w.StepTimeout <= 0 {
		return fmt.Errorf("stepTimeout must be positive")
	}
	return nil
}

// SelectorFor resolves a destination chain name case-insensitively.
func (w Workflow) SelectorFor(destination string) (uint64, bool) {
	d, ok := w.Destinations[strings.ToLower(destination)]
	return d.ChainSelector, ok
}
