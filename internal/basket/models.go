package basket

import (
	"time"

	id "bskt/pkg/domain"
)

// Record is a provisioned basket: the asset contract and its enforcement
// consumer. Records are immutable once saved.
type Record struct {
	Name                string           `json:"name"`
	Symbol              string           `json:"symbol"`
	AssetContract       id.Address       `json:"stablecoin"`
	EnforcementConsumer id.Address       `json:"mintingConsumer"`
	Admin               id.Address       `json:"admin"`
	CreationTxHash      id.TxHash        `json:"txHash"`
	TransactionID       id.TransactionID `json:"transactionId,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
}
