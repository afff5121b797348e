package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketDaily is the composite daily record, one row per trading date.
type MarketDaily struct {
	RecordDate         time.Time
	SugarClose         decimal.Decimal
	SugarOpen          *decimal.Decimal
	USDCNYRate         decimal.Decimal
	BDIIndex           *decimal.Decimal
	ImportCostEstimate *decimal.Decimal
	UpdatedAt          time.Time
}
