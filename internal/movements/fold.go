package movements

import (
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
)

// Balance is the pair of counters a ledger replays to.
type Balance struct {
	Count    int `json:"count"`
	Reserved int `json:"reserved"`
}

// Available is count minus reserved.
func (b Balance) Available() int {
	return b.Count - b.Reserved
}

// Fold replays movements in order and returns the resulting counters.
func Fold(rows []models.StockMovement) Balance {
	var b Balance
	for _, m := range rows {
		b = b.apply(m.Type, m.Quantity)
	}
	return b
}

// FoldTotals is Fold over pre-aggregated per-type sums.
func FoldTotals(totals []TypeTotal) Balance {
	var b Balance
	for _, t := range totals {
		b = b.apply(t.Type, t.Total)
	}
	return b
}

func (b Balance) apply(typ enums.MovementType, signed int) Balance {
	counter, _ := typ.Effect()
	switch counter {
	case enums.CounterCount:
		b.Count += signed
	case enums.CounterReserved:
		b.Reserved += signed
	}
	return b
}

// Drift describes a stock item whose stored counters disagree with its ledger.
type Drift struct {
	Stored Balance `json:"stored"`
	Ledger Balance `json:"ledger"`
}

// Consistent reports whether the stored counters match the ledger.
func (d Drift) Consistent() bool {
	return d.Stored == d.Ledger
}
