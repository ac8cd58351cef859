package movements

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/db/models"
)

type stockItemReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.StockItem, error)
}

// Reconciler compares stored counters with the ledger fold.
type Reconciler struct {
	items     stockItemReader
	movements Repository
}

func NewReconciler(items stockItemReader, movements Repository) *Reconciler {
	return &Reconciler{items: items, movements: movements}
}

// Reconcile loads the stock item and its ledger totals and reports both.
func (r *Reconciler) Reconcile(ctx context.Context, stockItemID uuid.UUID) (*models.StockItem, Drift, error) {
	item, err := r.items.GetByID(ctx, stockItemID)
	if err != nil {
		return nil, Drift{}, err
	}
	totals, err := r.movements.TotalsByType(ctx, stockItemID)
	if err != nil {
		return nil, Drift{}, err
	}
	return item, Drift{
		Stored: Balance{Count: item.Count, Reserved: item.Reserved},
		Ledger: FoldTotals(totals),
	}, nil
}
