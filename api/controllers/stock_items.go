package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/api/responses"
	"github.com/angelmondragon/stockledger/api/validators"
	"github.com/angelmondragon/stockledger/internal/adjustments"
	"github.com/angelmondragon/stockledger/internal/movements"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

type stockItemOpener interface {
	OpenStockItem(ctx context.Context, input adjustments.OpenInput) (*models.StockItem, error)
}

type stockReconciler interface {
	Reconcile(ctx context.Context, stockItemID uuid.UUID) (*models.StockItem, movements.Drift, error)
}

type openStockItemRequest struct {
	VariantID     uuid.UUID `json:"variantId" validate:"required"`
	Count         int       `json:"count" validate:"min=0"`
	LowStockAlert *int      `json:"lowStockAlert" validate:"omitempty,min=0"`
}

type reconciliationResponse struct {
	StockItemID    uuid.UUID `json:"stockItemId"`
	Count          int       `json:"count"`
	Reserved       int       `json:"reserved"`
	LedgerCount    int       `json:"ledgerCount"`
	LedgerReserved int       `json:"ledgerReserved"`
	Consistent     bool      `json:"consistent"`
}

// StockItemCreate opens the stock item for a variant with its opening count.
func StockItemCreate(svc stockItemOpener, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload openStockItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, err := svc.OpenStockItem(r.Context(), adjustments.OpenInput{
			StoreID:       storeID,
			VariantID:     payload.VariantID,
			Count:         payload.Count,
			LowStockAlert: payload.LowStockAlert,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, item)
	}
}

// StockItemReconciliation compares a stock item's counters with its ledger.
func StockItemReconciliation(rec stockReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stockItemID, err := validators.ParseUUIDParam(r, "stockItemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item, drift, err := rec.Reconcile(r.Context(), stockItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if item.StoreID != storeID {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "stock item not found"))
			return
		}

		responses.WriteSuccess(w, reconciliationResponse{
			StockItemID:    item.ID,
			Count:          drift.Stored.Count,
			Reserved:       drift.Stored.Reserved,
			LedgerCount:    drift.Ledger.Count,
			LedgerReserved: drift.Ledger.Reserved,
			Consistent:     drift.Consistent(),
		})
	}
}
