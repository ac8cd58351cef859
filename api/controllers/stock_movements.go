package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/api/responses"
	"github.com/angelmondragon/stockledger/api/validators"
	"github.com/angelmondragon/stockledger/internal/adjustments"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	"github.com/angelmondragon/stockledger/pkg/logger"
	"github.com/angelmondragon/stockledger/pkg/pagination"
)

type movementRecorder interface {
	RecordMovement(ctx context.Context, input adjustments.RecordInput) (*adjustments.Result, error)
}

type movementLister interface {
	ListByStockItem(ctx context.Context, storeID, stockItemID uuid.UUID, params pagination.Params) (pagination.Page[models.StockMovement], error)
}

type recordMovementRequest struct {
	VariantID      *uuid.UUID `json:"variantId"`
	StockItemID    uuid.UUID  `json:"stockItemId" validate:"required"`
	Quantity       int        `json:"quantity" validate:"ne=0"`
	Type           string     `json:"type" validate:"required"`
	Reason         string     `json:"reason" validate:"max=500"`
	OriginatorID   *uuid.UUID `json:"originatorId"`
	OriginatorType *string    `json:"originatorType" validate:"omitempty,max=64"`
}

// StockMovementCreate appends a count-affecting movement to the ledger.
func StockMovementCreate(svc movementRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload recordMovementRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.RecordMovement(r.Context(), adjustments.RecordInput{
			StoreID:        storeID,
			StockItemID:    payload.StockItemID,
			VariantID:      payload.VariantID,
			Type:           enums.MovementType(payload.Type),
			Quantity:       payload.Quantity,
			Reason:         validators.SanitizeString(payload.Reason, 500),
			OriginatorID:   payload.OriginatorID,
			OriginatorType: payload.OriginatorType,
			Actor:          actorFromContext(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, result)
	}
}

// StockMovementList pages through a stock item's ledger, oldest first.
func StockMovementList(repo movementLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		stockItemID, err := validators.ParseQueryUUID(r, "stockItemId", true)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := repo.ListByStockItem(r.Context(), storeID, *stockItemID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}
