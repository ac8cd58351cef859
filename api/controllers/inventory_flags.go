package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/api/responses"
	"github.com/angelmondragon/stockledger/api/validators"
	"github.com/angelmondragon/stockledger/pkg/db/models"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

type flagService interface {
	List(ctx context.Context, storeID uuid.UUID, status *enums.InventoryFlagStatus) ([]models.InventoryFlag, error)
	Resolve(ctx context.Context, storeID, flagID, resolvedBy uuid.UUID) (*models.InventoryFlag, error)
}

// InventoryFlagList returns a store's flags, optionally filtered by status.
func InventoryFlagList(svc flagService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.InventoryFlagStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseInventoryFlagStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = &parsed
		}

		flags, err := svc.List(r.Context(), storeID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"flags": flags})
	}
}

// InventoryFlagResolve marks a flag as reviewed by the calling operator.
func InventoryFlagResolve(svc flagService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, err := storeFromPath(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		flagID, err := validators.ParseUUIDParam(r, "flagId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resolvedBy, err := customerFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		flag, err := svc.Resolve(r.Context(), storeID, flagID, resolvedBy)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, flag)
	}
}
