package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/api/responses"
	"github.com/angelmondragon/stockledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/logger"
)

// StoreParam is the chi URL parameter carrying the store id.
const StoreParam = "storeId"

// StoreMatch rejects authenticated callers whose token is scoped to a
// different store than the one in the path. Anonymous requests and
// unscoped system tokens pass; the auth middleware in front decides whether
// they are allowed at all.
func StoreMatch(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pathStore, err := uuid.Parse(chi.URLParam(r, StoreParam))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid store id"))
				return
			}
			if UserIDFromContext(r.Context()) == "" {
				next.ServeHTTP(w, r)
				return
			}
			if RoleFromContext(r.Context()) == string(enums.ActorRoleSystem) && StoreIDFromContext(r.Context()) == "" {
				next.ServeHTTP(w, r)
				return
			}
			if StoreIDFromContext(r.Context()) != pathStore.String() {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "token is not scoped to this store"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
