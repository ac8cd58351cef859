package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/api/middleware"
	"github.com/angelmondragon/stockledger/api/validators"
	pkgerrors "github.com/angelmondragon/stockledger/pkg/errors"
	"github.com/angelmondragon/stockledger/pkg/outbox"
)

func storeFromPath(r *http.Request) (uuid.UUID, error) {
	return validators.ParseUUIDParam(r, middleware.StoreParam)
}

// customerFromContext returns the authenticated user, or a 401 error.
func customerFromContext(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer session required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}

func actorFromContext(r *http.Request) *outbox.ActorRef {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return nil
	}
	actor := &outbox.ActorRef{UserID: userID, Role: middleware.RoleFromContext(r.Context())}
	if storeID, err := uuid.Parse(middleware.StoreIDFromContext(r.Context())); err == nil {
		actor.StoreID = &storeID
	}
	return actor
}
