package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/stockledger/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID  uuid.UUID
	StoreID *uuid.UUID
	Role    enums.ActorRole
	JTI     string
}

// AccessTokenClaims represents the typed JWT issued to clients. For
// customers UserID doubles as the cart owner.
type AccessTokenClaims struct {
	UserID  uuid.UUID       `json:"user_id"`
	StoreID *uuid.UUID      `json:"store_id,omitempty"`
	Role    enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// HasStore reports whether the token is scoped to storeID.
func (c *AccessTokenClaims) HasStore(storeID uuid.UUID) bool {
	return c != nil && c.StoreID != nil && *c.StoreID == storeID
}
