package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/camilomorales/domicilios-backend/pkg/enums"
)

// AccessTokenClaims are the typed claims carried by the platform JWT.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"uid"`
	Role   enums.ActorRole `json:"role"`
	jwt.RegisteredClaims
}

// AccessTokenPayload is the input for minting an access token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	JTI    string
}
