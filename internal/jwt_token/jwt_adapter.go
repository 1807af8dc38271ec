package jwttoken

import (
	id "tcr/pkg/domain"
	dErrors "tcr/pkg/domain-errors"
	authmw "tcr/pkg/platform/middleware/auth"
)

// JWTServiceAdapter exposes JWTService through the auth middleware's
// validator interface, handing on the subject in canonical address form.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	party, err := id.ParseAddress(claims.Address())
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token subject is not an address")
	}
	return &authmw.JWTClaims{Address: party.String(), JTI: claims.ID}, nil
}
