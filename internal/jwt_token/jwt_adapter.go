package jwttoken

import (
	dErrors "veris/pkg/domain-errors"
	authmw "veris/pkg/platform/middleware/auth"
)

// JWTServiceAdapter bridges the token service to the auth middleware's
// claims shape.
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
	account, err := claims.ParsedAccount()
	if err != nil {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token carries a malformed account")
	}
	return &authmw.JWTClaims{
		Account: account,
		JTI:     claims.ID,
	}, nil
}
