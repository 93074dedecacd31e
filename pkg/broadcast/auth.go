package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
)

type CustomClaims struct {
	Scope string `json:"scope"`
}

func (c CustomClaims) Validate(ctx context.Context) error {
	return nil
}

// JWTAuthenticator validates HS256 tokens signed with the shared secret and returns the subject
type JWTAuthenticator struct {
	validator *validator.Validator
}

func NewJWTAuthenticator(secret string, issuer string, audience []string) (*JWTAuthenticator, error) {
	keyFunc := func(ctx context.Context) (interface{}, error) {
		return []byte(secret), nil
	}

	jwtValidator, err := validator.New(
		keyFunc,
		validator.HS256,
		issuer,
		audience,
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &CustomClaims{}
			},
		),
		validator.WithAllowedClockSkew(time.Minute),
	)
	if err != nil {
		return nil, err
	}

	return &JWTAuthenticator{validator: jwtValidator}, nil
}

func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (string, error) {
	claimsI, err := a.validator.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}

	claims := claimsI.(*validator.ValidatedClaims)
	if claims.RegisteredClaims.Subject == "" {
		return "", errors.New("token has no subject")
	}

	return claims.RegisteredClaims.Subject, nil
}
