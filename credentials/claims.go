package credentials

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	errs "github.com/jrsteele09/go-telemed-client/internal/errors"
	"github.com/jrsteele09/go-telemed-client/internal/utils"
)

// TokenClaims is the subset of claims read from a bearer token. The client
// never holds the signing key, so the token is parsed unverified and the
// values are only hints.
type TokenClaims struct {
	Subject   string
	UserType  UserType
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ParseTokenClaims extracts claims from a JWT bearer token. Opaque tokens
// return ErrMalformedToken.
func ParseTokenClaims(rawToken string) (*TokenClaims, error) {
	if strings.Count(rawToken, ".") != 2 {
		return nil, errs.ErrMalformedToken
	}

	token, _, err := jwtlib.NewParser().ParseUnverified(rawToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, errs.Wrapf(errs.ErrMalformedToken, "parse: %v", err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, errs.ErrMalformedToken
	}

	tc := &TokenClaims{}
	tc.Subject, _ = claims["sub"].(string)
	tc.Email, _ = claims["email"].(string)

	userType, _ := claims["user_type"].(string)
	if userType == "" {
		if roles, ok := claims["roles"].([]any); ok {
			if r := utils.ToStringSlice(roles); len(r) > 0 {
				userType = r[0]
			}
		}
	}
	tc.UserType = UserType(userType)

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		tc.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		tc.IssuedAt = iat.Time
	}
	return tc, nil
}
