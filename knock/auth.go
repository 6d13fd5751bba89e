package knock

import (
	"errors"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// In enhanced security mode user tokens are signed jwts. The client never
// verifies them (the platform does); the claims are only read back to surface
// obvious misconfiguration, like expired tokens, at authenticate time.

type UserTokenClaims struct {
	UserId     string
	IssuedTime time.Time
	ExpireTime time.Time
}

func ParseUserTokenUnverified(userToken string) (*UserTokenClaims, error) {
	parser := gojwt.NewParser()
	token, _, err := parser.ParseUnverified(userToken, gojwt.MapClaims{})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(gojwt.MapClaims)
	if !ok {
		return nil, errors.New("user token claims have an unexpected shape")
	}

	userTokenClaims := &UserTokenClaims{}

	if sub, ok := claims["sub"].(string); ok {
		userTokenClaims.UserId = sub
	}
	if iat, ok := claims["iat"].(float64); ok {
		userTokenClaims.IssuedTime = time.Unix(int64(iat), 0)
	}
	if exp, ok := claims["exp"].(float64); ok {
		userTokenClaims.ExpireTime = time.Unix(int64(exp), 0)
	}

	return userTokenClaims, nil
}

func (self *UserTokenClaims) Expired() bool {
	return !self.ExpireTime.IsZero() && self.ExpireTime.Before(time.Now())
}
