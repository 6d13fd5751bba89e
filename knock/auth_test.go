package knock

import (
	"context"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	gojwt "github.com/golang-jwt/jwt/v5"
)

func signTestUserToken(t *testing.T, claims gojwt.MapClaims) string {
	t.Helper()
	token := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims)
	userToken, err := token.SignedString([]byte("signing-key"))
	assert.Equal(t, nil, err)
	return userToken
}

func TestParseUserTokenUnverified(t *testing.T) {
	issuedTime := time.Now().Add(-time.Minute).Truncate(time.Second)
	expireTime := time.Now().Add(time.Hour).Truncate(time.Second)
	userToken := signTestUserToken(t, gojwt.MapClaims{
		"sub": "user_1",
		"iat": issuedTime.Unix(),
		"exp": expireTime.Unix(),
	})

	claims, err := ParseUserTokenUnverified(userToken)
	assert.Equal(t, nil, err)
	assert.Equal(t, "user_1", claims.UserId)
	assert.Equal(t, issuedTime.Unix(), claims.IssuedTime.Unix())
	assert.Equal(t, expireTime.Unix(), claims.ExpireTime.Unix())
	assert.Equal(t, false, claims.Expired())
}

func TestParseUserTokenExpired(t *testing.T) {
	userToken := signTestUserToken(t, gojwt.MapClaims{
		"sub": "user_1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	claims, err := ParseUserTokenUnverified(userToken)
	assert.Equal(t, nil, err)
	assert.Equal(t, true, claims.Expired())
}

func TestParseUserTokenWithoutExpiry(t *testing.T) {
	userToken := signTestUserToken(t, gojwt.MapClaims{
		"sub": "user_1",
	})

	claims, err := ParseUserTokenUnverified(userToken)
	assert.Equal(t, nil, err)
	// no exp claim means the token does not expire client-side
	assert.Equal(t, false, claims.Expired())
}

func TestParseUserTokenMalformed(t *testing.T) {
	_, err := ParseUserTokenUnverified("not-a-jwt")
	assert.NotEqual(t, nil, err)
}

func TestAuthenticateForwardsUserToken(t *testing.T) {
	userToken := signTestUserToken(t, gojwt.MapClaims{
		"sub": "user_1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	settings := DefaultClientSettings()
	client := NewClient(context.Background(), "pk_test", settings)
	defer client.Close()

	client.Authenticate("user_1", userToken)
	assert.Equal(t, true, client.IsAuthenticated())
	assert.Equal(t, "user_1", client.UserId())
	assert.Equal(t, userToken, client.api.currentUserToken())
}
