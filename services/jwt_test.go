package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeforge-academy/sentinel_api/shared"
)

func newTestJWTService() *JWTService {
	return &JWTService{
		AccessTokenDuration: time.Hour,
		jwtSecretKey:        "test-secret",
	}
}

func TestJWTService_TokenPairRoundTrip(t *testing.T) {
	svc := newTestJWTService()

	pair, err := svc.GenerateTokenPair("user-1", shared.RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Equal(t, int64(3600), pair.ExpiresIn)

	userID, role, err := svc.VerifyJWTToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, shared.RoleAdmin, role)
}

func TestJWTService_RejectsForeignSignature(t *testing.T) {
	issuer := newTestJWTService()
	verifier := &JWTService{
		AccessTokenDuration: time.Hour,
		jwtSecretKey:        "other-secret",
	}

	pair, err := issuer.GenerateTokenPair("user-1", shared.RoleStudent)
	require.NoError(t, err)

	_, _, err = verifier.VerifyJWTToken(pair.AccessToken)
	assert.Error(t, err)
}

func TestJWTService_RejectsExpiredToken(t *testing.T) {
	svc := newTestJWTService()
	svc.AccessTokenDuration = -time.Minute

	pair, err := svc.GenerateTokenPair("user-1", shared.RoleStudent)
	require.NoError(t, err)

	_, _, err = svc.VerifyJWTToken(pair.AccessToken)
	assert.Error(t, err)
}

func TestJWTService_ExtractTokenFromHeader(t *testing.T) {
	svc := newTestJWTService()

	token, err := svc.ExtractTokenFromHeader("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = svc.ExtractTokenFromHeader("")
	assert.Error(t, err)

	_, err = svc.ExtractTokenFromHeader("Token abc")
	assert.Error(t, err)
}
