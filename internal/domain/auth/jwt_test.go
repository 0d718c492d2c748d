package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "persistkit/internal/core/context"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	token, exp, err := svc.GenerateAccessToken(appctx.UserContext{UserID: "u1", TenantID: "t1", Roles: []string{"admin"}})
	require.NoError(t, err)
	assert.True(t, exp.After(time.Now()))

	user, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.UserID)
	assert.Equal(t, "t1", user.TenantID)
	assert.Equal(t, []string{"admin"}, user.Roles)
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService(DefaultJWTConfig("secret"))
	token, _, err := svc.GenerateAccessToken(appctx.UserContext{UserID: "u1"})
	require.NoError(t, err)

	other := NewJWTService(DefaultJWTConfig("other"))
	_, err = other.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := NewJWTService(DefaultJWTConfig("secret"))
	expired.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = expired.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
