package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/regulacao-api/internal/model"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("secret", "regulacao-api", time.Hour)
	staff := &model.Staff{Base: model.Base{ID: 7}, Role: model.RoleRegulacao}

	token, ttl, err := svc.GenerateAccessToken(staff)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, ttl)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, model.RoleRegulacao, claims.Role)
}

func TestValidateTokenRejects(t *testing.T) {
	svc := NewJWTService("secret", "regulacao-api", time.Hour)
	staff := &model.Staff{Base: model.Base{ID: 7}, Role: model.RoleAdmin}

	other := NewJWTService("other", "regulacao-api", time.Hour)
	token, _, err := other.GenerateAccessToken(staff)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	expired := NewJWTService("secret", "regulacao-api", time.Hour).(*jwtService)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err = expired.GenerateAccessToken(staff)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))

	_, err = svc.ValidateToken("not-a-token")
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
