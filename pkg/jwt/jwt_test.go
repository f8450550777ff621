package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-operator-secret-key-for-testing-purposes"

func TestNewService(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	assert.NotNil(t, service)
	assert.Equal(t, testSecret, service.secret)
	assert.Equal(t, time.Hour, service.tokenExpiry)
}

func TestGenerateToken(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	token, err := service.GenerateToken("ops-1", []string{"payments_admin"})
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	// Validate the generated token
	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.OperatorID)
	assert.Equal(t, []string{"payments_admin"}, claims.Roles)
	assert.Equal(t, "vietcart-payments", claims.Issuer)
	assert.Equal(t, "ops-1", claims.Subject)
}

func TestValidateToken_Invalid(t *testing.T) {
	service := NewService(testSecret, time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{"Garbage token", "not-a-token"},
		{"Empty token", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.ValidateToken(tt.token)
			assert.Error(t, err)
		})
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	service := NewService(testSecret, time.Hour)
	other := NewService("a-completely-different-secret", time.Hour)

	token, err := other.GenerateToken("ops-1", nil)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateToken_Expired(t *testing.T) {
	service := NewService(testSecret, -time.Minute)

	token, err := service.GenerateToken("ops-1", nil)
	require.NoError(t, err)

	_, err = service.ValidateToken(token)
	assert.Error(t, err)
}

func TestHasRole(t *testing.T) {
	claims := &Claims{Roles: []string{"viewer", "payments_admin"}}

	assert.True(t, claims.HasRole("payments_admin"))
	assert.True(t, claims.HasRole("viewer"))
	assert.False(t, claims.HasRole("superuser"))
}
