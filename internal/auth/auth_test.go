package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dill1027/DT-Vehicles-Management-sub001/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	service, err := NewService("test-secret", time.Hour)
	require.NoError(t, err)
	return service
}

func TestNewService(t *testing.T) {
	service, err := NewService("secret", 0)
	assert.NoError(t, err)
	assert.Equal(t, 24*time.Hour, service.tokenExp)

	_, err = NewService("", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestService_PasswordRoundTrip(t *testing.T) {
	service := newTestService(t)

	hash, err := service.HashPassword("fleetpass123")
	require.NoError(t, err)
	assert.NotEqual(t, "fleetpass123", hash)

	assert.True(t, service.CheckPassword("fleetpass123", hash))
	assert.False(t, service.CheckPassword("wrongpassword", hash))
}

func TestService_Authenticate(t *testing.T) {
	service := newTestService(t)
	hash, err := service.HashPassword("fleetpass123")
	require.NoError(t, err)

	tests := []struct {
		name     string
		user     *models.User
		password string
		want     error
	}{
		{"valid", &models.User{PasswordHash: hash, IsActive: true}, "fleetpass123", nil},
		{"wrong password", &models.User{PasswordHash: hash, IsActive: true}, "nope", ErrInvalidCredentials},
		{"inactive", &models.User{PasswordHash: hash}, "fleetpass123", ErrUserInactive},
		{"no user", nil, "fleetpass123", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := service.Authenticate(tt.user, tt.password)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_ValidateToken(t *testing.T) {
	service := newTestService(t)
	user := &models.User{ID: primitive.NewObjectID(), Username: "fleetmgr", Role: models.RoleManager}

	token, err := service.GenerateToken(user)
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID.Hex(), claims.UserID)
	assert.Equal(t, "fleetmgr", claims.Username)
	assert.Equal(t, models.RoleManager, claims.Role)

	_, err = service.ValidateToken("Bearer " + token)
	assert.NoError(t, err)

	_, err = service.ValidateToken("invalid-token")
	assert.Equal(t, ErrInvalidToken, err)

	other, _ := NewService("other-secret", time.Hour)
	_, err = other.ValidateToken(token)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ValidateToken_Expired(t *testing.T) {
	service := newTestService(t)
	issued := time.Now().Add(-2 * time.Hour)
	service.now = func() time.Time { return issued }

	token, err := service.GenerateToken(&models.User{ID: primitive.NewObjectID(), Username: "u", Role: models.RoleAdmin})
	require.NoError(t, err)

	service.now = time.Now
	_, err = service.ValidateToken(token)
	assert.Equal(t, ErrExpiredToken, err)
}

func TestService_ValidateToken_RejectsForeignClaims(t *testing.T) {
	service := newTestService(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  primitive.NewObjectID().Hex(),
		"role": "superuser",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = service.ValidateToken(signed)
	assert.Equal(t, ErrInvalidToken, err)
}

func TestService_ExtractTokenFromHeader(t *testing.T) {
	service := newTestService(t)

	tests := []struct {
		header  string
		want    string
		wantErr bool
	}{
		{"Bearer valid-token", "valid-token", false},
		{"", "", true},
		{"InvalidFormat", "", true},
		{"Bearer ", "", true},
		{"Basic abc", "", true},
	}
	for _, tt := range tests {
		got, err := service.ExtractTokenFromHeader(tt.header)
		if tt.wantErr {
			assert.Equal(t, ErrInvalidToken, err, tt.header)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
