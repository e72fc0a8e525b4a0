package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupService(t *testing.T) *Service {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.New().String()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))

	return NewService(db, "test-jwt-secret")
}

func TestRegisterAndGenerateToken(t *testing.T) {
	svc := setupService(t)

	registered, err := svc.Register("trader@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, registered.UserID)
	assert.NotEmpty(t, registered.APIKey)
	assert.NotEmpty(t, registered.APISecret)

	token, err := svc.GenerateToken(Credentials{
		APIKey:    registered.APIKey,
		APISecret: registered.APISecret,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)

	claims, err := svc.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.UserID, claims.UserID)
	assert.Contains(t, claims.Permissions, "trade")
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc := setupService(t)

	_, err := svc.Register("trader@example.com")
	require.NoError(t, err)

	_, err = svc.Register("trader@example.com")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	svc := setupService(t)

	registered, err := svc.Register("trader@example.com")
	require.NoError(t, err)

	_, err = svc.GenerateToken(Credentials{
		APIKey:    registered.APIKey,
		APISecret: "wrong-secret",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.GenerateToken(Credentials{
		APIKey:    "unknown-key",
		APISecret: registered.APISecret,
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsTampering(t *testing.T) {
	svc := setupService(t)

	registered, err := svc.Register("trader@example.com")
	require.NoError(t, err)

	token, err := svc.GenerateToken(Credentials{
		APIKey:    registered.APIKey,
		APISecret: registered.APISecret,
	})
	require.NoError(t, err)

	other := setupService(t) // different secret would fail; same secret different DB still validates
	_, err = other.ValidateToken(token.Token)
	assert.NoError(t, err)

	_, err = svc.ValidateToken(token.Token + "x")
	assert.Error(t, err)
}
