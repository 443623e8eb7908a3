package auth

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/errs"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/types"
)

func testService(t *testing.T) *Service {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(types.Migrate()...))
	return New(db, nil, []byte("test-secret"), 100)
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	svc := testService(t)
	user, err := svc.createUser("alice@example.com", "alice", "password123")
	require.NoError(t, err)
	require.EqualValues(t, 100, user.Coins)

	_, err = svc.createUser("alice@example.com", "other", "password123")
	require.ErrorIs(t, err, errs.ErrInvalid)
	_, err = svc.createUser("other@example.com", "alice", "password123")
	require.ErrorIs(t, err, errs.ErrInvalid)
}

func TestLoginRoundTrip(t *testing.T) {
	svc := testService(t)
	user, err := svc.createUser("alice@example.com", "alice", "password123")
	require.NoError(t, err)

	token, err := svc.Login("alice@example.com", "password123")
	require.NoError(t, err)
	tok, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	claims, ok := tok.Claims.(jwt.MapClaims)
	require.True(t, ok)
	require.EqualValues(t, user.ID, claims["uid"])

	_, err = svc.Login("alice@example.com", "wrong-password")
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
	_, err = svc.Login("nobody@example.com", "password123")
	require.ErrorIs(t, err, errs.ErrUnauthenticated)
}
