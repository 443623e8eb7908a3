// Package auth is the identity collaborator: registration with emailed
// verification codes, password login and JWT issuance. The platform core
// only ever sees the resolved user id.
package auth

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/data"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/errs"
	"github.com/GuoYangtuo/IndieGameHub-sub001/src/api/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenTTL = 72 * time.Hour

type Service struct {
	db            *gorm.DB
	rdb           *redis.Client
	secret        []byte
	startingCoins int64
}

func New(db *gorm.DB, rdb *redis.Client, secret []byte, startingCoins int64) *Service {
	return &Service{db: db, rdb: rdb, secret: secret, startingCoins: startingCoins}
}

// RequestCode creates a short-lived verification code for an email address.
// Delivery is handled by the mail collaborator; here it is only logged.
func (s *Service) RequestCode(ctx context.Context, email string) error {
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	if err := data.SetVerificationCode(ctx, s.rdb, email, code); err != nil {
		return err
	}
	log.Printf("verification code for %s: %s", email, code)
	return nil
}

// Register consumes the verification code and creates the user with the
// configured starting coin grant.
func (s *Service) Register(ctx context.Context, email, nickname, password, code string) (types.User, error) {
	if email == "" || nickname == "" || len(password) < 8 {
		return types.User{}, errs.ErrInvalid
	}
	stored, err := data.GetAndDelVerificationCode(ctx, s.rdb, email)
	if err != nil || stored != code {
		return types.User{}, errs.ErrInvalid
	}
	return s.createUser(email, nickname, password)
}

// createUser enforces email and nickname uniqueness. The pre-check catches
// the common case; the unique indexes catch the race, surfaced through
// gorm's translated duplicate-key error.
func (s *Service) createUser(email, nickname, password string) (types.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, err
	}
	var existing types.User
	if err := s.db.First(&existing, "email = ? OR nickname = ?", email, nickname).Error; err == nil {
		return types.User{}, errs.ErrInvalid
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return types.User{}, err
	}
	user := types.User{
		Nickname:     nickname,
		Email:        email,
		PasswordHash: string(hash),
		Coins:        s.startingCoins,
	}
	if err := s.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return types.User{}, errs.ErrInvalid
		}
		return types.User{}, err
	}
	return user, nil
}

// Login verifies the password and issues a signed token carrying the
// user id.
func (s *Service) Login(email, password string) (string, error) {
	var user types.User
	if err := s.db.First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errs.ErrUnauthenticated
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", errs.ErrUnauthenticated
	}
	return s.IssueToken(user.ID)
}

// IssueToken signs a JWT for a user id.
func (s *Service) IssueToken(userID uint64) (string, error) {
	claims := jwt.MapClaims{
		"uid": userID,
		"exp": time.Now().Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
