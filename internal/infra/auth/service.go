package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/harleysmodernlife/VERN/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

// UserProvider описывает требования сервиса к хранилищу операторов.
type UserProvider interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
}

type Service struct {
	*BaseValidator
	repo       UserProvider
	privateKey *rsa.PrivateKey
	tokenTTL   time.Duration
}

func NewService(repo UserProvider, pubKey *rsa.PublicKey, privateKey *rsa.PrivateKey, tokenTTL time.Duration) *Service {
	return &Service{
		BaseValidator: NewBaseValidator(pubKey),
		repo:          repo,
		privateKey:    privateKey,
		tokenTTL:      tokenTTL,
	}
}

// GenerateToken аутентифицирует оператора и выдает RS256 токен.
func (s *Service) GenerateToken(ctx context.Context, username, password string) (*domain.TokenResponse, error) {
	// Источник правды — Postgres
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil || user == nil {
		return nil, errors.New("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &domain.CustomClaims{
		UserID: user.ID,
		Scopes: user.Scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "vern-control-plane",
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
