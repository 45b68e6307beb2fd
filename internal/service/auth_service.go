package service

import (
	"context"
	"fmt"

	"tablepick-backend/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// AuthService validates bearer tokens issued by the external identity
// provider. Membership management itself lives outside this system; a valid
// token only establishes who the caller is.
type AuthService interface {
	// ValidateToken verifies the token and returns the member it identifies.
	ValidateToken(ctx context.Context, token string) (*domain.Member, error)
}

type memberClaims struct {
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

type jwtAuthService struct {
	secret []byte
	logger *zap.Logger
}

// NewJWTAuthService creates an AuthService over HMAC-signed JWTs. The member
// ID is the token subject.
func NewJWTAuthService(secret string, logger *zap.Logger) AuthService {
	return &jwtAuthService{
		secret: []byte(secret),
		logger: logger,
	}
}

func (s *jwtAuthService) ValidateToken(_ context.Context, tokenString string) (*domain.Member, error) {
	claims := &memberClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return &domain.Member{
		MemberID:    claims.Subject,
		DisplayName: claims.DisplayName,
	}, nil
}
