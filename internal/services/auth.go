package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/journeys-backend/internal/platform/ctxutil"
	"github.com/yungbote/journeys-backend/internal/platform/logger"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// JWTClaims is what the identity provider signs. Tokens are issued elsewhere;
// this service only verifies them.
type JWTClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type AuthService interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	IssueAccessToken(userID uuid.UUID, role string, ttl time.Duration) (string, error)
}

type authService struct {
	log          *logger.Logger
	jwtSecretKey []byte
	issuer       string
	now          func() time.Time
}

func NewAuthService(log *logger.Logger, jwtSecretKey, issuer string) AuthService {
	return &authService{
		log:          log.With("service", "AuthService"),
		jwtSecretKey: []byte(jwtSecretKey),
		issuer:       strings.TrimSpace(issuer),
		now:          time.Now,
	}
}

// IssueAccessToken signs a token for local tooling and tests.
func (as *authService) IssueAccessToken(userID uuid.UUID, role string, ttl time.Duration) (string, error) {
	if len(as.jwtSecretKey) == 0 {
		return "", errors.New("JWT_SECRET_KEY is not configured")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := as.now()
	claims := JWTClaims{
		Role: strings.ToLower(strings.TrimSpace(role)),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    as.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(as.jwtSecretKey)
}

func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return ctx, ErrMissingToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(as.now),
	}
	if as.issuer != "" {
		opts = append(opts, jwt.WithIssuer(as.issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return as.jwtSecretKey, nil
	}, opts...)
	if err != nil {
		return ctx, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, ErrInvalidToken
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, fmt.Errorf("%w: invalid subject: %v", ErrInvalidToken, err)
	}
	role := claims.Role
	if role == "" {
		role = ctxutil.RoleMember
	}
	rd := &ctxutil.RequestData{
		UserID:      userID,
		Role:        role,
		TokenString: tokenString,
	}
	return ctxutil.WithRequestData(ctx, rd), nil
}
