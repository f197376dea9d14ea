// Package auth handles operator login and session tokens.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ayoubbns/vinscan/internal/domain"
)

const issuer = "vinscan"

var jwtSigningMethod = jwt.SigningMethodHS256

// ErrInvalidLogin covers both unknown usernames and wrong passwords so the
// response never reveals which one failed.
var ErrInvalidLogin = errors.New("invalid username or password")

// OperatorSource is the subset of the operator store the service needs.
type OperatorSource interface {
	GetByUsername(ctx context.Context, username string) (*domain.Operator, error)
	GetByID(ctx context.Context, id string) (*domain.Operator, error)
}

// Service authenticates operators and mints session tokens. The token only
// carries the operator id; permissions are re-read from the store on every
// request so a permission change applies immediately.
type Service struct {
	operators OperatorSource
	secret    []byte
	ttl       time.Duration
}

func NewService(operators OperatorSource, secret string, ttl time.Duration) *Service {
	return &Service{operators: operators, secret: []byte(secret), ttl: ttl}
}

// EncodeSecret transforms a plaintext password into its stored form.
func EncodeSecret(password string) string {
	return base64.StdEncoding.EncodeToString([]byte(password))
}

// Login checks the credentials and returns the operator plus a session token.
func (s *Service) Login(ctx context.Context, username, password string) (*domain.Operator, string, error) {
	op, err := s.operators.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to look up operator: %w", err)
	}
	if op == nil || op.Secret != EncodeSecret(password) {
		return nil, "", ErrInvalidLogin
	}

	token, err := s.mint(op.ID, time.Now())
	if err != nil {
		return nil, "", err
	}
	return op, token, nil
}

// Authenticate resolves a session token back to its operator.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.Operator, error) {
	id, err := s.parse(token)
	if err != nil {
		return nil, ErrInvalidLogin
	}

	op, err := s.operators.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up operator: %w", err)
	}
	if op == nil {
		return nil, ErrInvalidLogin
	}
	return op, nil
}

func (s *Service) mint(operatorID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   operatorID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
