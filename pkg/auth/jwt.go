package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// StaffClaims are issued by the clinic's identity provider. Subject is the
// staff member's id.
type StaffClaims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// StaffID parses the subject.
func (c *StaffClaims) StaffID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// JWTService verifies bearer tokens. Issuing tokens is the identity
// provider's job; Sign exists for tests and local tooling.
type JWTService interface {
	ValidateToken(token string) (*StaffClaims, error)
	Sign(claims StaffClaims) (string, error)
}

type Config struct {
	Secret   string
	Issuer   string
	Audience string
}

type jwtService struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTService(cfg Config) JWTService {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return &jwtService{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

func (s *jwtService) ValidateToken(token string) (*StaffClaims, error) {
	claims := &StaffClaims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := claims.StaffID(); err != nil {
		return nil, fmt.Errorf("%w: subject is not a staff id", ErrInvalidToken)
	}
	return claims, nil
}

func (s *jwtService) Sign(claims StaffClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
