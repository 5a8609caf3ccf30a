package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const accessTokenTTL = 24 * time.Hour

var ErrInvalidToken = errors.New("token invalid")

// Claims carries the user id in the standard subject claim.
type Claims struct {
	jwt.RegisteredClaims
}

// Service signs and checks HS256 access tokens. Credentials are managed by
// the account service; this one only trusts what it signed.
type Service struct {
	secret []byte
	now    func() time.Time
}

func NewService(secret string) *Service {
	return &Service{
		secret: []byte(secret),
		now:    time.Now,
	}
}

func (s *Service) IssueAccessToken(userID string) (string, error) {
	return s.signToken(userID, accessTokenTTL)
}

// ValidateAccessToken returns the user id of a valid token.
func (s *Service) ValidateAccessToken(token string) (string, error) {
	claims, err := parseToken(s.secret, token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (s *Service) signToken(userID string, ttl time.Duration) (string, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return "", errors.New("user id must be a uuid")
	}
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

var parseClaimsFn = jwt.ParseWithClaims

func parseToken(secret []byte, token string) (*Claims, error) {
	parsed, err := parseClaimsFn(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
