package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrMissingKeyPair = errors.New("api key and secret are required")
)

// IssuerTypeProject marks a token that acts on behalf of a whole project.
const IssuerTypeProject = "project"

// DefaultTTL is how long a project token stays valid.
const DefaultTTL = time.Minute

// ProjectClaims are the claims the broadcast backend expects in X-OPENTOK-AUTH.
type ProjectClaims struct {
	jwt.RegisteredClaims
	IssuerType string `json:"ist"`
}

// ProjectSigner mints short-lived HS256 project tokens for one API key.
type ProjectSigner struct {
	apiKey string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewProjectSigner creates a signer. A non-positive ttl falls back to DefaultTTL.
func NewProjectSigner(apiKey, apiSecret string, ttl time.Duration) (*ProjectSigner, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, ErrMissingKeyPair
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ProjectSigner{
		apiKey: apiKey,
		secret: []byte(apiSecret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// APIKey returns the project key tokens are issued for.
func (s *ProjectSigner) APIKey() string {
	return s.apiKey
}

// Sign returns a fresh token. A new one is minted per request.
func (s *ProjectSigner) Sign() (string, error) {
	now := s.now()
	claims := &ProjectClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.apiKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.New().String(),
		},
		IssuerType: IssuerTypeProject,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses a token minted by a signer with the same key pair.
func (s *ProjectSigner) Validate(tokenString string) (*ProjectClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ProjectClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.apiKey),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*ProjectClaims)
	if !ok || !token.Valid || claims.IssuerType != IssuerTypeProject {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
