package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Minter issues short-lived HS256 access tokens for local and staged
// environments where no OIDC provider fronts the service.
type Minter struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// Claims carried in minted tokens. The auth middleware reads the role
// claim directly.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// NewMinter creates a Minter. The secret must be non-empty.
func NewMinter(secret, issuer string, ttl time.Duration) (*Minter, error) {
	if secret == "" {
		return nil, errors.New("AUTH_SECRET is required")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Minter{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

// Issue mints a signed token for the given identity. Role must be "agent"
// or "admin".
func (m *Minter) Issue(now time.Time, subject, email, name, role string) (string, error) {
	if role != "agent" && role != "admin" {
		return "", errors.New("role must be agent or admin")
	}

	claims := Claims{
		Email: email,
		Name:  name,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			ID:        uuid.NewString(),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(m.secret)
}

// Verify parses and validates a minted token
func (m *Minter) Verify(tokenString string, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)

	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return Claims{}, err
	}

	opts := []jwt.ParserOption{
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithLeeway(30 * time.Second), // clock skew tolerance
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	validator := jwt.NewValidator(opts...)
	if err := validator.Validate(claims.RegisteredClaims); err != nil {
		return Claims{}, err
	}

	if claims.Role != "agent" && claims.Role != "admin" {
		return Claims{}, errors.New("invalid role claim")
	}

	return claims, nil
}
