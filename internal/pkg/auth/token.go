// internal/pkg/auth/token.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ammerola/stockledger/internal/core/domain"
)

// Claims carried by tokens from the identity provider. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string      `json:"email,omitempty"`
	Role  domain.Role `json:"role"`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Email  string
	Role   domain.Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == domain.RoleAdmin
}

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Verifier checks HS256 tokens issued by the identity provider.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
}

func NewVerifier(secret, issuer, audience string) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &Verifier{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		leeway:   30 * time.Second,
	}, nil
}

// Verify parses and validates a token string.
func (v *Verifier) Verify(tokenString string) (*Principal, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a user id", ErrInvalidToken)
	}

	role := claims.Role
	if role == "" {
		role = domain.RoleUser
	}
	return &Principal{UserID: userID, Email: claims.Email, Role: role}, nil
}

// Issue signs a token. Used by the seeder and tests to mint tokens the way the
// identity provider does.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: p.Email,
		Role:  p.Role,
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
