package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"docshift/models"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrInvalidToken     = errors.New("invalid token format")
	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token not yet valid")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidIssuer    = errors.New("invalid issuer")
	ErrMissingToken     = errors.New("missing bearer token")
)

// VerifyConfig holds verification configuration
type VerifyConfig struct {
	SecretKey      []byte        // HS256 shared secret
	ExpectedIssuer string        // optional
	ClockSkew      time.Duration // tolerance for exp and iat
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", ErrMissingToken
	}
	token := strings.TrimSpace(header[len(prefix):])
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// VerifyToken checks the HS256 signature, the time window and the
// issuer of tokenString and returns its claims
func VerifyToken(tokenString string, config VerifyConfig) (*models.Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	if len(config.SecretKey) == 0 {
		return nil, errors.New("no verification key provided")
	}

	tok, err := jwt.ParseSigned(tokenString, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims := &models.Claims{}
	if err := tok.Claims(config.SecretKey, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if err := checkWindow(claims, time.Now(), config.ClockSkew); err != nil {
		return nil, err
	}
	if config.ExpectedIssuer != "" && claims.Issuer != config.ExpectedIssuer {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrInvalidIssuer, config.ExpectedIssuer, claims.Issuer)
	}
	return claims, nil
}

// checkWindow rejects expired tokens and tokens issued in the future
func checkWindow(claims *models.Claims, now time.Time, skew time.Duration) error {
	if claims.ExpiresAt > 0 && now.Add(-skew).Unix() > claims.ExpiresAt {
		return ErrTokenExpired
	}
	if claims.IssuedAt > 0 && now.Add(skew).Unix() < claims.IssuedAt {
		return ErrTokenNotYetValid
	}
	return nil
}

// CreateToken signs claims with HS256. Used by tests and by operators
// minting tokens for clients.
func CreateToken(claims *models.Claims, secretKey []byte) (string, error) {
	if claims == nil {
		return "", errors.New("claims cannot be nil")
	}
	if len(secretKey) == 0 {
		return "", errors.New("secret key cannot be empty")
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secretKey}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	token, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("failed to create JWT: %w", err)
	}

	return token, nil
}
