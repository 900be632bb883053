// Package auth mints and verifies the opaque bearer credential carried
// by API requests. The token is an HMAC-SHA256-signed (user_id, expiry)
// pair; it carries identity only, with no claims beyond expiry.
// Registration and credential verification live outside this service.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/darshjasani/Pulse/internal/model"
)

// TokenService mints and verifies bearer tokens under a shared secret.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService constructs a TokenService. ttl values below one minute
// fall back to 24 hours.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl < time.Minute {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}
}

// Mint returns a bearer token identifying userID, valid for the
// configured TTL. Exposed for tests and operator tooling.
func (s *TokenService) Mint(userID int64) string {
	return s.mintWithExpiry(userID, time.Now().Add(s.ttl))
}

func (s *TokenService) mintWithExpiry(userID int64, expiry time.Time) string {
	payload := fmt.Sprintf("%d:%d", userID, expiry.Unix())
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return encoded + "." + s.sign(encoded)
}

// Verify checks the token's signature and expiry, returning the user id
// it identifies. All failures map to model.KindUnauthorized; callers
// never retry authentication errors.
func (s *TokenService) Verify(token string) (int64, error) {
	encoded, mac, ok := strings.Cut(token, ".")
	if !ok {
		return 0, model.NewUnauthorized("malformed token")
	}
	if !hmac.Equal([]byte(s.sign(encoded)), []byte(mac)) {
		return 0, model.NewUnauthorized("invalid token signature")
	}

	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return 0, model.NewUnauthorized("malformed token payload")
	}
	idPart, expiryPart, ok := strings.Cut(string(payload), ":")
	if !ok {
		return 0, model.NewUnauthorized("malformed token payload")
	}

	userID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, model.NewUnauthorized("malformed token subject")
	}
	expiry, err := strconv.ParseInt(expiryPart, 10, 64)
	if err != nil {
		return 0, model.NewUnauthorized("malformed token expiry")
	}
	if time.Now().Unix() >= expiry {
		return 0, model.NewUnauthorized("token expired")
	}
	return userID, nil
}

func (s *TokenService) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
