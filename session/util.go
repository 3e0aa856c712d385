package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNoSession is returned when a request carries no session at all.
	ErrNoSession = errors.New("no session")
	// ErrInvalidSession covers malformed, forged and expired session values.
	ErrInvalidSession = errors.New("invalid session")
)

func GetSession(ctx context.Context) (*UserSessionData, error) {
	v := ctx.Value(sessionKey)
	if v == nil {
		return nil, errors.New("no session in context")
	}
	u, ok := v.(*UserSessionData)
	if !ok {
		return nil, errors.New("invalid session type in context")
	}
	return u, nil
}

// Compute HMAC-SHA256 signature of a message using secret
func computeHMAC(message string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(mac.Sum(nil))
}

// Validate HMAC signature
func validateHMAC(message, sig string, secret []byte) bool {
	expected := computeHMAC(message, secret)
	return hmac.Equal([]byte(sig), []byte(expected))
}

// Encode serializes and signs u. The same value is used as cookie value and bearer token.
func Encode(u *UserSessionData, secret []byte) (string, error) {
	jsonData, err := json.Marshal(u)
	if err != nil {
		return "", err
	}
	value := base64.URLEncoding.EncodeToString(jsonData)
	return value + "|" + computeHMAC(value, secret), nil
}

// Decode verifies the signature and expiry of a value produced by Encode.
func Decode(token string, secret []byte) (*UserSessionData, error) {
	value, sig, ok := strings.Cut(token, "|")
	if !ok || strings.Contains(sig, "|") {
		return nil, ErrInvalidSession
	}
	if !validateHMAC(value, sig, secret) {
		return nil, ErrInvalidSession
	}
	jsonData, err := base64.URLEncoding.DecodeString(value)
	if err != nil {
		return nil, ErrInvalidSession
	}
	var u UserSessionData
	if err := json.Unmarshal(jsonData, &u); err != nil {
		return nil, ErrInvalidSession
	}
	if time.Now().Unix() > u.ExpiresAt {
		return nil, ErrInvalidSession
	}
	return &u, nil
}
