package platform

import (
	"regexp"

	"golang.org/x/oauth2"
)

var verifierPattern = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

// GenerateCodeVerifier returns a fresh RFC 7636 code_verifier with 256 bits of entropy.
func GenerateCodeVerifier() string {
	return oauth2.GenerateVerifier()
}

// ValidateCodeVerifier checks length and alphabet of a verifier.
func ValidateCodeVerifier(verifier string) bool {
	return verifierPattern.MatchString(verifier)
}
