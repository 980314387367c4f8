package session

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/mssola/useragent"
)

// Fingerprint derives a stable device fingerprint from the request's client
// ip and user agent.
func Fingerprint(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + userAgent))
	return hex.EncodeToString(sum[:])
}

// DeviceName renders a human-readable device label ("Chrome on Mac OS X")
// for the session listing endpoint.
func DeviceName(rawUserAgent string) string {
	if rawUserAgent == "" {
		return "Unknown Device"
	}
	ua := useragent.New(rawUserAgent)
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return fmt.Sprintf("%s on %s", browser, os)
}
