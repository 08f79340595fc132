package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrNoAppSecret means the service has no signing secret configured.
	ErrNoAppSecret = errors.New("app secret not configured")
	// ErrMissingSignature means the request carried no signature header.
	ErrMissingSignature = errors.New("missing webhook signature")
	// ErrInvalidSignature means the signature did not match the body.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// VerifySignature checks a webhook body against its X-Hub-Signature-256
// header value: "sha256=" + hex HMAC-SHA256 of the body keyed by the app
// secret. The comparison is constant-time.
func VerifySignature(secret string, body []byte, header string) error {
	if strings.TrimSpace(secret) == "" {
		return ErrNoAppSecret
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(header), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}
