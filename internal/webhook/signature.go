package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// DefaultSignatureHeader is the header carrying the hex HMAC-SHA256 of the body.
const DefaultSignatureHeader = "X-Webhook-Signature"

// signaturePrefix is an optional algorithm prefix some senders put in front of the digest.
const signaturePrefix = "sha256="

// Sign returns the hex-encoded HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature is the HMAC-SHA256 of body under secret.
// The comparison is constant-time.
func Verify(body []byte, signature, secret string) bool {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, signaturePrefix)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// SignatureVerifier authenticates inbound callbacks with a pre-shared secret.
// A verifier with an empty secret accepts every request; once a secret is
// set, a missing header is a hard failure.
type SignatureVerifier struct {
	Secret string
	Header string
}

// NewSignatureVerifier creates a verifier. An empty header uses DefaultSignatureHeader.
func NewSignatureVerifier(secret, header string) *SignatureVerifier {
	if header == "" {
		header = DefaultSignatureHeader
	}
	return &SignatureVerifier{Secret: secret, Header: header}
}

// Enabled reports whether a secret is configured.
func (v *SignatureVerifier) Enabled() bool {
	return v != nil && v.Secret != ""
}

// HeaderName returns the header the signature is read from.
func (v *SignatureVerifier) HeaderName() string {
	if v == nil || v.Header == "" {
		return DefaultSignatureHeader
	}
	return v.Header
}

// VerifySignature checks a raw signature value against body.
func (v *SignatureVerifier) VerifySignature(body []byte, signature string) error {
	if !v.Enabled() {
		return nil
	}
	if strings.TrimSpace(signature) == "" {
		return &DeliveryError{Reason: ErrMissingSignature, Detail: v.HeaderName()}
	}
	if !Verify(body, signature, v.Secret) {
		return &DeliveryError{Reason: ErrInvalidSignature}
	}
	return nil
}

// VerifyRequest checks the signature header of an HTTP request against body.
func (v *SignatureVerifier) VerifyRequest(headers http.Header, body []byte) error {
	return v.VerifySignature(body, headers.Get(v.HeaderName()))
}
