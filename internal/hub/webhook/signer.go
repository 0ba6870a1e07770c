// Package webhook implements registration and reliable delivery of events to
// outbound HTTP targets, with HMAC-signed payloads and bounded retry.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SignaturePrefix prefixes the hex digest in the X-Signature header.
const SignaturePrefix = "sha256="

// Canonicalize renders a JSON document in canonical form: object keys sorted
// lexicographically, no insignificant whitespace, UTF-8. Numbers keep their
// source representation. Signing and verification both operate on this form,
// so the output is byte-exact for equal inputs.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	// encoding/json sorts map keys and emits compact output; json.Number
	// round-trips digits verbatim.
	return json.Marshal(doc)
}

// CanonicalizeValue is Canonicalize for an already-decoded payload.
func CanonicalizeValue(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return Canonicalize(raw)
}

// Sign computes the hex HMAC-SHA256 of the canonical payload.
func Sign(secret []byte, canonicalPayload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(canonicalPayload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeader renders the value carried in X-Signature.
func SignatureHeader(secret []byte, canonicalPayload []byte) string {
	return SignaturePrefix + Sign(secret, canonicalPayload)
}

// Verify mirrors the signing algorithm for receivers. It canonicalizes the
// payload, recomputes the digest, and compares in constant time. The header
// value may carry the "sha256=" prefix or the bare hex digest.
func Verify(payload []byte, signature string, secret []byte) bool {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return false
	}
	signature = strings.TrimPrefix(signature, SignaturePrefix)
	expected := Sign(secret, canonical)
	return hmac.Equal([]byte(expected), []byte(signature))
}
