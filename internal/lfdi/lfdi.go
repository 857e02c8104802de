// Package lfdi derives IEEE 2030.5 device identifiers from TLS certificate
// material forwarded by the TLS-terminating proxy.
package lfdi

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Length of an LFDI rendered as hex: 160 bits / 4 bits per char.
const HexLength = 40

// FingerprintHexLength is the length of a full SHA-256 fingerprint in hex.
const FingerprintHexLength = 64

// FromPEM computes the LFDI for a PEM-armored X.509 certificate: the first
// 20 bytes of the SHA-256 digest of the DER encoding, lowercase hex.
func FromPEM(pemData string) (string, error) {
	der, err := derFromPEM(pemData)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(der)
	return hex.EncodeToString(digest[:20]), nil
}

// FromFingerprint converts a 64-hex-char SHA-256 certificate fingerprint
// (possibly percent-encoded) to an LFDI by left truncation.
func FromFingerprint(fingerprint string) (string, error) {
	decoded, err := url.QueryUnescape(fingerprint)
	if err != nil {
		return "", fmt.Errorf("malformed fingerprint encoding: %w", err)
	}
	decoded = strings.ToLower(strings.TrimSpace(decoded))
	if len(decoded) != FingerprintHexLength {
		return "", fmt.Errorf("fingerprint must be %d hex chars, got %d", FingerprintHexLength, len(decoded))
	}
	if _, err := hex.DecodeString(decoded); err != nil {
		return "", fmt.Errorf("fingerprint is not hex: %w", err)
	}
	return decoded[:HexLength], nil
}

// ExpiryFromPEM parses the certificate and returns its NotAfter instant.
func ExpiryFromPEM(pemData string) (time.Time, error) {
	der, err := derFromPEM(pemData)
	if err != nil {
		return time.Time{}, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing certificate: %w", err)
	}
	return cert.NotAfter, nil
}

// IsPEM reports whether the forwarded certificate header value carries a full
// PEM certificate rather than a bare fingerprint.
func IsPEM(headerValue string) bool {
	return strings.HasPrefix(strings.TrimSpace(headerValue), "-----BEGIN")
}

// SFDIFromLFDI derives the short-form device identifier: the left-most 36
// bits of the LFDI interpreted as an unsigned integer, with a sum-of-digits
// check digit appended. Inputs shorter than 10 hex chars are rejected.
func SFDIFromLFDI(lfdiHex string) (uint64, error) {
	lfdiHex = strings.ToLower(strings.TrimSpace(lfdiHex))
	if len(lfdiHex) < 10 {
		return 0, fmt.Errorf("lfdi too short to derive sfdi: %q", lfdiHex)
	}
	// 36 bits = 9 hex chars.
	value, err := strconv.ParseUint(lfdiHex[:9], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("lfdi is not hex: %w", err)
	}
	return value*10 + checkDigit(value), nil
}

// checkDigit returns the digit c such that the decimal digit sum of the
// final identifier (value*10 + c) is a multiple of ten.
func checkDigit(value uint64) uint64 {
	var sum uint64
	for v := value; v > 0; v /= 10 {
		sum += v % 10
	}
	return (10 - sum%10) % 10
}

// Normalize lowercases an LFDI and validates its shape.
func Normalize(lfdiHex string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(lfdiHex))
	if len(normalized) != HexLength {
		return "", fmt.Errorf("lfdi must be %d hex chars, got %d", HexLength, len(normalized))
	}
	if _, err := hex.DecodeString(normalized); err != nil {
		return "", fmt.Errorf("lfdi is not hex: %w", err)
	}
	return normalized, nil
}

func derFromPEM(pemData string) ([]byte, error) {
	lines := strings.Split(strings.TrimSpace(pemData), "\n")
	if len(lines) < 3 {
		return nil, fmt.Errorf("certificate PEM too short")
	}
	if !strings.HasPrefix(lines[0], "-----BEGIN") || !strings.HasPrefix(lines[len(lines)-1], "-----END") {
		return nil, fmt.Errorf("certificate PEM missing armor")
	}
	body := strings.Join(lines[1:len(lines)-1], "")
	body = strings.ReplaceAll(body, "\r", "")
	body = strings.ReplaceAll(body, " ", "")
	der, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("certificate PEM body is not base64: %w", err)
	}
	return der, nil
}
