package lfdi

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSignedPEM generates a throwaway client certificate and returns its PEM
// encoding alongside the raw DER bytes.
func selfSignedPEM(t *testing.T) (string, []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "device-0001"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return string(pemBytes), der
}

func TestFromPEM_MatchesTruncatedSHA256(t *testing.T) {
	pemData, der := selfSignedPEM(t)

	got, err := FromPEM(pemData)
	require.NoError(t, err)

	digest := sha256.Sum256(der)
	want := hex.EncodeToString(digest[:20])

	assert.Equal(t, want, got)
	assert.Len(t, got, HexLength)
	assert.Equal(t, strings.ToLower(got), got)
}

func TestFromPEM_RejectsGarbage(t *testing.T) {
	_, err := FromPEM("not a certificate")
	assert.Error(t, err)

	_, err = FromPEM("-----BEGIN CERTIFICATE-----\n!!!notbase64!!!\n-----END CERTIFICATE-----")
	assert.Error(t, err)
}

func TestFromFingerprint(t *testing.T) {
	fp := "3E4F45AB31EDFE5B67E343E5E4562E31984E23E5A5B4C3D2E1F0123456789ABC"
	got, err := FromFingerprint(fp)
	require.NoError(t, err)
	assert.Equal(t, "3e4f45ab31edfe5b67e343e5e4562e31984e23e5", got)

	// Percent-encoded whitespace decodes and trims away.
	got, err = FromFingerprint("3E4F45AB31EDFE5B67E343E5E4562E31984E23E5A5B4C3D2E1F0123456789ABC%20")
	require.NoError(t, err)
	assert.Equal(t, "3e4f45ab31edfe5b67e343e5e4562e31984e23e5", got)

	_, err = FromFingerprint("abcd")
	assert.Error(t, err)

	_, err = FromFingerprint(strings.Repeat("z", 64))
	assert.Error(t, err)
}

func TestSFDIFromLFDI_KnownVector(t *testing.T) {
	sfdi, err := SFDIFromLFDI("3e4f45ab31edfe5b67e343e5e4562e31984e23e5")
	require.NoError(t, err)
	assert.Equal(t, uint64(167261211391), sfdi)
}

func TestSFDIFromLFDI_CheckDigit(t *testing.T) {
	sfdi, err := SFDIFromLFDI("0000000010aabbccdd")
	require.NoError(t, err)

	// Digit sum of the final identifier is always a multiple of ten.
	var sum uint64
	for v := sfdi; v > 0; v /= 10 {
		sum += v % 10
	}
	assert.Zero(t, sum%10)
}

func TestSFDIFromLFDI_RejectsShortInput(t *testing.T) {
	_, err := SFDIFromLFDI("123456789")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("3E4F45AB31EDFE5B67E343E5E4562E31984E23E5")
	require.NoError(t, err)
	assert.Equal(t, "3e4f45ab31edfe5b67e343e5e4562e31984e23e5", got)

	_, err = Normalize("short")
	assert.Error(t, err)
}

func TestIsPEM(t *testing.T) {
	assert.True(t, IsPEM("-----BEGIN CERTIFICATE-----"))
	assert.False(t, IsPEM("3e4f45ab31edfe5b67e343e5e4562e31984e23e5"))
}
