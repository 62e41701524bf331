package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

const codeDigits = 6

// GenerateOTP returns a 6-digit numeric code (e.g. "123456") from crypto/rand.
// Bytes of 250 and above are redrawn so every digit is equally likely.
func GenerateOTP() (string, error) {
	out := make([]byte, 0, codeDigits)
	buf := make([]byte, codeDigits)
	for len(out) < codeDigits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 || len(out) == codeDigits {
				continue
			}
			out = append(out, '0'+b%10)
		}
	}
	return string(out), nil
}

// HashOTP returns the hex-encoded SHA-256 of code.
func HashOTP(code string) string {
	h := sha256.Sum256([]byte(code))
	return hex.EncodeToString(h[:])
}

// OTPEqual compares the hash of provided against storedHash in constant time. An empty code never matches.
func OTPEqual(provided, storedHash string) bool {
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashOTP(provided)), []byte(storedHash)) == 1
}
