package devicecode

import "crypto/rand"

const (
	userCodeLength   = 8
	deviceCodeLength = 128

	// No I, O, 0, or 1: those are easy to misread when typed by hand.
	userCodeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	deviceCodeAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateUserCode returns the short code a person types into the browser
// (e.g. "BDFH3579"). Uses crypto/rand for randomness.
func GenerateUserCode() (string, error) {
	return randomCode(userCodeLength, userCodeAlphabet)
}

// GenerateDeviceCode returns the long opaque code the device polls with.
func GenerateDeviceCode() (string, error) {
	return randomCode(deviceCodeLength, deviceCodeAlphabet)
}

func randomCode(length int, alphabet string) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := make([]byte, length)
	for i := 0; i < length; i++ {
		s[i] = alphabet[int(b[i])%len(alphabet)]
	}
	return string(s), nil
}
