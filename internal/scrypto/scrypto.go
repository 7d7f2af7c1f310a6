package scrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/faanross/simulacra_img/internal/spec"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/term"
)

var (
	ErrKeyDerivation        = errors.New("key derivation failed")
	ErrRandomSource         = errors.New("random source unavailable")
	ErrInvalidKeySize       = errors.New("invalid key size")
	ErrTruncatedCiphertext  = errors.New("ciphertext too short to contain an IV")
	ErrDecryptionFailure    = errors.New("decryption failed")
	ErrAuthenticationFailed = errors.New("authentication failed")
)

// randReader is swapped in tests to simulate an unavailable entropy source.
var randReader io.Reader = rand.Reader

// DeriveKey stretches password into keyLength bytes with PBKDF2-HMAC-SHA256.
func DeriveKey(password, salt []byte, iterations, keyLength int) ([]byte, error) {
	if iterations < 1 {
		return nil, fmt.Errorf("%w: iterations must be positive, got %d", ErrKeyDerivation, iterations)
	}
	if keyLength < 1 {
		return nil, fmt.Errorf("%w: key length must be positive, got %d", ErrKeyDerivation, keyLength)
	}
	return pbkdf2.Key(password, salt, iterations, keyLength, sha256.New), nil
}

// GenerateSalt draws length bytes from the system CSPRNG.
func GenerateSalt(length int) ([]byte, error) {
	return randomBytes(length)
}

// Fingerprint returns the first 4 bytes of key as hex, safe to log.
func Fingerprint(key []byte) string {
	if len(key) < 4 {
		return fmt.Sprintf("%X", key)
	}
	return fmt.Sprintf("%X", key[:4])
}

// GeneratePassphrase returns a random hex passphrase for users who did not
// pick one.
func GeneratePassphrase() (string, error) {
	raw, err := randomBytes(spec.GENERATED_PASS_SIZE)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// GetSecurePassword prompts for password with hidden input
func GetSecurePassword(prompt string) ([]byte, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // New line after password

	if err != nil {
		return nil, fmt.Errorf("password read failed: %w", err)
	}

	if len(password) == 0 {
		return nil, fmt.Errorf("password cannot be empty")
	}

	return password, nil
}

// CanPrompt reports whether stdin is an interactive terminal.
func CanPrompt() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRandomSource, err)
	}
	return b, nil
}
