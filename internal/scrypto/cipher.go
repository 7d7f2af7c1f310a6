package scrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"

	"github.com/faanross/simulacra_img/internal/spec"
)

// Encrypt performs AES-256-CBC encryption with PKCS#7 padding under a fresh
// random IV and returns IV || ciphertext.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) != spec.KEY_SIZE {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKeySize, spec.KEY_SIZE, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}

	iv, err := randomBytes(spec.IV_SIZE)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)

	out := make([]byte, spec.IV_SIZE+len(padded))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[spec.IV_SIZE:], padded)

	return out, nil
}

// Decrypt reverses Encrypt. CBC carries no authentication: a wrong key
// usually surfaces as ErrDecryptionFailure (bad padding) but can, rarely,
// yield garbage plaintext without any error.
func Decrypt(ivCiphertext, key []byte) ([]byte, error) {
	if len(key) != spec.KEY_SIZE {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", ErrInvalidKeySize, spec.KEY_SIZE, len(key))
	}
	if len(ivCiphertext) < spec.IV_SIZE {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedCiphertext, len(ivCiphertext))
	}

	iv := ivCiphertext[:spec.IV_SIZE]
	ciphertext := ivCiphertext[spec.IV_SIZE:]

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d",
			ErrDecryptionFailure, len(ciphertext), aes.BlockSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher creation failed: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v (wrong password or corrupted data?)", ErrDecryptionFailure, err)
	}
	return unpadded, nil
}

// ComputeHMAC returns HMAC-SHA256(key, data).
func ComputeHMAC(data, key []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// VerifyHMAC compares tag against HMAC-SHA256(key, data) in constant time.
func VerifyHMAC(data, tag, key []byte) error {
	if !hmac.Equal(ComputeHMAC(data, key), tag) {
		return ErrAuthenticationFailed
	}
	return nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("invalid padding")
	}
	// Check every pad byte without an early exit.
	good := 1
	for _, b := range data[len(data)-n:] {
		good &= subtle.ConstantTimeByteEq(b, byte(n))
	}
	if good != 1 {
		return nil, fmt.Errorf("invalid padding")
	}
	return data[:len(data)-n], nil
}
