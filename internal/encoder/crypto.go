package encoder

import (
	"fmt"

	"github.com/faanross/simulacra_img/internal/container"
	"github.com/faanross/simulacra_img/internal/scrypto"
	"github.com/faanross/simulacra_img/internal/spec"
	"github.com/sirupsen/logrus"
)

// EncryptMessage performs AES-256-CBC encryption under a fresh salt, and
// tags the result when the encoder runs in authenticated mode.
func (sse *SecureStegoEncoder) EncryptMessage(message, password []byte) (*scrypto.SecureMessage, error) {
	// Step 1: Generate random salt
	salt, err := scrypto.GenerateSalt(spec.SALT_SIZE)
	if err != nil {
		return nil, fmt.Errorf("salt generation failed: %w", err)
	}

	// Step 2: Derive keys from password
	keys, err := scrypto.DeriveKeys(password, salt, sse.cfg.Iterations, sse.cfg.Authenticate)
	if err != nil {
		return nil, err
	}
	defer scrypto.Wipe(keys.Encryption)

	sse.logger.WithFields(logrus.Fields{
		"algorithm":   "PBKDF2-SHA256",
		"iterations":  sse.cfg.Iterations,
		"salt_len":    len(salt),
		"fingerprint": scrypto.Fingerprint(keys.Encryption),
	}).Debug("key derived")

	// Step 3: Encrypt
	ivCiphertext, err := scrypto.Encrypt(message, keys.Encryption)
	if err != nil {
		return nil, fmt.Errorf("encryption failed: %w", err)
	}

	secMsg := &scrypto.SecureMessage{
		Salt:         salt,
		IVCiphertext: ivCiphertext,
		OriginalSize: len(message),
	}

	// Step 4: Encrypt-then-MAC over salt || IV || ciphertext
	if sse.cfg.Authenticate {
		defer scrypto.Wipe(keys.MAC)
		secMsg.AuthTag = scrypto.ComputeHMAC(container.BuildContainer(salt, ivCiphertext), keys.MAC)
	}

	sse.logger.WithFields(logrus.Fields{
		"original_size":  len(message),
		"encrypted_size": len(ivCiphertext) - spec.IV_SIZE,
		"authenticated":  sse.cfg.Authenticate,
	}).Debug("message encrypted")

	return secMsg, nil
}

// PrepareSecurePayload creates the final blob for embedding:
// [Length(4)][Salt(16)][IV(16)][Ciphertext][Tag(32), authenticated mode only]
func (sse *SecureStegoEncoder) PrepareSecurePayload(message, password []byte) ([]byte, error) {
	secMsg, err := sse.EncryptMessage(message, password)
	if err != nil {
		return nil, err
	}

	blob, err := container.BuildBlob(container.BuildContainer(secMsg.Salt, secMsg.ContainerBody()))
	if err != nil {
		return nil, err
	}

	sse.logger.WithFields(logrus.Fields{
		"header":     spec.HEADER_SIZE,
		"salt":       len(secMsg.Salt),
		"iv":         spec.IV_SIZE,
		"ciphertext": len(secMsg.IVCiphertext) - spec.IV_SIZE,
		"tag":        len(secMsg.AuthTag),
		"total":      len(blob),
	}).Info("secure payload prepared")

	return blob, nil
}
