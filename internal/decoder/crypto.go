package decoder

import (
	"fmt"

	"github.com/faanross/simulacra_img/internal/container"
	"github.com/faanross/simulacra_img/internal/scrypto"
	"github.com/faanross/simulacra_img/internal/spec"
	"github.com/sirupsen/logrus"
)

// ExtractedMessage contains decrypted message and metadata
type ExtractedMessage struct {
	Message       []byte
	EncryptedSize int
	DecryptedSize int
	Authenticated bool
}

// DecryptPayload decrypts the extracted payload. Without authentication a
// wrong password usually fails on padding, but it can also return garbage.
func (ssd *SecureStegoDecoder) DecryptPayload(salt, ivCiphertext, password []byte) (*ExtractedMessage, error) {
	keys, err := scrypto.DeriveKeys(password, salt, ssd.cfg.Iterations, ssd.cfg.Authenticate)
	if err != nil {
		return nil, err
	}
	defer scrypto.Wipe(keys.Encryption)

	ssd.logger.WithFields(logrus.Fields{
		"iterations":  ssd.cfg.Iterations,
		"fingerprint": scrypto.Fingerprint(keys.Encryption),
	}).Debug("key derived")

	body := ivCiphertext
	if ssd.cfg.Authenticate {
		defer scrypto.Wipe(keys.MAC)

		if len(body) < spec.MAC_SIZE {
			return nil, fmt.Errorf("%w: container has no room for a tag", scrypto.ErrAuthenticationFailed)
		}
		tag := body[len(body)-spec.MAC_SIZE:]
		body = body[:len(body)-spec.MAC_SIZE]

		if err := scrypto.VerifyHMAC(container.BuildContainer(salt, body), tag, keys.MAC); err != nil {
			return nil, fmt.Errorf("%w: wrong password or corrupted data", err)
		}
		ssd.logger.Debug("authentication tag verified")
	}

	plaintext, err := scrypto.Decrypt(body, keys.Encryption)
	if err != nil {
		return nil, err
	}

	ssd.logger.WithFields(logrus.Fields{
		"encrypted_size": len(body),
		"decrypted_size": len(plaintext),
	}).Info("payload decrypted")

	return &ExtractedMessage{
		Message:       plaintext,
		EncryptedSize: len(body),
		DecryptedSize: len(plaintext),
		Authenticated: ssd.cfg.Authenticate,
	}, nil
}
