package decoder

import (
	"errors"
	"fmt"

	"github.com/faanross/simulacra_img/internal/container"
	"github.com/faanross/simulacra_img/internal/scrypto"
	"github.com/faanross/simulacra_img/internal/spec"
	"github.com/faanross/simulacra_img/internal/stego"
	"github.com/sirupsen/logrus"
)

// SecureStegoDecoder handles extraction and decryption
type SecureStegoDecoder struct {
	cfg    spec.Config
	logger *logrus.Logger
}

// NewSecureStegoDecoder creates a decoder instance
func NewSecureStegoDecoder(cfg spec.Config, logger *logrus.Logger) *SecureStegoDecoder {
	if logger == nil {
		logger = logrus.New()
	}
	return &SecureStegoDecoder{
		cfg:    cfg,
		logger: logger,
	}
}

// ExtractSecurePayload recovers salt and IV||ciphertext from pb with the
// two-phase header/container read.
func (ssd *SecureStegoDecoder) ExtractSecurePayload(pb *stego.PixelBuffer, password []byte) (salt, ivCiphertext []byte, err error) {
	if err := pb.Validate(); err != nil {
		return nil, nil, err
	}

	permKey, err := scrypto.PermutationKey(password, ssd.cfg.HardenedPermutation, ssd.cfg.Iterations)
	if err != nil {
		return nil, nil, err
	}

	reader := stego.NewReader(pb, permKey)
	salt, ivCiphertext, err = container.Parse(reader)
	if err != nil {
		if implausibleFraming(err) {
			// A readable header with an impossible length is what a wrong
			// passphrase looks like.
			return nil, nil, fmt.Errorf("%w: wrong password or no hidden message: %w",
				scrypto.ErrDecryptionFailure, err)
		}
		return nil, nil, fmt.Errorf("extraction failed: %w", err)
	}

	ssd.logger.WithFields(logrus.Fields{
		"dimensions":    fmt.Sprintf("%dx%dx%d", pb.Width, pb.Height, pb.Channels),
		"container_len": len(salt) + len(ivCiphertext),
	}).Debug("secure payload extracted")

	return salt, ivCiphertext, nil
}

// ExtractMessage runs the full extraction pipeline.
func (ssd *SecureStegoDecoder) ExtractMessage(pb *stego.PixelBuffer, password []byte) (*ExtractedMessage, error) {
	if err := ssd.cfg.Validate(); err != nil {
		return nil, err
	}

	salt, ivCiphertext, err := ssd.ExtractSecurePayload(pb, password)
	if err != nil {
		return nil, err
	}

	return ssd.DecryptPayload(salt, ivCiphertext, password)
}

func implausibleFraming(err error) bool {
	return errors.Is(err, container.ErrLengthOutOfRange) ||
		errors.Is(err, container.ErrContainerTooSmall) ||
		errors.Is(err, container.ErrContainerTooLarge)
}
