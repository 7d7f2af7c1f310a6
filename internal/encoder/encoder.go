package encoder

import (
	"fmt"

	"github.com/faanross/simulacra_img/internal/scrypto"
	"github.com/faanross/simulacra_img/internal/spec"
	"github.com/faanross/simulacra_img/internal/stego"
	"github.com/sirupsen/logrus"
)

// SecureStegoEncoder handles encrypted steganography
type SecureStegoEncoder struct {
	cfg    spec.Config
	logger *logrus.Logger
}

// EmbedReport summarises one embedding.
type EmbedReport struct {
	MessageSize int
	BlobSize    int
	BitsUsed    int
	Capacity    int // bytes
	Utilization float64
}

// NewSecureStegoEncoder creates an encoder with encryption. A nil logger
// falls back to a fresh logrus.Logger.
func NewSecureStegoEncoder(cfg spec.Config, logger *logrus.Logger) *SecureStegoEncoder {
	if logger == nil {
		logger = logrus.New()
	}
	return &SecureStegoEncoder{
		cfg:    cfg,
		logger: logger,
	}
}

// EmbedMessage encrypts message under password and hides it in pb. On error
// pb is left untouched.
func (sse *SecureStegoEncoder) EmbedMessage(pb *stego.PixelBuffer, message, password []byte) (*EmbedReport, error) {
	if err := sse.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := pb.Validate(); err != nil {
		return nil, err
	}

	blob, err := sse.PrepareSecurePayload(message, password)
	if err != nil {
		return nil, err
	}

	report := sse.CalculateUtilization(pb, blob)
	if report.BitsUsed > len(pb.Pix) {
		return nil, fmt.Errorf("%w: payload needs %d bytes, image holds %d",
			stego.ErrCapacityExceeded, report.BlobSize, report.Capacity)
	}

	permKey, err := scrypto.PermutationKey(password, sse.cfg.HardenedPermutation, sse.cfg.Iterations)
	if err != nil {
		return nil, err
	}

	if err := stego.Embed(pb, blob, permKey, sse.cfg.Concurrent); err != nil {
		return nil, err
	}

	sse.logger.WithFields(logrus.Fields{
		"bits":       report.BitsUsed,
		"concurrent": sse.cfg.Concurrent,
		"hardened":   sse.cfg.HardenedPermutation,
	}).Info("payload embedded")

	report.MessageSize = len(message)
	return report, nil
}

// CalculateUtilization determines how much of the carrier the blob takes.
func (sse *SecureStegoEncoder) CalculateUtilization(pb *stego.PixelBuffer, blob []byte) *EmbedReport {
	totalBits := len(blob) * spec.BITS_PER_BYTE
	report := &EmbedReport{
		BlobSize: len(blob),
		BitsUsed: totalBits,
		Capacity: stego.Capacity(pb),
	}
	if len(pb.Pix) > 0 {
		report.Utilization = float64(totalBits) * 100 / float64(len(pb.Pix))
	}

	sse.logger.WithFields(logrus.Fields{
		"payload_bytes": len(blob),
		"bits_needed":   totalBits,
		"dimensions":    fmt.Sprintf("%dx%dx%d", pb.Width, pb.Height, pb.Channels),
		"capacity_bits": len(pb.Pix),
		"utilization":   fmt.Sprintf("%.1f%%", report.Utilization),
	}).Debug("steganography parameters")

	return report
}
