package decoder

import (
	"errors"
	"fmt"
	"math"

	"github.com/faanross/simulacra_img/internal/stego"
	"github.com/sirupsen/logrus"
)

var ErrNoPasswordMatched = errors.New("no password matched")

// SecurityReport describes the LSB plane of a carrier.
type SecurityReport struct {
	Samples       int
	ZeroRatio     float64   // percentage of LSBs that are 0
	Entropy       float64   // Shannon entropy of the packed LSB bytes, max 8.0
	ChannelMeans  []float64 // mean sample value per channel
	CapacityBytes int
}

// LooksRandom reports whether the LSB plane is close to uniform.
func (r SecurityReport) LooksRandom() bool {
	return r.ZeroRatio > 45 && r.ZeroRatio < 55
}

// AnalyzeSecurity performs security analysis on the carrier
func AnalyzeSecurity(pb *stego.PixelBuffer) SecurityReport {
	report := SecurityReport{
		Samples:       len(pb.Pix),
		ChannelMeans:  make([]float64, pb.Channels),
		CapacityBytes: stego.Capacity(pb),
	}
	if len(pb.Pix) == 0 || pb.Channels == 0 {
		return report
	}

	zeros := 0
	sums := make([]int64, pb.Channels)
	frequency := make(map[byte]int)
	bitBuffer := byte(0)
	bitCount := 0
	packed := 0

	for i, v := range pb.Pix {
		sums[i%pb.Channels] += int64(v)

		bit := v & 1
		if bit == 0 {
			zeros++
		}
		bitBuffer |= bit << (7 - bitCount)
		bitCount++
		if bitCount == 8 {
			frequency[bitBuffer]++
			packed++
			bitBuffer = 0
			bitCount = 0
		}
	}

	report.ZeroRatio = float64(zeros) / float64(len(pb.Pix)) * 100

	pixels := len(pb.Pix) / pb.Channels
	for c := range sums {
		report.ChannelMeans[c] = float64(sums[c]) / float64(pixels)
	}

	for _, count := range frequency {
		p := float64(count) / float64(packed)
		report.Entropy -= p * math.Log2(p)
	}

	return report
}

// TryMultiplePasswords attempts extraction with each password in turn and
// returns the first success along with the password that worked.
func (ssd *SecureStegoDecoder) TryMultiplePasswords(pb *stego.PixelBuffer, passwords []string) (*ExtractedMessage, string, error) {
	for i, pass := range passwords {
		result, err := ssd.ExtractMessage(pb, []byte(pass))
		if err != nil {
			ssd.logger.WithFields(logrus.Fields{
				"attempt": i + 1,
				"total":   len(passwords),
			}).WithError(err).Debug("password rejected")
			continue
		}
		return result, pass, nil
	}
	return nil, "", fmt.Errorf("%w: all %d passwords failed", ErrNoPasswordMatched, len(passwords))
}
