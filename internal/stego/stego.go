package stego

import (
	"errors"
	"fmt"

	"github.com/faanross/simulacra_img/internal/permute"
	"github.com/faanross/simulacra_img/internal/spec"
	"golang.org/x/sync/errgroup"
)

var (
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrInvalidBuffer    = errors.New("invalid pixel buffer")
)

// PixelBuffer is a flat, row-major run of 8-bit samples with no row padding.
type PixelBuffer struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// Validate checks len(Pix) == Width*Height*Channels.
func (pb *PixelBuffer) Validate() error {
	if pb == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if pb.Width < 0 || pb.Height < 0 {
		return fmt.Errorf("%w: negative dimensions %dx%d", ErrInvalidBuffer, pb.Width, pb.Height)
	}
	if pb.Channels < 1 || pb.Channels > spec.MAX_CHANNELS {
		return fmt.Errorf("%w: %d channels", ErrInvalidBuffer, pb.Channels)
	}
	if want := pb.Width * pb.Height * pb.Channels; len(pb.Pix) != want {
		return fmt.Errorf("%w: %d bytes for %dx%dx%d (want %d)",
			ErrInvalidBuffer, len(pb.Pix), pb.Width, pb.Height, pb.Channels, want)
	}
	return nil
}

// Capacity returns how many payload bytes the buffer can carry, one bit per
// sample byte.
func Capacity(pb *PixelBuffer) int {
	return len(pb.Pix) / spec.BITS_PER_BYTE
}

// Embed writes blob into the LSBs of the keyed positions of pb.Pix and
// perturbs every remaining position by ±1 to mask which bytes carry data.
//
// With concurrent set, the payload and masking passes run in separate
// goroutines. They touch disjoint indices and are joined before return.
func Embed(pb *PixelBuffer, blob, keyBytes []byte, concurrent bool) error {
	totalBits := len(pb.Pix)
	messageBits := uint64(len(blob)) * spec.BITS_PER_BYTE
	if messageBits > uint64(totalBits) {
		return fmt.Errorf("%w: need %d bits, image holds %d", ErrCapacityExceeded, messageBits, totalBits)
	}

	indices := permute.GenerateIndexSequence(totalBits, keyBytes)
	payload := indices[:messageBits]
	rest := indices[messageBits:]

	if !concurrent {
		writeBits(pb.Pix, blob, payload)
		maskBytes(pb.Pix, rest, keyBytes)
		return nil
	}

	var g errgroup.Group
	g.Go(func() error {
		writeBits(pb.Pix, blob, payload)
		return nil
	})
	g.Go(func() error {
		maskBytes(pb.Pix, rest, keyBytes)
		return nil
	})
	return g.Wait()
}

// Extract reads messageLength bytes back out of the keyed positions.
func Extract(pb *PixelBuffer, messageLength int, keyBytes []byte) ([]byte, error) {
	if messageLength < 0 {
		return nil, fmt.Errorf("negative message length %d", messageLength)
	}
	totalBits := len(pb.Pix)
	messageBits := uint64(messageLength) * spec.BITS_PER_BYTE
	if messageBits > uint64(totalBits) {
		return nil, fmt.Errorf("%w: need %d bits, image holds %d", ErrCapacityExceeded, messageBits, totalBits)
	}

	indices := permute.GenerateIndexSequence(totalBits, keyBytes)
	return readBits(pb.Pix, indices, messageLength), nil
}

// writeBits sets pix[positions[i]]'s LSB to bit i of blob, MSB first.
func writeBits(pix, blob []byte, positions []int) {
	for bitIndex, pos := range positions {
		bit := (blob[bitIndex/8] >> (7 - bitIndex%8)) & 1
		pix[pos] = (pix[pos] & 0xFE) | bit
	}
}

// maskBytes nudges each position by one, clamped to stay inside [0, 255].
func maskBytes(pix []byte, positions []int, keyBytes []byte) {
	coin := permute.NewCoinFlipper(keyBytes)
	for _, pos := range positions {
		up := coin.Flip()
		switch pix[pos] {
		case 0:
			up = true
		case 255:
			up = false
		}
		if up {
			pix[pos]++
		} else {
			pix[pos]--
		}
	}
}

func readBits(pix []byte, indices []int, messageLength int) []byte {
	out := make([]byte, messageLength)
	for bitIndex := 0; bitIndex < messageLength*spec.BITS_PER_BYTE; bitIndex++ {
		bit := pix[indices[bitIndex]] & 1
		out[bitIndex/8] |= bit << (7 - bitIndex%8)
	}
	return out
}

// Reader serves repeated prefix reads of the hidden stream, computing the
// keyed index sequence once.
type Reader struct {
	pb      *PixelBuffer
	indices []int
}

// NewReader prepares a reader over pb for keyBytes.
func NewReader(pb *PixelBuffer, keyBytes []byte) *Reader {
	return &Reader{
		pb:      pb,
		indices: permute.GenerateIndexSequence(len(pb.Pix), keyBytes),
	}
}

// ReadBytes returns the first n hidden bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d", n)
	}
	if uint64(n)*spec.BITS_PER_BYTE > uint64(len(r.pb.Pix)) {
		return nil, fmt.Errorf("%w: need %d bits, image holds %d",
			ErrCapacityExceeded, uint64(n)*spec.BITS_PER_BYTE, len(r.pb.Pix))
	}
	return readBits(r.pb.Pix, r.indices, n), nil
}
