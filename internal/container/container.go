// Package container frames the encrypted payload so it can be recovered from
// a bit stream of unknown length.
//
// Layout:
//
//	Blob      = Header(4, big-endian len(Container)) || Container
//	Container = Salt(16) || IV(16) || Ciphertext
package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/faanross/simulacra_img/internal/spec"
)

var (
	ErrHeaderMismatch    = errors.New("header mismatch between reads")
	ErrContainerTooSmall = errors.New("container too small")
	ErrContainerTooLarge = errors.New("container too large for header")
	ErrLengthOutOfRange  = errors.New("header length exceeds the hidden stream")
)

// BitSource returns the first n hidden bytes. Every call starts from the
// beginning of the hidden stream.
type BitSource interface {
	ReadBytes(n int) ([]byte, error)
}

// BuildContainer concatenates salt and IV||ciphertext.
func BuildContainer(salt, ivCiphertext []byte) []byte {
	out := make([]byte, 0, len(salt)+len(ivCiphertext))
	out = append(out, salt...)
	return append(out, ivCiphertext...)
}

// BuildBlob prepends the 4-byte length header.
func BuildBlob(container []byte) ([]byte, error) {
	if uint64(len(container)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d bytes", ErrContainerTooLarge, len(container))
	}
	blob := make([]byte, spec.HEADER_SIZE+len(container))
	binary.BigEndian.PutUint32(blob[:spec.HEADER_SIZE], uint32(len(container)))
	copy(blob[spec.HEADER_SIZE:], container)
	return blob, nil
}

// ParseBlob reads the header, then re-reads header+container and splits the
// container into salt and IV||ciphertext.
//
// The header comparison is not an integrity check: both reads come from the
// same deterministic source.
func ParseBlob(src BitSource, headerSize, saltSize int) (salt, ivCiphertext []byte, err error) {
	if headerSize != 4 {
		return nil, nil, fmt.Errorf("unsupported header size %d", headerSize)
	}

	header, err := src.ReadBytes(headerSize)
	if err != nil {
		return nil, nil, fmt.Errorf("header read failed: %w", err)
	}
	containerLength := binary.BigEndian.Uint32(header)

	total := uint64(headerSize) + uint64(containerLength)
	if total > math.MaxInt {
		return nil, nil, fmt.Errorf("%w: header claims %d bytes", ErrContainerTooLarge, containerLength)
	}

	full, err := src.ReadBytes(int(total))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: container read failed (header claims %d bytes): %w",
			ErrLengthOutOfRange, containerLength, err)
	}

	if !bytes.Equal(full[:headerSize], header) {
		return nil, nil, fmt.Errorf("%w: %X != %X", ErrHeaderMismatch, full[:headerSize], header)
	}

	c := full[headerSize:]
	if len(c) < saltSize {
		return nil, nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrContainerTooSmall, len(c), saltSize)
	}

	return c[:saltSize], c[saltSize:], nil
}

// Parse is ParseBlob with the standard header and salt sizes.
func Parse(src BitSource) (salt, ivCiphertext []byte, err error) {
	return ParseBlob(src, spec.HEADER_SIZE, spec.SALT_SIZE)
}
