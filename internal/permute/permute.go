// Package permute derives the keyed ordering of carrier positions.
//
// The generator is a ChaCha20 keystream keyed with SHA-256(keyBytes) under an
// all-zero nonce. Draws are defined entirely by this package, so a sequence
// is reproducible on any platform and Go release.
package permute

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"golang.org/x/crypto/chacha20"
)

const streamBufSize = 4096

// Stream is a deterministic keystream consumed in little-endian words.
type Stream struct {
	cipher *chacha20.Cipher
	zero   [streamBufSize]byte
	buf    [streamBufSize]byte
	pos    int

	bits    byte
	bitsCnt int
}

// NewStream seeds a stream from arbitrary key material.
func NewStream(keyBytes []byte) *Stream {
	seed := sha256.Sum256(keyBytes)
	var nonce [chacha20.NonceSize]byte

	// Only fails on bad key or nonce lengths, which are fixed here.
	c, err := chacha20.NewUnauthenticatedCipher(seed[:], nonce[:])
	if err != nil {
		panic("permute: " + err.Error())
	}
	s := &Stream{cipher: c}
	s.refill()
	return s
}

func (s *Stream) refill() {
	s.cipher.XORKeyStream(s.buf[:], s.zero[:])
	s.pos = 0
}

func (s *Stream) nextByte() byte {
	if s.pos == len(s.buf) {
		s.refill()
	}
	b := s.buf[s.pos]
	s.pos++
	return b
}

// Uint64 returns the next 8 keystream bytes as a little-endian word.
func (s *Stream) Uint64() uint64 {
	if len(s.buf)-s.pos < 8 {
		var w [8]byte
		for i := range w {
			w[i] = s.nextByte()
		}
		return binary.LittleEndian.Uint64(w[:])
	}
	v := binary.LittleEndian.Uint64(s.buf[s.pos:])
	s.pos += 8
	return v
}

// Uint64n returns a uniform value in [0, n) by rejection sampling. n must be
// non-zero.
func (s *Stream) Uint64n(n uint64) uint64 {
	if n&(n-1) == 0 {
		return s.Uint64() & (n - 1)
	}
	limit := math.MaxUint64 - math.MaxUint64%n
	for {
		v := s.Uint64()
		if v < limit {
			return v % n
		}
	}
}

// Flip returns one fair bit, least significant bit of each byte first.
func (s *Stream) Flip() bool {
	if s.bitsCnt == 0 {
		s.bits = s.nextByte()
		s.bitsCnt = 8
	}
	bit := s.bits & 1
	s.bits >>= 1
	s.bitsCnt--
	return bit == 1
}

// GenerateIndexSequence returns a keyed Fisher-Yates shuffle of
// [0, totalBits).
func GenerateIndexSequence(totalBits int, keyBytes []byte) []int {
	if totalBits <= 0 {
		return []int{}
	}

	indices := make([]int, totalBits)
	for i := range indices {
		indices[i] = i
	}

	s := NewStream(keyBytes)
	for i := totalBits - 1; i > 0; i-- {
		j := int(s.Uint64n(uint64(i) + 1))
		indices[i], indices[j] = indices[j], indices[i]
	}
	return indices
}

// NewCoinFlipper returns the masking generator. It is seeded exactly like
// the shuffle generator.
func NewCoinFlipper(keyBytes []byte) *Stream {
	return NewStream(keyBytes)
}
