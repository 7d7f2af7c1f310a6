package decoder

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faanross/simulacra_img/internal/container"
	"github.com/faanross/simulacra_img/internal/encoder"
	"github.com/faanross/simulacra_img/internal/scrypto"
	"github.com/faanross/simulacra_img/internal/spec"
	"github.com/faanross/simulacra_img/internal/stego"
)

func fastConfig() spec.Config {
	cfg := spec.DefaultConfig()
	cfg.Iterations = 100
	return cfg
}

func newCover(w, h, c int, seed int64) *stego.PixelBuffer {
	pix := make([]byte, w*h*c)
	rand.New(rand.NewSource(seed)).Read(pix)
	return &stego.PixelBuffer{Width: w, Height: h, Channels: c, Pix: pix}
}

func embed(t *testing.T, cfg spec.Config, pb *stego.PixelBuffer, msg, pass string) {
	t.Helper()
	_, err := encoder.NewSecureStegoEncoder(cfg, nil).EmbedMessage(pb, []byte(msg), []byte(pass))
	require.NoError(t, err)
}

func TestRoundTrip(t *testing.T) {
	pb := newCover(100, 100, 3, 1)
	embed(t, fastConfig(), pb, "hi", "test")

	result, err := NewSecureStegoDecoder(fastConfig(), nil).ExtractMessage(pb, []byte("test"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), result.Message)
	assert.Equal(t, 2, result.DecryptedSize)
	assert.Equal(t, 32, result.EncryptedSize)
	assert.False(t, result.Authenticated)
}

func TestRoundTripMessageSizes(t *testing.T) {
	for _, size := range []int{0, 1, 15, 16, 17, 1000} {
		msg := make([]byte, size)
		rand.New(rand.NewSource(int64(size))).Read(msg)

		pb := newCover(64, 64, 4, int64(size))
		embed(t, fastConfig(), pb, string(msg), "pw")

		result, err := NewSecureStegoDecoder(fastConfig(), nil).ExtractMessage(pb, []byte("pw"))
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, msg, result.Message, "size %d", size)
	}
}

func TestRoundTripGrayscaleConcurrent(t *testing.T) {
	cfg := fastConfig()
	cfg.Concurrent = true

	pb := newCover(80, 60, 1, 9)
	embed(t, cfg, pb, "single channel", "gray")

	// Concurrency only affects how the embed runs, not what it writes.
	result, err := NewSecureStegoDecoder(fastConfig(), nil).ExtractMessage(pb, []byte("gray"))
	require.NoError(t, err)
	assert.Equal(t, "single channel", string(result.Message))
}

func TestWrongPasswordReportsDecryptionFailure(t *testing.T) {
	pb := newCover(100, 100, 3, 2)
	embed(t, fastConfig(), pb, "hi", "test")
	dec := NewSecureStegoDecoder(fastConfig(), nil)

	const trials = 60
	classified := 0
	for i := 0; i < trials; i++ {
		result, err := dec.ExtractMessage(pb, []byte(fmt.Sprintf("wrong%d", i)))
		if err == nil {
			assert.NotEqual(t, []byte("hi"), result.Message)
			continue
		}
		if assertIsAny(err, scrypto.ErrDecryptionFailure, container.ErrHeaderMismatch) {
			classified++
		}
	}
	assert.GreaterOrEqual(t, classified, trials*9/10)
}

func TestWrongPasswordKeepsFramingCause(t *testing.T) {
	pb := newCover(100, 100, 3, 14)
	embed(t, fastConfig(), pb, "hi", "test")

	_, err := NewSecureStegoDecoder(fastConfig(), nil).ExtractMessage(pb, []byte("wrong"))
	require.Error(t, err)
	if errors.Is(err, container.ErrLengthOutOfRange) {
		assert.ErrorIs(t, err, scrypto.ErrDecryptionFailure)
		assert.ErrorIs(t, err, stego.ErrCapacityExceeded)
	}
}

func TestIterationMismatchFails(t *testing.T) {
	pb := newCover(100, 100, 3, 3)
	embed(t, fastConfig(), pb, "hi", "test")

	cfg := fastConfig()
	cfg.Iterations = 101
	result, err := NewSecureStegoDecoder(cfg, nil).ExtractMessage(pb, []byte("test"))
	if err == nil {
		assert.NotEqual(t, []byte("hi"), result.Message)
	}
}

func TestAuthenticatedRoundTrip(t *testing.T) {
	cfg := fastConfig()
	cfg.Authenticate = true

	pb := newCover(100, 100, 3, 4)
	embed(t, cfg, pb, "tagged", "test")

	dec := NewSecureStegoDecoder(cfg, nil)
	result, err := dec.ExtractMessage(pb, []byte("test"))
	require.NoError(t, err)
	assert.Equal(t, "tagged", string(result.Message))
	assert.True(t, result.Authenticated)
	assert.Equal(t, 16+spec.IV_SIZE, result.EncryptedSize)
}

func TestAuthenticatedRejectsTampering(t *testing.T) {
	cfg := fastConfig()
	cfg.Authenticate = true

	pb := newCover(100, 100, 3, 5)
	embed(t, cfg, pb, "tagged", "test")

	dec := NewSecureStegoDecoder(cfg, nil)
	salt, body, err := dec.ExtractSecurePayload(pb, []byte("test"))
	require.NoError(t, err)

	tampered := append([]byte(nil), body...)
	tampered[spec.IV_SIZE] ^= 0x01
	_, err = dec.DecryptPayload(salt, tampered, []byte("test"))
	assert.ErrorIs(t, err, scrypto.ErrAuthenticationFailed)

	badSalt := append([]byte(nil), salt...)
	badSalt[0] ^= 0x80
	_, err = dec.DecryptPayload(badSalt, body, []byte("test"))
	assert.Error(t, err)

	_, err = dec.DecryptPayload(salt, body[:spec.MAC_SIZE-1], []byte("test"))
	assert.ErrorIs(t, err, scrypto.ErrAuthenticationFailed)
}

func TestAuthenticatedWrongPasswordErrors(t *testing.T) {
	cfg := fastConfig()
	cfg.Authenticate = true

	pb := newCover(100, 100, 3, 6)
	embed(t, cfg, pb, "tagged", "test")

	dec := NewSecureStegoDecoder(cfg, nil)
	salt, body, err := dec.ExtractSecurePayload(pb, []byte("test"))
	require.NoError(t, err)

	// Same placement, different key material: only the tag can catch it.
	_, err = dec.DecryptPayload(salt, body, []byte("wrong"))
	assert.ErrorIs(t, err, scrypto.ErrAuthenticationFailed)

	_, err = dec.ExtractMessage(pb, []byte("wrong"))
	assert.Error(t, err)
}

func TestHardenedPermutation(t *testing.T) {
	cfg := fastConfig()
	cfg.HardenedPermutation = true

	pb := newCover(100, 100, 3, 7)
	embed(t, cfg, pb, "hi", "test")

	result, err := NewSecureStegoDecoder(cfg, nil).ExtractMessage(pb, []byte("test"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(result.Message))

	plain, err := NewSecureStegoDecoder(fastConfig(), nil).ExtractMessage(pb, []byte("test"))
	if err == nil {
		assert.NotEqual(t, "hi", string(plain.Message))
	}
}

func TestExtractFromTinyImage(t *testing.T) {
	pb := newCover(3, 3, 1, 8)
	_, err := NewSecureStegoDecoder(fastConfig(), nil).ExtractMessage(pb, []byte("test"))
	assert.ErrorIs(t, err, stego.ErrCapacityExceeded)
	assert.NotErrorIs(t, err, scrypto.ErrDecryptionFailure)
}

func TestExtractFromCleanCover(t *testing.T) {
	pb := newCover(100, 100, 3, 10)
	_, err := NewSecureStegoDecoder(fastConfig(), nil).ExtractMessage(pb, []byte("test"))
	if err != nil {
		assert.True(t,
			assertIsAny(err, scrypto.ErrDecryptionFailure, container.ErrHeaderMismatch),
			"unexpected error %v", err)
	}
}

func TestExtractRejectsInvalidInput(t *testing.T) {
	dec := NewSecureStegoDecoder(fastConfig(), nil)
	_, err := dec.ExtractMessage(&stego.PixelBuffer{Width: 1, Height: 1, Channels: 5, Pix: make([]byte, 5)}, []byte("pw"))
	assert.ErrorIs(t, err, stego.ErrInvalidBuffer)

	_, err = NewSecureStegoDecoder(spec.Config{}, nil).ExtractMessage(newCover(10, 10, 3, 1), []byte("pw"))
	assert.Error(t, err)
}

func TestTryMultiplePasswords(t *testing.T) {
	pb := newCover(100, 100, 3, 11)
	embed(t, fastConfig(), pb, "found me", "third")

	dec := NewSecureStegoDecoder(fastConfig(), nil)
	result, pass, err := dec.TryMultiplePasswords(pb, []string{"first", "second", "third", "fourth"})
	require.NoError(t, err)
	assert.Equal(t, "third", pass)
	assert.Equal(t, "found me", string(result.Message))

	_, _, err = dec.TryMultiplePasswords(pb, nil)
	assert.ErrorIs(t, err, ErrNoPasswordMatched)
}

func assertIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
