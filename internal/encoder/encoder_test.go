package encoder

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faanross/simulacra_img/internal/spec"
	"github.com/faanross/simulacra_img/internal/stego"
)

func fastConfig() spec.Config {
	cfg := spec.DefaultConfig()
	cfg.Iterations = 100
	return cfg
}

func newCover(w, h, c int) *stego.PixelBuffer {
	pix := make([]byte, w*h*c)
	rand.New(rand.NewSource(int64(w*h + c))).Read(pix)
	return &stego.PixelBuffer{Width: w, Height: h, Channels: c, Pix: pix}
}

func TestPrepareSecurePayloadLayout(t *testing.T) {
	enc := NewSecureStegoEncoder(fastConfig(), nil)

	for _, msg := range []string{"", "hi", strings.Repeat("x", 16), strings.Repeat("y", 33)} {
		blob, err := enc.PrepareSecurePayload([]byte(msg), []byte("test"))
		require.NoError(t, err)

		padded := (len(msg)/16 + 1) * 16
		want := spec.HEADER_SIZE + spec.SALT_SIZE + spec.IV_SIZE + padded
		assert.Len(t, blob, want, "message %q", msg)
		assert.Equal(t, uint32(want-spec.HEADER_SIZE), binary.BigEndian.Uint32(blob[:spec.HEADER_SIZE]))
	}
}

func TestPrepareSecurePayloadAuthenticated(t *testing.T) {
	cfg := fastConfig()
	cfg.Authenticate = true
	enc := NewSecureStegoEncoder(cfg, nil)

	blob, err := enc.PrepareSecurePayload([]byte("hi"), []byte("test"))
	require.NoError(t, err)
	assert.Len(t, blob, spec.HEADER_SIZE+spec.SALT_SIZE+spec.IV_SIZE+16+spec.MAC_SIZE)
}

func TestPrepareSecurePayloadFreshSalt(t *testing.T) {
	enc := NewSecureStegoEncoder(fastConfig(), nil)

	a, err := enc.PrepareSecurePayload([]byte("hi"), []byte("test"))
	require.NoError(t, err)
	b, err := enc.PrepareSecurePayload([]byte("hi"), []byte("test"))
	require.NoError(t, err)

	assert.NotEqual(t, a[spec.HEADER_SIZE:spec.HEADER_SIZE+spec.SALT_SIZE], b[spec.HEADER_SIZE:spec.HEADER_SIZE+spec.SALT_SIZE])
	assert.NotEqual(t, a, b)
}

func TestEmbedMessageReport(t *testing.T) {
	enc := NewSecureStegoEncoder(fastConfig(), nil)
	pb := newCover(100, 100, 3)

	report, err := enc.EmbedMessage(pb, []byte("hi"), []byte("test"))
	require.NoError(t, err)

	assert.Equal(t, 2, report.MessageSize)
	assert.Equal(t, 52, report.BlobSize)
	assert.Equal(t, 52*8, report.BitsUsed)
	assert.Equal(t, 3750, report.Capacity)
	assert.InDelta(t, 416.0*100/30000, report.Utilization, 1e-9)
}

func TestEmbedMessageCapacityExceeded(t *testing.T) {
	enc := NewSecureStegoEncoder(fastConfig(), nil)
	pb := newCover(10, 10, 3)
	orig := append([]byte(nil), pb.Pix...)

	_, err := enc.EmbedMessage(pb, []byte("hi"), []byte("test"))
	require.ErrorIs(t, err, stego.ErrCapacityExceeded)
	assert.Equal(t, orig, pb.Pix, "cover must be untouched on failure")
}

func TestEmbedMessageRejectsBadInput(t *testing.T) {
	enc := NewSecureStegoEncoder(fastConfig(), nil)

	_, err := enc.EmbedMessage(&stego.PixelBuffer{Width: 2, Height: 2, Channels: 3, Pix: make([]byte, 5)}, []byte("hi"), []byte("pw"))
	assert.ErrorIs(t, err, stego.ErrInvalidBuffer)

	bad := NewSecureStegoEncoder(spec.Config{Iterations: 0}, nil)
	_, err = bad.EmbedMessage(newCover(100, 100, 3), []byte("hi"), []byte("pw"))
	assert.Error(t, err)
}

func TestEmbedMessageChangesEachSampleByAtMostOne(t *testing.T) {
	for _, concurrent := range []bool{false, true} {
		cfg := fastConfig()
		cfg.Concurrent = concurrent

		pb := newCover(40, 40, 3)
		orig := append([]byte(nil), pb.Pix...)

		_, err := NewSecureStegoEncoder(cfg, nil).EmbedMessage(pb, []byte("hello"), []byte("pw"))
		require.NoError(t, err)

		changed := 0
		for i := range orig {
			d := int(pb.Pix[i]) - int(orig[i])
			require.True(t, d >= -1 && d <= 1, "sample %d moved by %d", i, d)
			if d != 0 {
				changed++
			}
		}
		// Every non-payload sample is nudged.
		assert.GreaterOrEqual(t, changed, len(orig)-52*8, "concurrent=%v", concurrent)
	}
}

func TestPasswordNeverLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	cfg := fastConfig()
	cfg.Authenticate = true
	cfg.HardenedPermutation = true
	enc := NewSecureStegoEncoder(cfg, logger)

	const password = "correct-horse-battery-staple"
	_, err := enc.EmbedMessage(newCover(100, 100, 3), []byte("secret"), []byte(password))
	require.NoError(t, err)

	require.NotEmpty(t, hook.AllEntries())
	for _, entry := range hook.AllEntries() {
		assert.NotContains(t, entry.Message, password)
		assert.NotContains(t, entry.Message, "secret")
		for k, v := range entry.Data {
			assert.NotContains(t, fmt.Sprint(v), password, "field %s", k)
		}
	}
}
