package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/faanross/simulacra_img/internal/stego"
	"golang.org/x/image/bmp"
)

var (
	ErrUnsupportedImageFormat = errors.New("unsupported image format")
	ErrImageNotFound          = errors.New("image not found")
	ErrImageIO                = errors.New("image i/o failure")
)

// Format is a supported container format, picked by file extension.
type Format string

const (
	FormatPNG Format = "png"
	FormatBMP Format = "bmp"
)

// FormatFor maps a path's extension to a Format.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, nil
	case ".bmp":
		return FormatBMP, nil
	default:
		return "", fmt.Errorf("%w: %q (want .png or .bmp)", ErrUnsupportedImageFormat, path)
	}
}

// Load decodes a PNG or BMP file into a flat pixel buffer.
func Load(path string) (*stego.PixelBuffer, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrImageNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrImageIO, err)
	}

	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImageIO, err)
	}
	defer file.Close()

	img, err := Decode(file, format)
	if err != nil {
		return nil, err
	}
	return ToPixelBuffer(img), nil
}

// Decode reads one image of the given format.
func Decode(r io.Reader, format Format) (image.Image, error) {
	var (
		img image.Image
		err error
	)
	switch format {
	case FormatPNG:
		img, err = png.Decode(r)
	case FormatBMP:
		img, err = bmp.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImageFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s decode: %v", ErrImageIO, format, err)
	}

	// 32-bit BMPs without an alpha mask decode as NRGBA with A=255.
	if n, ok := img.(*image.NRGBA); ok && format == FormatBMP && n.Opaque() {
		img = &image.RGBA{Pix: n.Pix, Stride: n.Stride, Rect: n.Rect}
	}
	return img, nil
}

// CheckEncodable reports whether a buffer with the given channel count can
// be written in format and read back with the same layout.
func CheckEncodable(format Format, channels int) error {
	switch {
	case channels != 1 && channels != 3 && channels != 4:
		return fmt.Errorf("%w: %d-channel buffers cannot be written", ErrUnsupportedImageFormat, channels)
	case format == FormatBMP && channels == 4:
		return fmt.Errorf("%w: bmp cannot carry an alpha channel, use .png", ErrUnsupportedImageFormat)
	case format != FormatPNG && format != FormatBMP:
		return fmt.Errorf("%w: %s", ErrUnsupportedImageFormat, format)
	}
	return nil
}

// Save encodes pb to path. The image is written to a temporary file next to
// path and renamed into place, so a failure leaves nothing behind.
func Save(path string, pb *stego.PixelBuffer) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}
	if err := pb.Validate(); err != nil {
		return err
	}
	if err := CheckEncodable(format, pb.Channels); err != nil {
		return err
	}
	img, err := FromPixelBuffer(pb)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".stego-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImageIO, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	if err := Encode(tmp, img, format); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrImageIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %v", ErrImageIO, err)
	}
	committed = true
	return nil
}

// Encode writes img in the given format.
func Encode(w io.Writer, img image.Image, format Format) error {
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatBMP:
		err = bmp.Encode(w, img)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedImageFormat, format)
	}
	if err != nil {
		return fmt.Errorf("%w: %s encode: %v", ErrImageIO, format, err)
	}
	return nil
}

// ToPixelBuffer flattens img into 1 (gray), 3 (opaque color) or 4 (color
// with alpha) 8-bit channels per pixel.
func ToPixelBuffer(img image.Image) *stego.PixelBuffer {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		return &stego.PixelBuffer{Width: w, Height: h, Channels: 1, Pix: packRows(src.Pix, src.Stride, w, h, 1)}
	case *image.Paletted:
		if isGrayPalette(src.Palette) {
			pix := make([]byte, 0, w*h)
			for y := 0; y < h; y++ {
				row := src.Pix[y*src.Stride : y*src.Stride+w]
				for _, idx := range row {
					g := color.GrayModel.Convert(src.Palette[idx]).(color.Gray)
					pix = append(pix, g.Y)
				}
			}
			return &stego.PixelBuffer{Width: w, Height: h, Channels: 1, Pix: pix}
		}
	case *image.RGBA:
		if src.Opaque() {
			return &stego.PixelBuffer{Width: w, Height: h, Channels: 3, Pix: dropAlpha(src.Pix, src.Stride, w, h)}
		}
	case *image.NRGBA:
		// Always 4 channels, even when every alpha sample happens to be 255.
		return &stego.PixelBuffer{Width: w, Height: h, Channels: 4, Pix: packRows(src.Pix, src.Stride, w, h, 4)}
	case *image.Gray16:
		dst := image.NewGray(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
		return &stego.PixelBuffer{Width: w, Height: h, Channels: 1, Pix: dst.Pix}
	}

	if isOpaque(img) {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return &stego.PixelBuffer{Width: w, Height: h, Channels: 3, Pix: dropAlpha(dst.Pix, dst.Stride, w, h)}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &stego.PixelBuffer{Width: w, Height: h, Channels: 4, Pix: dst.Pix}
}

// FromPixelBuffer builds an image whose encoding round-trips to the same
// samples through ToPixelBuffer.
func FromPixelBuffer(pb *stego.PixelBuffer) (image.Image, error) {
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, pb.Width, pb.Height)

	switch pb.Channels {
	case 1:
		img := image.NewGray(rect)
		copy(img.Pix, pb.Pix)
		return img, nil
	case 3:
		img := image.NewRGBA(rect)
		for i, j := 0, 0; i < len(pb.Pix); i, j = i+3, j+4 {
			img.Pix[j] = pb.Pix[i]
			img.Pix[j+1] = pb.Pix[i+1]
			img.Pix[j+2] = pb.Pix[i+2]
			img.Pix[j+3] = 0xFF
		}
		return img, nil
	case 4:
		img := image.NewNRGBA(rect)
		copy(img.Pix, pb.Pix)
		return keepAlpha{img}, nil
	default:
		return nil, fmt.Errorf("%w: %d-channel buffers cannot be written", ErrUnsupportedImageFormat, pb.Channels)
	}
}

// keepAlpha makes encoders write the alpha channel even when it is all 255,
// so the image decodes back to 4 channels.
type keepAlpha struct {
	*image.NRGBA
}

func (keepAlpha) Opaque() bool { return false }

// ResolveOutputPath appends ".bmp" when path has no extension and, if the
// file already exists, picks the first free "name(N).ext".
func ResolveOutputPath(path string) string {
	if filepath.Ext(path) == "" {
		path += ".bmp"
	}
	if !exists(path) {
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s(%d)%s", stem, n, ext)
		if !exists(candidate) {
			return candidate
		}
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func packRows(pix []byte, stride, w, h, channels int) []byte {
	rowLen := w * channels
	if stride == rowLen {
		return append([]byte(nil), pix[:rowLen*h]...)
	}
	out := make([]byte, 0, rowLen*h)
	for y := 0; y < h; y++ {
		out = append(out, pix[y*stride:y*stride+rowLen]...)
	}
	return out
}

func dropAlpha(pix []byte, stride, w, h int) []byte {
	out := make([]byte, 0, w*h*3)
	for y := 0; y < h; y++ {
		row := pix[y*stride : y*stride+w*4]
		for x := 0; x < len(row); x += 4 {
			out = append(out, row[x], row[x+1], row[x+2])
		}
	}
	return out
}

func isGrayPalette(p color.Palette) bool {
	for _, c := range p {
		r, g, b, a := c.RGBA()
		if r != g || g != b || a != 0xFFFF {
			return false
		}
	}
	return true
}

func isOpaque(img image.Image) bool {
	o, ok := img.(interface{ Opaque() bool })
	return ok && o.Opaque()
}
