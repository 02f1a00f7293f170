package processor

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	webp_converter "github.com/trunov/assethub/internal/webp-converter"
)

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	return img
}

func noise(w, h int) image.Image {
	rnd := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rnd.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func encodeJPEG(t *testing.T, img image.Image, q int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}))
	return buf.Bytes()
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// sizeCodec reports a deterministic size of width*quality bytes.
type sizeCodec struct {
	calls []int
}

func (c *sizeCodec) Encode(img image.Image, quality int) ([]byte, error) {
	c.calls = append(c.calls, quality)
	return make([]byte, img.Bounds().Dx()*quality), nil
}
func (c *sizeCodec) Format() string      { return "fake" }
func (c *sizeCodec) ContentType() string { return "image/fake" }

func TestEncodeLargeJPEGWithinBudget(t *testing.T) {
	raw := encodeJPEG(t, gradient(3000, 2000), 100)

	out, err := NewEncoder(webp_converter.Converter{}).Encode(raw, 500, 1920)
	require.NoError(t, err)

	assert.True(t, out.MetBudget)
	assert.LessOrEqual(t, out.ByteSize, 500*1024)
	assert.Equal(t, 1920, out.Width)
	assert.Equal(t, 1280, out.Height)
	assert.Equal(t, "webp", out.Format)
	assert.Equal(t, len(raw), out.OriginalBytes)
}

func TestEncodeShortCircuitsAtFirstQuality(t *testing.T) {
	raw := encodeJPEG(t, gradient(320, 200), 90)

	out, err := NewEncoder(webp_converter.Converter{}).Encode(raw, 500, 1920)
	require.NoError(t, err)

	assert.Equal(t, 1, out.Attempts)
	assert.Equal(t, 90, out.Quality)
	assert.True(t, out.MetBudget)
}

func TestEncodeNeverUpscales(t *testing.T) {
	raw := encodePNG(t, gradient(400, 300))

	out, err := NewEncoder(webp_converter.Converter{}).Encode(raw, 500, 1920)
	require.NoError(t, err)

	assert.Equal(t, 400, out.Width)
	assert.Equal(t, 300, out.Height)
}

func TestEncodeTranscodesLosslessInput(t *testing.T) {
	raw := encodePNG(t, gradient(200, 120))

	out, err := NewEncoder(webp_converter.Converter{}).Encode(raw, 500, 1920)
	require.NoError(t, err)

	assert.Equal(t, "image/webp", out.ContentType)
	cfg, err := webp.DecodeConfig(bytes.NewReader(out.Bytes))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
}

func TestEncodeDegradedSuccessIsFlagged(t *testing.T) {
	raw := encodePNG(t, noise(1000, 750))

	out, err := NewEncoder(webp_converter.Converter{}).Encode(raw, 1, 1920)
	require.NoError(t, err)

	assert.False(t, out.MetBudget)
	assert.Greater(t, out.ByteSize, 1024)
	assert.Equal(t, len(out.Bytes), out.ByteSize)
	assert.Equal(t, 800, out.Width)
	assert.Equal(t, 14, out.Attempts)
}

func TestEncodeBudgetInvariant(t *testing.T) {
	raw := encodePNG(t, noise(600, 400))
	enc := NewEncoder(webp_converter.Converter{})

	for _, budget := range []int{1, 20, 60, 200, 2000} {
		out, err := enc.Encode(raw, budget, 1920)
		require.NoError(t, err)
		assert.True(t, out.ByteSize <= budget*1024 || !out.MetBudget, "budget %dKB returned %d bytes flagged as met", budget, out.ByteSize)
	}
}

func TestEncodeQualitySearchSequence(t *testing.T) {
	codec := &sizeCodec{}
	raw := encodePNG(t, gradient(1000, 500))

	// 1000px * q must be <= 75KB, first satisfied at q=75
	out, err := NewEncoder(codec).Encode(raw, 75, 1920)
	require.NoError(t, err)

	assert.Equal(t, []int{90, 85, 80, 75}, codec.calls)
	assert.Equal(t, 75, out.Quality)
	assert.True(t, out.MetBudget)
}

func TestEncodeShrinksAfterQualityFloor(t *testing.T) {
	codec := &sizeCodec{}
	raw := encodePNG(t, gradient(1500, 1000))

	// at 1500px even q=60 gives 90000 bytes; after one shrink (1200px) q=70 fits 84000 <= 86016
	out, err := NewEncoder(codec).Encode(raw, 84, 1920)
	require.NoError(t, err)

	assert.True(t, out.MetBudget)
	assert.Equal(t, 1200, out.Width)
	assert.Equal(t, 800, out.Height)
	assert.Equal(t, 70, out.Quality)
	assert.Equal(t, []int{90, 85, 80, 75, 70, 65, 60, 90, 85, 80, 75, 70}, codec.calls)
}

func TestEncodeRejectsCorruptInput(t *testing.T) {
	_, err := NewEncoder(webp_converter.Converter{}).Encode([]byte("definitely not an image"), 500, 1920)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode image")
}

func TestEncodeRejectsInvalidBudget(t *testing.T) {
	_, err := NewEncoder(webp_converter.Converter{}).Encode(nil, 0, 1920)
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestImageResizerFitsLongestSide(t *testing.T) {
	out := (&ImageResizer{Width: 1920, Height: 1920}).Modify(image.NewRGBA(image.Rect(0, 0, 480, 3840)))
	assert.Equal(t, 240, out.Bounds().Dx())
	assert.Equal(t, 1920, out.Bounds().Dy())
}
