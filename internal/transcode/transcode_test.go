package transcode

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// orientedJPEG encodes a w x h JPEG and splices in an EXIF APP1 segment
// declaring Orientation=6, so the image displays upright with the sides
// swapped.
func orientedJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	plain := testJPEG(t, w, h)

	// APP1, "Exif\0\0", little-endian TIFF header, one IFD0 entry:
	// tag 0x0112 (Orientation), type SHORT, count 1, value 6.
	app1 := []byte{
		0xff, 0xe1, 0x00, 0x22,
		'E', 'x', 'i', 'f', 0x00, 0x00,
		'I', 'I', 0x2a, 0x00, 0x08, 0x00, 0x00, 0x00,
		0x01, 0x00,
		0x12, 0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00,
	}

	out := make([]byte, 0, len(plain)+len(app1))
	out = append(out, plain[:2]...)
	out = append(out, app1...)
	out = append(out, plain[2:]...)
	return out
}

func decodedSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "webp", format)
	return cfg.Width, cfg.Height
}

func TestTranscodeBoundsFullWidth(t *testing.T) {
	src := testJPEG(t, 2000, 1500)

	out, err := Transcode(src, Full)
	require.NoError(t, err)
	require.Equal(t, 1080, out.Width)
	require.Equal(t, 810, out.Height)

	w, h := decodedSize(t, out.Data)
	require.Equal(t, 1080, w)
	require.Equal(t, 810, h)
}

func TestTranscodeThumbnail(t *testing.T) {
	src := testJPEG(t, 2000, 1500)

	out, err := Transcode(src, Thumbnail)
	require.NoError(t, err)
	require.Equal(t, 300, out.Width)
	require.Equal(t, 225, out.Height)
}

func TestTranscodeNeverUpscales(t *testing.T) {
	src := testJPEG(t, 800, 600)

	out, err := Transcode(src, Full)
	require.NoError(t, err)
	require.Equal(t, 800, out.Width)
	require.Equal(t, 600, out.Height)
}

func TestTranscodeHonorsExifOrientation(t *testing.T) {
	// Stored as 300x150, tagged to display rotated: the output must be
	// upright, not the raw sensor layout.
	out, err := Transcode(orientedJPEG(t, 300, 150), Full)
	require.NoError(t, err)
	require.Equal(t, 150, out.Width)
	require.Equal(t, 300, out.Height)

	w, h := decodedSize(t, out.Data)
	require.Equal(t, 150, w)
	require.Equal(t, 300, h)

	// The width bound applies after the rotation.
	out, err = Transcode(orientedJPEG(t, 2400, 1200), Full)
	require.NoError(t, err)
	require.Equal(t, 1080, out.Width)
	require.Equal(t, 2160, out.Height)
}

func TestTranscodeAspectWithinOnePixel(t *testing.T) {
	// 1333x777 does not divide evenly into 1080.
	src := testJPEG(t, 1333, 777)

	out, err := Transcode(src, Full)
	require.NoError(t, err)
	require.Equal(t, 1080, out.Width)

	wantHeight := float64(777) * 1080 / 1333
	require.InDelta(t, wantHeight, float64(out.Height), 1)
}

func TestTranscodeStableDimensions(t *testing.T) {
	src := testJPEG(t, 1600, 900)

	first, err := Transcode(src, Thumbnail)
	require.NoError(t, err)
	second, err := Transcode(src, Thumbnail)
	require.NoError(t, err)

	require.Equal(t, first.Width, second.Width)
	require.Equal(t, first.Height, second.Height)
}

func TestTranscodePNGAndWebPInputs(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))

	out, err := Transcode(pngBuf.Bytes(), Full)
	require.NoError(t, err)
	require.Equal(t, 640, out.Width)

	// The WebP we just produced must itself be accepted as input.
	again, err := Transcode(out.Data, Thumbnail)
	require.NoError(t, err)
	require.Equal(t, 300, again.Width)
}

func TestTranscodeRejectsGarbage(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("definitely not an image"),
		bytes.Repeat([]byte{0xde, 0xad}, 512),
	}
	for _, src := range cases {
		_, err := Transcode(src, Full)
		require.Error(t, err)

		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr)
	}
}
