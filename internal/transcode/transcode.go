package transcode

import (
	"bytes"
	"image"

	// Decoders for the input formats we accept. AVIF/HEIC uploads pass the
	// declared-type check but fail here as undecodable, which is reported as
	// a decode error like any other corrupt input.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/chai2010/webp"
	"github.com/disintegration/imageorient"
	"github.com/disintegration/imaging"
)

// Profile describes one derivative tier.
type Profile struct {
	Name         string
	MaxWidth     int
	Quality      int // lossy WebP quality, 0-100
	AllowUpscale bool
}

// The two tiers every upload is rendered into.
var (
	Full      = Profile{Name: "full", MaxWidth: 1080, Quality: 75}
	Thumbnail = Profile{Name: "thumbnail", MaxWidth: 300, Quality: 70}
)

// Result carries one encoded derivative.
type Result struct {
	Data   []byte
	Width  int
	Height int
}

// DecodeError reports source bytes that could not be decoded as an image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode image: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports a WebP re-encode failure.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string { return "encode webp: " + e.Err.Error() }
func (e *EncodeError) Unwrap() error { return e.Err }

// Transcode decodes src, uprights it according to any embedded EXIF
// orientation, bounds the width to the profile and re-encodes as lossy WebP.
func Transcode(src []byte, p Profile) (*Result, error) {
	img, _, err := imageorient.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	img = fitWidth(img, p)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(p.Quality)}); err != nil {
		return nil, &EncodeError{Err: err}
	}

	bounds := img.Bounds()
	return &Result{
		Data:   buf.Bytes(),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}

// fitWidth bounds the width, preserving aspect ratio. Narrower sources pass
// through untouched unless the profile allows upscaling.
func fitWidth(img image.Image, p Profile) image.Image {
	w := img.Bounds().Dx()
	if p.MaxWidth <= 0 || w == p.MaxWidth {
		return img
	}
	if w < p.MaxWidth && !p.AllowUpscale {
		return img
	}
	return imaging.Resize(img, p.MaxWidth, 0, imaging.Lanczos)
}
