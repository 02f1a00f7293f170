package processor

import (
	"image"
	"io"

	// registers the webp decoder; imaging brings jpeg and png
	_ "github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// ImageModifier defines an image modifier
type ImageModifier interface {
	Modify(img image.Image) image.Image
}

// ImageResizer fits an image inside Width x Height, preserving aspect ratio.
// Images already inside the box are returned untouched, so it never upscales.
type ImageResizer struct {
	Width  int
	Height int
}

// Modify to implement ImageModifier interface
func (r *ImageResizer) Modify(img image.Image) image.Image {
	w := float64(img.Bounds().Dx())
	h := float64(img.Bounds().Dy())

	if w == 0 || h == 0 || r.Width <= 0 || r.Height <= 0 {
		return img
	}

	ratio := w / float64(r.Width)
	if hRatio := h / float64(r.Height); hRatio > ratio {
		ratio = hRatio
	}

	// Nothing to do - return original image
	if ratio <= 1 {
		return img
	}

	nw, nh := int(w/ratio), int(h/ratio)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return imaging.Resize(img, nw, nh, imaging.Lanczos)
}

// LoadImage decodes r, applies EXIF orientation and then the requested modifiers.
func LoadImage(r io.Reader, modifiers ...ImageModifier) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	for _, modifier := range modifiers {
		img = modifier.Modify(img)
	}

	return img, nil
}
