package webp_converter

import (
	"bytes"
	"fmt"
	"image"

	"github.com/chai2010/webp"
)

const (
	Format      = "webp"
	ContentType = "image/webp"
)

// Converter encodes decoded images into the lossy web target format.
type Converter struct{}

func (Converter) Encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{
		Lossless: false,
		Quality:  float32(quality),
	}); err != nil {
		return nil, fmt.Errorf("error encoding to webp: %v", err)
	}
	return buf.Bytes(), nil
}

func (Converter) Format() string      { return Format }
func (Converter) ContentType() string { return ContentType }
