package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/trunov/assethub/internal/entities"
)

var ErrInvalidBudget = errors.New("budget and max dimension must be positive")

// Codec encodes a decoded image at a given quality in the single target format.
type Codec interface {
	Encode(img image.Image, quality int) ([]byte, error)
	Format() string
	ContentType() string
}

// Encoder searches for the highest quality encoding that fits a byte budget.
//
// Quality goes down from StartQuality in QualityStep steps to MinQuality. When
// even MinQuality is too large the image is shrunk by ShrinkFactor and the
// quality search restarts, until the width reaches MinWidth. If the budget is
// still not met the smallest encoding is returned with MetBudget=false.
type Encoder struct {
	codec Codec

	StartQuality int
	QualityStep  int
	MinQuality   int
	ShrinkFactor float64
	MinWidth     int
}

func NewEncoder(codec Codec) *Encoder {
	return &Encoder{
		codec:        codec,
		StartQuality: 90,
		QualityStep:  5,
		MinQuality:   60,
		ShrinkFactor: 0.8,
		MinWidth:     800,
	}
}

func (e *Encoder) Encode(raw []byte, budgetKB int, maxDimension int) (entities.EncodedAsset, error) {
	if budgetKB <= 0 || maxDimension <= 0 {
		return entities.EncodedAsset{}, ErrInvalidBudget
	}
	if e.QualityStep <= 0 || e.ShrinkFactor <= 0 || e.ShrinkFactor >= 1 {
		return entities.EncodedAsset{}, fmt.Errorf("encoder misconfigured: step=%d shrink=%v", e.QualityStep, e.ShrinkFactor)
	}

	img, err := LoadImage(bytes.NewReader(raw), &ImageResizer{Width: maxDimension, Height: maxDimension})
	if err != nil {
		return entities.EncodedAsset{}, fmt.Errorf("decode image: %w", err)
	}

	budget := budgetKB * 1024
	best := entities.EncodedAsset{
		Format:        e.codec.Format(),
		ContentType:   e.codec.ContentType(),
		OriginalBytes: len(raw),
	}
	attempts := 0

	for {
		for q := e.StartQuality; q >= e.MinQuality; q -= e.QualityStep {
			out, err := e.codec.Encode(img, q)
			if err != nil {
				return entities.EncodedAsset{}, err
			}
			attempts++

			if best.Bytes == nil || len(out) < len(best.Bytes) {
				best.Bytes = out
				best.Quality = q
				best.Width, best.Height = img.Bounds().Dx(), img.Bounds().Dy()
			}

			if len(out) <= budget {
				return entities.EncodedAsset{
					Bytes:         out,
					Format:        best.Format,
					ContentType:   best.ContentType,
					ByteSize:      len(out),
					Quality:       q,
					Width:         img.Bounds().Dx(),
					Height:        img.Bounds().Dy(),
					MetBudget:     true,
					Attempts:      attempts,
					OriginalBytes: len(raw),
				}, nil
			}
		}

		w := img.Bounds().Dx()
		if w <= e.MinWidth {
			break
		}
		nw := int(float64(w) * e.ShrinkFactor)
		if nw < e.MinWidth {
			nw = e.MinWidth
		}
		img = imaging.Resize(img, nw, 0, imaging.Lanczos)
	}

	best.ByteSize = len(best.Bytes)
	best.Attempts = attempts
	best.MetBudget = false
	return best, nil
}
