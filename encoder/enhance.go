package encoder

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

// Factors are the enhancement strengths. 1.0 leaves the image unchanged;
// values above 1.0 strengthen the effect.
type Factors struct {
	Brightness float64
	Contrast   float64
	Sharpness  float64
}

// DefaultFactors is applied when the caller supplies none
var DefaultFactors = Factors{Brightness: 1.1, Contrast: 1.2, Sharpness: 1.3}

func (f Factors) orDefault() Factors {
	if f == (Factors{}) {
		return DefaultFactors
	}
	return f
}

// Validate rejects factors below 1.0
func (f Factors) Validate() error {
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"brightness", f.Brightness},
		{"contrast", f.Contrast},
		{"sharpness", f.Sharpness},
	} {
		if math.IsNaN(c.v) || c.v < 1.0 {
			return fmt.Errorf("%w: %s factor must be >= 1.0, got %g", ErrInvalidOption, c.name, c.v)
		}
	}
	return nil
}

// Apply runs brightness, contrast and sharpness in that order, each stage
// reading the previous stage's output.
func (f Factors) Apply(img *image.NRGBA) (*image.NRGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	out := Brightness(img, f.Brightness)
	out = Contrast(out, f.Contrast)
	out = Sharpness(out, f.Sharpness)
	return out, nil
}

// EncodeEnhanced decodes the input, runs the enhancement pipeline and
// encodes by output extension.
func EncodeEnhanced(ctx context.Context, in, out string, o EncodeOptions) error {
	factors := o.Enhance.orDefault()
	if err := factors.Validate(); err != nil {
		return err
	}

	img, err := decodeImage(in)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	enhanced, err := factors.Apply(img)
	if err != nil {
		return err
	}
	return saveImage(enhanced, out, o)
}

// Brightness blends the image away from black
func Brightness(img *image.NRGBA, factor float64) *image.NRGBA {
	b := img.Bounds()
	black := image.NewNRGBA(b)
	return blend(black, img, factor)
}

// Contrast blends the image away from a uniform gray at its mean luminance
func Contrast(img *image.NRGBA, factor float64) *image.NRGBA {
	mean := uint8(meanLuminance(img))
	gray := image.NewNRGBA(img.Bounds())
	for i := 0; i < len(gray.Pix); i += 4 {
		gray.Pix[i] = mean
		gray.Pix[i+1] = mean
		gray.Pix[i+2] = mean
		gray.Pix[i+3] = 0xff
	}
	return blend(gray, img, factor)
}

var smoothKernel = [9]float64{
	1, 1, 1,
	1, 5, 1,
	1, 1, 1,
}

// Sharpness blends the image away from a smoothed copy of itself
func Sharpness(img *image.NRGBA, factor float64) *image.NRGBA {
	smoothed := imaging.Convolve3x3(img, smoothKernel, &imaging.ConvolveOptions{Normalize: true})
	return blend(smoothed, img, factor)
}

// blend computes base + factor*(img-base) per color channel, rounding and
// clamping to [0,255]. Alpha is taken from img.
func blend(base, img *image.NRGBA, factor float64) *image.NRGBA {
	out := image.NewNRGBA(img.Bounds())
	w := img.Bounds().Dx() * 4
	for y := 0; y < img.Bounds().Dy(); y++ {
		srow := img.Pix[y*img.Stride : y*img.Stride+w]
		brow := base.Pix[y*base.Stride : y*base.Stride+w]
		orow := out.Pix[y*out.Stride : y*out.Stride+w]
		for i := 0; i < w; i += 4 {
			for c := 0; c < 3; c++ {
				v := float64(brow[i+c]) + factor*(float64(srow[i+c])-float64(brow[i+c]))
				orow[i+c] = clamp8(v)
			}
			orow[i+3] = srow[i+3]
		}
	}
	return out
}

// meanLuminance is the rounded mean of the per-pixel ITU-R 601 luma
func meanLuminance(img *image.NRGBA) int {
	b := img.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return 0
	}
	var sum int64
	w := b.Dx() * 4
	for y := 0; y < b.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w]
		for i := 0; i < w; i += 4 {
			r, g, bl := int64(row[i]), int64(row[i+1]), int64(row[i+2])
			sum += (r*19595 + g*38470 + bl*7471 + 0x8000) >> 16
		}
	}
	return int((sum + int64(n)/2) / int64(n))
}

func clamp8(v float64) uint8 {
	v = math.Round(v)
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v)
}
