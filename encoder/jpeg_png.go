package encoder

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// EncodeImage decodes any supported raster input and re-encodes it in the
// format named by the output extension. JPEG output is flattened on white.
func EncodeImage(ctx context.Context, in, out string, o EncodeOptions) error {
	img, err := decodeImage(in)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return saveImage(img, out, o)
}

func decodeImage(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return imaging.Clone(img), nil
}

func saveImage(img *image.NRGBA, out string, o EncodeOptions) error {
	format, err := imaging.FormatFromFilename(out)
	if err != nil {
		return fmt.Errorf("unsupported output %q: %w", filepath.Ext(out), err)
	}

	var src image.Image = img
	if format == imaging.JPEG {
		src = flatten(img, color.White)
	}

	if err := imaging.Save(src, out, imaging.JPEGQuality(o.quality())); err != nil {
		return fmt.Errorf("failed to encode %s: %w", strings.ToLower(format.String()), err)
	}
	return nil
}

// flatten composites img over a solid background, dropping alpha
func flatten(img *image.NRGBA, bg color.Color) *image.NRGBA {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}
