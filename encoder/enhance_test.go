package encoder

import (
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func uniform(c color.NRGBA) *image.NRGBA {
	return imaging.New(6, 6, c)
}

func TestApplyUniformImage(t *testing.T) {
	img := uniform(color.NRGBA{100, 150, 200, 255})

	out, err := DefaultFactors.Apply(img)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got := out.NRGBAAt(3, 3)
	want := color.NRGBA{101, 167, 233, 255}
	if got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestApplyOrderIsBrightnessContrastSharpness(t *testing.T) {
	// left half bright, right half dark; brightness 1.5 clips the bright half
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			v := uint8(50)
			if x < 4 {
				v = 200
			}
			img.SetNRGBA(x, y, color.NRGBA{v, v, v, 255})
		}
	}

	f := Factors{Brightness: 1.5, Contrast: 1.2, Sharpness: 1.0}
	got, err := f.Apply(img)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	forward := Sharpness(Contrast(Brightness(img, 1.5), 1.2), 1.0)
	reverse := Brightness(Contrast(img, 1.2), 1.5)

	if got.NRGBAAt(6, 4) != forward.NRGBAAt(6, 4) || got.NRGBAAt(1, 4) != forward.NRGBAAt(1, 4) {
		t.Errorf("Apply does not match brightness->contrast->sharpness: %v vs %v", got.NRGBAAt(6, 4), forward.NRGBAAt(6, 4))
	}
	if forward.NRGBAAt(6, 4) == reverse.NRGBAAt(6, 4) {
		t.Fatal("fixture does not distinguish stage order")
	}
}

func TestFactorOneIsIdentity(t *testing.T) {
	img := uniform(color.NRGBA{12, 34, 56, 255})
	out, err := Factors{1, 1, 1}.Apply(img)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if out.NRGBAAt(0, 0) != img.NRGBAAt(0, 0) {
		t.Errorf("expected identity, got %v", out.NRGBAAt(0, 0))
	}
}

func TestBrightnessClamps(t *testing.T) {
	out := Brightness(uniform(color.NRGBA{250, 10, 0, 128}), 2.0)
	want := color.NRGBA{255, 20, 0, 128}
	if got := out.NRGBAAt(0, 0); got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSharpnessLeavesFlatRegions(t *testing.T) {
	img := uniform(color.NRGBA{80, 90, 100, 255})
	if got := Sharpness(img, 2.0).NRGBAAt(2, 2); got != img.NRGBAAt(2, 2) {
		t.Errorf("flat region changed: %v", got)
	}
}

func TestValidateRejectsFactorsBelowOne(t *testing.T) {
	cases := []Factors{
		{0.9, 1.2, 1.3},
		{1.1, 0.5, 1.3},
		{1.1, 1.2, 0},
	}
	for _, f := range cases {
		if err := f.Validate(); !errors.Is(err, ErrInvalidOption) {
			t.Errorf("Validate(%+v) = %v, want ErrInvalidOption", f, err)
		}
	}
	if err := DefaultFactors.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestEncodeEnhanced(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jpg")
	out := filepath.Join(dir, "out.jpg")
	if err := imaging.Save(uniform(color.NRGBA{100, 100, 100, 255}), in); err != nil {
		t.Fatal(err)
	}

	if err := EncodeEnhanced(context.Background(), in, out, EncodeOptions{}); err != nil {
		t.Fatalf("EncodeEnhanced failed: %v", err)
	}
	if _, err := imaging.Open(out); err != nil {
		t.Errorf("output not decodable: %v", err)
	}

	bad := EncodeOptions{Enhance: Factors{Brightness: 0.5, Contrast: 1, Sharpness: 1}}
	if err := EncodeEnhanced(context.Background(), in, out, bad); !errors.Is(err, ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
}
