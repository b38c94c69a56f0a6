package encoder

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/fumiama/go-docx"
	"github.com/go-pdf/fpdf"
	"github.com/ledongthuc/pdf"
)

// A4 portrait in millimetres with a 10mm margin
const (
	pageWidth  = 210.0
	pageHeight = 297.0
	margin     = 10.0
)

// EncodePDFToDOCX writes one paragraph per PDF page, with the page's text
// rows separated by line breaks. Pages without a text layer still get an
// empty paragraph so page boundaries survive.
func EncodePDFToDOCX(ctx context.Context, in, out string, _ EncodeOptions) error {
	f, r, err := pdf.Open(in)
	if err != nil {
		return fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	doc := docx.New().WithDefaultTheme()
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		text, err := pageText(r.Page(i))
		if err != nil {
			return fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		para := doc.AddParagraph()
		if text != "" {
			para.AddText(text)
		}
	}

	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := doc.WriteTo(dst); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write docx: %w", err)
	}
	return dst.Close()
}

// pageText returns the page's rows top to bottom, one per line
func pageText(p pdf.Page) (string, error) {
	if p.V.IsNull() {
		return "", nil
	}
	rows, err := p.GetTextByRow()
	if err != nil {
		return "", err
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		for _, t := range row.Content {
			b.WriteString(t.S)
		}
		if line := strings.TrimRight(b.String(), " \r\t"); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// EncodeDOCXToHTML renders every paragraph of the document body as an
// escaped <p> element.
func EncodeDOCXToHTML(ctx context.Context, in, out string, _ EncodeOptions) error {
	paragraphs, err := docxParagraphs(in)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("<html><body>")
	for _, p := range paragraphs {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(p))
		b.WriteString("</p>")
	}
	b.WriteString("</body></html>")

	return os.WriteFile(out, []byte(b.String()), 0o600)
}

func docxParagraphs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse docx: %w", err)
	}

	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		if p, ok := item.(*docx.Paragraph); ok {
			paragraphs = append(paragraphs, p.String())
		}
	}
	return paragraphs, nil
}

// EncodeTextPDF lays plain text out on A4 pages. Characters outside
// cp1252 are replaced by the core font translator.
func EncodeTextPDF(ctx context.Context, in, out string, _ EncodeOptions) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(margin, margin, margin)
	doc.SetAutoPageBreak(true, margin)
	doc.AddPage()
	doc.SetFont("Helvetica", "", 11)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	doc.MultiCell(0, 5, tr(text), "", "L", false)

	if err := doc.OutputFileAndClose(out); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

// EncodeImagePDF places a JPEG or PNG on a single A4 page, scaled to fit
// inside the margins with its aspect ratio kept.
func EncodeImagePDF(ctx context.Context, in, out string, _ EncodeOptions) error {
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var imageType string
	switch format {
	case "jpeg":
		imageType = "JPG"
	case "png":
		imageType = "PNG"
	default:
		return fmt.Errorf("%w: %s images cannot be placed in a pdf", ErrInvalidOption, format)
	}

	w, h := fitPage(float64(cfg.Width), float64(cfg.Height))

	doc := fpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	name := filepath.Base(in)
	opts := fpdf.ImageOptions{ImageType: imageType}
	doc.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	doc.ImageOptions(name, (pageWidth-w)/2, margin, w, h, false, opts, 0, "")

	if err := doc.OutputFileAndClose(out); err != nil {
		return fmt.Errorf("failed to write pdf: %w", err)
	}
	return nil
}

func fitPage(w, h float64) (float64, float64) {
	maxW, maxH := pageWidth-2*margin, pageHeight-2*margin
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := maxW / w
	if h*scale > maxH {
		scale = maxH / h
	}
	return w * scale, h * scale
}
