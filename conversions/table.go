// Package conversions holds the static table of supported conversion types
package conversions

import (
	"errors"
	"regexp"
	"sort"
)

// Engine names which component performs a conversion
type Engine string

const (
	EngineLocal        Engine = "local"
	EngineRemoveBG     Engine = "removebg"
	EngineCloudConvert Engine = "cloudconvert"
)

var (
	ErrMalformedType   = errors.New("malformed conversion type")
	ErrUnsupportedType = errors.New("unsupported conversion type")
)

// Descriptor describes one conversion type
type Descriptor struct {
	Type         string `json:"type"`
	SourceFormat string `json:"source_format"`
	TargetFormat string `json:"target_format"`
	Engine       Engine `json:"engine"`
}

// "image" as a source means any decodable raster format
const AnyImage = "image"

var table = map[string]Descriptor{
	"jpg_to_png":   {SourceFormat: "jpg", TargetFormat: "png", Engine: EngineLocal},
	"png_to_jpg":   {SourceFormat: "png", TargetFormat: "jpg", Engine: EngineLocal},
	"webp_to_png":  {SourceFormat: "webp", TargetFormat: "png", Engine: EngineLocal},
	"png_to_webp":  {SourceFormat: "png", TargetFormat: "webp", Engine: EngineLocal},
	"gif_to_png":   {SourceFormat: "gif", TargetFormat: "png", Engine: EngineLocal},
	"tiff_to_jpg":  {SourceFormat: "tiff", TargetFormat: "jpg", Engine: EngineLocal},
	"enhance_jpg":  {SourceFormat: "jpg", TargetFormat: "jpg", Engine: EngineLocal},
	"jpg_to_pdf":   {SourceFormat: "jpg", TargetFormat: "pdf", Engine: EngineLocal},
	"png_to_pdf":   {SourceFormat: "png", TargetFormat: "pdf", Engine: EngineLocal},
	"txt_to_pdf":   {SourceFormat: "txt", TargetFormat: "pdf", Engine: EngineLocal},
	"pdf_to_docx":  {SourceFormat: "pdf", TargetFormat: "docx", Engine: EngineLocal},
	"docx_to_html": {SourceFormat: "docx", TargetFormat: "html", Engine: EngineLocal},
	"docx_to_pdf":  {SourceFormat: "docx", TargetFormat: "pdf", Engine: EngineCloudConvert},
	"pptx_to_pdf":  {SourceFormat: "pptx", TargetFormat: "pdf", Engine: EngineCloudConvert},
	"xlsx_to_pdf":  {SourceFormat: "xlsx", TargetFormat: "pdf", Engine: EngineCloudConvert},
	"odt_to_pdf":   {SourceFormat: "odt", TargetFormat: "pdf", Engine: EngineCloudConvert},
	"html_to_pdf":  {SourceFormat: "html", TargetFormat: "pdf", Engine: EngineCloudConvert},
	"pdf_to_pptx":  {SourceFormat: "pdf", TargetFormat: "pptx", Engine: EngineCloudConvert},
	"remove_bg":    {SourceFormat: AnyImage, TargetFormat: "png", Engine: EngineRemoveBG},
}

var wellFormed = regexp.MustCompile(`^([a-z0-9]+_to_[a-z0-9]+|enhance_[a-z0-9]+|remove_bg)$`)

// Lookup returns the descriptor for conversionType. Keys that could never
// name a conversion return ErrMalformedType; well-formed keys missing from
// the table return ErrUnsupportedType.
func Lookup(conversionType string) (Descriptor, error) {
	if !wellFormed.MatchString(conversionType) {
		return Descriptor{}, ErrMalformedType
	}
	d, ok := table[conversionType]
	if !ok {
		return Descriptor{}, ErrUnsupportedType
	}
	d.Type = conversionType
	return d, nil
}

// Types returns every supported conversion type, sorted
func Types() []string {
	types := make([]string, 0, len(table))
	for t := range table {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// All returns every descriptor ordered by type
func All() []Descriptor {
	types := Types()
	all := make([]Descriptor, 0, len(types))
	for _, t := range types {
		d := table[t]
		d.Type = t
		all = append(all, d)
	}
	return all
}

// Enhanced reports whether the conversion runs the enhancement pipeline
func (d Descriptor) Enhanced() bool {
	return d.Type == "enhance_"+d.TargetFormat
}

// Extension returns the dotted extension for a format name
func Extension(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "tif":
		return ".tiff"
	case "":
		return ""
	}
	return "." + format
}
