package encoder

import (
	"context"
	"errors"
	"os/exec"
	"sort"
	"sync"

	"docshift/logger"
)

// EncodeFunc is the function signature for any encoder
type EncodeFunc func(ctx context.Context, input, output string, opts EncodeOptions) error

type EncodeOptions struct {
	// Quality applies to lossy outputs, 1-100. Zero means DefaultQuality.
	Quality int

	// Enhance is only read by the enhancement encoder
	Enhance Factors
}

const DefaultQuality = 95

// ErrInvalidOption marks errors caused by caller-supplied options rather
// than by the input file or the encoding library.
var ErrInvalidOption = errors.New("invalid conversion option")

// ErrUnavailable is returned when no encoder is registered for a pair
var ErrUnavailable = errors.New("encoder not available")

func (o EncodeOptions) quality() int {
	if o.Quality <= 0 || o.Quality > 100 {
		return DefaultQuality
	}
	return o.Quality
}

// Pair identifies an encoder by source and target format
type Pair struct {
	Source, Target string
}

func (p Pair) String() string { return p.Source + "->" + p.Target }

var (
	registryMu sync.RWMutex
	// Registry maps (source, target) → encoder function
	Registry = map[Pair]EncodeFunc{}
)

// Register adds an encoder. When cmdName is non-empty the encoder is only
// registered if that command exists in PATH.
func Register(source, target, cmdName string, fn EncodeFunc) bool {
	pair := Pair{source, target}
	if cmdName != "" {
		if _, err := exec.LookPath(cmdName); err != nil {
			logger.Warnf("encoder [%s] skipped: command '%s' not found in PATH", pair, cmdName)
			return false
		}
	}

	registryMu.Lock()
	Registry[pair] = fn
	registryMu.Unlock()

	if cmdName != "" {
		logger.Debugf("encoder [%s] registered (command: %s)", pair, cmdName)
	} else {
		logger.Debugf("encoder [%s] registered", pair)
	}
	return true
}

// Get looks up the encoder for a source/target pair
func Get(source, target string) (EncodeFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := Registry[Pair{source, target}]
	return fn, ok
}

// Registered lists the registered pairs, sorted
func Registered() []Pair {
	registryMu.RLock()
	defer registryMu.RUnlock()
	pairs := make([]Pair, 0, len(Registry))
	for p := range Registry {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })
	return pairs
}

// RegisterDefaults registers every encoder the server ships with
func RegisterDefaults() {
	Register("jpg", "png", "", EncodeImage)
	Register("png", "jpg", "", EncodeImage)
	Register("webp", "png", "", EncodeImage)
	Register("gif", "png", "", EncodeImage)
	Register("tiff", "jpg", "", EncodeImage)
	Register("png", "webp", "cwebp", EncodeWebP)

	Register("jpg", "jpg", "", EncodeEnhanced)

	Register("jpg", "pdf", "", EncodeImagePDF)
	Register("png", "pdf", "", EncodeImagePDF)
	Register("txt", "pdf", "", EncodeTextPDF)
	Register("pdf", "docx", "", EncodePDFToDOCX)
	Register("docx", "html", "", EncodeDOCXToHTML)
}
