package analysis

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultLanguage is used when an index definition names no language.
const DefaultLanguage = "en"

// Analyzer turns text into index terms.
type Analyzer interface {
	Tokenize(text string) []string
}

// AnalyzerFunc adapts a plain function to Analyzer.
type AnalyzerFunc func(text string) []string

func (f AnalyzerFunc) Tokenize(text string) []string { return f(text) }

var analyzers = xsync.NewMapOf[string, Analyzer]()

func init() {
	analyzers.Store(DefaultLanguage, AnalyzerFunc(Standard))
}

// Register installs an analyzer for a language, replacing any existing one.
func Register(language string, analyzer Analyzer) {
	analyzers.Store(language, analyzer)
}

// Lookup returns the analyzer for a language. High-resolution mode uses
// prefix expansion regardless of language.
func Lookup(language string, highResolution bool) (Analyzer, error) {
	if language == "" {
		language = DefaultLanguage
	}
	analyzer, ok := analyzers.Load(language)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
	}
	if highResolution {
		return AnalyzerFunc(HighResolution), nil
	}
	return analyzer, nil
}
