package analysis

import "errors"

// ErrUnsupportedLanguage is returned when no analyzer is registered for a language.
var ErrUnsupportedLanguage = errors.New("unsupported language")
