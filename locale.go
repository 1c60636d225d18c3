package storecache

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Direction is a layout direction.
type Direction int

const (
	// LTR is left-to-right layout.
	LTR Direction = iota
	// RTL is right-to-left layout.
	RTL
)

// String returns "ltr" or "rtl".
func (d Direction) String() string {
	if d == RTL {
		return "rtl"
	}
	return "ltr"
}

// ParseDirection converts "ltr"/"rtl" (case-insensitive) to a Direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ltr":
		return LTR, nil
	case "rtl":
		return RTL, nil
	default:
		return LTR, fmt.Errorf("unknown layout direction %q", s)
	}
}

// RTLLanguages contains base language codes that use right-to-left layout.
var RTLLanguages = map[string]bool{
	"ar": true, // Arabic
	"he": true, // Hebrew
	"fa": true, // Persian/Farsi
	"ur": true, // Urdu
	"ps": true, // Pashto
	"sd": true, // Sindhi
	"ug": true, // Uyghur
}

// Locale is a supported language/region configuration. Locale values are
// immutable; switching locale replaces the active value.
type Locale struct {
	Code      string       // Machine code (e.g., "en", "ar")
	Name      string       // Display name
	CultureID int          // Culture identifier expected by the remote API
	Direction Direction    // Layout direction
	Tag       language.Tag // Parsed BCP 47 tag
}

// IsZero reports whether l is the zero Locale.
func (l Locale) IsZero() bool {
	return l.Code == ""
}

// IsRTL reports whether the locale lays out right-to-left.
func (l Locale) IsRTL() bool {
	return l.Direction == RTL
}

func (l Locale) String() string {
	return l.Code
}

// NewLocale builds a Locale, deriving its direction from the language.
func NewLocale(code, name string, cultureID int) (Locale, error) {
	tag, err := language.Parse(NormalizeCode(code))
	if err != nil {
		return Locale{}, fmt.Errorf("%w: %q: %v", ErrUnsupportedLocale, code, err)
	}
	return Locale{
		Code:      code,
		Name:      name,
		CultureID: cultureID,
		Direction: DirectionOf(code),
		Tag:       tag,
	}, nil
}

// MustLocale is like NewLocale but panics on error. It is intended for
// package-level registries.
func MustLocale(code, name string, cultureID int) Locale {
	l, err := NewLocale(code, name, cultureID)
	if err != nil {
		panic(err)
	}
	return l
}

// NormalizeCode converts "en_US" style codes to BCP 47 ("en-US").
func NormalizeCode(code string) string {
	return strings.ReplaceAll(strings.TrimSpace(code), "_", "-")
}

// baseLanguage extracts the base language ("ar" from "ar-SA"), falling back
// to a plain split when the code does not parse.
func baseLanguage(code string) string {
	normalized := NormalizeCode(code)
	if tag, err := language.Parse(normalized); err == nil {
		if base, conf := tag.Base(); conf != language.No {
			return base.String()
		}
	}
	return strings.ToLower(strings.Split(normalized, "-")[0])
}

// DirectionOf returns the layout direction of a language code.
func DirectionOf(code string) Direction {
	if RTLLanguages[baseLanguage(code)] {
		return RTL
	}
	return LTR
}

// Registry is the closed set of locales an application supports.
type Registry struct {
	locales []Locale
	byCode  map[string]Locale
	def     Locale
}

// NewRegistry creates a registry. The first locale is the default.
func NewRegistry(locales ...Locale) (*Registry, error) {
	if len(locales) == 0 {
		return nil, fmt.Errorf("registry needs at least one locale")
	}

	r := &Registry{
		byCode: make(map[string]Locale, len(locales)),
		def:    locales[0],
	}
	for _, l := range locales {
		if _, dup := r.byCode[l.Code]; dup {
			return nil, fmt.Errorf("duplicate locale %q", l.Code)
		}
		r.byCode[l.Code] = l
		r.locales = append(r.locales, l)
	}
	return r, nil
}

// English and Arabic are the storefront's two supported locales.
var (
	English = MustLocale("en", "English", 1033)
	Arabic  = MustLocale("ar", "العربية", 1025)
)

// DefaultRegistry returns the storefront registry: English (default) and Arabic.
func DefaultRegistry() *Registry {
	r, _ := NewRegistry(English, Arabic)
	return r
}

// Default returns the default locale.
func (r *Registry) Default() Locale {
	return r.def
}

// All returns every supported locale, default first.
func (r *Registry) All() []Locale {
	out := make([]Locale, len(r.locales))
	copy(out, r.locales)
	return out
}

// Lookup resolves a code to a supported locale. Exact codes match first;
// otherwise regional variants ("ar-SA", "en_US") resolve through their base
// language.
func (r *Registry) Lookup(code string) (Locale, error) {
	if l, ok := r.byCode[code]; ok {
		return l, nil
	}

	base := baseLanguage(code)
	for _, l := range r.locales {
		if baseLanguage(l.Code) == base {
			return l, nil
		}
	}
	return Locale{}, fmt.Errorf("%w: %q", ErrUnsupportedLocale, code)
}

// Others returns every supported locale except l.
func (r *Registry) Others(l Locale) []Locale {
	var out []Locale
	for _, candidate := range r.locales {
		if candidate.Code != l.Code {
			out = append(out, candidate)
		}
	}
	return out
}
