package storecache

import (
	"errors"
	"testing"
)

func TestDirectionOf(t *testing.T) {
	tests := []struct {
		code     string
		expected Direction
	}{
		{"ar_SA", RTL},
		{"ar-EG", RTL},
		{"he_IL", RTL},
		{"fa", RTL},
		{"ur_PK", RTL},
		{"ar", RTL},
		{"en", LTR},
		{"en_US", LTR},
		{"fr-FR", LTR},
		{"zh_CN", LTR},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := DirectionOf(tt.code); got != tt.expected {
				t.Errorf("DirectionOf(%q) = %v, want %v", tt.code, got, tt.expected)
			}
		})
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection("RTL"); err != nil || d != RTL {
		t.Errorf("ParseDirection(RTL) = %v, %v", d, err)
	}
	if d, err := ParseDirection("ltr"); err != nil || d != LTR {
		t.Errorf("ParseDirection(ltr) = %v, %v", d, err)
	}
	if _, err := ParseDirection("sideways"); err == nil {
		t.Error("expected error for unknown direction")
	}
	if RTL.String() != "rtl" || LTR.String() != "ltr" {
		t.Error("unexpected Direction strings")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	if r.Default().Code != "en" {
		t.Errorf("default locale = %q, want en", r.Default().Code)
	}
	if len(r.All()) != 2 {
		t.Fatalf("expected 2 locales, got %d", len(r.All()))
	}

	ar, err := r.Lookup("ar")
	if err != nil {
		t.Fatalf("Lookup(ar) failed: %v", err)
	}
	if !ar.IsRTL() || ar.CultureID != 1025 {
		t.Errorf("unexpected Arabic locale %+v", ar)
	}

	others := r.Others(English)
	if len(others) != 1 || others[0].Code != "ar" {
		t.Errorf("Others(en) = %v", others)
	}
}

func TestRegistry_LookupVariants(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		code string
		want string
	}{
		{"en", "en"},
		{"en_US", "en"},
		{"en-GB", "en"},
		{"ar-SA", "ar"},
		{"ar_EG", "ar"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			l, err := r.Lookup(tt.code)
			if err != nil {
				t.Fatalf("Lookup(%q) failed: %v", tt.code, err)
			}
			if l.Code != tt.want {
				t.Errorf("Lookup(%q) = %q, want %q", tt.code, l.Code, tt.want)
			}
		})
	}
}

func TestRegistry_LookupUnsupported(t *testing.T) {
	r := DefaultRegistry()
	for _, code := range []string{"fr", "", "not a locale"} {
		if _, err := r.Lookup(code); !errors.Is(err, ErrUnsupportedLocale) {
			t.Errorf("Lookup(%q) error = %v, want ErrUnsupportedLocale", code, err)
		}
	}
}

func TestNewRegistry_Errors(t *testing.T) {
	if _, err := NewRegistry(); err == nil {
		t.Error("expected error for empty registry")
	}
	if _, err := NewRegistry(English, English); err == nil {
		t.Error("expected error for duplicate locale")
	}
}

func TestNewLocale(t *testing.T) {
	l, err := NewLocale("he_IL", "עברית", 1037)
	if err != nil {
		t.Fatalf("NewLocale failed: %v", err)
	}
	if l.Direction != RTL {
		t.Error("Hebrew should be RTL")
	}
	if l.Tag.String() != "he-IL" {
		t.Errorf("Tag = %s, want he-IL", l.Tag)
	}

	if _, err := NewLocale("!!", "bad", 0); err == nil {
		t.Error("expected error for malformed code")
	}
}
