// Package language normalizes free-form language tags and names to a
// canonical {tag, label} pair for prompt construction.
package language

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Language is a resolved language selection. Tag is a BCP 47 tag when the
// input was recognized, empty otherwise; Label is always usable in a prompt.
type Language struct {
	Tag   string `json:"tag,omitempty"`
	Label string `json:"label"`
}

// Resolved reports whether the input mapped to a known tag.
func (l Language) Resolved() bool {
	return l.Tag != ""
}

// candidate tags the name scan covers. Matching by English or native display
// name keeps Resolve stable: resolving a resolved label finds the same tag.
var candidates = []language.Tag{
	language.English, language.German, language.French, language.Spanish,
	language.Italian, language.Portuguese, language.Dutch, language.Polish,
	language.Russian, language.Ukrainian, language.Turkish, language.Arabic,
	language.Hebrew, language.Hindi, language.Japanese, language.Korean,
	language.SimplifiedChinese, language.TraditionalChinese, language.Thai,
	language.Vietnamese, language.Indonesian, language.Swedish,
	language.Norwegian, language.Danish, language.Finnish, language.Greek,
	language.Czech, language.Hungarian, language.Romanian,
}

// Resolve normalizes a free-form language input ("de", "german", "Deutsch")
// to a tag and English label. Unrecognized inputs pass through as a
// sanitized label with no tag, so the model still sees the user's intent.
func Resolve(input string) Language {
	cleaned := sanitize(input)
	if cleaned == "" {
		return Language{}
	}

	// BCP 47 tag first.
	if tag, err := language.Parse(cleaned); err == nil {
		base, conf := tag.Base()
		if conf >= language.High {
			canonical := language.Make(base.String())
			return Language{
				Tag:   canonical.String(),
				Label: display.English.Languages().Name(canonical),
			}
		}
	}

	// Name scan: English and native display names, case-insensitive.
	lower := strings.ToLower(cleaned)
	for _, tag := range candidates {
		if strings.ToLower(display.English.Languages().Name(tag)) == lower ||
			strings.ToLower(display.Self.Name(tag)) == lower {
			return Language{
				Tag:   tag.String(),
				Label: display.English.Languages().Name(tag),
			}
		}
	}

	return Language{Label: cleaned}
}

// sanitize strips control characters and collapses interior whitespace so
// unrecognized labels are safe to embed in a prompt.
func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
