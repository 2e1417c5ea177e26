package catalog

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// validatorInstance returns the shared validator. validator.Validate caches
// struct metadata and is safe for concurrent use.
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})

	return validate
}

// ValidateStruct checks v against its validate tags and converts the first
// violation into a *ValidationError.
func ValidateStruct(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]

		return &ValidationError{
			Field: fieldName(fe),
			Rule:  ruleName(fe),
			Value: fe.Value(),
		}
	}

	return &ValidationError{Field: "input", Rule: err.Error()}
}

// fieldName converts a validator namespace like "Collection.SyncMeta.X" to
// a snake_case field name matching the JSON wire format.
func fieldName(fe validator.FieldError) string {
	return toSnake(fe.Field())
}

func ruleName(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}

	return fe.Tag() + "=" + fe.Param()
}

func toSnake(s string) string {
	var b strings.Builder

	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}

			r += 'a' - 'A'
		}

		b.WriteRune(r)
	}

	return b.String()
}

// ValidateQuery checks filter bounds and that the sort key applies to t.
func ValidateQuery(t EntityType, q Query) error {
	if err := ValidateStruct(q); err != nil {
		return err
	}

	if q.Sort != "" && !slices.Contains(SortKeysFor(t), q.Sort) {
		return &ValidationError{Field: "sort", Rule: "oneof", Value: string(q.Sort)}
	}

	return nil
}

// NormalizeText trims surrounding whitespace and converts to Unicode NFC so
// that visually identical titles compare and search equal.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// FoldKeyword normalizes a search keyword or indexed text for
// case-insensitive matching.
func FoldKeyword(s string) string {
	return strings.ToLower(NormalizeText(s))
}

func normalizeList(in []string) []string {
	if in == nil {
		return nil
	}

	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := NormalizeText(s); n != "" {
			out = append(out, n)
		}
	}

	return out
}

// Normalize canonicalizes text fields in place.
func (m *MediaItem) Normalize() {
	m.Title = NormalizeText(m.Title)
	m.OriginalTitle = NormalizeText(m.OriginalTitle)
	m.Studio = NormalizeText(m.Studio)
	m.Series = NormalizeText(m.Series)
	m.Tags = normalizeList(m.Tags)
}

// Normalize canonicalizes text fields in place.
func (a *Actor) Normalize() {
	a.Name = NormalizeText(a.Name)
	a.Aliases = normalizeList(a.Aliases)
}

// Normalize canonicalizes text fields in place.
func (c *Collection) Normalize() {
	c.Notes = strings.TrimSpace(c.Notes)
}
