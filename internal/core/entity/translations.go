package entity

import (
	"fmt"
	"reflect"
)

// Translations is a ready-made TranslationCollection.
//
//	type Product struct {
//	    entity.Identity[int64]
//	    Texts entity.Translations[ProductText, *ProductText] `db:"-" json:"texts"`
//	}
//
//	func (p *Product) Translations() entity.TranslationCollection { return &p.Texts }
type Translations[T any, R interface {
	*T
	Translation
}] struct {
	Items []R
}

// RecordType implements TranslationCollection.
func (c *Translations[T, R]) RecordType() reflect.Type {
	return reflect.TypeFor[T]()
}

// Records implements TranslationCollection.
func (c *Translations[T, R]) Records() []Translation {
	out := make([]Translation, len(c.Items))
	for i, r := range c.Items {
		out[i] = r
	}
	return out
}

// NewRecord implements TranslationCollection.
func (c *Translations[T, R]) NewRecord() Translation {
	return R(new(T))
}

// Append implements TranslationCollection.
func (c *Translations[T, R]) Append(r Translation) error {
	typed, ok := r.(R)
	if !ok {
		return fmt.Errorf("entity: translation %T does not belong to %s", r, c.RecordType())
	}
	c.Items = append(c.Items, typed)
	return nil
}

// Reset implements TranslationCollection.
func (c *Translations[T, R]) Reset() {
	c.Items = nil
}

// Add appends a record.
func (c *Translations[T, R]) Add(r R) {
	c.Items = append(c.Items, r)
}

// LocalizedText is one value of a TranslatedText.
type LocalizedText[L Key] struct {
	LocaleID L      `json:"localeId"`
	Text     string `json:"text"`
}

// TranslatedText is the container type for a translated property. Values are
// stored in a derived table "{Entity}_{Property}Translations".
type TranslatedText[L Key] struct {
	Values []LocalizedText[L] `json:"values"`
}

// Get returns the text for locale.
func (t *TranslatedText[L]) Get(locale L) (string, bool) {
	for _, v := range t.Values {
		if v.LocaleID == locale {
			return v.Text, true
		}
	}
	return "", false
}

// Set replaces or adds the text for locale.
func (t *TranslatedText[L]) Set(locale L, text string) {
	for i := range t.Values {
		if t.Values[i].LocaleID == locale {
			t.Values[i].Text = text
			return
		}
	}
	t.Values = append(t.Values, LocalizedText[L]{LocaleID: locale, Text: text})
}

// Remove drops the text for locale.
func (t *TranslatedText[L]) Remove(locale L) {
	out := t.Values[:0]
	for _, v := range t.Values {
		if v.LocaleID != locale {
			out = append(out, v)
		}
	}
	t.Values = out
}

// LocaleKind implements TranslatedValue.
func (t *TranslatedText[L]) LocaleKind() ValueKind {
	return KindOf[L]()
}

// Entries implements TranslatedValue.
func (t *TranslatedText[L]) Entries() []TextEntry {
	out := make([]TextEntry, len(t.Values))
	for i, v := range t.Values {
		out[i] = TextEntry{Locale: v.LocaleID, Text: v.Text}
	}
	return out
}

// Load implements TranslatedValue. It replaces all values.
func (t *TranslatedText[L]) Load(entries []TextEntry) error {
	values := make([]LocalizedText[L], 0, len(entries))
	for _, e := range entries {
		locale, ok := e.Locale.(L)
		if !ok {
			return fmt.Errorf("%w: translated text expects %s locale, got %T", ErrKindMismatch, KindOf[L](), e.Locale)
		}
		values = append(values, LocalizedText[L]{LocaleID: locale, Text: e.Text})
	}
	t.Values = values
	return nil
}

func (t *TranslatedText[L]) translatedValue() {}
