package entity

import "reflect"

// Identifiable entities have a single-column primary key.
type Identifiable interface {
	IdentityKey() Field
}

// Audit groups the timestamp and user columns of one audit capability.
type Audit struct {
	At Field
	By Field
}

// Creatable entities record when and by whom they were inserted.
type Creatable interface {
	CreationAudit() Audit
}

// Modifiable entities record when and by whom they were last updated.
type Modifiable interface {
	ModificationAudit() Audit
}

// Deletion groups the soft-delete columns.
type Deletion struct {
	Flag Field
	At   Field
	By   Field
}

// SoftDeletable entities are flagged instead of physically removed.
type SoftDeletable interface {
	SoftDeletion() Deletion
}

// RowVersionable entities carry an optimistic concurrency token.
type RowVersionable interface {
	RowVersionToken() Field
}

// TenantScopable entities belong to exactly one tenant.
type TenantScopable interface {
	TenantKey() Field
}

// Localizable entities are stored per locale.
type Localizable interface {
	LocaleKey() Field
}

// Translation is a per-locale record owned by a Translatable entity.
// Its key is the pair (owner, locale).
type Translation interface {
	TranslationOwner() Field
	TranslationLocale() Field
}

// TranslationCollection is the in-memory list of translation records of one owner.
type TranslationCollection interface {
	// RecordType is the struct type of the records.
	RecordType() reflect.Type
	Records() []Translation
	NewRecord() Translation
	Append(r Translation) error
	Reset()
}

// Translatable entities own a one-to-many collection of translation records.
type Translatable interface {
	Translations() TranslationCollection
}

// TextEntry is one (locale, text) pair of a translated property.
type TextEntry struct {
	Locale any
	Text   string
}

// TranslatedValue is the container type for a translated property.
// Only TranslatedText implements it.
type TranslatedValue interface {
	LocaleKind() ValueKind
	Entries() []TextEntry
	Load(entries []TextEntry) error
	translatedValue()
}

// HasTranslatedProperties entities expose their translated properties by name.
type HasTranslatedProperties interface {
	TranslatedProperties() map[string]TranslatedValue
}

// IsTranslatedContainer reports whether v is a translated-property container.
// The model builder never maps containers as entities.
func IsTranslatedContainer(v any) bool {
	_, ok := v.(TranslatedValue)
	return ok
}
