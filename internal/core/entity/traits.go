package entity

import (
	"time"

	"github.com/google/uuid"
)

// Conventional column names used by the traits.
const (
	ColumnID          = "id"
	ColumnCreatedAt   = "created_at"
	ColumnCreatedBy   = "created_by"
	ColumnModifiedAt  = "modified_at"
	ColumnModifiedBy  = "modified_by"
	ColumnIsDeleted   = "is_deleted"
	ColumnDeletedAt   = "deleted_at"
	ColumnDeletedBy   = "deleted_by"
	ColumnRowVersion  = "row_version"
	ColumnTenantID    = "tenant_id"
	ColumnLocaleID    = "locale_id"
	ColumnParentID    = "parent_id"
	ColumnTranslation = "text"
)

// Identity is a trait for entities keyed by a single ID column.
// Zero int64 IDs are generated by the store, zero UUIDs by the client.
type Identity[K Key] struct {
	ID K `db:"id" json:"id"`
}

// IdentityKey implements Identifiable.
func (e *Identity[K]) IdentityKey() Field {
	return KeyField(ColumnID, &e.ID)
}

// Created is a trait for creation audit fields.
type Created[U Key] struct {
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CreatedBy U         `db:"created_by" json:"createdBy"`
}

// CreationAudit implements Creatable.
func (c *Created[U]) CreationAudit() Audit {
	return Audit{
		At: TimeField(ColumnCreatedAt, &c.CreatedAt),
		By: KeyField(ColumnCreatedBy, &c.CreatedBy),
	}
}

// Modified is a trait for modification audit fields. Both stay NULL until the first update.
type Modified[U Key] struct {
	ModifiedAt *time.Time `db:"modified_at" json:"modifiedAt,omitempty"`
	ModifiedBy *U         `db:"modified_by" json:"modifiedBy,omitempty"`
}

// ModificationAudit implements Modifiable.
func (m *Modified[U]) ModificationAudit() Audit {
	return Audit{
		At: OptionalTimeField(ColumnModifiedAt, &m.ModifiedAt),
		By: OptionalKeyField(ColumnModifiedBy, &m.ModifiedBy),
	}
}

// SoftDelete is a trait for soft-deletable entities.
type SoftDelete[U Key] struct {
	IsDeleted bool       `db:"is_deleted" json:"isDeleted"`
	DeletedAt *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	DeletedBy *U         `db:"deleted_by" json:"deletedBy,omitempty"`
}

// SoftDeletion implements SoftDeletable.
func (s *SoftDelete[U]) SoftDeletion() Deletion {
	return Deletion{
		Flag: BoolField(ColumnIsDeleted, &s.IsDeleted),
		At:   OptionalTimeField(ColumnDeletedAt, &s.DeletedAt),
		By:   OptionalKeyField(ColumnDeletedBy, &s.DeletedBy),
	}
}

// RowVersion is a trait carrying an opaque concurrency token.
// The store replaces the token on every successful insert or update.
type RowVersion struct {
	Version uuid.UUID `db:"row_version" json:"rowVersion"`
}

// RowVersionToken implements RowVersionable.
func (r *RowVersion) RowVersionToken() Field {
	return KeyField(ColumnRowVersion, &r.Version)
}

// TenantScope is a trait for tenant-owned entities.
type TenantScope[T Key] struct {
	TenantID T `db:"tenant_id" json:"tenantId"`
}

// TenantKey implements TenantScopable.
func (t *TenantScope[T]) TenantKey() Field {
	return KeyField(ColumnTenantID, &t.TenantID)
}

// Localized is a trait for entities stored per locale.
type Localized[L Key] struct {
	LocaleID L `db:"locale_id" json:"localeId"`
}

// LocaleKey implements Localizable.
func (l *Localized[L]) LocaleKey() Field {
	return KeyField(ColumnLocaleID, &l.LocaleID)
}

// TranslationOf is a trait for translation records of a Translatable owner.
type TranslationOf[K Key, L Key] struct {
	ParentID K `db:"parent_id" json:"parentId"`
	LocaleID L `db:"locale_id" json:"localeId"`
}

// TranslationOwner implements Translation.
func (t *TranslationOf[K, L]) TranslationOwner() Field {
	return KeyField(ColumnParentID, &t.ParentID)
}

// TranslationLocale implements Translation.
func (t *TranslationOf[K, L]) TranslationLocale() Field {
	return KeyField(ColumnLocaleID, &t.LocaleID)
}
