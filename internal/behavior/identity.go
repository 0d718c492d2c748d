package behavior

import (
	"persistkit/internal/core/entity"
	"persistkit/internal/dbcontext"
	"persistkit/internal/mapping"
)

// Identity declares the key of Identifiable entities. int64 keys are
// generated by the store, uuid keys on add; string keys must be supplied.
type Identity struct{}

func (Identity) Name() string { return "identity" }

func (Identity) OnModelCreating(_ *mapping.ModelBuilder, _ *dbcontext.Definition, et *mapping.EntityType) {
	sample, ok := et.New().(entity.Identifiable)
	if !ok || len(et.Key()) > 0 {
		return
	}

	f := sample.IdentityKey()
	gen := mapping.KeySupplied
	switch f.Kind {
	case entity.KindInt64:
		gen = mapping.KeyGeneratedByStore
	case entity.KindUUID:
		gen = mapping.KeyGeneratedOnAdd
	}
	et.HasKey(gen, func(e any) []entity.Field {
		return []entity.Field{e.(entity.Identifiable).IdentityKey()}
	})
	et.UseKind(slotKey, f.Kind)
	et.AddCapability(mapping.CapIdentity)
}
