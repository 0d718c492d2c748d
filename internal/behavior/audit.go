package behavior

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/klauspost/compress/zstd"

	"persistkit/internal/ambient"
	"persistkit/internal/core/di"
	"persistkit/internal/core/entity"
	"persistkit/internal/core/id"
	"persistkit/internal/dbcontext"
	"persistkit/internal/infrastructure/storage"
	"persistkit/internal/mapping"
	"persistkit/internal/tracking"
	"persistkit/pkg/logger"
)

// AuditAction is the kind of change an audit entry records.
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"
)

// CompressionAlgo names the encoding of a stored change payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is one row of the audit log.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	Context           string          `db:"context"`
	EntityType        string          `db:"entity_type"`
	EntityKey         string          `db:"entity_key"`
	Action            AuditAction     `db:"action"`
	UserID            string          `db:"user_id"`
	Changes           string          `db:"changes"`
	ChangesCompressed []byte          `db:"changes_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditTrail records every saved change in an audit table. Entries are
// captured before the save, while original values are still known, and
// written once the save succeeded. Payloads above the threshold are stored
// zstd-compressed.
type AuditTrail struct {
	table             string
	compressThreshold int
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
}

// AuditOption configures an AuditTrail.
type AuditOption func(*AuditTrail)

// WithAuditTable overrides the table name, "audit_log" by default.
func WithAuditTable(table string) AuditOption {
	return func(a *AuditTrail) { a.table = table }
}

// WithCompressThreshold sets the payload size in bytes above which changes are
// compressed. The default is 10KB.
func WithCompressThreshold(n int) AuditOption {
	return func(a *AuditTrail) { a.compressThreshold = n }
}

// NewAuditTrail creates the audit unit.
func NewAuditTrail(opts ...AuditOption) (*AuditTrail, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	a := &AuditTrail{
		table:             "audit_log",
		compressThreshold: 10 * 1024,
		encoder:           encoder,
		decoder:           decoder,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *AuditTrail) Name() string  { return "audit-trail" }
func (a *AuditTrail) Table() string { return a.table }

func (a *AuditTrail) OnExecutionContextCreating(r di.Resolver) map[string]any {
	return contribute(r, ambient.CurrentUserProviderKey)
}

// Schema implements dbcontext.SchemaBehavior.
func (a *AuditTrail) Schema(d storage.Dialect) []string {
	uuidType := d.ColumnType(mapping.Column{GoType: reflect.TypeFor[id.ID]()}, true)
	keyType := d.ColumnType(mapping.Column{GoType: reflect.TypeFor[string]()}, true)
	blobType := d.ColumnType(mapping.Column{GoType: reflect.TypeFor[[]byte]()}, false)
	timeType := d.ColumnType(mapping.Column{GoType: reflect.TypeFor[time.Time]()}, false)

	stmts := []string{fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s PRIMARY KEY,
	context %s NOT NULL,
	entity_type %s NOT NULL,
	entity_key %s NOT NULL,
	action %s NOT NULL,
	user_id TEXT NULL,
	changes TEXT NULL,
	changes_compressed %s NULL,
	compression_algo %s NOT NULL,
	created_at %s NOT NULL
)`, a.table, uuidType, keyType, keyType, keyType, keyType, blobType, keyType, timeType)}

	if d.Name != storage.MySQL.Name {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_entity_idx ON %s (entity_type, entity_key)", a.table, a.table))
	}
	return stmts
}

type auditKey struct{}

type pendingAudit struct {
	entry   *tracking.Entry
	action  AuditAction
	changes map[string]any
}

// OnBeforeSaveChanges captures the pending changes. It must run after the
// units that stamp entities so stamps are part of the payload.
func (a *AuditTrail) OnBeforeSaveChanges(_ context.Context, c *dbcontext.Context, _ time.Time) error {
	var pending []pendingAudit
	for _, e := range c.ChangeTracker().EntriesIn(tracking.Added, tracking.Modified, tracking.Deleted) {
		p := pendingAudit{entry: e}
		switch e.State() {
		case tracking.Added:
			p.action = AuditActionCreate
			p.changes = Diff(nil, e.CurrentValues())
		case tracking.Modified:
			p.action = AuditActionUpdate
			current := e.CurrentValues()
			original := e.OriginalValues()
			p.changes = Diff(original, current)
			if softDeleted(e, original, current) {
				p.action = AuditActionDelete
			}
		case tracking.Deleted:
			p.action = AuditActionDelete
			p.changes = Diff(e.OriginalValues(), nil)
		}
		if len(p.changes) == 0 {
			continue
		}
		pending = append(pending, p)
	}
	// Cascades run after the before-save units; their targets are deleted
	// with the owner and audited as such.
	for _, e := range c.ChangeTracker().PendingCascades() {
		changes := Diff(e.OriginalValues(), nil)
		if len(changes) == 0 {
			continue
		}
		pending = append(pending, pendingAudit{entry: e, action: AuditActionDelete, changes: changes})
	}
	c.SetSaveState(auditKey{}, pending)
	return nil
}

// softDeleted reports whether the update sets the soft-delete flag.
func softDeleted(e *tracking.Entry, original, current map[string]any) bool {
	if !e.EntityType().Has(mapping.CapSoftDelete) {
		return false
	}
	col := e.Entity().(entity.SoftDeletable).SoftDeletion().Flag.Column
	return current[col] == true && original[col] != true
}

// OnAfterSaveChanges writes the captured entries in one transaction, or in a
// savepoint of the caller's transaction when there is one.
func (a *AuditTrail) OnAfterSaveChanges(ctx context.Context, c *dbcontext.Context) error {
	pending, _ := c.SaveState(auditKey{}).([]pendingAudit)
	if len(pending) == 0 {
		return nil
	}

	user := ""
	if u, ok := c.CurrentUserID(ctx); ok {
		user = fmt.Sprint(u)
	}
	now := time.Now().UTC()

	tx := c.TxManager()
	return tx.Savepoint(ctx, func(ctx context.Context) error {
		q := tx.GetQuerier(ctx)
		for _, p := range pending {
			et := p.entry.EntityType()
			entry := AuditEntry{
				ID:         id.New(),
				Context:    c.Definition().Name(),
				EntityType: et.Name(),
				EntityKey:  keyString(et.KeyValues(p.entry.Entity())),
				Action:     p.action,
				UserID:     user,
				CreatedAt:  now,
			}
			if err := a.log(ctx, q, c.DB().Dialect, entry, p.changes); err != nil {
				return err
			}
		}
		logger.Debug(ctx, "audit entries written", "context", c.Definition().Name(), "count", len(pending))
		return nil
	})
}

func (a *AuditTrail) log(ctx context.Context, q storage.Querier, d storage.Dialect, entry AuditEntry, changes map[string]any) error {
	payload, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal changes: %w", err)
	}

	entry.CompressionAlgo = CompressionNone
	var text any = string(payload)
	var compressed any
	if len(payload) > a.compressThreshold {
		entry.CompressionAlgo = CompressionZstd
		text = nil
		compressed = a.encoder.EncodeAll(payload, nil)
	}

	query, args, err := d.Builder().Insert(a.table).
		Columns("id", "context", "entity_type", "entity_key", "action", "user_id",
			"changes", "changes_compressed", "compression_algo", "created_at").
		Values(entry.ID, entry.Context, entry.EntityType, entry.EntityKey, string(entry.Action), entry.UserID,
			text, compressed, string(entry.CompressionAlgo), entry.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// History returns the latest entries of one entity, newest first, with
// payloads decompressed.
func (a *AuditTrail) History(ctx context.Context, c *dbcontext.Context, entityType string, key []any, limit uint64) ([]AuditEntry, error) {
	query, args, err := c.DB().Dialect.Builder().
		Select("id", "context", "entity_type", "entity_key", "action",
			"COALESCE(user_id, '') AS user_id", "COALESCE(changes, '') AS changes", "changes_compressed", "compression_algo", "created_at").
		From(a.table).
		Where("entity_type = ? AND entity_key = ?", entityType, keyString(key)).
		OrderBy("created_at DESC", "id DESC").
		Limit(limit).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	var entries []AuditEntry
	if err := sqlscan.Select(ctx, c.TxManager().GetQuerier(ctx), &entries, query, args...); err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	for i := range entries {
		e := &entries[i]
		if e.CompressionAlgo == CompressionZstd && len(e.ChangesCompressed) > 0 {
			decompressed, err := a.decoder.DecodeAll(e.ChangesCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress changes: %w", err)
			}
			e.Changes = string(decompressed)
			e.ChangesCompressed = nil
		}
	}
	return entries, nil
}

// Diff lists the values that differ between two column snapshots as
// {"old": ..., "new": ...} pairs.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)
	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists || !mapping.SameValue(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}
	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}
	return changes
}

func keyString(key []any) string {
	parts := make([]string, len(key))
	for i, v := range key {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}
