package dberror

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"persistkit/internal/dberror/internal/mssql"
)

func TestClassify_PostgresDuplicateKey(t *testing.T) {
	err := fmt.Errorf("insert products: %w", &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"products_code_key\"",
		ConstraintName: "products_code_key",
		TableName:      "products",
		SchemaName:     "public",
	})

	info := DefaultChain().Classify(err)
	assert.Equal(t, DuplicateKey, info.Kind)
	assert.Equal(t, "postgres", info.Provider)
	assert.Equal(t, "23505", info.SQLState)
	assert.Equal(t, "products_code_key", info.Constraint)
	assert.Equal(t, "products", info.Table)
	assert.Equal(t, "public", info.Schema)
	assert.Same(t, err, info.Err)
}

func TestClassify_PostgresCodes(t *testing.T) {
	cases := map[string]Kind{
		"23503": ForeignKeyViolation,
		"23502": NotNullViolation,
		"23514": CheckViolation,
		"40P01": Deadlock,
		"40001": Retryable,
		"55P03": Retryable,
	}
	for code, want := range cases {
		t.Run(code, func(t *testing.T) {
			info := DefaultChain().Classify(&pgconn.PgError{Code: code})
			assert.Equal(t, want, info.Kind)
		})
	}
}

func TestClassify_LibPQ(t *testing.T) {
	err := fmt.Errorf("save: %w", &pq.Error{Code: "23503", Constraint: "orders_customer_fk", Table: "orders"})

	info := DefaultChain().Classify(err)
	assert.Equal(t, ForeignKeyViolation, info.Kind)
	assert.Equal(t, "postgres", info.Provider)
	assert.Equal(t, "orders_customer_fk", info.Constraint)
	assert.Equal(t, "orders", info.Table)
}

func TestClassify_SQLServerDuplicateKey(t *testing.T) {
	for _, number := range []int32{2627, 2601} {
		err := fmt.Errorf("exec: %w", mssql.Error{
			Number:     number,
			Message:    "Violation of PRIMARY KEY constraint 'PK_Products'. Cannot insert duplicate key in object 'dbo.Products'.",
			ServerName: "db-1",
		})

		info := DefaultChain().Classify(err)
		assert.Equal(t, DuplicateKey, info.Kind)
		assert.Equal(t, "sqlserver", info.Provider)
		assert.Equal(t, int(number), info.Number)
		assert.Equal(t, "PK_Products", info.Constraint)
		assert.Equal(t, "dbo.Products", info.Table)
		assert.Equal(t, "db-1", info.ConnectionID)
	}
}

func TestClassify_SQLServerNumbers(t *testing.T) {
	assert.Equal(t, ForeignKeyViolation, DefaultChain().Classify(mssql.Error{Number: 547}).Kind)
	assert.Equal(t, NotNullViolation, DefaultChain().Classify(mssql.Error{Number: 515}).Kind)
	info := DefaultChain().Classify(mssql.Error{Number: 1205})
	assert.Equal(t, Deadlock, info.Kind)
	assert.True(t, info.IsRetryable())
}

func TestClassify_MySQL(t *testing.T) {
	err := fmt.Errorf("insert: %w", &mysql.MySQLError{
		Number:   1062,
		SQLState: [5]byte{'2', '3', '0', '0', '0'},
		Message:  "Duplicate entry 'A-1' for key 'products.code'",
	})

	info := DefaultChain().Classify(err)
	assert.Equal(t, DuplicateKey, info.Kind)
	assert.Equal(t, "mysql", info.Provider)
	assert.Equal(t, 1062, info.Number)
	assert.Equal(t, "23000", info.SQLState)
	assert.Equal(t, "products.code", info.Constraint)

	assert.Equal(t, ForeignKeyViolation, DefaultChain().Classify(&mysql.MySQLError{Number: 1452}).Kind)
	assert.Equal(t, Retryable, DefaultChain().Classify(&mysql.MySQLError{Number: 1205}).Kind)
}

func TestClassify_SQLiteFromDriver(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", "file:dberror?mode=memory")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx, "CREATE TABLE products (code TEXT NOT NULL UNIQUE)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO products (code) VALUES ('A-1')")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "INSERT INTO products (code) VALUES ('A-1')")
	require.Error(t, err)
	info := DefaultChain().Classify(fmt.Errorf("save: %w", err))
	assert.Equal(t, DuplicateKey, info.Kind)
	assert.Equal(t, "sqlite", info.Provider)

	_, err = db.ExecContext(ctx, "INSERT INTO products (code) VALUES (NULL)")
	require.Error(t, err)
	assert.Equal(t, NotNullViolation, DefaultChain().Classify(err).Kind)
}

func TestClassify_UnrecognisedIsUnknownWithoutDiagnostics(t *testing.T) {
	for _, err := range []error{
		errors.New("connection reset by peer"),
		&pgconn.PgError{Code: "XX000", ConstraintName: "ignored"},
		mssql.Error{Number: 50000},
	} {
		info := DefaultChain().Classify(err)
		assert.Equal(t, Unknown, info.Kind)
		assert.Empty(t, info.Provider)
		assert.Empty(t, info.SQLState)
		assert.Zero(t, info.Number)
		assert.Empty(t, info.Constraint)
		assert.Empty(t, info.Table)
		assert.Empty(t, info.Schema)
		assert.Empty(t, info.ConnectionID)
		assert.Equal(t, err, info.Err)
	}
}

func TestClassify_JoinedErrors(t *testing.T) {
	err := errors.Join(errors.New("rollback failed"), fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}))
	assert.Equal(t, DuplicateKey, DefaultChain().Classify(err).Kind)
}

type alwaysHandler struct{}

func (alwaysHandler) Provider() string { return "custom" }

func (alwaysHandler) Classify(error) (*Info, bool) {
	return &Info{Kind: CheckViolation}, true
}

func TestChain_FirstRecognisingHandlerWins(t *testing.T) {
	chain := NewChain(alwaysHandler{}, Postgres{})
	info := chain.Classify(&pgconn.PgError{Code: "23505"})
	assert.Equal(t, CheckViolation, info.Kind)
	assert.Equal(t, "custom", info.Provider)

	info = DefaultChain().Append(alwaysHandler{}).Classify(&pgconn.PgError{Code: "23505"})
	assert.Equal(t, DuplicateKey, info.Kind)
}
