// Package ledger persists filed invoices as rows of the invoices table.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Lllllllleong/invoiceflow/internal/ledger/migrations"
	"github.com/Lllllllleong/invoiceflow/internal/models"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// DBTX is the subset of *sql.DB and *sql.Tx the ledger needs.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const insertInvoice = `INSERT INTO invoices
    (vendor, nip, invoice_date, amount, currency, drive_url, raw_ai_output, source_message_id, source_attachment_id)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// PostgresLedger writes invoice rows over database/sql with the pgx driver.
type PostgresLedger struct {
	db DBTX
}

func NewPostgresLedger(db DBTX) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Insert writes one row. Rows are never deduplicated.
func (l *PostgresLedger) Insert(ctx context.Context, inv models.FiledInvoice) error {
	var amount sql.NullFloat64
	if inv.Amount != nil {
		amount = sql.NullFloat64{Float64: *inv.Amount, Valid: true}
	}
	var raw sql.NullString
	if len(inv.Raw) > 0 {
		raw = sql.NullString{String: string(inv.Raw), Valid: true}
	}

	_, err := l.db.ExecContext(ctx, insertInvoice,
		nullIfEmpty(inv.Vendor),
		nullIfEmpty(inv.NIP),
		nullIfEmpty(inv.InvoiceDate),
		amount,
		nullIfEmpty(inv.Currency),
		inv.FileURL,
		raw,
		nullIfEmpty(inv.SourceMessageID),
		nullIfEmpty(inv.SourceAttachmentID),
	)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// OpenPostgres opens a pgx-backed pool for dsn and verifies it answers.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url must be set for the postgres ledger")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migration error: %w", err)
	}
	return nil
}
