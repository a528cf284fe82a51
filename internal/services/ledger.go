package services

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/invoiceflow/internal/models"
)

// LedgerWriter records filed invoices.
type LedgerWriter struct {
	store LedgerStore
}

func NewLedgerWriter(store LedgerStore) *LedgerWriter {
	return &LedgerWriter{store: store}
}

// Record inserts one row for inv. Failures wrap models.ErrLedgerWriteFailed.
func (w *LedgerWriter) Record(ctx context.Context, inv models.FiledInvoice) error {
	if err := w.store.Insert(ctx, inv); err != nil {
		return fmt.Errorf("%w: %w", models.ErrLedgerWriteFailed, err)
	}
	return nil
}
