package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Lllllllleong/invoiceflow/internal/models"
)

// invoiceRow is the PostgREST representation of one invoices row.
type invoiceRow struct {
	Vendor             *string         `json:"vendor"`
	NIP                *string         `json:"nip"`
	InvoiceDate        *string         `json:"invoice_date"`
	Amount             *float64        `json:"amount"`
	Currency           *string         `json:"currency"`
	DriveURL           string          `json:"drive_url"`
	RawAIOutput        json.RawMessage `json:"raw_ai_output"`
	SourceMessageID    *string         `json:"source_message_id,omitempty"`
	SourceAttachmentID *string         `json:"source_attachment_id,omitempty"`
}

func newInvoiceRow(inv models.FiledInvoice, withSourceIDs bool) invoiceRow {
	raw := inv.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	row := invoiceRow{
		Vendor:      optional(inv.Vendor),
		NIP:         optional(inv.NIP),
		InvoiceDate: optional(inv.InvoiceDate),
		Amount:      inv.Amount,
		Currency:    optional(inv.Currency),
		DriveURL:    inv.FileURL,
		RawAIOutput: raw,
	}
	if withSourceIDs {
		row.SourceMessageID = optional(inv.SourceMessageID)
		row.SourceAttachmentID = optional(inv.SourceAttachmentID)
	}
	return row
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RESTLedger inserts rows through a Supabase (PostgREST) endpoint.
//
// The source_message_id and source_attachment_id columns are only sent when
// IncludeSourceIDs is set, since PostgREST rejects columns the table lacks.
// Apply migrations/00001_create_invoices.sql to the Supabase project first.
type RESTLedger struct {
	IncludeSourceIDs bool

	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

func NewRESTLedger(baseURL, apiKey string, logger *slog.Logger) *RESTLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RESTLedger{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Insert posts a single-row array to /rest/v1/invoices.
func (l *RESTLedger) Insert(ctx context.Context, inv models.FiledInvoice) error {
	if l.baseURL == "" {
		return fmt.Errorf("supabase url must be set for the rest ledger")
	}
	b, err := json.Marshal([]invoiceRow{newInvoiceRow(inv, l.IncludeSourceIDs)})
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.baseURL+"/rest/v1/invoices", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", l.apiKey)
	req.Header.Set("Authorization", "Bearer "+l.apiKey)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := l.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger http error: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			l.logger.Warn("Ledger response body close error.", "error", err)
		}
	}(resp.Body)

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ledger status %d: %s", resp.StatusCode, raw)
	}
	return nil
}
