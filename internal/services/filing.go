package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/Lllllllleong/invoiceflow/internal/models"
)

var monthFolderPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// FilingEngine decides an invoice's folder and uploads the file into it.
type FilingEngine struct {
	store  FileStore
	rootID string
	now    func() time.Time
	logger *slog.Logger
}

func NewFilingEngine(store FileStore, rootID string, logger *slog.Logger) *FilingEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &FilingEngine{store: store, rootID: rootID, now: time.Now, logger: logger}
}

// File resolves the month folder for rec, uploads att there and returns the
// ledger row for it. Failures wrap models.ErrFilingFailed; nothing already
// created is cleaned up.
func (e *FilingEngine) File(ctx context.Context, att models.Attachment, rec models.InvoiceRecord) (models.FiledInvoice, error) {
	folderID, err := e.resolveFolder(ctx, rec.Date)
	if err != nil {
		return models.FiledInvoice{}, err
	}

	name := UploadName(rec, att.Filename, e.now())
	fileID, err := e.store.Upload(ctx, folderID, name, att.MimeType, att.Data)
	if err != nil {
		return models.FiledInvoice{}, fmt.Errorf("%w: upload %s: %w", models.ErrFilingFailed, name, err)
	}

	return models.NewFiledInvoice(att, rec, fileID, folderID, e.store.FileURL(fileID)), nil
}

// resolveFolder searches once for the month folder under the root and
// creates it when missing. Without a date or a root the root is used.
func (e *FilingEngine) resolveFolder(ctx context.Context, date string) (string, error) {
	if date == "" || e.rootID == "" {
		return e.rootID, nil
	}
	name := MonthFolder(date)
	if name == "" {
		e.logger.Warn("Invoice date is not in YYYY-MM-DD form, filing into the root folder.",
			"date", date, "folderPrefix", date[:min(7, len(date))])
		return e.rootID, nil
	}

	id, found, err := e.store.FindFolder(ctx, e.rootID, name)
	if err != nil {
		return "", fmt.Errorf("%w: search folder %s: %w", models.ErrFilingFailed, name, err)
	}
	if found {
		return id, nil
	}

	id, err = e.store.CreateFolder(ctx, e.rootID, name)
	if err != nil {
		return "", fmt.Errorf("%w: create folder %s: %w", models.ErrFilingFailed, name, err)
	}
	e.logger.Info("Created month folder.", "folder", name, "folderId", id)
	return id, nil
}

// MonthFolder returns the YYYY-MM prefix of date, or "" when the first seven
// characters are not a valid year and month.
func MonthFolder(date string) string {
	if len(date) < 7 {
		return ""
	}
	prefix := date[:7]
	if !monthFolderPattern.MatchString(prefix) {
		return ""
	}
	return prefix
}

// UploadName is Invoice_<vendor>_<filename>, with the current unix time in
// milliseconds standing in for a missing vendor.
func UploadName(rec models.InvoiceRecord, filename string, now time.Time) string {
	vendor := rec.Vendor
	if vendor == "" {
		vendor = strconv.FormatInt(now.UnixMilli(), 10)
	}
	return fmt.Sprintf("Invoice_%s_%s", vendor, filename)
}
