package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/invoiceflow/internal/models"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const unreadLabelID = "UNREAD"

// PipelineConfig holds all configuration for the invoice pipeline.
type PipelineConfig struct {
	TargetAddress string
	LabelName     string
	RootFolderID  string
	Pdftotext     string
}

// PipelineDeps are the external collaborators the pipeline drives.
type PipelineDeps struct {
	Credentials CredentialSource
	Mailbox     Mailbox
	Store       FileStore
	Completer   Completer
	Ledger      LedgerStore
	Runner      Runner
	Observers   []RunObserver
	Logger      *slog.Logger
}

// Pipeline scans the mailbox for unprocessed invoices and files each one.
type Pipeline struct {
	config      PipelineConfig
	credentials CredentialSource
	mailbox     Mailbox
	attachments *AttachmentExtractor
	text        *TextExtractor
	fields      *FieldExtractor
	filing      *FilingEngine
	ledger      *LedgerWriter
	observers   []RunObserver
	tracer      trace.Tracer
	logger      *slog.Logger
	newRunID    func() string
}

// NewPipeline wires the pipeline stages to deps.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps) *Pipeline {
	if cfg.LabelName == "" {
		cfg.LabelName = "processed"
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		config:      cfg,
		credentials: deps.Credentials,
		mailbox:     deps.Mailbox,
		attachments: NewAttachmentExtractor(deps.Mailbox),
		text:        NewTextExtractor(TextExtractorConfig{Pdftotext: cfg.Pdftotext}, deps.Runner, logger),
		fields:      NewFieldExtractor(deps.Completer, logger),
		filing:      NewFilingEngine(deps.Store, cfg.RootFolderID, logger),
		ledger:      NewLedgerWriter(deps.Ledger),
		observers:   deps.Observers,
		tracer:      otel.Tracer("github.com/Lllllllleong/invoiceflow/internal/services"),
		logger:      logger,
		newRunID:    func() string { return uuid.New().String() },
	}
}

// Run performs one scan. It returns an error only for run-fatal conditions;
// per-message and per-attachment failures are reported in the summary.
func (p *Pipeline) Run(ctx context.Context) (models.RunSummary, error) {
	summary := models.RunSummary{RunID: p.newRunID(), StartedAt: time.Now()}
	logCtx := p.logger.With("runId", summary.RunID)

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(attribute.String("run.id", summary.RunID)))
	defer span.End()

	err := p.run(ctx, logCtx, &summary)
	summary.FinishedAt = time.Now()
	if err != nil {
		summary.Err = err
		summary.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "run failed")
		logCtx.Error("Invoice run failed.", "error", err)
	} else {
		filed, skipped, failed := summary.Counts()
		logCtx.Info("Invoice run finished.", "messages", len(summary.Messages), "filed", filed, "skipped", skipped, "failed", failed)
	}

	p.notify(ctx, logCtx, summary)
	return summary, err
}

func (p *Pipeline) run(ctx context.Context, logCtx *slog.Logger, summary *models.RunSummary) error {
	if p.credentials != nil {
		if _, err := p.credentials.Credential(ctx); err != nil {
			return err
		}
	}

	label, err := p.resolveLabel(ctx)
	if err != nil {
		return err
	}
	summary.Label = label.Name

	if p.config.TargetAddress == "" {
		return fmt.Errorf("watch email address is not configured")
	}
	query := models.MessageQuery{To: p.config.TargetAddress, HasAttachment: true, ExcludeLabel: label.Name}
	summary.Query = query.String()
	logCtx.Info("Checking mailbox for invoices.", "query", summary.Query)

	ids, err := p.mailbox.SearchMessages(ctx, query)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		logCtx.Info("No new invoices found.")
		return nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		summary.Messages = append(summary.Messages, p.processMessage(ctx, logCtx, label, id))
	}
	return nil
}

// resolveLabel finds the processed label by case-insensitive name.
func (p *Pipeline) resolveLabel(ctx context.Context) (models.Label, error) {
	labels, err := p.mailbox.ListLabels(ctx)
	if err != nil {
		return models.Label{}, err
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, p.config.LabelName) {
			return l, nil
		}
	}
	return models.Label{}, fmt.Errorf("%w: label %q not found, create it first", models.ErrLabelMissing, p.config.LabelName)
}

func (p *Pipeline) processMessage(ctx context.Context, runLog *slog.Logger, label models.Label, id string) models.MessageOutcome {
	ctx, span := p.tracer.Start(ctx, "pipeline.message", trace.WithAttributes(attribute.String("message.id", id)))
	defer span.End()

	logCtx := runLog.With("messageId", id)
	outcome := models.MessageOutcome{MessageID: id}

	msg, err := p.mailbox.GetMessage(ctx, id)
	if err != nil {
		// Left unmarked so the next run picks it up again.
		logCtx.Error("Failed to fetch message, skipping it.", "error", err)
		outcome.Err = err
		outcome.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return outcome
	}

	for att, err := range p.attachments.ListAttachments(ctx, msg) {
		outcome.Attachments = append(outcome.Attachments, p.processAttachment(ctx, logCtx, att, err))
	}

	if err := p.mailbox.ModifyLabels(ctx, []string{id}, []string{label.ID}, []string{unreadLabelID}); err != nil {
		logCtx.Error("Failed to mark message as processed.", "error", err)
		outcome.Err = err
		outcome.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark failed")
		return outcome
	}
	outcome.Marked = true
	logCtx.Info("Message marked as processed.", "attachments", len(outcome.Attachments))
	return outcome
}

func (p *Pipeline) processAttachment(ctx context.Context, msgLog *slog.Logger, att models.Attachment, fetchErr error) models.AttachmentOutcome {
	ctx, span := p.tracer.Start(ctx, "pipeline.attachment", trace.WithAttributes(
		attribute.String("attachment.filename", att.Filename),
		attribute.String("attachment.mime_type", att.MimeType),
	))
	defer span.End()

	logCtx := msgLog.With("filename", att.Filename, "attachmentId", att.AttachmentID)
	outcome := models.AttachmentOutcome{Filename: att.Filename, AttachmentID: att.AttachmentID}

	fail := func(stage models.Stage, err error) models.AttachmentOutcome {
		logCtx.Error("Attachment failed, skipping it.", "stage", string(stage), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(stage))
		outcome.Status = models.StatusFailed
		outcome.Stage = stage
		outcome.Err = err
		outcome.Error = err.Error()
		return outcome
	}

	if fetchErr != nil {
		return fail(models.StageFetch, fetchErr)
	}

	text, err := p.text.ExtractText(ctx, att)
	if err != nil {
		return fail(models.StageText, err)
	}
	if !text.Handled || text.Text == "" {
		logCtx.Info("No text to extract, skipping attachment.", "handled", text.Handled)
		outcome.Status = models.StatusSkipped
		outcome.Stage = models.StageText
		return outcome
	}

	rec, err := p.fields.ExtractFields(ctx, text.Text)
	if err != nil {
		return fail(models.StageFields, err)
	}

	filed, err := p.filing.File(ctx, att, rec)
	if err != nil {
		return fail(models.StageFiling, err)
	}
	outcome.FileURL = filed.FileURL

	if err := p.ledger.Record(ctx, filed); err != nil {
		return fail(models.StageLedger, err)
	}

	outcome.Status = models.StatusFiled
	logCtx.Info("Processed invoice.", "vendor", rec.Vendor, "fileUrl", filed.FileURL)
	return outcome
}

// notify hands the summary to every observer. Observer failures are logged.
func (p *Pipeline) notify(ctx context.Context, logCtx *slog.Logger, summary models.RunSummary) {
	// Observers still run when the scan itself was cancelled.
	ctx = context.WithoutCancel(ctx)
	for _, o := range p.observers {
		if err := o.ObserveRun(ctx, summary); err != nil {
			logCtx.Warn("Run observer failed.", "observer", o.Name(), "error", err)
		}
	}
}

// IsRunFatal reports whether err aborted a run before any message was
// processed.
func IsRunFatal(err error) bool {
	return errors.Is(err, models.ErrCredentialMissing) || errors.Is(err, models.ErrLabelMissing)
}
