package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/Lllllllleong/invoiceflow/internal/models"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const pdfMimeType = "application/pdf"

func init() {
	// pdfcpu would otherwise write its config into the user config dir,
	// which is read-only on Cloud Functions.
	api.DisableConfigDir()
}

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		slog.Error("Command failed.",
			"cmd", name,
			"durationMs", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// TextResult is the outcome of text extraction. Handled is false for media
// types the extractor does not read.
type TextResult struct {
	Text    string
	Pages   int
	Handled bool
}

// TextExtractorConfig configures the optional pdftotext fallback.
type TextExtractorConfig struct {
	Pdftotext string
}

// TextExtractor turns attachment bytes into plain text.
type TextExtractor struct {
	config TextExtractorConfig
	runner Runner
	logger *slog.Logger
}

func NewTextExtractor(cfg TextExtractorConfig, runner Runner, logger *slog.Logger) *TextExtractor {
	if runner == nil {
		runner = execRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TextExtractor{config: cfg, runner: runner, logger: logger}
}

// Seams for tests.
var (
	pdfPageCount = countPages
	pdfPlainText = readPlainText
)

func countPages(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), conf)
}

// ExtractText dispatches on the attachment's media type. Only PDFs are read;
// anything else returns an unhandled, empty result. pdfcpu only counts pages:
// a file it rejects is still handed to the text reader.
func (e *TextExtractor) ExtractText(ctx context.Context, att models.Attachment) (TextResult, error) {
	if !strings.EqualFold(att.MimeType, pdfMimeType) {
		return TextResult{}, nil
	}
	logCtx := e.logger.With("filename", att.Filename, "bytes", len(att.Data))

	pages, err := pdfPageCount(att.Data)
	if err != nil {
		logCtx.Warn("PDF failed structural validation, reading text anyway.", "error", err)
		pages = 0
	} else {
		logCtx.Info("PDF validated.", "pages", pages)
	}

	text, err := pdfPlainText(att.Data)
	if err != nil {
		return TextResult{Handled: true, Pages: pages}, fmt.Errorf("%w: %s: %w", models.ErrTextExtractionFailed, att.Filename, err)
	}
	text = strings.TrimSpace(text)

	if text == "" && e.config.Pdftotext != "" {
		logCtx.Info("No embedded text found, trying pdftotext.")
		text, err = e.pdfToText(ctx, att.Data)
		if err != nil {
			return TextResult{Handled: true, Pages: pages}, fmt.Errorf("%w: pdftotext %s: %w", models.ErrTextExtractionFailed, att.Filename, err)
		}
	}

	return TextResult{Text: text, Pages: pages, Handled: true}, nil
}

func readPlainText(data []byte) (text string, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (e *TextExtractor) pdfToText(ctx context.Context, data []byte) (string, error) {
	f, err := os.CreateTemp("", "invoice-*.pdf")
	if err != nil {
		return "", err
	}
	defer func() {
		if err := os.Remove(f.Name()); err != nil {
			e.logger.Warn("Failed to remove temp file.", "path", f.Name(), "error", err)
		}
	}()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.config.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", f.Name(), "-")
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, truncate(string(errb), 512))
	}
	return strings.TrimSpace(string(out)), nil
}
