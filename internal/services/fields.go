package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Lllllllleong/invoiceflow/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// InvoicePrompt asks for exactly five fields and a JSON-only reply. The
// invoice text is appended after it.
const InvoicePrompt = "You are an accountant. Extract data from this invoice text: vendor (name), nip (tax id), date (YYYY-MM-DD), amount (total gross - number), currency (3-letter code). Return ONLY JSON.\n\nINVOICE TEXT:\n"

const invoiceReplySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "vendor":   {"type": ["string", "number", "null"]},
    "nip":      {"type": ["string", "number", "null"]},
    "date":     {"type": ["string", "null"]},
    "amount":   {"type": ["string", "number", "null"]},
    "currency": {"type": ["string", "null"]}
  }
}`

var (
	replySchemaOnce sync.Once
	replySchema     *jsonschema.Schema
	replySchemaErr  error
)

func compiledReplySchema() (*jsonschema.Schema, error) {
	replySchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", strings.NewReader(invoiceReplySchema)); err != nil {
			replySchemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		replySchema, replySchemaErr = compiler.Compile("schema.json")
		if replySchemaErr != nil {
			replySchemaErr = fmt.Errorf("compile schema: %w", replySchemaErr)
		}
	})
	return replySchema, replySchemaErr
}

// FieldExtractor asks a language model for the invoice fields.
type FieldExtractor struct {
	completer Completer
	logger    *slog.Logger
}

func NewFieldExtractor(completer Completer, logger *slog.Logger) *FieldExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FieldExtractor{completer: completer, logger: logger}
}

// ExtractFields prompts the model with text and parses its reply. Any
// failure wraps models.ErrFieldExtractionFailed.
func (f *FieldExtractor) ExtractFields(ctx context.Context, text string) (models.InvoiceRecord, error) {
	reply, err := f.completer.Complete(ctx, InvoicePrompt+text)
	if err != nil {
		return models.InvoiceRecord{}, fmt.Errorf("%w: completion: %w", models.ErrFieldExtractionFailed, err)
	}
	rec, err := ParseInvoiceReply(reply)
	if err != nil {
		f.logger.Warn("Model reply could not be parsed.", "reply", truncate(reply, 2<<10))
		return models.InvoiceRecord{}, err
	}
	return rec, nil
}

// ParseInvoiceReply strips code fences from a model reply, validates it and
// decodes it into an InvoiceRecord.
func ParseInvoiceReply(reply string) (models.InvoiceRecord, error) {
	cleaned := StripCodeFences(reply)

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return models.InvoiceRecord{}, fmt.Errorf("%w: reply is not json: %w", models.ErrFieldExtractionFailed, err)
	}
	schema, err := compiledReplySchema()
	if err != nil {
		return models.InvoiceRecord{}, fmt.Errorf("%w: %w", models.ErrFieldExtractionFailed, err)
	}
	if err := schema.Validate(v); err != nil {
		return models.InvoiceRecord{}, fmt.Errorf("%w: json does not match schema: %w", models.ErrFieldExtractionFailed, err)
	}

	var rec models.InvoiceRecord
	if err := json.Unmarshal([]byte(cleaned), &rec); err != nil {
		return models.InvoiceRecord{}, fmt.Errorf("%w: %w", models.ErrFieldExtractionFailed, err)
	}
	return rec, nil
}

// StripCodeFences removes every ```json and ``` marker and trims the result.
func StripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}
