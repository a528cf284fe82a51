package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"iter"
	"strings"

	"github.com/Lllllllleong/invoiceflow/internal/models"
)

// AttachmentExtractor pulls attachment payloads out of candidate messages.
type AttachmentExtractor struct {
	mailbox Mailbox
}

func NewAttachmentExtractor(mailbox Mailbox) *AttachmentExtractor {
	return &AttachmentExtractor{mailbox: mailbox}
}

// Parts returns the parts that carry both a filename and an attachment id,
// in message part order.
func Parts(msg models.CandidateMessage) []models.MessagePart {
	var out []models.MessagePart
	for _, p := range msg.Parts {
		if p.Filename != "" && p.AttachmentID != "" {
			out = append(out, p)
		}
	}
	return out
}

// ListAttachments fetches and decodes each qualifying part lazily. A part
// that cannot be fetched or decoded yields its metadata together with an
// error wrapping models.ErrAttachmentFetchFailed; iteration continues.
func (e *AttachmentExtractor) ListAttachments(ctx context.Context, msg models.CandidateMessage) iter.Seq2[models.Attachment, error] {
	return func(yield func(models.Attachment, error) bool) {
		for _, p := range Parts(msg) {
			att := models.Attachment{
				MessageID:    msg.ID,
				AttachmentID: p.AttachmentID,
				Filename:     p.Filename,
				MimeType:     p.MimeType,
			}
			data, err := e.fetch(ctx, msg.ID, p.AttachmentID)
			if err != nil {
				if !yield(att, err) {
					return
				}
				continue
			}
			att.Data = data
			if !yield(att, nil) {
				return
			}
		}
	}
}

func (e *AttachmentExtractor) fetch(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	encoded, err := e.mailbox.GetAttachment(ctx, messageID, attachmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrAttachmentFetchFailed, err)
	}
	data, err := DecodeAttachmentData(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", models.ErrAttachmentFetchFailed, err)
	}
	return data, nil
}

// DecodeAttachmentData decodes URL-safe or standard base64, with or without
// padding. A dangling final character that cannot form a byte is dropped.
func DecodeAttachmentData(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-':
			return '+'
		case '_':
			return '/'
		case '=', ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	if len(s)%4 == 1 {
		s = s[:len(s)-1]
	}
	return base64.RawStdEncoding.DecodeString(s)
}
