package gcp

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/invoiceflow/internal/models"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const gmailUser = "me"

// GmailClient is the mailbox client backed by the Gmail API.
type GmailClient struct {
	svc *gmail.Service
}

// NewGmailClient creates a Gmail client authorised by ts. Extra options are
// appended after the token source, which lets tests point it at a fake server.
func NewGmailClient(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*GmailClient, error) {
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &GmailClient{svc: svc}, nil
}

// ListLabels returns every label of the mailbox.
func (c *GmailClient) ListLabels(ctx context.Context) ([]models.Label, error) {
	resp, err := c.svc.Users.Labels.List(gmailUser).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	labels := make([]models.Label, 0, len(resp.Labels))
	for _, l := range resp.Labels {
		labels = append(labels, models.Label{ID: l.Id, Name: l.Name})
	}
	return labels, nil
}

// SearchMessages returns the ids of all messages matching q, across every
// result page, in listing order.
func (c *GmailClient) SearchMessages(ctx context.Context, q models.MessageQuery) ([]string, error) {
	var ids []string
	err := c.svc.Users.Messages.List(gmailUser).Q(q.String()).Pages(ctx, func(resp *gmail.ListMessagesResponse) error {
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for %q: %w", q.String(), err)
	}
	return ids, nil
}

// GetMessage fetches a message and flattens its MIME tree depth-first.
func (c *GmailClient) GetMessage(ctx context.Context, id string) (models.CandidateMessage, error) {
	msg, err := c.svc.Users.Messages.Get(gmailUser, id).Context(ctx).Do()
	if err != nil {
		return models.CandidateMessage{}, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	out := models.CandidateMessage{ID: msg.Id}
	if msg.Payload != nil {
		// The root part is the message body itself; only its children can be
		// attachments.
		for _, p := range msg.Payload.Parts {
			out.Parts = flattenParts(p, out.Parts)
		}
	}
	return out, nil
}

func flattenParts(p *gmail.MessagePart, acc []models.MessagePart) []models.MessagePart {
	if p == nil {
		return acc
	}
	mp := models.MessagePart{Filename: p.Filename, MimeType: p.MimeType}
	if p.Body != nil {
		mp.AttachmentID = p.Body.AttachmentId
	}
	acc = append(acc, mp)
	for _, child := range p.Parts {
		acc = flattenParts(child, acc)
	}
	return acc
}

// GetAttachment returns the attachment payload exactly as the API encodes it.
func (c *GmailClient) GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error) {
	body, err := c.svc.Users.Messages.Attachments.Get(gmailUser, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to get attachment %s of message %s: %w", attachmentID, messageID, err)
	}
	return body.Data, nil
}

// ModifyLabels adds and removes labels on the given messages in one call.
func (c *GmailClient) ModifyLabels(ctx context.Context, ids, add, remove []string) error {
	req := &gmail.BatchModifyMessagesRequest{
		Ids:            ids,
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}
	if err := c.svc.Users.Messages.BatchModify(gmailUser, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to modify labels: %w", err)
	}
	return nil
}
