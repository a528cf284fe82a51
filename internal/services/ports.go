package services

import (
	"context"

	"github.com/Lllllllleong/invoiceflow/internal/models"
	"golang.org/x/oauth2"
)

// Mailbox is the mailbox API the pipeline drives.
type Mailbox interface {
	ListLabels(ctx context.Context) ([]models.Label, error)
	SearchMessages(ctx context.Context, q models.MessageQuery) ([]string, error)
	GetMessage(ctx context.Context, id string) (models.CandidateMessage, error)
	// GetAttachment returns the payload in the API's base64 form.
	GetAttachment(ctx context.Context, messageID, attachmentID string) (string, error)
	ModifyLabels(ctx context.Context, ids, add, remove []string) error
}

// FileStore is a folder-based file store.
type FileStore interface {
	FindFolder(ctx context.Context, parentID, name string) (id string, found bool, err error)
	CreateFolder(ctx context.Context, parentID, name string) (string, error)
	Upload(ctx context.Context, parentID, name, mimeType string, data []byte) (string, error)
	FileURL(fileID string) string
}

// Completer sends a prompt to a language model and returns its raw reply.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// LedgerStore persists one row per filed invoice.
type LedgerStore interface {
	Insert(ctx context.Context, inv models.FiledInvoice) error
}

// CredentialSource yields the mailbox/file-store credential.
type CredentialSource interface {
	Credential(ctx context.Context) (*oauth2.Token, error)
}

// RunObserver receives the summary of every finished run.
type RunObserver interface {
	Name() string
	ObserveRun(ctx context.Context, summary models.RunSummary) error
}
