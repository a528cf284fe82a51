package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/invoiceflow/internal/config"
	"github.com/Lllllllleong/invoiceflow/internal/gcp"
	"github.com/Lllllllleong/invoiceflow/internal/ledger"
	"github.com/Lllllllleong/invoiceflow/internal/llm"
	"github.com/Lllllllleong/invoiceflow/internal/models"
)

// InvoiceScanFunction holds the pipeline and the clients it was built from.
type InvoiceScanFunction struct {
	pipeline *Pipeline
	closers  []io.Closer
	config   config.Config
}

// NewInvoiceScan creates every client named by cfg and wires them into a
// pipeline. Clients that need the stored OAuth token read it lazily, so a
// missing token only fails the first run.
func NewInvoiceScan(ctx context.Context, cfg config.Config) (*InvoiceScanFunction, error) {
	f := &InvoiceScanFunction{config: cfg}
	ok := false
	defer func() {
		if !ok {
			_ = f.Close()
		}
	}()

	creds := gcp.NewTokenFileProvider(cfg.GoogleTokenPath, cfg.GoogleClientID, cfg.GoogleClientSecret)
	ts := creds.TokenSource(ctx)

	mailbox, err := gcp.NewGmailClient(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}

	store, err := f.newFileStore(ctx, creds)
	if err != nil {
		return nil, err
	}

	completer, err := f.newCompleter(ctx)
	if err != nil {
		return nil, err
	}

	ledgerStore, err := f.newLedger(ctx)
	if err != nil {
		return nil, err
	}

	observers, err := f.newObservers(ctx)
	if err != nil {
		return nil, err
	}

	f.pipeline = NewPipeline(PipelineConfig{
		TargetAddress: cfg.WatchEmailAddress,
		LabelName:     cfg.ProcessedLabel,
		RootFolderID:  cfg.RootFolderID,
		Pdftotext:     cfg.PdftotextBin,
	}, PipelineDeps{
		Credentials: creds,
		Mailbox:     mailbox,
		Store:       store,
		Completer:   completer,
		Ledger:      ledgerStore,
		Observers:   observers,
	})
	ok = true
	return f, nil
}

func (f *InvoiceScanFunction) newFileStore(ctx context.Context, creds *gcp.TokenFileProvider) (FileStore, error) {
	switch f.config.FileStoreBackend {
	case config.FileStoreGCS:
		store, err := gcp.NewGCSStore(ctx, f.config.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("failed to create gcs store: %w", err)
		}
		f.closers = append(f.closers, store)
		return store, nil
	default:
		store, err := gcp.NewDriveStore(ctx, creds.TokenSource(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to create drive store: %w", err)
		}
		return store, nil
	}
}

func (f *InvoiceScanFunction) newCompleter(ctx context.Context) (Completer, error) {
	switch f.config.AIProvider {
	case config.AIProviderVertex:
		client, err := gcp.NewVertexClient(ctx, f.config.ProjectID, f.config.VertexAIRegion, f.config.AIModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		f.closers = append(f.closers, client)
		return client, nil
	default:
		return llm.NewClient(llm.Config{
			APIKey:  f.config.OpenRouterAPIKey,
			BaseURL: f.config.AIBaseURL,
			Model:   f.config.AIModel,
			Timeout: f.config.AITimeout,
		}, nil), nil
	}
}

func (f *InvoiceScanFunction) newLedger(ctx context.Context) (LedgerStore, error) {
	switch f.config.LedgerBackend {
	case config.LedgerPostgres:
		db, err := ledger.OpenPostgres(ctx, f.config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger database: %w", err)
		}
		f.closers = append(f.closers, db)
		if err := ledger.RunMigrations(ctx, db); err != nil {
			return nil, err
		}
		return ledger.NewPostgresLedger(db), nil
	default:
		l := ledger.NewRESTLedger(f.config.SupabaseURL, f.config.SupabaseAnonKey, nil)
		l.IncludeSourceIDs = f.config.SupabaseSourceColumns
		return l, nil
	}
}

func (f *InvoiceScanFunction) newObservers(ctx context.Context) ([]RunObserver, error) {
	var observers []RunObserver
	if f.config.ProjectID == "" {
		return observers, nil
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, f.config.ProjectID)
	if err != nil {
		return nil, err
	}
	recorder := gcp.NewRunRecorder(firestoreClient, f.config.FirestoreCollection)
	f.closers = append(f.closers, recorder)
	observers = append(observers, recorder)

	if f.config.WorkflowID != "" {
		trigger, err := gcp.NewWorkflowTrigger(ctx, f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID)
		if err != nil {
			return nil, err
		}
		f.closers = append(f.closers, trigger)
		observers = append(observers, trigger)
	}
	return observers, nil
}

// Process runs one scan and returns the response body for HTTP callers.
func (f *InvoiceScanFunction) Process(ctx context.Context) (*models.ScanResponse, error) {
	summary, err := f.pipeline.Run(ctx)
	res := models.NewScanResponse(summary)
	return &res, err
}

// Run satisfies Job for the scheduler.
func (f *InvoiceScanFunction) Run(ctx context.Context) error {
	_, err := f.pipeline.Run(ctx)
	return err
}

// Close releases every client that holds a connection.
func (f *InvoiceScanFunction) Close() error {
	var firstErr error
	for i := len(f.closers) - 1; i >= 0; i-- {
		if err := f.closers[i].Close(); err != nil {
			slog.Warn("Failed to close client.", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	f.closers = nil
	return firstErr
}
