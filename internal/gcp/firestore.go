package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/invoiceflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// RunRecorder stores one document per pipeline run.
type RunRecorder struct {
	client     *firestore.Client
	collection string
}

// NewRunRecorder writes run documents into collection.
func NewRunRecorder(client *firestore.Client, collection string) *RunRecorder {
	if collection == "" {
		collection = "invoice_runs"
	}
	return &RunRecorder{client: client, collection: collection}
}

// Name identifies the observer in logs.
func (r *RunRecorder) Name() string { return "firestore" }

// ObserveRun writes the run summary under its run id.
func (r *RunRecorder) ObserveRun(ctx context.Context, summary models.RunSummary) error {
	doc := r.client.Collection(r.collection).Doc(summary.RunID)
	if _, err := doc.Set(ctx, models.NewRunRecord(summary)); err != nil {
		return fmt.Errorf("failed to write run record %s: %w", summary.RunID, err)
	}
	return nil
}

// Close releases the Firestore client.
func (r *RunRecorder) Close() error {
	return r.client.Close()
}
