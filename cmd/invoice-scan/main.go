package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/invoiceflow/internal/config"
	"github.com/Lllllllleong/invoiceflow/internal/services"
	"github.com/Lllllllleong/invoiceflow/internal/telemetry"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	scanInstance *services.InvoiceScanFunction
	once         sync.Once
	initErr      error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleInvoiceScan" serves manual or workflow-driven scans over HTTP.
	functions.HTTP("HandleInvoiceScan", handleInvoiceScan)
	// "ScheduledInvoiceScan" is triggered by Cloud Scheduler through Pub/Sub.
	functions.CloudEvent("ScheduledInvoiceScan", scheduledInvoiceScan)
}

// main is required by the Go Functions Framework.
func main() {}

func initialize() {
	once.Do(func() {
		ctx := context.Background()
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		if _, err := telemetry.Setup(ctx, "invoice-scan", cfg.OTLPEndpoint); err != nil {
			slog.Warn("Tracing disabled, exporter setup failed.", "error", err)
		}
		scanInstance, initErr = services.NewInvoiceScan(ctx, cfg)
	})
}

// handleInvoiceScan runs one scan and writes the run summary as JSON.
func handleInvoiceScan(w http.ResponseWriter, r *http.Request) {
	initialize()
	if initErr != nil {
		slog.Error("Critical: InvoiceScan initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	res, err := scanInstance.Process(r.Context())
	status := http.StatusOK
	if err != nil {
		// The specific error is already logged inside the pipeline.
		status = http.StatusInternalServerError
		if services.IsRunFatal(err) {
			status = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err, "runId", res.RunID)
	}
}

// scheduledInvoiceScan runs one scan per scheduler event. The event payload
// carries nothing the scan needs.
func scheduledInvoiceScan(ctx context.Context, e cloudevents.Event) error {
	initialize()
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	slog.Info("Scheduled scan triggered.", "eventId", e.ID(), "source", e.Source())
	return scanInstance.Run(ctx)
}
