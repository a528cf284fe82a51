package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), "invoiceflow", "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_WithEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), "invoiceflow", "http://127.0.0.1:4318")
	require.NoError(t, err)
	// Nothing was exported, so shutdown has nothing to flush.
	assert.NoError(t, shutdown(context.Background()))
}
