package ledger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Lllllllleong/invoiceflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRESTLedger_PostsSingleRow(t *testing.T) {
	var body []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/v1/invoices", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(b, &body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	amount := 99.5
	l := NewRESTLedger(srv.URL+"/", "anon", nil)
	err := l.Insert(context.Background(), models.FiledInvoice{
		Vendor:      "Acme",
		InvoiceDate: "2024-03-15",
		Amount:      &amount,
		FileURL:     "https://drive.google.com/file/d/f1/view",
		Raw:         json.RawMessage(`{"vendor":"Acme"}`),
	})
	require.NoError(t, err)

	require.Len(t, body, 1)
	row := body[0]
	assert.Equal(t, "Acme", row["vendor"])
	assert.Equal(t, 99.5, row["amount"])
	assert.Nil(t, row["nip"])
	assert.Equal(t, "https://drive.google.com/file/d/f1/view", row["drive_url"])
	assert.Equal(t, map[string]any{"vendor": "Acme"}, row["raw_ai_output"])
}

func TestRESTLedger_NonNumericAmountIsNull(t *testing.T) {
	var body []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	require.NoError(t, NewRESTLedger(srv.URL, "k", nil).Insert(context.Background(), models.FiledInvoice{FileURL: "u"}))
	require.Len(t, body, 1)
	v, ok := body[0]["amount"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestRESTLedger_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"permission denied"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewRESTLedger(srv.URL, "k", nil).Insert(context.Background(), models.FiledInvoice{FileURL: "u"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewRESTLedger_Timeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, NewRESTLedger("u", "k", nil).http.Timeout)
}

func TestRESTLedger_MissingURL(t *testing.T) {
	err := NewRESTLedger("", "k", nil).Insert(context.Background(), models.FiledInvoice{})
	require.Error(t, err)
}

func TestRESTLedger_SourceIDsOnlyWhenEnabled(t *testing.T) {
	var body []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	inv := models.FiledInvoice{Vendor: "Acme", FileURL: "u", SourceMessageID: "m1", SourceAttachmentID: "a1"}

	l := NewRESTLedger(srv.URL, "k", nil)
	require.NoError(t, l.Insert(context.Background(), inv))
	require.Len(t, body, 1)
	assert.NotContains(t, body[0], "source_message_id")
	assert.NotContains(t, body[0], "source_attachment_id")
	assert.Len(t, body[0], 7)

	body = nil
	l.IncludeSourceIDs = true
	require.NoError(t, l.Insert(context.Background(), inv))
	require.Len(t, body, 1)
	assert.Equal(t, "m1", body[0]["source_message_id"])
	assert.Equal(t, "a1", body[0]["source_attachment_id"])
}
