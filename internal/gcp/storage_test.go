package gcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFolderPrefix(t *testing.T) {
	assert.Equal(t, "invoices/2024-03/", folderPrefix("invoices", "2024-03"))
	assert.Equal(t, "2024-03/", folderPrefix("", "2024-03"))
}

func TestGCSStore_FileURL(t *testing.T) {
	s := &GCSStore{bucket: "ledger-files"}
	assert.Equal(t, "https://storage.cloud.google.com/ledger-files/invoices/2024-03/Invoice_Acme_a.pdf",
		s.FileURL("invoices/2024-03/Invoice_Acme_a.pdf"))
}

func TestNewGCSStore_RequiresBucket(t *testing.T) {
	_, err := NewGCSStore(context.Background(), "")
	require.Error(t, err)
}

// memObjects mimics the DoesNotExist precondition over an in-memory bucket.
type memObjects map[string][]byte

func (m memObjects) put(ctx context.Context, objectName, contentType string, data []byte) error {
	if _, ok := m[objectName]; ok {
		return errObjectExists
	}
	m[objectName] = data
	return nil
}

func TestGCSStore_UploadNeverOverwrites(t *testing.T) {
	objects := memObjects{}
	s := &GCSStore{bucket: "b", put: objects.put}

	first, err := s.Upload(context.Background(), "root/2024-03", "Invoice_Acme_fv.pdf", "application/pdf", []byte("one"))
	require.NoError(t, err)
	second, err := s.Upload(context.Background(), "root/2024-03", "Invoice_Acme_fv.pdf", "application/pdf", []byte("two"))
	require.NoError(t, err)

	assert.Equal(t, "root/2024-03/Invoice_Acme_fv.pdf", first)
	assert.Equal(t, "root/2024-03/Invoice_Acme_fv-1.pdf", second)
	assert.Equal(t, []byte("one"), objects[first])
	assert.Equal(t, []byte("two"), objects[second])
}

func TestGCSStore_UploadStaysInFolder(t *testing.T) {
	objects := memObjects{}
	s := &GCSStore{bucket: "b", put: objects.put}

	name, err := s.Upload(context.Background(), "root/2024-03", "Invoice_../../../x_fv.pdf", "application/pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "root/2024-03/Invoice_.._.._.._x_fv.pdf", name)

	name, err = s.Upload(context.Background(), "root", "..", "application/pdf", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "root/_..", name)
}

func TestGCSStore_UploadGivesUpWhenNamesRunOut(t *testing.T) {
	s := &GCSStore{bucket: "b", put: func(context.Context, string, string, []byte) error { return errObjectExists }}

	_, err := s.Upload(context.Background(), "root", "a.pdf", "application/pdf", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no free object name")
}

func TestGCSStore_UploadPassesWriteErrors(t *testing.T) {
	calls := 0
	s := &GCSStore{bucket: "b", put: func(context.Context, string, string, []byte) error {
		calls++
		return errors.New("permission denied")
	}}

	_, err := s.Upload(context.Background(), "root", "a.pdf", "application/pdf", nil)
	require.ErrorContains(t, err, "permission denied")
	assert.Equal(t, 1, calls)
}

func TestNumberedName(t *testing.T) {
	assert.Equal(t, "a.pdf", numberedName("a.pdf", 0))
	assert.Equal(t, "a-2.pdf", numberedName("a.pdf", 2))
	assert.Equal(t, "noext-1", numberedName("noext", 1))
}
