package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// maxUploadAttempts bounds the numbered names tried for one upload.
const maxUploadAttempts = 20

var errObjectExists = errors.New("object already exists")

// GCSStore files invoices into a Cloud Storage bucket. Folders are object
// prefixes; creating one writes an empty placeholder object ending in "/".
// Uploads never replace an existing object.
type GCSStore struct {
	client *storage.Client
	bucket string
	put    func(ctx context.Context, objectName, contentType string, data []byte) error
}

// NewGCSStore creates a store for bucket.
func NewGCSStore(ctx context.Context, bucket string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a GCS store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	s := &GCSStore{client: client, bucket: bucket}
	s.put = s.createObject
	return s, nil
}

// FindFolder reports whether any object lives under parentID/name/.
func (s *GCSStore) FindFolder(ctx context.Context, parentID, name string) (string, bool, error) {
	prefix := folderPrefix(parentID, name)
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	_, err := it.Next()
	if errors.Is(err, iterator.Done) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	return strings.TrimSuffix(prefix, "/"), true, nil
}

// CreateFolder writes the placeholder object for parentID/name.
func (s *GCSStore) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	prefix := folderPrefix(parentID, name)
	if err := SaveToGCSAtomically(ctx, s.client.Bucket(s.bucket), prefix, nil, ""); err != nil {
		return "", err
	}
	return strings.TrimSuffix(prefix, "/"), nil
}

// Upload writes data under parentID and returns the object name. Slashes in
// name are replaced so the object stays in its folder. When the name is
// taken, "-1", "-2", ... is inserted before the extension.
func (s *GCSStore) Upload(ctx context.Context, parentID, name, mimeType string, data []byte) (string, error) {
	base := objectBaseName(name)
	for attempt := 0; attempt < maxUploadAttempts; attempt++ {
		objectName := path.Join(parentID, numberedName(base, attempt))
		err := s.put(ctx, objectName, mimeType, data)
		if errors.Is(err, errObjectExists) {
			continue
		}
		if err != nil {
			return "", err
		}
		return objectName, nil
	}
	return "", fmt.Errorf("no free object name for %s under %s after %d attempts", base, parentID, maxUploadAttempts)
}

func (s *GCSStore) createObject(ctx context.Context, objectName, contentType string, data []byte) error {
	return writeIfAbsent(ctx, s.client.Bucket(s.bucket).Object(objectName), data, contentType)
}

func objectBaseName(name string) string {
	name = strings.ReplaceAll(name, "/", "_")
	switch name {
	case "", ".", "..":
		name = "_" + name
	}
	return name
}

func numberedName(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n, ext)
}

// FileURL returns the authenticated browser link for an object.
func (s *GCSStore) FileURL(fileID string) string {
	return fmt.Sprintf("https://storage.cloud.google.com/%s/%s", s.bucket, fileID)
}

// Close releases the underlying storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func folderPrefix(parentID, name string) string {
	return path.Join(parentID, name) + "/"
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't
// already exist. An existing object is not an error.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName string, content []byte, contentType string) error {
	err := writeIfAbsent(ctx, bucket.Object(objectName), content, contentType)
	if errors.Is(err, errObjectExists) {
		slog.Info("Object already exists, skipping write.", "object", objectName)
		return nil
	}
	return err
}

// writeIfAbsent returns errObjectExists when the object is already there.
func writeIfAbsent(ctx context.Context, obj *storage.ObjectHandle, content []byte, contentType string) error {
	writer := obj.If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			return errObjectExists
		}
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			return errObjectExists
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
