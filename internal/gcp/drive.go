package gcp

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const driveFolderMimeType = "application/vnd.google-apps.folder"

// DriveStore files invoices into Google Drive folders.
type DriveStore struct {
	svc *drive.Service
}

// NewDriveStore creates a Drive client authorised by ts.
func NewDriveStore(ctx context.Context, ts oauth2.TokenSource, opts ...option.ClientOption) (*DriveStore, error) {
	if ts != nil {
		opts = append([]option.ClientOption{option.WithTokenSource(ts)}, opts...)
	}
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return &DriveStore{svc: svc}, nil
}

// FindFolder looks for a non-trashed folder called name directly under
// parentID. The first match wins.
func (s *DriveStore) FindFolder(ctx context.Context, parentID, name string) (string, bool, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeDriveQuery(name), escapeDriveQuery(parentID), driveFolderMimeType)
	resp, err := s.svc.Files.List().Q(q).Fields("files(id, name)").Context(ctx).Do()
	if err != nil {
		return "", false, fmt.Errorf("failed to search folder %q: %w", name, err)
	}
	if len(resp.Files) == 0 {
		return "", false, nil
	}
	return resp.Files[0].Id, true, nil
}

// CreateFolder creates a folder called name under parentID.
func (s *DriveStore) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	f := &drive.File{Name: name, MimeType: driveFolderMimeType, Parents: []string{parentID}}
	created, err := s.svc.Files.Create(f).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	return created.Id, nil
}

// Upload stores data as a new file called name under parentID.
func (s *DriveStore) Upload(ctx context.Context, parentID, name, mimeType string, data []byte) (string, error) {
	f := &drive.File{Name: name}
	if parentID != "" {
		f.Parents = []string{parentID}
	}
	created, err := s.svc.Files.Create(f).
		Media(bytes.NewReader(data), googleapi.ContentType(mimeType)).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload %q: %w", name, err)
	}
	return created.Id, nil
}

// FileURL returns the browser link for a Drive file.
func (s *DriveStore) FileURL(fileID string) string {
	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", fileID)
}

func escapeDriveQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}
