// Package storage keeps the binary content of log attachments.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned by Load when nothing is stored at the path.
var ErrNotFound = errors.New("data not found")

// DataStore saves and loads binary content by path.
type DataStore interface {
	Save(ctx context.Context, path string, r io.Reader, contentType string) (int64, error)
	Load(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// AttachmentPath is where the attachment with the id is stored: <project>/<yyyy-mm>/<id>.
func AttachmentPath(projectID uint, t time.Time, id string) string {
	return fmt.Sprintf("%d/%s/%s", projectID, t.UTC().Format("2006-01"), id)
}

// ProjectPrefix is the prefix of every attachment of a project.
func ProjectPrefix(projectID uint) string {
	return fmt.Sprintf("%d/", projectID)
}
