package flags

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/reportportal/service-api/pkg/storage"
)

const (
	StorageFilesystem = "filesystem"
	StorageGCS        = "gcs"
)

// StorageFlags select where binary data such as attachments and user photos is kept.
type StorageFlags struct {
	Type                         string
	Path                         string
	ServiceAccountCredentialFile string
	OAuthClientCredentialFile    string
	StorageBucket                string
}

func NewStorageFlags() *StorageFlags {
	return &StorageFlags{
		Type:                      StorageFilesystem,
		Path:                      "/data/storage",
		OAuthClientCredentialFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
		StorageBucket:             os.Getenv("RP_STORAGE_BUCKET"),
	}
}

func (f *StorageFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.Type, "storage-type", f.Type, "Binary data storage: filesystem or gcs")
	fs.StringVar(&f.Path, "storage-path", f.Path, "Root directory of the filesystem storage")

	fs.StringVar(&f.ServiceAccountCredentialFile,
		"google-service-account-credential-file",
		f.ServiceAccountCredentialFile,
		"location of a credential file described by https://cloud.google.com/docs/authentication/production")

	fs.StringVar(&f.OAuthClientCredentialFile,
		"google-oauth-credential-file",
		f.OAuthClientCredentialFile,
		"location of an OAuth client credential file, used when no service account is given")

	fs.StringVar(&f.StorageBucket, "google-storage-bucket", f.StorageBucket, "GCS bucket holding binary data")
}

func (f *StorageFlags) GetDataStore(ctx context.Context) (storage.DataStore, error) {
	switch f.Type {
	case StorageFilesystem:
		return storage.NewFilesystemStore(f.Path)
	case StorageGCS:
		if f.StorageBucket == "" {
			return nil, fmt.Errorf("--google-storage-bucket is required for gcs storage")
		}
		client, err := storage.NewGCSClient(ctx, f.ServiceAccountCredentialFile, f.OAuthClientCredentialFile)
		if err != nil {
			return nil, err
		}
		return storage.NewGCSStore(client, f.StorageBucket), nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", f.Type)
	}
}
