package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"cloud.google.com/go/storage"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore keeps content as objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

func NewGCSStore(client *storage.Client, bucket string) *GCSStore {
	return &GCSStore{client: client, bucket: bucket}
}

// NewGCSClient authenticates with a service account file, or else with a stored oauth token.
func NewGCSClient(ctx context.Context, serviceAccountCredentialFile, oauthTokenFile string) (*storage.Client, error) {
	if len(serviceAccountCredentialFile) > 0 {
		return storage.NewClient(ctx,
			option.WithCredentialsFile(serviceAccountCredentialFile),
		)
	}
	if len(oauthTokenFile) == 0 {
		return storage.NewClient(ctx)
	}

	token, err := tokenFromFile(oauthTokenFile)
	if err != nil {
		return nil, err
	}
	return storage.NewClient(ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(token)),
	)
}

// Retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

func (g *GCSStore) Save(ctx context.Context, path string, r io.Reader, contentType string) (int64, error) {
	w := g.client.Bucket(g.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	n, err := io.Copy(w, r)
	if err != nil {
		_ = w.Close()
		return n, err
	}
	return n, w.Close()
}

func (g *GCSStore) Load(ctx context.Context, path string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(g.bucket).Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	return r, err
}

func (g *GCSStore) Delete(ctx context.Context, path string) error {
	err := g.client.Bucket(g.bucket).Object(path).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return err
}

func (g *GCSStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	bkt := g.client.Bucket(g.bucket)
	it := bkt.Objects(ctx, &storage.Query{Prefix: prefix})
	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return err
		}
		if err := bkt.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return err
		}
		deleted++
	}
	log.WithFields(log.Fields{"bucket": g.bucket, "prefix": prefix, "deleted": deleted}).Debug("deleted objects by prefix")
	return nil
}
