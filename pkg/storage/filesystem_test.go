package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttachmentPath(t *testing.T) {
	ts := time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "12/2024-02/abc", AttachmentPath(12, ts, "abc"))
	assert.Equal(t, "12/", ProjectPrefix(12))
}

func TestFilesystemStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	path := AttachmentPath(1, time.Now(), "screenshot")
	n, err := store.Save(ctx, path, strings.NewReader("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	r, err := store.Load(ctx, path)
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, store.Delete(ctx, path))
	_, err = store.Load(ctx, path)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(ctx, path))

	_, err = store.Save(ctx, AttachmentPath(2, time.Now(), "a"), strings.NewReader("a"), "")
	require.NoError(t, err)
	require.NoError(t, store.DeleteByPrefix(ctx, ProjectPrefix(2)))
	_, err = store.Load(ctx, AttachmentPath(2, time.Now(), "a"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Save(ctx, "../outside", strings.NewReader("x"), "")
	assert.Error(t, err)
}
