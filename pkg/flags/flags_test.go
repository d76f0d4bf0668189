package flags

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/reportportal/service-api/pkg/storage"
)

func TestLogLevel(t *testing.T) {
	var l logLevel
	for _, v := range []string{LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelSilent} {
		require.NoError(t, l.Set(v))
		assert.Equal(t, v, l.String())
	}
	assert.Error(t, l.Set("verbose"))
	assert.Equal(t, LogLevelSilent, l.String(), "a rejected value keeps the previous level")
}

func TestPostgresFlags(t *testing.T) {
	f := NewPostgresDatabaseFlags("postgresql://localhost/rp")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.BindFlags(fs)

	assert.Equal(t, logLevel(logger.Warn), f.LogLevel)
	require.NoError(t, fs.Parse([]string{"--db-log-level=info", "--database-dsn=postgresql://db/other"}))
	assert.Equal(t, logLevel(logger.Info), f.LogLevel)
	assert.Equal(t, "postgresql://db/other", f.DSN)
	assert.Equal(t, 25, f.MaxOpenConns)
	assert.Zero(t, f.StatementTimeout)

	require.NoError(t, fs.Parse([]string{"--db-max-open-conns=50", "--db-max-idle-conns=10",
		"--db-conn-max-lifetime=5m", "--db-statement-timeout=30s"}))
	assert.Equal(t, 50, f.MaxOpenConns)
	assert.Equal(t, 10, f.MaxIdleConns)
	assert.Equal(t, 5*time.Minute, f.ConnMaxLifetime)
	assert.Equal(t, 30*time.Second, f.StatementTimeout)
}

func TestWithStatementTimeout(t *testing.T) {
	tests := []struct {
		name     string
		dsn      string
		timeout  time.Duration
		expected string
	}{
		{name: "no timeout", dsn: "postgresql://db/rp", expected: "postgresql://db/rp"},
		{name: "url", dsn: "postgresql://rp:secret@db:5432/rp?sslmode=disable", timeout: 30 * time.Second,
			expected: "postgresql://rp:secret@db:5432/rp?sslmode=disable&statement_timeout=30000"},
		{name: "keyword value", dsn: "host=db dbname=rp", timeout: 1500 * time.Millisecond,
			expected: "host=db dbname=rp statement_timeout=1500"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dsn, err := withStatementTimeout(tc.dsn, tc.timeout)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, dsn)
		})
	}

	_, err := withStatementTimeout("postgresql://db:port/rp", time.Second)
	assert.Error(t, err)
}

func TestGetDataStore(t *testing.T) {
	ctx := context.Background()

	f := NewStorageFlags()
	f.Path = filepath.Join(t.TempDir(), "storage")
	store, err := f.GetDataStore(ctx)
	require.NoError(t, err)
	assert.IsType(t, &storage.FilesystemStore{}, store)

	f.Type = StorageGCS
	f.StorageBucket = ""
	_, err = f.GetDataStore(ctx)
	assert.ErrorContains(t, err, "--google-storage-bucket")

	f.Type = "s3"
	_, err = f.GetDataStore(ctx)
	assert.ErrorContains(t, err, "unknown storage type")
}

func TestGetSigningKey(t *testing.T) {
	f := &AuthFlags{}
	_, err := f.GetSigningKey()
	assert.Error(t, err)

	f.SigningKey = "from-env"
	key, err := f.GetSigningKey()
	require.NoError(t, err)
	assert.Equal(t, []byte("from-env"), key)

	keyFile := filepath.Join(t.TempDir(), "jwt.key")
	require.NoError(t, os.WriteFile(keyFile, []byte("from-file"), 0o600))
	f.SigningKeyFile = keyFile
	key, err = f.GetSigningKey()
	require.NoError(t, err)
	assert.Equal(t, []byte("from-file"), key)

	f.SigningKeyFile = filepath.Join(t.TempDir(), "missing.key")
	_, err = f.GetSigningKey()
	assert.Error(t, err)
}

func TestOptionalBackends(t *testing.T) {
	cacheClient, err := (&CacheFlags{}).GetCacheClient()
	require.NoError(t, err)
	assert.Nil(t, cacheClient)

	index, err := (&ElasticFlags{}).GetIndex()
	require.NoError(t, err)
	assert.Nil(t, index)

	assert.False(t, (&AMQPFlags{}).Enabled())
}

func TestSMTPConfig(t *testing.T) {
	f := &EmailFlags{Host: "smtp.example.com", Port: 465, Username: "rp", Password: "secret", SSL: true}
	cfg := f.SMTPConfig("rp@example.com")
	assert.Equal(t, "smtp.example.com", cfg.Host)
	assert.Equal(t, 465, cfg.Port)
	assert.Equal(t, "rp@example.com", cfg.From)
	assert.True(t, cfg.SSL)
}
