package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "fs", cfg.Blob.Driver)
	assert.Equal(t, "sqlite", cfg.Catalog.Driver)
	assert.Equal(t, 10, cfg.Ensemble.Size)
	assert.Equal(t, int64(1), cfg.Ensemble.Seed)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enkf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
blob:
  driver: s3
  s3:
    bucket: ensembles
    path_style: true
ensemble:
  size: 50
  workers: 4
`), 0o600))
	t.Setenv("ENKFCORE_ENSEMBLE_SIZE", "100")
	t.Setenv("ENKFCORE_CATALOG_SQLITE_PATH", "/tmp/x.db")
	t.Setenv("ENKFCORE_BLOB_S3_PATH_STYLE", "false")
	t.Setenv("ENKFCORE_UNRELATED_SETTING", "x")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "s3", cfg.Blob.Driver)
	assert.Equal(t, "ensembles", cfg.Blob.S3.Bucket)
	assert.False(t, cfg.Blob.S3.PathStyle)
	assert.Equal(t, "us-east-1", cfg.Blob.S3.Region)
	assert.Equal(t, 100, cfg.Ensemble.Size)
	assert.Equal(t, 4, cfg.Ensemble.Workers)
	assert.Equal(t, "/tmp/x.db", cfg.Catalog.SQLitePath)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "catalog.sqlite_path", envKey("ENKFCORE_CATALOG_SQLITE_PATH"))
	assert.Equal(t, "blob.s3.path_style", envKey("ENKFCORE_BLOB_S3_PATH_STYLE"))
	assert.Equal(t, "ensemble.size", envKey("ENKFCORE_ENSEMBLE_SIZE"))
	assert.Equal(t, "", envKey("ENKFCORE_CATALOG__SQLITE_PATH"))
	assert.Equal(t, "", envKey("ENKFCORE_NOPE"))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	t.Setenv("ENKFCORE_BLOB_DRIVER", "tape")
	_, err = Load("")
	require.ErrorContains(t, err, "unknown blob driver")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Blob:     Blob{Driver: "memory"},
			Catalog:  Catalog{Driver: "memory"},
			Ensemble: Ensemble{Size: 1},
		}
	}
	cfg := base()
	require.NoError(t, cfg.Validate())

	cfg = base()
	cfg.Blob.Driver = "s3"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Catalog.Driver = "mysql"
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Ensemble.Size = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.Ensemble.Workers = -1
	require.Error(t, cfg.Validate())
}
