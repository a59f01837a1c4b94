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

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.AdminHost)
	assert.Equal(t, 2, cfg.Storage.DirectoryLevels)
	assert.Equal(t, "webp", cfg.Processing.OutputFormat)
	assert.True(t, cfg.Processing.KeepOriginals)
	assert.GreaterOrEqual(t, cfg.Upload.MaxChunkedUploadSize, cfg.Upload.MaxSimpleUploadSize)
}

func TestLoadSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(SampleYAML), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", cfg.Server.BaseURL)
	assert.Contains(t, cfg.Upload.AllowedImageTypes, "image/png")
}

func TestValidateRejectsTrailingSlashBaseURL(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Server.BaseURL = "http://localhost:3000/"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsChunkedSmallerThanSimple(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Upload.MaxChunkedUploadSize = cfg.Upload.MaxSimpleUploadSize - 1
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSmallChunkSize(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Upload.ChunkSize = 512
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadOutputFormat(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Processing.OutputFormat = "avif"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsDeepDirectoryLevels(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Storage.DirectoryLevels = 5
	assert.Error(t, cfg.Validate())
}

func TestValidateAuthRequiresKeys(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Auth.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Auth.APIKeys = []string{"secret"}
	assert.NoError(t, cfg.Validate())
}

func TestValidateRexPumpRequiresNetworks(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.RexPump.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.RexPump.Networks = map[string]NetworkConfig{
		"mainnet": {ChainID: 1, RPCURL: "https://eth.example.com"},
	}
	assert.NoError(t, cfg.Validate())
}

func TestOutputFormatHelpers(t *testing.T) {
	p := ProcessingConfig{OutputFormat: "jpg"}
	assert.Equal(t, "image/jpeg", p.OutputMimeType())
	assert.Equal(t, "jpg", p.OutputExtension())

	p.OutputFormat = "png"
	assert.Equal(t, "image/png", p.OutputMimeType())

	p.OutputFormat = "something-else"
	assert.Equal(t, "image/webp", p.OutputMimeType())
	assert.Equal(t, "webp", p.OutputExtension())
}

func TestNetworkByChainID(t *testing.T) {
	r := RexPumpConfig{Networks: map[string]NetworkConfig{
		"mainnet": {ChainID: 1, RPCURL: "https://eth.example.com"},
		"base":    {ChainID: 8453, RPCURL: "https://base.example.com"},
	}}

	n, ok := r.NetworkByChainID(8453)
	require.True(t, ok)
	assert.Equal(t, "https://base.example.com", n.RPCURL)

	_, ok = r.NetworkByChainID(42)
	assert.False(t, ok)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("MEDIAD_SERVER_PORT", "8080")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestUploadSizeDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, uint64(10<<20), cfg.Upload.MaxSimpleUploadSize.Uint64())
	assert.Equal(t, uint64(100<<20), cfg.Upload.MaxChunkedUploadSize.Uint64())
	assert.Equal(t, uint64(5<<20), cfg.Upload.ChunkSize.Uint64())
}

func TestUploadSizeStrings(t *testing.T) {
	t.Setenv("MEDIAD_UPLOAD_MAX_SIMPLE_UPLOAD_SIZE", "2MiB")
	t.Setenv("MEDIAD_UPLOAD_CHUNK_SIZE", "1048576")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, uint64(2<<20), cfg.Upload.MaxSimpleUploadSize.Uint64())
	assert.Equal(t, uint64(1<<20), cfg.Upload.ChunkSize.Uint64())
}
